package msglog

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"chat-diary-bot/internal/domain"
	"chat-diary-bot/internal/infra/metrics"
)

const (
	fetchBatchSize  = 1000
	fetchMessageCap = 5000
)

// Postgres читает сырые сообщения из архива бот-платформы. Архив —
// внешний read-only источник, таблица messages ведётся другим процессом.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ domain.MessageSource = (*Postgres)(nil)

// NewPostgres создаёт адаптер лога сообщений.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// FetchMessages возвращает сообщения диалога в полуинтервале [start, end)
// в порядке отправки. Чтение идёт пачками по fetchBatchSize с общим
// потолком fetchMessageCap, чтобы один день не раздувал память.
func (p *Postgres) FetchMessages(ctx context.Context, conv domain.Conversation, start, end time.Time) ([]domain.Message, error) {
	const query = `
		SELECT sent_at, sender_name, content
		FROM messages
		WHERE chat_type = $1 AND stream_id = $2 AND sent_at >= $3 AND sent_at < $4
		ORDER BY sent_at, id
		LIMIT $5 OFFSET $6`

	started := time.Now()
	var out []domain.Message
	var err error
	for offset := 0; offset < fetchMessageCap; offset += fetchBatchSize {
		limit := fetchBatchSize
		if rest := fetchMessageCap - offset; rest < limit {
			limit = rest
		}

		var rows []domain.Message
		rows, err = p.fetchBatch(ctx, query, conv, start, end, limit, offset)
		if err != nil {
			break
		}
		out = append(out, rows...)
		if len(rows) < limit {
			break
		}
	}
	metrics.ObserveNetworkRequest("msglog", "fetch_messages", string(conv.ChatType), started, err)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Postgres) fetchBatch(ctx context.Context, query string, conv domain.Conversation, start, end time.Time, limit, offset int) ([]domain.Message, error) {
	rows, err := p.pool.Query(ctx, query, string(conv.ChatType), conv.ID, start, end, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("запрос сообщений: %w", err)
	}
	defer rows.Close()

	var out []domain.Message
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.SentAt, &m.Sender, &m.Content); err != nil {
			return nil, fmt.Errorf("чтение строки сообщения: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("обход сообщений: %w", err)
	}
	return out, nil
}
