package recordstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"chat-diary-bot/internal/domain"
)

const maxDisplayNameRunes = 50

// Store хранит записи дневника на диске: один JSON файл на
// (диалог, дату), каталог на диалог, каталог на тип диалога.
// Запись выполняется через временный файл и атомарный rename, поэтому
// упавшая посередине запись никогда не оставляет битого файла.
type Store struct {
	root string
	log  zerolog.Logger
}

var _ domain.RecordStore = (*Store)(nil)

// New создаёт файловое хранилище с корнем root.
func New(root string, logger zerolog.Logger) *Store {
	return &Store{root: root, log: logger}
}

// sanitizeDisplayName убирает из отображаемого имени символы, опасные
// для файловой системы, и ограничивает длину.
func sanitizeDisplayName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case strings.ContainsRune(`<>:"/\|?*`, r), r < 0x20:
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	runes := []rune(b.String())
	if len(runes) > maxDisplayNameRunes {
		runes = runes[:maxDisplayNameRunes]
	}
	return strings.TrimSpace(string(runes))
}

// conversationDir возвращает каталог диалога. Существующий каталог с тем
// же идентификатором переиспользуется даже при смене отображаемого имени.
func (s *Store) conversationDir(conv domain.Conversation) string {
	base := filepath.Join(s.root, string(conv.ChatType))
	if entries, err := os.ReadDir(base); err == nil {
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			if e.Name() == conv.ID || strings.HasPrefix(e.Name(), conv.ID+"_") {
				return filepath.Join(base, e.Name())
			}
		}
	}
	name := conv.ID
	if display := sanitizeDisplayName(conv.DisplayName); display != "" {
		name = conv.ID + "_" + display
	}
	return filepath.Join(base, name)
}

func (s *Store) recordPath(conv domain.Conversation, date string) string {
	return filepath.Join(s.conversationDir(conv), date+".json")
}

// Get читает запись. Отсутствующий, битый или невалидный файл
// равносилен отсутствующей записи.
func (s *Store) Get(conv domain.Conversation, date string) (domain.DailyRecord, bool, error) {
	raw, err := os.ReadFile(s.recordPath(conv, date))
	if err != nil {
		if os.IsNotExist(err) {
			return domain.DailyRecord{}, false, nil
		}
		return domain.DailyRecord{}, false, fmt.Errorf("чтение записи: %w", err)
	}

	var rec domain.DailyRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		s.log.Warn().Err(err).Str("conversation", conv.Key()).Str("date", date).Msg("битая запись дневника")
		return domain.DailyRecord{}, false, nil
	}
	if rec.Date != date || rec.Validate() != nil {
		s.log.Warn().Str("conversation", conv.Key()).Str("date", date).Msg("запись дневника не прошла валидацию")
		return domain.DailyRecord{}, false, nil
	}
	return rec, true, nil
}

// Put атомарно сохраняет запись: временный файл в том же каталоге,
// fsync, затем rename. Прежняя запись остаётся нетронутой до полной
// записи новой.
func (s *Store) Put(conv domain.Conversation, date string, record domain.DailyRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}
	dir := s.conversationDir(conv)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("создание каталога диалога: %w", err)
	}

	raw, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("сериализация записи: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+date+".tmp-*")
	if err != nil {
		return fmt.Errorf("создание временного файла: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("запись временного файла: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("fsync временного файла: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("закрытие временного файла: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(dir, date+".json")); err != nil {
		return fmt.Errorf("переименование записи: %w", err)
	}
	return nil
}

// List возвращает даты существующих записей диалога по возрастанию.
func (s *Store) List(conv domain.Conversation) ([]string, error) {
	entries, err := os.ReadDir(s.conversationDir(conv))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("чтение каталога диалога: %w", err)
	}
	var dates []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ".json")
		if name == e.Name() {
			continue
		}
		if _, err := time.Parse(domain.DateLayout, name); err != nil {
			continue
		}
		dates = append(dates, name)
	}
	return dates, nil
}

// ListConversations перечисляет диалоги, представленные в хранилище.
func (s *Store) ListConversations() ([]domain.Conversation, error) {
	var out []domain.Conversation
	for _, chatType := range []domain.ChatType{domain.ChatTypeGroup, domain.ChatTypePrivate} {
		base := filepath.Join(s.root, string(chatType))
		entries, err := os.ReadDir(base)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("чтение каталога %s: %w", chatType, err)
		}
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			id, display := e.Name(), ""
			if i := strings.Index(e.Name(), "_"); i > 0 {
				id, display = e.Name()[:i], e.Name()[i+1:]
			}
			out = append(out, domain.Conversation{ChatType: chatType, ID: id, DisplayName: display})
		}
	}
	return out, nil
}

// Delete удаляет запись; отсутствие файла не считается ошибкой.
func (s *Store) Delete(conv domain.Conversation, date string) error {
	err := os.Remove(s.recordPath(conv, date))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("удаление записи: %w", err)
	}
	return nil
}
