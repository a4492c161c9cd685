package diary

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"chat-diary-bot/internal/domain"
)

var testLoc = time.FixedZone("CST", 8*3600)

var testNow = time.Date(2025, 3, 10, 12, 0, 0, 0, testLoc)

type memStore struct {
	mu      sync.Mutex
	convs   map[string]domain.Conversation
	records map[string]domain.DailyRecord
	putErr  error
	puts    int
}

func newMemStore() *memStore {
	return &memStore{convs: make(map[string]domain.Conversation), records: make(map[string]domain.DailyRecord)}
}

func (m *memStore) key(conv domain.Conversation, date string) string {
	return conv.Key() + "/" + date
}

func (m *memStore) Get(conv domain.Conversation, date string) (domain.DailyRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[m.key(conv, date)]
	if !ok || rec.Validate() != nil {
		return domain.DailyRecord{}, false, nil
	}
	return rec, true, nil
}

func (m *memStore) Put(conv domain.Conversation, date string, record domain.DailyRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	m.convs[conv.Key()] = conv
	m.records[m.key(conv, date)] = record
	m.puts++
	return nil
}

func (m *memStore) List(conv domain.Conversation) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var dates []string
	prefix := conv.Key() + "/"
	for k := range m.records {
		if strings.HasPrefix(k, prefix) {
			dates = append(dates, strings.TrimPrefix(k, prefix))
		}
	}
	sort.Strings(dates)
	return dates, nil
}

func (m *memStore) ListConversations() ([]domain.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Conversation
	for _, c := range m.convs {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out, nil
}

func (m *memStore) Delete(conv domain.Conversation, date string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, m.key(conv, date))
	return nil
}

type stubSource struct {
	messages []domain.Message
	err      error
	calls    int
	start    time.Time
	end      time.Time
}

func (s *stubSource) FetchMessages(_ context.Context, _ domain.Conversation, start, end time.Time) ([]domain.Message, error) {
	s.calls++
	s.start = start
	s.end = end
	if s.err != nil {
		return nil, s.err
	}
	return s.messages, nil
}

type stubSummarizer struct {
	text     string
	err      error
	calls    int
	maxWords int
	tier     domain.Tier
}

func (s *stubSummarizer) Summarize(_ context.Context, _ []domain.Message, _ string, _ domain.ChatType, maxWords int, tier domain.Tier) (string, error) {
	s.calls++
	s.maxWords = maxWords
	s.tier = tier
	if s.err != nil {
		return "", s.err
	}
	return s.text, nil
}

func testPolicies() map[domain.ChatType]ChatTypePolicy {
	return map[domain.ChatType]ChatTypePolicy{
		domain.ChatTypeGroup: {
			Trigger:          domain.TriggerMessage,
			MessageThreshold: 50,
			TimeInterval:     6 * time.Hour,
			MaxWords: map[domain.Tier]int{
				domain.TierToday:     2000,
				domain.TierYesterday: 1000,
				domain.TierOlder:     500,
			},
		},
		domain.ChatTypePrivate: {
			Trigger:          domain.TriggerAny,
			MessageThreshold: 30,
			TimeInterval:     12 * time.Hour,
			MaxWords: map[domain.Tier]int{
				domain.TierToday:     1500,
				domain.TierYesterday: 800,
				domain.TierOlder:     400,
			},
		},
	}
}

func newTestService(store *memStore, source *stubSource, sum *stubSummarizer) *Service {
	svc := NewService(store, source, sum, Config{
		Identity:      "тестовый собеседник",
		Location:      testLoc,
		RetentionDays: 3,
		Policies:      testPolicies(),
		EnabledChatTypes: map[domain.ChatType]bool{
			domain.ChatTypeGroup:   true,
			domain.ChatTypePrivate: true,
		},
	}, zerolog.Nop())
	svc.now = func() time.Time { return testNow }
	return svc
}

func testConv() domain.Conversation {
	return domain.Conversation{ChatType: domain.ChatTypeGroup, ID: "chat42", DisplayName: "Тестовый чат"}
}

func sampleMessages() []domain.Message {
	return []domain.Message{
		{SentAt: testNow.Add(-2 * time.Hour), Sender: "Алиса", Content: "привет"},
		{SentAt: testNow.Add(-1 * time.Hour), Sender: "Боб", Content: "как дела"},
	}
}

func TestGenerateIdempotent(t *testing.T) {
	store := newMemStore()
	source := &stubSource{messages: sampleMessages()}
	sum := &stubSummarizer{text: "сегодня мы болтали о пустяках"}
	svc := newTestService(store, source, sum)
	conv := testConv()
	today, _, _ := Classify(testNow, testLoc)

	outcome, err := svc.Generate(context.Background(), conv, today, "", false)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if outcome != domain.OutcomeGenerated {
		t.Fatalf("ожидали generated, получили %s", outcome)
	}

	outcome, err = svc.Generate(context.Background(), conv, today, "", false)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if outcome != domain.OutcomeSkipped {
		t.Fatalf("ожидали skipped, получили %s", outcome)
	}
	if sum.calls != 1 {
		t.Fatalf("ожидали 1 вызов суммаризатора, получили %d", sum.calls)
	}
	if store.puts != 1 {
		t.Fatalf("ожидали 1 запись в хранилище, получили %d", store.puts)
	}
}

func TestGenerateForcePreservesCreatedAt(t *testing.T) {
	store := newMemStore()
	source := &stubSource{messages: sampleMessages()}
	sum := &stubSummarizer{text: "первая версия"}
	svc := newTestService(store, source, sum)
	conv := testConv()
	today, _, _ := Classify(testNow, testLoc)

	if _, err := svc.Generate(context.Background(), conv, today, "", false); err != nil {
		t.Fatalf("первая генерация: %v", err)
	}
	first, ok, _ := store.Get(conv, today)
	if !ok {
		t.Fatalf("запись не сохранена")
	}

	svc.now = func() time.Time { return testNow.Add(2 * time.Hour) }
	sum.text = "вторая версия"
	outcome, err := svc.Generate(context.Background(), conv, today, "", true)
	if err != nil {
		t.Fatalf("принудительная генерация: %v", err)
	}
	if outcome != domain.OutcomeGenerated {
		t.Fatalf("ожидали generated, получили %s", outcome)
	}

	second, ok, _ := store.Get(conv, today)
	if !ok {
		t.Fatalf("запись пропала после перегенерации")
	}
	if !second.Summary.CreatedAt.Equal(first.Summary.CreatedAt) {
		t.Fatalf("created_at должен сохраняться: %v != %v", second.Summary.CreatedAt, first.Summary.CreatedAt)
	}
	if !second.Summary.UpdatedAt.After(first.Summary.UpdatedAt) {
		t.Fatalf("updated_at должен расти: %v <= %v", second.Summary.UpdatedAt, first.Summary.UpdatedAt)
	}
	if second.Summary.Content != "вторая версия" {
		t.Fatalf("содержимое не обновилось: %q", second.Summary.Content)
	}
}

func TestGenerateNoData(t *testing.T) {
	store := newMemStore()
	source := &stubSource{}
	sum := &stubSummarizer{text: "не должен вызываться"}
	svc := newTestService(store, source, sum)
	today, _, _ := Classify(testNow, testLoc)

	outcome, err := svc.Generate(context.Background(), testConv(), today, "", false)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if outcome != domain.OutcomeNoData {
		t.Fatalf("ожидали no_data, получили %s", outcome)
	}
	if sum.calls != 0 {
		t.Fatalf("суммаризатор не должен вызываться при пустом окне")
	}
	if store.puts != 0 {
		t.Fatalf("при no_data запись не создаётся")
	}
}

func TestGenerateSummarizerFailure(t *testing.T) {
	store := newMemStore()
	source := &stubSource{messages: sampleMessages()}
	sum := &stubSummarizer{err: errors.New("api недоступен")}
	svc := newTestService(store, source, sum)
	today, _, _ := Classify(testNow, testLoc)

	outcome, err := svc.Generate(context.Background(), testConv(), today, "", false)
	if err == nil {
		t.Fatalf("ожидали ошибку суммаризации")
	}
	if outcome != domain.OutcomeSummarizerFailed {
		t.Fatalf("ожидали summarizer_failed, получили %s", outcome)
	}
	if store.puts != 0 {
		t.Fatalf("при ошибке суммаризации запись не создаётся")
	}
}

func TestGenerateEmptySummaryIsFailure(t *testing.T) {
	store := newMemStore()
	source := &stubSource{messages: sampleMessages()}
	sum := &stubSummarizer{text: ""}
	svc := newTestService(store, source, sum)
	today, _, _ := Classify(testNow, testLoc)

	outcome, err := svc.Generate(context.Background(), testConv(), today, "", false)
	if !errors.Is(err, ErrEmptySummary) {
		t.Fatalf("ожидали ErrEmptySummary, получили %v", err)
	}
	if outcome != domain.OutcomeSummarizerFailed {
		t.Fatalf("ожидали summarizer_failed, получили %s", outcome)
	}
}

func TestGenerateStorageFailure(t *testing.T) {
	store := newMemStore()
	store.putErr = errors.New("диск переполнен")
	source := &stubSource{messages: sampleMessages()}
	sum := &stubSummarizer{text: "текст"}
	svc := newTestService(store, source, sum)
	today, _, _ := Classify(testNow, testLoc)

	outcome, err := svc.Generate(context.Background(), testConv(), today, "", false)
	if err == nil {
		t.Fatalf("ожидали ошибку записи")
	}
	if outcome != domain.OutcomeStorageFailed {
		t.Fatalf("ожидали storage_failed, получили %s", outcome)
	}
}

func TestGenerateUsesTierLimit(t *testing.T) {
	store := newMemStore()
	source := &stubSource{messages: sampleMessages()}
	sum := &stubSummarizer{text: "вчерашний день"}
	svc := newTestService(store, source, sum)
	_, yesterday, _ := Classify(testNow, testLoc)

	if _, err := svc.Generate(context.Background(), testConv(), yesterday, "", false); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if sum.tier != domain.TierYesterday {
		t.Fatalf("ожидали tier yesterday, получили %s", sum.tier)
	}
	if sum.maxWords != 1000 {
		t.Fatalf("ожидали лимит 1000 слов, получили %d", sum.maxWords)
	}
}

func TestGenerateCancelledBeforeWrite(t *testing.T) {
	store := newMemStore()
	source := &stubSource{messages: sampleMessages()}
	sum := &stubSummarizer{text: "текст"}
	svc := newTestService(store, source, sum)
	today, _, _ := Classify(testNow, testLoc)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.Generate(ctx, testConv(), today, "", false)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("ожидали context.Canceled, получили %v", err)
	}
	if store.puts != 0 {
		t.Fatalf("после отмены запись не должна создаваться")
	}
}

func TestOnMessageThresholdResetsAfterGeneration(t *testing.T) {
	store := newMemStore()
	source := &stubSource{messages: sampleMessages()}
	sum := &stubSummarizer{text: "итог дня"}
	svc := newTestService(store, source, sum)
	conv := testConv()
	today, _, _ := Classify(testNow, testLoc)

	for i := 0; i < 49; i++ {
		if svc.OnMessage(conv) {
			t.Fatalf("триггер не должен срабатывать на сообщении %d", i+1)
		}
	}
	if !svc.OnMessage(conv) {
		t.Fatalf("триггер должен сработать на 50-м сообщении")
	}
	if svc.OnMessage(conv) {
		t.Fatalf("повторный триггер до завершения задачи не ставится")
	}

	if _, err := svc.Generate(context.Background(), conv, today, "", true); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if got := svc.PendingCount(conv); got != 0 {
		t.Fatalf("счётчик должен сброситься, получили %d", got)
	}
}

func TestOnMessageCounterSurvivesNoData(t *testing.T) {
	store := newMemStore()
	source := &stubSource{}
	sum := &stubSummarizer{}
	svc := newTestService(store, source, sum)
	conv := testConv()
	today, _, _ := Classify(testNow, testLoc)

	for i := 0; i < 10; i++ {
		svc.OnMessage(conv)
	}
	if _, err := svc.Generate(context.Background(), conv, today, "", true); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if got := svc.PendingCount(conv); got != 10 {
		t.Fatalf("при no_data счётчик не сбрасывается, получили %d", got)
	}
}

func TestStatusDistinguishesNoActivity(t *testing.T) {
	store := newMemStore()
	source := &stubSource{}
	sum := &stubSummarizer{}
	svc := newTestService(store, source, sum)
	conv := testConv()
	_, yesterday, _ := Classify(testNow, testLoc)

	if _, err := svc.Generate(context.Background(), conv, yesterday, "", false); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	report := svc.Status(conv)
	if len(report.Days) != 3 {
		t.Fatalf("ожидали три дня в статусе, получили %d", len(report.Days))
	}
	for _, day := range report.Days {
		if day.Present {
			t.Fatalf("записей нет, день %s не должен быть present", day.Date)
		}
		switch day.Date {
		case yesterday:
			if day.Note != NoteNoActivity {
				t.Fatalf("после no_data ожидали пометку no_activity, получили %q", day.Note)
			}
		default:
			if day.Note != NoteNotChecked {
				t.Fatalf("непроверенный день %s должен быть not_checked, получили %q", day.Date, day.Note)
			}
		}
	}
}

func TestStatusReportsExistingRecord(t *testing.T) {
	store := newMemStore()
	source := &stubSource{messages: sampleMessages()}
	sum := &stubSummarizer{text: "день как день"}
	svc := newTestService(store, source, sum)
	conv := testConv()
	today, _, _ := Classify(testNow, testLoc)

	if _, err := svc.Generate(context.Background(), conv, today, "", false); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	report := svc.Status(conv)
	day := report.Days[0]
	if day.Date != today || !day.Present {
		t.Fatalf("сегодняшний день должен быть present: %+v", day)
	}
	if day.MessageCount != 2 {
		t.Fatalf("ожидали 2 сообщения, получили %d", day.MessageCount)
	}
	if day.WordCount == 0 {
		t.Fatalf("word_count должен быть заполнен")
	}
}

func TestRefreshAllForcesThreeDates(t *testing.T) {
	store := newMemStore()
	source := &stubSource{messages: sampleMessages()}
	sum := &stubSummarizer{text: "запись"}
	svc := newTestService(store, source, sum)
	conv := testConv()

	results, err := svc.RefreshAll(context.Background(), conv, "")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("ожидали три даты, получили %d", len(results))
	}
	for date, outcome := range results {
		if outcome != domain.OutcomeGenerated {
			t.Fatalf("дата %s: ожидали generated, получили %s", date, outcome)
		}
	}
	if sum.calls != 3 {
		t.Fatalf("ожидали 3 вызова суммаризатора, получили %d", sum.calls)
	}
}
