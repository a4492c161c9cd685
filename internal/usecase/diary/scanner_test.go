package diary

import (
	"context"
	"testing"
	"time"

	"chat-diary-bot/internal/domain"
)

func seedRecord(store *memStore, conv domain.Conversation, date, content string) {
	_ = store.Put(conv, date, domain.DailyRecord{
		Date: date,
		Summary: domain.RecordSummary{
			Content:   content,
			CreatedAt: testNow.Add(-time.Hour),
			UpdatedAt: testNow.Add(-time.Hour),
		},
		LastSummaryTime: testNow.Add(-time.Hour),
		Metadata: domain.RecordMetadata{
			Identity: "тестовый собеседник",
			ChatType: conv.ChatType,
			StreamID: conv.ID,
		},
	})
	store.puts = 0
}

func TestStartupCheckBackfillsActiveConversation(t *testing.T) {
	store := newMemStore()
	source := &stubSource{messages: sampleMessages()}
	sum := &stubSummarizer{text: "восстановленный день"}
	svc := newTestService(store, source, sum)
	conv := testConv()
	today, yesterday, dayBefore := Classify(testNow, testLoc)
	seedRecord(store, conv, today, "сегодняшняя запись")

	svc.StartupCheck(context.Background())

	for _, date := range []string{yesterday, dayBefore} {
		if _, ok, _ := store.Get(conv, date); !ok {
			t.Fatalf("дата %s должна быть дозаполнена", date)
		}
	}
	rec, _, _ := store.Get(conv, today)
	if rec.Summary.Content != "сегодняшняя запись" {
		t.Fatalf("сканер не должен трогать сегодняшнюю запись")
	}
	if sum.calls != 2 {
		t.Fatalf("ожидали 2 генерации, получили %d", sum.calls)
	}
}

func TestStartupCheckSkipsDormantConversation(t *testing.T) {
	store := newMemStore()
	source := &stubSource{messages: sampleMessages()}
	sum := &stubSummarizer{text: "не должен появиться"}
	svc := newTestService(store, source, sum)
	conv := testConv()
	_, yesterday, _ := Classify(testNow, testLoc)
	seedRecord(store, conv, "2025-03-01", "старая запись")

	svc.StartupCheck(context.Background())

	if sum.calls != 0 {
		t.Fatalf("диалог без сегодняшней записи не обрабатывается")
	}
	if _, ok, _ := store.Get(conv, yesterday); ok {
		t.Fatalf("вчерашняя запись не должна появиться у спящего диалога")
	}
}

func TestStartupCheckNeverOverwrites(t *testing.T) {
	store := newMemStore()
	source := &stubSource{messages: sampleMessages()}
	sum := &stubSummarizer{text: "новая версия"}
	svc := newTestService(store, source, sum)
	conv := testConv()
	today, yesterday, _ := Classify(testNow, testLoc)
	seedRecord(store, conv, today, "сегодня")
	seedRecord(store, conv, yesterday, "вчерашний оригинал")

	svc.StartupCheck(context.Background())

	rec, _, _ := store.Get(conv, yesterday)
	if rec.Summary.Content != "вчерашний оригинал" {
		t.Fatalf("существующая запись перезаписана: %q", rec.Summary.Content)
	}
}

func TestStartupCheckContinuesAfterFailure(t *testing.T) {
	store := newMemStore()
	source := &stubSource{err: context.DeadlineExceeded}
	sum := &stubSummarizer{}
	svc := newTestService(store, source, sum)
	convA := domain.Conversation{ChatType: domain.ChatTypeGroup, ID: "a", DisplayName: "А"}
	convB := domain.Conversation{ChatType: domain.ChatTypeGroup, ID: "b", DisplayName: "Б"}
	today, _, _ := Classify(testNow, testLoc)
	seedRecord(store, convA, today, "сегодня а")
	seedRecord(store, convB, today, "сегодня б")

	svc.StartupCheck(context.Background())

	// по две даты на диалог: ошибка первого не остановила второй
	if source.calls != 4 {
		t.Fatalf("ожидали 4 попытки чтения, получили %d", source.calls)
	}
}

func TestOnFirstAccessRunsOnce(t *testing.T) {
	store := newMemStore()
	source := &stubSource{}
	sum := &stubSummarizer{}
	svc := newTestService(store, source, sum)
	conv := testConv()
	today, _, _ := Classify(testNow, testLoc)
	seedRecord(store, conv, today, "сегодня")

	svc.OnFirstAccess(context.Background(), conv)
	after := source.calls
	svc.OnFirstAccess(context.Background(), conv)

	if source.calls != after {
		t.Fatalf("повторный первый доступ не должен запускать проверку")
	}
}
