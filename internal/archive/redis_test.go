package archive

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"credibot/internal/session"
)

// fakeCommander records writes and serves reads from an in-memory map.
type fakeCommander struct {
	data map[string]string
	ttls map[string]time.Duration
}

func newFakeCommander() *fakeCommander {
	return &fakeCommander{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeCommander) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	f.data[key] = string(value.([]byte))
	f.ttls[key] = expiration
	cmd := redis.NewStatusCmd(ctx)
	cmd.SetVal("OK")
	return cmd
}

func (f *fakeCommander) Keys(ctx context.Context, pattern string) *redis.StringSliceCmd {
	prefix := strings.TrimSuffix(pattern, "*")
	var keys []string
	for k := range f.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	cmd := redis.NewStringSliceCmd(ctx)
	cmd.SetVal(keys)
	return cmd
}

func (f *fakeCommander) Get(ctx context.Context, key string) *redis.StringCmd {
	cmd := redis.NewStringCmd(ctx)
	val, ok := f.data[key]
	if !ok {
		cmd.SetErr(redis.Nil)
		return cmd
	}
	cmd.SetVal(val)
	return cmd
}

func TestArchiveStoresTranscriptWithTTL(t *testing.T) {
	fake := newFakeCommander()
	a := NewRedis(fake, 48*time.Hour)

	history := []session.Turn{
		{Role: "user", Content: "hola", Timestamp: time.Now()},
		{Role: "assistant", Content: "Buen día", Timestamp: time.Now()},
	}
	if err := a.Archive(context.Background(), "584121234567", history); err != nil {
		t.Fatalf("archive failed: %v", err)
	}

	if len(fake.data) != 1 {
		t.Fatalf("expected 1 stored transcript, got %d", len(fake.data))
	}
	for key, val := range fake.data {
		if !strings.HasPrefix(key, "transcript:584121234567:") {
			t.Fatalf("unexpected key: %s", key)
		}
		if fake.ttls[key] != 48*time.Hour {
			t.Fatalf("expected 48h retention, got %v", fake.ttls[key])
		}
		var rec record
		if err := json.Unmarshal([]byte(val), &rec); err != nil {
			t.Fatalf("stored transcript is not valid JSON: %v", err)
		}
		if rec.UserID != "584121234567" || len(rec.History) != 2 {
			t.Fatalf("unexpected record: %+v", rec)
		}
		if rec.History[1].Content != "Buen día" {
			t.Fatalf("history not preserved: %+v", rec.History)
		}
	}
}

func TestArchiveDefaultsRetention(t *testing.T) {
	fake := newFakeCommander()
	a := NewRedis(fake, 0)

	if err := a.Archive(context.Background(), "u1", []session.Turn{{Role: "user", Content: "hola"}}); err != nil {
		t.Fatalf("archive failed: %v", err)
	}
	for key := range fake.data {
		if fake.ttls[key] != 30*24*time.Hour {
			t.Fatalf("expected 30-day default retention, got %v", fake.ttls[key])
		}
	}
}

func TestLoadReturnsTranscriptsOldestFirst(t *testing.T) {
	fake := newFakeCommander()
	a := NewRedis(fake, time.Hour)
	ctx := context.Background()

	first := []session.Turn{{Role: "user", Content: "primera conversación"}}
	second := []session.Turn{{Role: "user", Content: "segunda conversación"}}
	if err := a.Archive(ctx, "u1", first); err != nil {
		t.Fatalf("archive failed: %v", err)
	}
	time.Sleep(time.Millisecond) // distinct close timestamps
	if err := a.Archive(ctx, "u1", second); err != nil {
		t.Fatalf("archive failed: %v", err)
	}
	if err := a.Archive(ctx, "u2", []session.Turn{{Role: "user", Content: "otro usuario"}}); err != nil {
		t.Fatalf("archive failed: %v", err)
	}

	got, err := a.Load(ctx, "u1")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 transcripts for u1, got %d", len(got))
	}
	if got[0][0].Content != "primera conversación" || got[1][0].Content != "segunda conversación" {
		t.Fatalf("transcripts out of order: %+v", got)
	}
}

func TestLoadUnknownUserIsEmpty(t *testing.T) {
	a := NewRedis(newFakeCommander(), time.Hour)
	got, err := a.Load(context.Background(), "nadie")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no transcripts, got %d", len(got))
	}
}
