package history

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/zeu5/studybreak-rl/types"
)

func TestRecord(t *testing.T) {
	h := New()
	h.RecordAction(types.Continue)
	h.RecordAction(types.Continue)
	h.RecordAction(types.Continue)
	h.RecordAction(types.LongBreak)

	now := time.Date(2024, time.March, 5, 14, 7, 9, 0, time.Local)
	s := h.RecordSession(40, 7.5, now)
	h.RecordSession(20, 2.5, now)
	if s.ID == "" {
		t.Errorf("sessions should get an id")
	}

	stats := h.LearningStats()
	if stats.TotalSessions != 2 || stats.TotalStudyTime != 60 {
		t.Errorf("got %d sessions and %d minutes", stats.TotalSessions, stats.TotalStudyTime)
	}
	if stats.AverageReward != 5.0 {
		t.Errorf("got average reward %f, want 5", stats.AverageReward)
	}
	want := map[types.Action]ActionStat{
		types.Continue:   {Name: "Continue Studying", Count: 3, Percentage: 75},
		types.ShortBreak: {Name: "Short Break", Count: 0, Percentage: 0},
		types.LongBreak:  {Name: "Long Break", Count: 1, Percentage: 25},
	}
	if diff := cmp.Diff(want, stats.ActionDistribution); diff != "" {
		t.Errorf("action distribution mismatch (-want +got):\n%s", diff)
	}
	if stats.RecentSessions[0].Date != "03/05/2024, 02:07:09 PM" {
		t.Errorf("got date %s", stats.RecentSessions[0].Date)
	}
}

func TestEmptyStats(t *testing.T) {
	stats := New().LearningStats()
	if stats.AverageReward != 0 || len(stats.RecentSessions) != 0 {
		t.Errorf("unexpected stats %+v", stats)
	}
	for _, a := range types.AllActions {
		if stats.ActionDistribution[a].Percentage != 0 {
			t.Errorf("percentage should be 0 without actions")
		}
	}
}

func TestDecodeLegacyFormat(t *testing.T) {
	data := `{"total_sessions": 1, "total_study_time": 30,
	"sessions": [{"date": "2024-01-02T10:11:12.123456", "study_time": 30, "reward": 6.3}],
	"action_counts": {"0": 3, "2": 1}}`
	h, err := Decode([]byte(data))
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if h.ActionCounts[types.ShortBreak] != 0 || h.ActionCounts[types.Continue] != 3 {
		t.Errorf("unexpected action counts %v", h.ActionCounts)
	}
	if h.Sessions[0].Date.Hour() != 10 || h.Sessions[0].StudyTime != 30 {
		t.Errorf("unexpected session %+v", h.Sessions[0])
	}
}

func TestDecodeCorrupt(t *testing.T) {
	for _, data := range []string{
		"not json",
		`{"sessions": [{"date": "yesterday"}]}`,
	} {
		if _, err := Decode([]byte(data)); !errors.Is(err, ErrCorruptHistory) {
			t.Errorf("got %v, want %v", err, ErrCorruptHistory)
		}
	}
}

func TestResolvePath(t *testing.T) {
	cases := []struct {
		env  map[string]string
		want string
	}{
		{map[string]string{}, DefaultFileName},
		{map[string]string{"VERCEL": "1"}, ServerlessPath},
		{map[string]string{"VERCEL": "1", "DATA_PATH": "/data/h.json"}, "/data/h.json"},
	}
	for _, c := range cases {
		got := ResolvePath(func(k string) string { return c.env[k] })
		if got != c.want {
			t.Errorf("got %s, want %s", got, c.want)
		}
	}
}

func testStore(t *testing.T, store Store) {
	ctx := context.Background()
	h, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if h.TotalSessions != 0 {
		t.Fatalf("expected an empty history")
	}

	h.RecordAction(types.ShortBreak)
	h.RecordSession(50, 3.25, time.Now())
	if err := store.Save(ctx, h); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	read, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if read.TotalSessions != 1 || read.TotalStudyTime != 50 || read.ActionCounts[types.ShortBreak] != 1 {
		t.Errorf("unexpected history %+v", read)
	}
	if read.Sessions[0].ID != h.Sessions[0].ID || !read.Sessions[0].Date.Equal(h.Sessions[0].Date) {
		t.Errorf("session not stored correctly")
	}
}

func TestFileStore(t *testing.T) {
	testStore(t, NewFileStore(filepath.Join(t.TempDir(), "nested", "history.json")))
}

func TestFileStoreCorrupt(t *testing.T) {
	p := filepath.Join(t.TempDir(), "history.json")
	if err := os.WriteFile(p, []byte("{"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFileStore(p).Load(context.Background()); !errors.Is(err, ErrCorruptHistory) {
		t.Errorf("got %v, want %v", err, ErrCorruptHistory)
	}
}

func TestMemStore(t *testing.T) {
	m := NewMemStore()
	testStore(t, m)
	if m.Saves() != 1 {
		t.Errorf("got %d saves, want 1", m.Saves())
	}
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("STUDYBREAK_TEST_REDIS")
	if addr == "" {
		t.Skip("STUDYBREAK_TEST_REDIS not set")
	}
	store := NewRedisStore(addr, "studybreak:test:"+t.Name())
	defer store.Close()
	ctx := context.Background()
	if err := store.Ping(ctx); err != nil {
		t.Skipf("redis not reachable: %s", err)
	}
	store.client.Del(ctx, store.key)
	defer store.client.Del(ctx, store.key)
	testStore(t, store)
}
