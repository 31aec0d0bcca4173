package console

import (
	"fmt"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vburojevic/dcw/internal/domain"
	"github.com/vburojevic/dcw/internal/redact"
	"pgregory.net/rapid"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestAppendScrubsMessages(t *testing.T) {
	b := NewBuffer(10, redact.NewEngine(redact.SensitivityLow))

	b.Append(domain.LogEntry{
		Level:     domain.LogLevelLog,
		Message:   "login with password=hunter2 ok",
		Timestamp: base,
		Source:    "/Users/alice/app/index.js:3",
	})

	got := b.All()
	require.Len(t, got, 1)
	assert.Equal(t, "login with [REDACTED] ok", got[0].Message)
	assert.Equal(t, "~/app/index.js:3", got[0].Source)
}

func TestAppendEvictsOldest(t *testing.T) {
	b := NewBuffer(3, nil)
	for i := 0; i < 5; i++ {
		b.Append(domain.LogEntry{Message: fmt.Sprint(i), Timestamp: base.Add(time.Duration(i) * time.Second)})
	}

	got := b.All()
	require.Len(t, got, 3)
	assert.Equal(t, []string{"2", "3", "4"}, messages(got))
	assert.Equal(t, 2, b.Dropped())
}

func TestAppendKeepsArrivalOrder(t *testing.T) {
	b := NewBuffer(10, nil)
	b.Append(domain.LogEntry{Message: "b", Timestamp: base.Add(2 * time.Second)})
	b.Append(domain.LogEntry{Message: "c", Timestamp: base.Add(3 * time.Second)})
	b.Append(domain.LogEntry{Message: "a", Timestamp: base.Add(time.Second)})

	assert.Equal(t, []string{"b", "c", "a"}, messages(b.All()))
	assert.Equal(t, []string{"b", "c"}, messages(b.Since(base.Add(2*time.Second))))
}

func TestFullBufferKeepsLateArrival(t *testing.T) {
	b := NewBuffer(2, nil)
	b.Append(domain.LogEntry{Message: "x", Timestamp: base.Add(time.Minute)})
	b.Append(domain.LogEntry{Message: "y", Timestamp: base.Add(2 * time.Minute)})
	b.Append(domain.LogEntry{Message: "late", Timestamp: base})

	assert.Equal(t, []string{"y", "late"}, messages(b.All()))
	assert.Equal(t, 1, b.Dropped())
}

func TestSetEngineRescrubsBufferedEntries(t *testing.T) {
	b := NewBuffer(10, redact.NewEngine(redact.SensitivityLow))
	b.Append(domain.LogEntry{Message: "client 10.1.2.3 connected", Timestamp: base})

	b.SetEngine(redact.NewEngine(redact.SensitivityHigh))
	b.Append(domain.LogEntry{Message: "client 10.9.8.7 left", Timestamp: base.Add(time.Second)})

	assert.Equal(t, []string{"client [REDACTED] connected", "client [REDACTED] left"}, messages(b.All()))
}

func TestResize(t *testing.T) {
	b := NewBuffer(5, nil)
	for i := 0; i < 5; i++ {
		b.Append(domain.LogEntry{Message: fmt.Sprint(i), Timestamp: base})
	}

	b.Resize(2)
	assert.Equal(t, 2, b.Cap())
	assert.Equal(t, []string{"3", "4"}, messages(b.All()))

	b.Resize(0)
	assert.Equal(t, DefaultCapacity, b.Cap())
}

func TestAppendDefaultsTimestampAndLevel(t *testing.T) {
	mock := clock.NewMock()
	mock.Set(base)
	b := NewBuffer(5, nil, WithClock(mock))

	b.Append(domain.LogEntry{Message: "hi"})

	got := b.All()[0]
	assert.Equal(t, base, got.Timestamp)
	assert.Equal(t, domain.LogLevelLog, got.Level)
}

func TestRecentAndSince(t *testing.T) {
	b := NewBuffer(10, nil)
	for i := 0; i < 5; i++ {
		b.Append(domain.LogEntry{Message: fmt.Sprint(i), Timestamp: base.Add(time.Duration(i) * time.Minute)})
	}

	assert.Equal(t, []string{"3", "4"}, messages(b.Recent(2)))
	assert.Len(t, b.Recent(100), 5)
	assert.Empty(t, b.Recent(-1))
	assert.Equal(t, []string{"2", "3", "4"}, messages(b.Since(base.Add(2*time.Minute))))
	assert.Empty(t, b.Since(base.Add(time.Hour)))
}

func TestWhere(t *testing.T) {
	b := NewBuffer(10, nil)
	b.AppendRaw([]domain.RawLogEntry{
		{Level: "info", Message: "boot", Timestamp: base},
		{Level: "warning", Message: "slow query", Timestamp: base.Add(time.Second)},
		{Level: "error", Message: "query failed\n", Timestamp: base.Add(2 * time.Second)},
	})

	got, err := b.Where("level>=warn")
	require.NoError(t, err)
	assert.Equal(t, []string{"slow query", "query failed"}, messages(got))

	got, err = b.Where("level>=warn", "message~failed")
	require.NoError(t, err)
	assert.Equal(t, []string{"query failed"}, messages(got))

	_, err = b.Where("bogus")
	assert.Error(t, err)
}

func TestDedupeFoldsRepeats(t *testing.T) {
	mock := clock.NewMock()
	b := NewBuffer(10, nil, WithDedupe(0), WithClock(mock))

	assert.True(t, b.Append(domain.LogEntry{Message: "poll"}))
	assert.False(t, b.Append(domain.LogEntry{Message: "poll"}))
	assert.True(t, b.Append(domain.LogEntry{Message: "done"}))

	assert.Equal(t, 2, b.Len())
	assert.Equal(t, 1, b.Folded())

	b.Clear()
	assert.Zero(t, b.Len())
	assert.True(t, b.Append(domain.LogEntry{Message: "done"}))
}

func TestBufferBoundedAndOrdered(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		capacity := rapid.IntRange(1, 10).Draw(t, "capacity")
		offsets := rapid.SliceOfN(rapid.IntRange(0, 100), 0, 40).Draw(t, "offsets")
		b := NewBuffer(capacity, nil)
		for i, off := range offsets {
			b.Append(domain.LogEntry{Message: fmt.Sprint(i), Timestamp: base.Add(time.Duration(off) * time.Second)})
		}

		all := b.All()
		if len(all) > capacity {
			t.Fatalf("len %d exceeds capacity %d", len(all), capacity)
		}
		// the newest arrivals survive, in the order they came
		start := max(len(offsets)-capacity, 0)
		for i, e := range all {
			if e.Message != fmt.Sprint(start+i) {
				t.Fatalf("entry %d is %q, want %d", i, e.Message, start+i)
			}
		}
	})
}

func messages(entries []domain.LogEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Message
	}
	return out
}
