package session

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vburojevic/dcw/internal/domain"
)

func TestTrackerStartsSessionOnFirstEvent(t *testing.T) {
	mock := clock.NewMock()
	tr := NewTracker(mock)

	change, err := tr.Observe("s1", domain.EventBreakpoint, 0)
	require.NoError(t, err)
	require.NotNil(t, change)
	assert.Equal(t, "session_start", change.StartSession.Type)
	assert.Equal(t, "s1", change.StartSession.SessionID)
	assert.Equal(t, "breakpoint", change.StartSession.EventType)

	change, err = tr.Observe("s1", domain.EventStep, 0)
	require.NoError(t, err)
	assert.Nil(t, change)
	assert.True(t, tr.Active("s1"))
}

func TestTrackerCountsAndTerminates(t *testing.T) {
	mock := clock.NewMock()
	tr := NewTracker(mock)

	_, _ = tr.Observe("s1", domain.EventBreakpoint, 0)
	_, _ = tr.Observe("s1", domain.EventException, 0)
	_, _ = tr.Observe("s1", domain.EventConsole, 2)
	mock.Add(90 * time.Second)

	end := tr.Terminate("s1")
	require.NotNil(t, end)
	assert.Equal(t, ReasonTerminated, end.Reason)
	assert.Equal(t, domain.SessionSummary{
		TotalEvents:     3,
		Breakpoints:     1,
		Exceptions:      1,
		ConsoleEvents:   1,
		ConsoleErrors:   2,
		DurationSeconds: 90,
	}, end.Summary)

	_, err := tr.Observe("s1", domain.EventStep, 0)
	assert.ErrorIs(t, err, domain.ErrSessionTerminated)
	summary, ok := tr.Summary("s1")
	require.True(t, ok)
	assert.Equal(t, 1, summary.Rejected)
	assert.Equal(t, 90, summary.DurationSeconds, "duration stops at termination")

	assert.Nil(t, tr.Terminate("s1"))
	assert.True(t, tr.Terminated("s1"))
	assert.False(t, tr.Active("s1"))
}

func TestTrackerTerminateUnknownSessionRejectsLaterEvents(t *testing.T) {
	tr := NewTracker(clock.NewMock())

	require.NotNil(t, tr.Terminate("ghost"))
	_, err := tr.Observe("ghost", domain.EventBreakpoint, 0)
	assert.ErrorIs(t, err, domain.ErrSessionTerminated)

	tr.Forget("ghost")
	change, err := tr.Observe("ghost", domain.EventBreakpoint, 0)
	require.NoError(t, err)
	assert.NotNil(t, change)
}

func TestTrackerFinishClosesActiveSessions(t *testing.T) {
	tr := NewTracker(clock.NewMock())
	_, _ = tr.Observe("b", domain.EventStep, 0)
	_, _ = tr.Observe("a", domain.EventStep, 0)
	_, _ = tr.Observe("c", domain.EventStep, 0)
	tr.Terminate("c")

	ends := tr.Finish()
	require.Len(t, ends, 2)
	assert.Equal(t, "a", ends[0].SessionID)
	assert.Equal(t, "b", ends[1].SessionID)
	assert.Equal(t, ReasonStreamEnd, ends[0].Reason)
	assert.Equal(t, 1, ends[0].Summary.Steps)
}
