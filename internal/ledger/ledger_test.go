package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/followup-engine/internal/domain"
)

type fakeHistory struct {
	total     int
	attempts  []domain.FollowupAttempt // sent attempts, any order
	manuals   []domain.ManualFollowup
	sinceCall time.Time
}

func (f *fakeHistory) TotalFollowups(_ context.Context, _ uuid.UUID) (int, error) {
	return f.total, nil
}

func (f *fakeHistory) LastSentAttempt(_ context.Context, _ uuid.UUID) (*domain.FollowupAttempt, error) {
	var best *domain.FollowupAttempt
	for i := range f.attempts {
		if best == nil || f.attempts[i].Sequence > best.Sequence {
			best = &f.attempts[i]
		}
	}
	return best, nil
}

func (f *fakeHistory) LastManualFollowup(_ context.Context, _ uuid.UUID) (*domain.ManualFollowup, error) {
	var best *domain.ManualFollowup
	for i := range f.manuals {
		if best == nil || f.manuals[i].DetectedAt.After(best.DetectedAt) {
			best = &f.manuals[i]
		}
	}
	return best, nil
}

func (f *fakeHistory) SentAttemptsSince(_ context.Context, _ uuid.UUID, since time.Time) (int, error) {
	f.sinceCall = since
	n := 0
	for _, a := range f.attempts {
		if a.SentAt != nil && !a.SentAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func sentAttempt(seq int, at time.Time) domain.FollowupAttempt {
	return domain.FollowupAttempt{
		ID:       uuid.New(),
		Sequence: seq,
		Status:   domain.AttemptSent,
		SentAt:   &at,
	}
}

var testNow = time.Date(2026, time.August, 26, 15, 0, 0, 0, time.UTC)

func testEmail() domain.TrackedEmail {
	return domain.TrackedEmail{
		ID:     uuid.New(),
		SentAt: testNow.Add(-72 * time.Hour),
		Status: domain.EmailPending,
	}
}

func TestSummarizeNoActivity(t *testing.T) {
	email := testEmail()
	b := NewBuilder(&fakeHistory{})

	sum, err := b.Summarize(context.Background(), email, testNow, time.UTC)
	require.NoError(t, err)

	assert.Equal(t, 0, sum.TotalFollowups)
	assert.Nil(t, sum.LastAutomatic)
	assert.Nil(t, sum.LastManual)
	assert.Equal(t, ActivityOriginal, sum.LastActivityType)
	assert.True(t, sum.LastActivityAt.Equal(email.SentAt))
	assert.Equal(t, 1, sum.NextSequence())
}

func TestSummarizeHighestSequenceWins(t *testing.T) {
	email := testEmail()
	h := &fakeHistory{
		total: 2,
		attempts: []domain.FollowupAttempt{
			sentAttempt(2, testNow.Add(-10*time.Hour)),
			sentAttempt(1, testNow.Add(-40*time.Hour)),
		},
	}

	sum, err := NewBuilder(h).Summarize(context.Background(), email, testNow, time.UTC)
	require.NoError(t, err)

	assert.Equal(t, 2, sum.LastAutomatic.Sequence)
	assert.Equal(t, 3, sum.NextSequence())
	assert.Equal(t, ActivityAutomatic, sum.LastActivityType)
}

func TestSummarizeManualWinsTies(t *testing.T) {
	email := testEmail()
	at := testNow.Add(-5 * time.Hour)
	h := &fakeHistory{
		total:    2,
		attempts: []domain.FollowupAttempt{sentAttempt(1, at)},
		manuals:  []domain.ManualFollowup{{ID: uuid.New(), Sequence: 2, DetectedAt: at}},
	}

	sum, err := NewBuilder(h).Summarize(context.Background(), email, testNow, time.UTC)
	require.NoError(t, err)

	assert.Equal(t, ActivityManual, sum.LastActivityType)
	assert.True(t, sum.LastActivityAt.Equal(at))
}

func TestSummarizeAutomaticWinsWhenLater(t *testing.T) {
	email := testEmail()
	h := &fakeHistory{
		total:    2,
		attempts: []domain.FollowupAttempt{sentAttempt(1, testNow.Add(-2*time.Hour))},
		manuals:  []domain.ManualFollowup{{ID: uuid.New(), Sequence: 2, DetectedAt: testNow.Add(-6 * time.Hour)}},
	}

	sum, err := NewBuilder(h).Summarize(context.Background(), email, testNow, time.UTC)
	require.NoError(t, err)

	assert.Equal(t, ActivityAutomatic, sum.LastActivityType)
}

// The "today" boundary is midnight in the working-hours timezone, not the
// process-local day.
func TestSummarizeSentTodayUsesCalendarTimezone(t *testing.T) {
	email := testEmail()
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	h := &fakeHistory{
		total: 1,
		// 02:00 UTC today is still "yesterday" in New York.
		attempts: []domain.FollowupAttempt{sentAttempt(1, time.Date(2026, time.August, 26, 2, 0, 0, 0, time.UTC))},
	}

	sum, err := NewBuilder(h).Summarize(context.Background(), email, testNow, ny)
	require.NoError(t, err)
	assert.Equal(t, 0, sum.SentToday)

	sumUTC, err := NewBuilder(h).Summarize(context.Background(), email, testNow, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, 1, sumUTC.SentToday)
}

// TotalFollowups mirrors whatever the aggregate reports; two automatic plus
// one manual counts as three toward the cap.
func TestSummarizeTotalsIncludeManual(t *testing.T) {
	email := testEmail()
	h := &fakeHistory{
		total: 3,
		attempts: []domain.FollowupAttempt{
			sentAttempt(1, testNow.Add(-50*time.Hour)),
			sentAttempt(2, testNow.Add(-26*time.Hour)),
		},
		manuals: []domain.ManualFollowup{{ID: uuid.New(), Sequence: 3, DetectedAt: testNow.Add(-2 * time.Hour)}},
	}

	sum, err := NewBuilder(h).Summarize(context.Background(), email, testNow, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, 3, sum.TotalFollowups)
}
