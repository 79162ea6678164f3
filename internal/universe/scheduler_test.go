package universe

import (
	"log"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davzucky/chainuniverse/internal/models"
)

func newTestScheduler(t *testing.T) (*Scheduler, *Tracker) {
	t.Helper()
	tr := NewTracker()
	return NewScheduler(tr, log.New(os.Stderr, "test: ", 0)), tr
}

func TestScheduler_RegisterValidation(t *testing.T) {
	s, _ := newTestScheduler(t)
	at := day(2014, 6, 6)

	require.Error(t, s.Register(ScheduledMutation{Kind: MutationAddChain, Underlying: "TWX", Config: trackedFilter()}))
	require.Error(t, s.Register(ScheduledMutation{At: at, Kind: "explode", Underlying: "TWX"}))
	require.Error(t, s.Register(ScheduledMutation{At: at, Kind: MutationAddChain, Underlying: ""}))
	require.Error(t, s.Register(ScheduledMutation{At: at, Kind: MutationAddChain, Underlying: "TWX"})) // invalid zero config

	require.NoError(t, s.Register(ScheduledMutation{At: at, Kind: MutationAddChain, Underlying: "TWX", Config: trackedFilter()}))
	require.NoError(t, s.Register(ScheduledMutation{At: at, Kind: MutationRemoveChain, Underlying: "TWX"}))
	assert.Equal(t, 2, s.Pending())
}

func TestScheduler_FiresAtMostOnce(t *testing.T) {
	s, tr := newTestScheduler(t)
	at := day(2014, 6, 6)

	require.NoError(t, s.Register(ScheduledMutation{
		At: at, Kind: MutationAddChain, Underlying: "AAPL", Config: trackedFilter(),
	}))

	// Not due yet.
	assert.Equal(t, 0, s.Fire(at.Add(-time.Minute)))
	assert.False(t, tr.IsTracked("AAPL"))

	// Due: fires exactly once.
	assert.Equal(t, 1, s.Fire(at))
	assert.True(t, tr.IsTracked("AAPL"))

	// Repeated calls past the threshold do not re-fire.
	assert.Equal(t, 0, s.Fire(at))
	assert.Equal(t, 0, s.Fire(at.Add(48*time.Hour)))
	assert.Equal(t, 0, s.Pending())
}

func TestScheduler_RemoveChainClearsTracker(t *testing.T) {
	s, tr := newTestScheduler(t)
	require.NoError(t, tr.AddChain("AAPL", trackedFilter()))
	tr.OnSecuritiesChanged([]models.OptionContract{put("AAPL", 95, day(2014, 10, 8))}, nil)

	at := day(2014, 6, 9)
	require.NoError(t, s.Register(ScheduledMutation{At: at, Kind: MutationRemoveChain, Underlying: "AAPL"}))

	require.Equal(t, 1, s.Fire(at))
	assert.False(t, tr.IsTracked("AAPL"))
	assert.Empty(t, tr.Holdings("AAPL"))
}

func TestScheduler_SameTimestampFiresInRegistrationOrder(t *testing.T) {
	s, tr := newTestScheduler(t)
	at := day(2014, 6, 6)

	// Add then remove for the same underlying at the same instant: the
	// registration order decides the outcome.
	require.NoError(t, s.Register(ScheduledMutation{
		At: at, Kind: MutationAddChain, Underlying: "TWX", Config: trackedFilter(),
	}))
	require.NoError(t, s.Register(ScheduledMutation{At: at, Kind: MutationRemoveChain, Underlying: "TWX"}))
	require.NoError(t, s.Register(ScheduledMutation{
		At: at, Kind: MutationAddChain, Underlying: "AAPL", Config: trackedFilter(),
	}))

	assert.Equal(t, 3, s.Fire(at))
	assert.False(t, tr.IsTracked("TWX"), "remove registered after add should win")
	assert.True(t, tr.IsTracked("AAPL"))
	assert.Equal(t, 0, s.Pending())
}

func TestScheduler_LateMutationStillFires(t *testing.T) {
	s, tr := newTestScheduler(t)
	at := day(2014, 6, 6)

	require.NoError(t, s.Register(ScheduledMutation{
		At: at, Kind: MutationAddChain, Underlying: "TWX", Config: trackedFilter(),
	}))

	// Clock jumped past the timestamp; the mutation fires on the next call.
	assert.Equal(t, 1, s.Fire(at.Add(72*time.Hour)))
	assert.True(t, tr.IsTracked("TWX"))
}
