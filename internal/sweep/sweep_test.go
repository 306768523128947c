package sweep

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srkrambo/mock-server/internal/config"
)

type fakeTask struct {
	calls   int
	lastAge time.Duration
	removed int
	err     error
}

func (f *fakeTask) Sweep(_ context.Context, maxAge time.Duration) (int, error) {
	f.calls++
	f.lastAge = maxAge
	return f.removed, f.err
}

func TestRunOnceSweepsEveryTask(t *testing.T) {
	r := NewRunner(config.SweepConfig{Enabled: true, Schedule: "* * * * *"})

	counters := &fakeTask{removed: 3}
	uploads := &fakeTask{removed: 1}
	r.Register("rate_limits", time.Hour, counters)
	r.Register("uploads", 24*time.Hour, uploads)

	r.RunOnce()

	assert.Equal(t, 1, counters.calls)
	assert.Equal(t, time.Hour, counters.lastAge)
	assert.Equal(t, 1, uploads.calls)
	assert.Equal(t, 24*time.Hour, uploads.lastAge)
}

func TestRunOnceContinuesPastFailures(t *testing.T) {
	r := NewRunner(config.SweepConfig{Enabled: true, Schedule: "* * * * *"})

	broken := &fakeTask{err: errors.New("store unavailable")}
	healthy := &fakeTask{removed: 2}
	r.Register("broken", time.Hour, broken)
	r.Register("healthy", time.Hour, healthy)

	r.RunOnce()

	assert.Equal(t, 1, broken.calls)
	assert.Equal(t, 1, healthy.calls)
}

func TestStartDisabledIsNoop(t *testing.T) {
	r := NewRunner(config.SweepConfig{Enabled: false})
	require.NoError(t, r.Start())
}

func TestStartRejectsBadSchedule(t *testing.T) {
	r := NewRunner(config.SweepConfig{Enabled: true, Schedule: "not a schedule"})
	assert.Error(t, r.Start())
}
