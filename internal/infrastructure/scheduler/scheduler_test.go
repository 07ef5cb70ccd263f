package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJob struct {
	name  string
	runs  atomic.Int32
	err   error
	block chan struct{}
}

func (j *countingJob) Name() string        { return j.name }
func (j *countingJob) Description() string { return "test job" }

func (j *countingJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	if j.block != nil {
		select {
		case <-j.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return j.err
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestParseCronExpression(t *testing.T) {
	tests := []struct {
		expr    string
		wantErr bool
	}{
		{"0 2 * * *", false},
		{"*/15 * * * *", false},
		{"0 9-17/2 * * 1-5", false},
		{"0,30 * * * *", false},
		{"0 2 * *", true},
		{"60 * * * *", true},
		{"0 5-3 * * *", true},
		{"*/0 * * * *", true},
		{"a * * * *", true},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			_, err := ParseCronExpression(tt.expr, nil)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCronExpression_NextInZone(t *testing.T) {
	la, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)

	ce := MustParseCronExpression("0 2 * * *", la)

	after := time.Date(2025, 6, 1, 3, 0, 0, 0, la)
	assert.WithinDuration(t, time.Date(2025, 6, 2, 2, 0, 0, 0, la), ce.Next(after), 0)

	before := time.Date(2025, 6, 1, 1, 59, 30, 0, la)
	assert.WithinDuration(t, time.Date(2025, 6, 1, 2, 0, 0, 0, la), ce.Next(before), 0)

	// 02:00 does not exist on 2025-03-09 in Los Angeles.
	spring := time.Date(2025, 3, 8, 12, 0, 0, 0, la)
	assert.WithinDuration(t, time.Date(2025, 3, 10, 2, 0, 0, 0, la), ce.Next(spring), 0)
}

func TestCronExpression_DayFieldsUnion(t *testing.T) {
	// The 1st of the month or any Monday.
	ce := MustParseCronExpression("0 0 1 * 1", time.UTC)

	// 2025-06-01 is a Sunday; the next Monday is 2025-06-02.
	from := time.Date(2025, 5, 31, 12, 0, 0, 0, time.UTC)
	assert.WithinDuration(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), ce.Next(from), 0)
	assert.WithinDuration(t, time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC), ce.Next(ce.Next(from)), 0)
}

func TestParseSchedule(t *testing.T) {
	s, err := ParseSchedule("@every 90m", nil)
	require.NoError(t, err)
	assert.Equal(t, "@every 1h30m0s", s.String())

	s, err = ParseSchedule("@daily", time.UTC)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC), s.Next(time.Date(2025, 1, 1, 5, 0, 0, 0, time.UTC)), 0)

	_, err = ParseSchedule("@every 10ms", nil)
	assert.Error(t, err)
}

func TestDailySchedule_Next(t *testing.T) {
	la, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)
	s := DailySchedule{Hour: 2, Minute: 30, Location: la}

	assert.WithinDuration(t, time.Date(2025, 6, 1, 2, 30, 0, 0, la), s.Next(time.Date(2025, 6, 1, 0, 0, 0, 0, la)), 0)
	assert.WithinDuration(t, time.Date(2025, 6, 2, 2, 30, 0, 0, la), s.Next(time.Date(2025, 6, 1, 2, 30, 0, 0, la)), 0)

	// Fall back: 2025-11-02 is a 25-hour day, the next run is still 02:30 local.
	assert.WithinDuration(t, time.Date(2025, 11, 2, 2, 30, 0, 0, la), s.Next(time.Date(2025, 11, 1, 12, 0, 0, 0, la)), 0)
	assert.Equal(t, "daily 02:30 America/Los_Angeles", s.String())
}

func TestScheduler_Register(t *testing.T) {
	s := New(DefaultConfig())
	job := &countingJob{name: "daily"}

	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Hour)))
	assert.ErrorIs(t, s.Register(job, NewIntervalSchedule(time.Hour)), ErrJobAlreadyExists)
	assert.ErrorIs(t, s.Register(nil, NewIntervalSchedule(time.Hour)), ErrNilJob)
	assert.ErrorIs(t, s.Register(&countingJob{name: "x"}, nil), ErrNilSchedule)
	assert.ErrorIs(t, s.SetEnabled("missing", true), ErrJobNotFound)

	jobs := s.ListJobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, "daily", jobs[0].Name)
	assert.True(t, jobs[0].Enabled)
}

func TestScheduler_RunNow(t *testing.T) {
	s := New(DefaultConfig())
	boom := errors.New("boom")
	job := &countingJob{name: "daily", err: boom}
	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Hour)))

	var completed []JobResult
	s.OnJobComplete(func(r JobResult) { completed = append(completed, r) })

	res, err := s.RunNow(context.Background(), "daily")
	assert.ErrorIs(t, err, boom)
	require.NotNil(t, res)
	assert.False(t, res.Success)
	assert.True(t, res.Manual)
	require.Len(t, completed, 1)

	info := s.ListJobs()[0]
	assert.Equal(t, int64(1), info.RunCount)
	assert.Equal(t, int64(1), info.FailCount)
	assert.Len(t, s.History(10), 1)

	_, err = s.RunNow(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestScheduler_FiresDueJobsWithoutOverlap(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)}
	s := New(Config{Tick: 5 * time.Millisecond, Now: clock.Now})

	job := &countingJob{name: "daily", block: make(chan struct{})}
	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Minute)))
	require.NoError(t, s.Start(context.Background()))

	clock.Advance(2 * time.Minute)
	require.Eventually(t, func() bool { return job.runs.Load() == 1 }, time.Second, 5*time.Millisecond)

	_, err := s.RunNow(context.Background(), "daily")
	assert.ErrorIs(t, err, ErrJobInFlight)

	// Due again while the first run is blocked: skipped.
	clock.Advance(2 * time.Minute)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(1), job.runs.Load())

	close(job.block)
	require.Eventually(t, func() bool { return !s.ListJobs()[0].Running }, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Stop())
	assert.ErrorIs(t, s.Stop(), ErrSchedulerNotRunning)
}

func TestScheduler_StopCancelsRunningJob(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)}
	s := New(Config{Tick: 5 * time.Millisecond, Now: clock.Now})

	job := &countingJob{name: "daily", block: make(chan struct{})}
	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Minute)))
	require.NoError(t, s.Start(context.Background()))

	clock.Advance(2 * time.Minute)
	require.Eventually(t, func() bool { return job.runs.Load() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Stop())
	last := s.History(1)
	require.Len(t, last, 1)
	assert.ErrorIs(t, last[0].Error, context.Canceled)
}
