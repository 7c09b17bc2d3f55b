package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StephenStolk/nutriapp-sub001/internal/domain"
)

func TestSweep_ConvergesAndAnnouncesExpiry(t *testing.T) {
	repo := newTestStore(t)
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	publisher := &publisherStub{}
	sweeper := NewSweeper(repo, publisher, "entitlement_events", discardLogger())
	sweeper.nowFn = func() time.Time { return now }

	seedPro(t, repo, "lapsed", true, now.Add(-time.Minute))
	seedPro(t, repo, "current", true, now.Add(time.Minute))
	seedActiveFree(t, repo, "free")

	first, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, first)

	second, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, second)

	require.Len(t, publisher.events, 1)
	assert.Equal(t, domain.EventSubscriptionExpired, publisher.events[0].Type)
	assert.Equal(t, "lapsed", publisher.events[0].UserID)

	sub, err := repo.Get(context.Background(), "lapsed")
	require.NoError(t, err)
	assert.Equal(t, domain.StateExpired, domain.DeriveState(sub, now))
}

func TestSweep_ReturnsStoreError(t *testing.T) {
	repo := &faultyRepo{Repository: newTestStore(t), sweepErr: errors.New("deadlock")}
	sweeper := NewSweeper(repo, nil, "", discardLogger())

	_, err := sweeper.Sweep(context.Background())
	assert.Error(t, err)
}

type sweeperStub struct {
	calls int
	err   error
}

func (s *sweeperStub) Sweep(ctx context.Context) (int, error) {
	s.calls++
	if _, ok := ctx.Deadline(); !ok {
		return 0, errors.New("sweep ran without a deadline")
	}
	return 3, s.err
}

func TestExpireSubscriptionsJob_RunsSweepWithDeadline(t *testing.T) {
	stub := &sweeperStub{}
	logger, buf := bufferLogger()
	jobs := NewJobs(stub, time.Second, logger)

	jobs.ExpireSubscriptions()

	assert.Equal(t, 1, stub.calls)
	assert.Contains(t, buf.String(), `"deactivated":3`)
}

func TestExpireSubscriptionsJob_LogsFailure(t *testing.T) {
	stub := &sweeperStub{err: errors.New("db unavailable")}
	logger, buf := bufferLogger()
	jobs := NewJobs(stub, 0, logger)

	jobs.ExpireSubscriptions()

	assert.Equal(t, 1, stub.calls)
	assert.Contains(t, buf.String(), "subscription expiry job failed")
}

func TestScheduler_RejectsInvalidSchedule(t *testing.T) {
	jobs := NewJobs(&sweeperStub{}, time.Second, discardLogger())
	scheduler := NewScheduler(jobs, "every now and then", discardLogger())

	err := scheduler.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "every now and then")
}

func TestScheduler_StartsAndStops(t *testing.T) {
	jobs := NewJobs(&sweeperStub{}, time.Second, discardLogger())
	scheduler := NewScheduler(jobs, "*/5 * * * *", discardLogger())

	require.NoError(t, scheduler.Start())
	ctx := scheduler.Stop()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}
