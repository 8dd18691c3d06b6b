package cron

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/collections-import/internal/domain/import/normalizer"
)

type fakeExpirer struct {
	ttl   time.Duration
	calls int
}

func (f *fakeExpirer) ExpireStale(_ context.Context, ttl time.Duration) int {
	f.ttl = ttl
	f.calls++
	return 2
}

type fakePruner struct{ calls int }

func (f *fakePruner) Prune() int {
	f.calls++
	return 1
}

type fakeLister struct {
	aliases []normalizer.ClientAlias
	err     error
}

func (f fakeLister) ListAliases(context.Context) ([]normalizer.ClientAlias, error) {
	return f.aliases, f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestScheduler_RunNow(t *testing.T) {
	runs := &fakeExpirer{}
	pruner := &fakePruner{}
	matcher := normalizer.NewClientMatcher(nil, 0)
	lister := fakeLister{aliases: []normalizer.ClientAlias{{ID: uuid.New(), Pattern: "ACME SA DE CV", ClientNumber: 1024}}}

	s := NewScheduler(Config{PendingTTL: time.Hour}, runs, matcher, lister, testLogger(), pruner)
	s.RunNow()

	assert.Equal(t, 1, runs.calls)
	assert.Equal(t, time.Hour, runs.ttl)
	assert.Equal(t, 1, pruner.calls)
	assert.Equal(t, 1, matcher.Len())
}

func TestScheduler_RefreshFailureKeepsAliases(t *testing.T) {
	matcher := normalizer.NewClientMatcher([]normalizer.ClientAlias{{ID: uuid.New(), Pattern: "ACME", ClientNumber: 1}}, 0)
	s := NewScheduler(Config{}, nil, matcher, fakeLister{err: errors.New("db down")}, testLogger())

	s.RunNow()
	assert.Equal(t, 1, matcher.Len())
}

func TestScheduler_Start(t *testing.T) {
	s := NewScheduler(Config{SweepSchedule: "*/10 * * * *", AliasSchedule: "*/5 * * * *", PendingTTL: time.Hour},
		&fakeExpirer{}, normalizer.NewClientMatcher(nil, 0), fakeLister{}, testLogger())

	require.NoError(t, s.Start())
	assert.Len(t, s.cron.Entries(), 2)
	<-s.Stop().Done()
}

func TestScheduler_BadSchedule(t *testing.T) {
	s := NewScheduler(Config{SweepSchedule: "every minute"}, &fakeExpirer{}, nil, nil, testLogger())
	assert.Error(t, s.Start())
}
