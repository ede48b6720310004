package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omegaalfa/QueryBuilder/query/executor"
)

func record(c *Collector, kind, table string, d time.Duration, rows int64, err error) {
	c.Record(context.Background(), &executor.QueryEvent{
		Kind:     kind,
		Table:    table,
		Query:    "SELECT 1",
		Cached:   kind == executor.KindCache,
		RowCount: rows,
		Duration: d,
		Error:    err,
	})
}

func TestCollectorCounts(t *testing.T) {
	c := NewCollector()
	record(c, executor.KindQuery, "users", 10*time.Millisecond, 3, nil)
	record(c, executor.KindCount, "users", 10*time.Millisecond, 1, nil)
	record(c, executor.KindExec, "orders", 20*time.Millisecond, 1, nil)
	record(c, executor.KindCache, "users", 0, 3, nil)
	record(c, executor.KindExec, "orders", 0, 0, errors.New("deadlock"))

	s := c.Snapshot()
	assert.Equal(t, int64(1), s.Queries)
	assert.Equal(t, int64(2), s.Execs)
	assert.Equal(t, int64(1), s.Counts)
	assert.Equal(t, int64(1), s.CacheHits)
	assert.Equal(t, int64(7), s.Rows)
	assert.Equal(t, int64(1), s.Errors)
	assert.Equal(t, int64(4), s.RoundTrips())
	assert.Equal(t, 40*time.Millisecond, s.TotalDuration)
	assert.Equal(t, 8*time.Millisecond, s.AvgDuration())
	assert.InDelta(t, 0.5, s.CacheHitRate(), 0.0001)
	assert.Equal(t, []string{"users", "orders"}, s.TableNames())
	assert.Contains(t, s.String(), "queries=1 execs=2")
}

func TestSlowStatements(t *testing.T) {
	var hooked []string
	c := NewCollector(
		WithSlowThreshold(50*time.Millisecond),
		WithRecentLimit(2),
		WithSlowHook(func(_ context.Context, e *executor.QueryEvent) {
			hooked = append(hooked, e.Table)
		}),
	)

	record(c, executor.KindQuery, "a", 60*time.Millisecond, 0, nil)
	record(c, executor.KindQuery, "b", 10*time.Millisecond, 0, nil)
	record(c, executor.KindQuery, "c", 70*time.Millisecond, 0, nil)
	record(c, executor.KindExec, "d", 80*time.Millisecond, 0, nil)

	s := c.Snapshot()
	assert.Equal(t, int64(3), s.SlowStatement)
	assert.Equal(t, []string{"a", "c", "d"}, hooked)
	require.Len(t, s.RecentSlow, 2)
	assert.Equal(t, "c", s.RecentSlow[0].Table)
	assert.Equal(t, "d", s.RecentSlow[1].Table)
}

func TestMiddlewarePassesErrorThrough(t *testing.T) {
	c := NewCollector()
	mw := c.Middleware()
	boom := errors.New("boom")

	event := &executor.QueryEvent{Kind: executor.KindExec, Table: "users"}
	err := mw(context.Background(), event, func() error {
		event.Error = boom
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int64(1), c.Snapshot().Errors)
}

func TestReset(t *testing.T) {
	c := NewCollector(WithSlowThreshold(time.Nanosecond))
	record(c, executor.KindQuery, "users", time.Second, 1, nil)
	c.Reset()

	s := c.Snapshot()
	assert.Zero(t, s.RoundTrips())
	assert.Zero(t, s.SlowStatement)
	assert.Empty(t, s.Tables)
	assert.Empty(t, s.RecentSlow)
}
