// Package telemetry collects in-process statement statistics from the
// executor middleware chain. Nothing leaves the process.
package telemetry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/omegaalfa/QueryBuilder/internal/debug"
	"github.com/omegaalfa/QueryBuilder/query/executor"
)

// SlowStatement records a round trip that exceeded the slow threshold
type SlowStatement struct {
	Kind     string        `json:"kind" yaml:"kind"`
	Table    string        `json:"table,omitempty" yaml:"table,omitempty"`
	Query    string        `json:"query" yaml:"query"`
	Duration time.Duration `json:"duration" yaml:"duration"`
	At       time.Time     `json:"at" yaml:"at"`
}

// SlowHook is called for every slow round trip
type SlowHook func(ctx context.Context, event *executor.QueryEvent)

// Option configures a Collector
type Option func(*Collector)

// WithSlowThreshold sets the duration above which a round trip counts as slow.
// Default is 100ms.
func WithSlowThreshold(d time.Duration) Option {
	return func(c *Collector) {
		c.slowThreshold = d
	}
}

// WithSlowHook sets a callback for slow round trips
func WithSlowHook(hook SlowHook) Option {
	return func(c *Collector) {
		c.slowHook = hook
	}
}

// WithSlowLog logs slow round trips through the package logger
func WithSlowLog() Option {
	return WithSlowHook(func(_ context.Context, event *executor.QueryEvent) {
		debug.Warn("Slow statement", "kind", event.Kind, "duration", event.Duration, "sql", event.Query)
	})
}

// WithRecentLimit bounds how many slow statements are retained. Default is 20.
func WithRecentLimit(n int) Option {
	return func(c *Collector) {
		c.recentLimit = n
	}
}

// Collector aggregates statement statistics. It is safe for concurrent use.
type Collector struct {
	queries   atomic.Int64
	execs     atomic.Int64
	counts    atomic.Int64
	cacheHits atomic.Int64
	rows      atomic.Int64
	errors    atomic.Int64
	slow      atomic.Int64
	duration  atomic.Int64 // nanoseconds

	slowThreshold time.Duration
	slowHook      SlowHook
	recentLimit   int

	mu     sync.Mutex
	tables map[string]int64
	recent []SlowStatement
}

// NewCollector creates a collector
func NewCollector(opts ...Option) *Collector {
	c := &Collector{
		slowThreshold: 100 * time.Millisecond,
		recentLimit:   20,
		tables:        make(map[string]int64),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Middleware returns the executor middleware feeding the collector
func (c *Collector) Middleware() executor.Middleware {
	return func(ctx context.Context, event *executor.QueryEvent, next func() error) error {
		err := next()
		c.Record(ctx, event)
		return err
	}
}

// Record adds one finished round trip
func (c *Collector) Record(ctx context.Context, event *executor.QueryEvent) {
	switch event.Kind {
	case executor.KindQuery:
		c.queries.Add(1)
	case executor.KindExec:
		c.execs.Add(1)
	case executor.KindCount:
		c.counts.Add(1)
	case executor.KindCache:
		c.cacheHits.Add(1)
	}
	if event.Error != nil {
		c.errors.Add(1)
	} else if event.Kind != executor.KindCount {
		c.rows.Add(event.RowCount)
	}
	c.duration.Add(int64(event.Duration))

	c.mu.Lock()
	if event.Table != "" {
		c.tables[event.Table]++
	}
	slow := !event.Cached && c.slowThreshold > 0 && event.Duration > c.slowThreshold
	if slow {
		c.recent = append(c.recent, SlowStatement{
			Kind:     event.Kind,
			Table:    event.Table,
			Query:    event.Query,
			Duration: event.Duration,
			At:       event.End,
		})
		if over := len(c.recent) - c.recentLimit; over > 0 {
			c.recent = append(c.recent[:0], c.recent[over:]...)
		}
	}
	c.mu.Unlock()

	if slow {
		c.slow.Add(1)
		if c.slowHook != nil {
			c.slowHook(ctx, event)
		}
	}
}

// Snapshot returns the current statistics
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	tables := make(map[string]int64, len(c.tables))
	for k, v := range c.tables {
		tables[k] = v
	}
	recent := append([]SlowStatement(nil), c.recent...)
	c.mu.Unlock()

	return Snapshot{
		Queries:       c.queries.Load(),
		Execs:         c.execs.Load(),
		Counts:        c.counts.Load(),
		CacheHits:     c.cacheHits.Load(),
		Rows:          c.rows.Load(),
		Errors:        c.errors.Load(),
		SlowStatement: c.slow.Load(),
		TotalDuration: time.Duration(c.duration.Load()),
		Tables:        tables,
		RecentSlow:    recent,
	}
}

// Reset zeroes all statistics
func (c *Collector) Reset() {
	c.queries.Store(0)
	c.execs.Store(0)
	c.counts.Store(0)
	c.cacheHits.Store(0)
	c.rows.Store(0)
	c.errors.Store(0)
	c.slow.Store(0)
	c.duration.Store(0)

	c.mu.Lock()
	c.tables = make(map[string]int64)
	c.recent = nil
	c.mu.Unlock()
}

// Snapshot is a point-in-time copy of collector statistics
type Snapshot struct {
	Queries       int64            `json:"queries" yaml:"queries"`
	Execs         int64            `json:"execs" yaml:"execs"`
	Counts        int64            `json:"counts" yaml:"counts"`
	CacheHits     int64            `json:"cache_hits" yaml:"cache_hits"`
	Rows          int64            `json:"rows" yaml:"rows"`
	Errors        int64            `json:"errors" yaml:"errors"`
	SlowStatement int64            `json:"slow" yaml:"slow"`
	TotalDuration time.Duration    `json:"total_duration" yaml:"total_duration"`
	Tables        map[string]int64 `json:"tables,omitempty" yaml:"tables,omitempty"`
	RecentSlow    []SlowStatement  `json:"recent_slow,omitempty" yaml:"recent_slow,omitempty"`
}

// RoundTrips returns the number of statements sent to the database
func (s Snapshot) RoundTrips() int64 {
	return s.Queries + s.Execs + s.Counts
}

// AvgDuration returns the mean duration of database round trips and cache hits
func (s Snapshot) AvgDuration() time.Duration {
	total := s.RoundTrips() + s.CacheHits
	if total == 0 {
		return 0
	}
	return s.TotalDuration / time.Duration(total)
}

// CacheHitRate returns cache hits as a fraction of statements answered
func (s Snapshot) CacheHitRate() float64 {
	answered := s.Queries + s.CacheHits
	if answered == 0 {
		return 0
	}
	return float64(s.CacheHits) / float64(answered)
}

// TableNames returns the tables seen, most used first
func (s Snapshot) TableNames() []string {
	names := make([]string, 0, len(s.Tables))
	for name := range s.Tables {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if s.Tables[names[i]] != s.Tables[names[j]] {
			return s.Tables[names[i]] > s.Tables[names[j]]
		}
		return names[i] < names[j]
	})
	return names
}

func (s Snapshot) String() string {
	return fmt.Sprintf(
		"queries=%d execs=%d counts=%d cache_hits=%d rows=%d duration=%s avg=%s slow=%d errors=%d",
		s.Queries, s.Execs, s.Counts, s.CacheHits, s.Rows, s.TotalDuration, s.AvgDuration(),
		s.SlowStatement, s.Errors,
	)
}
