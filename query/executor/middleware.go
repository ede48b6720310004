package executor

import (
	"context"
	"time"

	"github.com/omegaalfa/QueryBuilder/internal/debug"
)

// Round trip kinds reported in QueryEvent.Kind
const (
	KindQuery = "query"
	KindExec  = "exec"
	KindCount = "count"
	KindCache = "cache"
)

// QueryEvent represents one statement round trip, or a cache hit standing in for one
type QueryEvent struct {
	Kind     string
	Table    string
	Query    string
	Args     []interface{}
	Cached   bool
	RowCount int64
	Duration time.Duration
	Error    error
	Start    time.Time
	End      time.Time
}

// Middleware is a function that intercepts statement execution
type Middleware func(ctx context.Context, event *QueryEvent, next func() error) error

// runWithMiddleware executes run through the middleware chain
func runWithMiddleware(ctx context.Context, middlewares []Middleware, event *QueryEvent, run func() error) error {
	event.Start = time.Now()
	finish := func() error {
		err := run()
		event.End = time.Now()
		event.Duration = event.End.Sub(event.Start)
		event.Error = err
		return err
	}
	if len(middlewares) == 0 {
		return finish()
	}

	index := 0
	var next func() error
	next = func() error {
		if index >= len(middlewares) {
			// Last middleware, execute the actual statement
			return finish()
		}
		middleware := middlewares[index]
		index++
		return middleware(ctx, event, next)
	}
	return next()
}

// LoggingMiddleware logs every round trip through the package logger
func LoggingMiddleware() Middleware {
	return func(ctx context.Context, event *QueryEvent, next func() error) error {
		err := next()
		log := debug.With("kind", event.Kind, "sql", event.Query, "duration", event.Duration)
		switch {
		case err != nil:
			log.Warn("Statement failed", "error", err)
		case event.Cached:
			log.Debug("Statement served from cache", "rows", event.RowCount)
		default:
			log.Debug("Statement completed", "rows", event.RowCount)
		}
		return err
	}
}

// TimingMiddleware reports the duration of every round trip
func TimingMiddleware(onTiming func(query string, duration time.Duration)) Middleware {
	return func(ctx context.Context, event *QueryEvent, next func() error) error {
		err := next()
		if onTiming != nil {
			onTiming(event.Query, event.Duration)
		}
		return err
	}
}

// ErrorMiddleware reports failed round trips
func ErrorMiddleware(onError func(query string, err error)) Middleware {
	return func(ctx context.Context, event *QueryEvent, next func() error) error {
		err := next()
		if err != nil && onError != nil {
			onError(event.Query, err)
		}
		return err
	}
}
