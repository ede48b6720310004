package cache

import (
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/omegaalfa/QueryBuilder/internal/debug"
	"github.com/omegaalfa/QueryBuilder/query"
)

// Adapter stores executed results in a Store. It never evicts or expires
// entries itself; that is left to the store.
//
// Keys saved with extra tables, such as the joined tables of a SELECT, are
// indexed in memory under each of them so that a write to any of those tables
// drops the entry.
type Adapter struct {
	store Store
	group singleflight.Group

	mu    sync.Mutex
	index map[string]map[string]struct{}
}

// NewAdapter creates an adapter over store
func NewAdapter(store Store) *Adapter {
	return &Adapter{store: store, index: make(map[string]map[string]struct{})}
}

// Store returns the underlying store
func (a *Adapter) Store() Store {
	return a.store
}

// Lookup returns the result cached under key. An entry that cannot be decoded
// is reported as an error and treated as a miss by callers.
func (a *Adapter) Lookup(key string) (*query.Result, bool, error) {
	if !a.store.Has(key) {
		return nil, false, nil
	}
	data, ok := a.store.Get(key)
	if !ok {
		return nil, false, nil
	}
	r, err := DecodeResult(data)
	if err != nil {
		return nil, false, err
	}
	return r, true, nil
}

// Save stores result under key for ttl. The key is indexed under every table
// in tables besides the one it is namespaced by.
func (a *Adapter) Save(key string, result *query.Result, ttl time.Duration, tables ...string) error {
	data, err := EncodeResult(result)
	if err != nil {
		return err
	}
	if err := a.store.Set(key, data, ttl); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	for _, table := range tables {
		if matchesPattern(key, TablePattern(table)) {
			continue
		}
		keys, ok := a.index[table]
		if !ok {
			keys = make(map[string]struct{})
			a.index[table] = keys
		}
		keys[key] = struct{}{}
	}
	return nil
}

// Do runs fn once for concurrent callers sharing key. Callers that joined an
// in-flight call receive the same result and shared set to true.
func (a *Adapter) Do(key string, fn func() (*query.Result, error)) (result *query.Result, shared bool, err error) {
	v, err, shared := a.group.Do(key, func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		return nil, shared, err
	}
	return v.(*query.Result), shared, nil
}

// InvalidateTable drops every cached result of table, including results of
// other tables that were saved with table among their tables. It reports false
// when the store cannot invalidate.
func (a *Adapter) InvalidateTable(table string) bool {
	inv, ok := a.store.(Invalidator)
	if !ok {
		return false
	}
	pattern := TablePattern(table)
	inv.InvalidatePattern(pattern)

	a.mu.Lock()
	keys := a.index[table]
	delete(a.index, table)
	a.mu.Unlock()
	for key := range keys {
		inv.Invalidate(key)
	}
	debug.Debug("Invalidated cached results", "pattern", pattern, "indexed", len(keys))
	return true
}
