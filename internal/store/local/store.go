// Package local implements the fallback store: one serialized record array
// per entity type under fixed namespaced keys, each key guarded by its own
// mutex so read-modify-write cycles never interleave.
package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// DefaultKeyPrefix namespaces every key written by the store.
const DefaultKeyPrefix = "diagramhub:"

// DefaultActivityLogLimit is how many activity entries the store retains.
const DefaultActivityLogLimit = 1000

// Collection keys.
const (
	KeyProjects    = "projects"
	KeyFolders     = "folders"
	KeyDiagrams    = "diagrams"
	KeyProfiles    = "profiles"
	KeySessions    = "collaboration_sessions"
	KeyActivity    = "activity_logs"
	KeyPreferences = "preferences"
)

var collectionKeys = []string{KeyProjects, KeyFolders, KeyDiagrams, KeyProfiles, KeySessions, KeyActivity, KeyPreferences}

// Store is the local fallback implementation of every store contract.
type Store struct {
	kv            KV
	prefix        string
	locks         map[string]*sync.Mutex
	now           func() time.Time
	activityLimit int
}

// Option customises the Store.
type Option func(*Store)

// WithKeyPrefix overrides the namespace prepended to every key.
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithNow overrides the clock used for timestamps.
func WithNow(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithActivityLogLimit adjusts how many activity entries are retained.
func WithActivityLogLimit(limit int) Option {
	return func(s *Store) {
		if limit > 0 {
			s.activityLimit = limit
		}
	}
}

// New constructs a Store over kv.
func New(kv KV, opts ...Option) (*Store, error) {
	if kv == nil {
		return nil, errors.New("local store: kv is required")
	}

	s := &Store{
		kv:            kv,
		prefix:        DefaultKeyPrefix,
		locks:         make(map[string]*sync.Mutex, len(collectionKeys)),
		now:           time.Now,
		activityLimit: DefaultActivityLogLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	for _, key := range collectionKeys {
		s.locks[key] = &sync.Mutex{}
	}
	return s, nil
}

// Ping verifies the backing KV answers reads.
func (s *Store) Ping(ctx context.Context) error {
	_, _, err := s.kv.Get(ctx, s.prefix+KeyPreferences)
	return err
}

// LoadValue decodes the JSON value stored under one of the collection keys.
// It reports false when the key has never been written.
func (s *Store) LoadValue(ctx context.Context, key string, dest any) (bool, error) {
	raw, ok, err := s.kv.Get(ctx, s.prefix+key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, fmt.Errorf("local store: decode %s: %w", key, err)
	}
	return true, nil
}

// StoreValue encodes value as JSON under one of the collection keys.
func (s *Store) StoreValue(ctx context.Context, key string, value any) error {
	unlock := s.lock(key)
	defer unlock()
	return s.write(ctx, key, value)
}

// lock acquires the mutexes for keys in a fixed order and returns the release func.
func (s *Store) lock(keys ...string) func() {
	ordered := append([]string(nil), keys...)
	sort.Strings(ordered)

	acquired := make([]*sync.Mutex, 0, len(ordered))
	var last string
	for i, key := range ordered {
		if i > 0 && key == last {
			continue
		}
		last = key
		mu, ok := s.locks[key]
		if !ok {
			panic(fmt.Sprintf("local store: unknown key %q", key))
		}
		mu.Lock()
		acquired = append(acquired, mu)
	}

	return func() {
		for i := len(acquired) - 1; i >= 0; i-- {
			acquired[i].Unlock()
		}
	}
}

func (s *Store) write(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("local store: encode %s: %w", key, err)
	}
	if err := s.kv.Set(ctx, s.prefix+key, raw); err != nil {
		return fmt.Errorf("local store: write %s: %w", key, err)
	}
	return nil
}

func load[T any](ctx context.Context, s *Store, key string) ([]T, error) {
	var items []T
	if _, err := s.LoadValue(ctx, key, &items); err != nil {
		return nil, fmt.Errorf("local store: read %s: %w", key, err)
	}
	return items, nil
}

func save[T any](ctx context.Context, s *Store, key string, items []T) error {
	if items == nil {
		items = []T{}
	}
	return s.write(ctx, key, items)
}

func indexOf[T any](items []T, match func(T) bool) int {
	for i, item := range items {
		if match(item) {
			return i
		}
	}
	return -1
}

func ensureContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
