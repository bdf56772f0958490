// Package cache keeps annotated result images on disk for a limited time.
// Each file has an Entry recording when it expires; a scheduled cleaner
// removes the expired files and their entries.
package cache

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// DefaultTTL is how long a cached image is kept.
const DefaultTTL = 72 * time.Hour

// ErrNotFound is returned for a name the cache does not hold.
var ErrNotFound = errors.New("cache entry not found")

// Entry is the metadata of one cached file.
type Entry struct {
	ID        string    `bson:"_id" json:"id"`
	FileName  string    `bson:"fileName" json:"fileName"`
	ExpiresAt time.Time `bson:"expiresAt" json:"expiresAt"`
}

// Repository stores entries.
type Repository interface {
	Save(ctx context.Context, e Entry) error
	// FindExpired returns entries whose expiry is strictly before now.
	FindExpired(ctx context.Context, now time.Time) ([]Entry, error)
	Delete(ctx context.Context, id string) error
	Close(ctx context.Context) error
}

// MemoryRepository keeps entries in process memory. Entries are lost on
// restart, which leaves their files to be removed by hand.
type MemoryRepository struct {
	mu      sync.Mutex
	entries map[string]Entry
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{entries: map[string]Entry{}}
}

func (r *MemoryRepository) Save(_ context.Context, e Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[e.ID] = e
	return nil
}

func (r *MemoryRepository) FindExpired(_ context.Context, now time.Time) ([]Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var expired []Entry
	for _, e := range r.entries {
		if e.ExpiresAt.Before(now) {
			expired = append(expired, e)
		}
	}
	sort.Slice(expired, func(i, j int) bool {
		return expired[i].ExpiresAt.Before(expired[j].ExpiresAt)
	})
	return expired, nil
}

func (r *MemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[id]; !ok {
		return errors.Wrapf(ErrNotFound, "entry %s", id)
	}
	delete(r.entries, id)
	return nil
}

// Len returns the number of entries held.
func (r *MemoryRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *MemoryRepository) Close(context.Context) error { return nil }
