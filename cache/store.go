package cache

import (
	"context"
	"image"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// ErrInvalidName is returned for a file name that is not a plain base name.
var ErrInvalidName = errors.New("invalid cache file name")

// Store writes images into a directory and records their expiry.
type Store struct {
	dir    string
	ttl    time.Duration
	repo   Repository
	logger *zap.SugaredLogger
	now    func() time.Time
}

// NewStore creates dir if needed.
func NewStore(dir string, ttl time.Duration, repo Repository, logger *zap.SugaredLogger) (*Store, error) {
	if ttl <= 0 {
		return nil, errors.Errorf("cache ttl must be positive, got %s", ttl)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "creating cache directory %s", dir)
	}
	return &Store{dir: dir, ttl: ttl, repo: repo, logger: logger, now: time.Now}, nil
}

// Dir is the directory files are written to.
func (s *Store) Dir() string { return s.dir }

// Save writes img as a PNG under a fresh name and records when it expires.
func (s *Store) Save(ctx context.Context, img image.Image) (Entry, error) {
	id := uuid.NewString()
	entry := Entry{ID: id, FileName: id + ".png", ExpiresAt: s.now().Add(s.ttl)}

	path := filepath.Join(s.dir, entry.FileName)
	f, err := os.Create(path)
	if err != nil {
		return Entry{}, errors.Wrap(err, "creating cache file")
	}
	if err := multierr.Combine(imaging.Encode(f, img, imaging.PNG), f.Close()); err != nil {
		return Entry{}, multierr.Combine(errors.Wrap(err, "encoding cache file"), os.Remove(path))
	}
	if err := s.repo.Save(ctx, entry); err != nil {
		return Entry{}, multierr.Combine(err, os.Remove(path))
	}
	return entry, nil
}

// Path returns where name is stored, if it is stored.
func (s *Store) Path(name string) (string, error) {
	if name == "" || name == "." || name == ".." || filepath.Base(name) != name || strings.ContainsAny(name, `/\`) {
		return "", errors.Wrapf(ErrInvalidName, "%q", name)
	}
	path := filepath.Join(s.dir, name)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", errors.Wrapf(ErrNotFound, "%q", name)
	}
	return path, nil
}

// Cleanup removes every file whose entry has expired, then the entry. It
// returns how many entries were removed.
func (s *Store) Cleanup(ctx context.Context) (int, error) {
	expired, err := s.repo.FindExpired(ctx, s.now())
	if err != nil {
		return 0, err
	}

	removed := 0
	var errs error
	for _, e := range expired {
		path := filepath.Join(s.dir, filepath.Base(e.FileName))
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			errs = multierr.Append(errs, errors.Wrapf(err, "removing %s", e.FileName))
			continue
		}
		if err := s.repo.Delete(ctx, e.ID); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		removed++
	}
	return removed, errs
}
