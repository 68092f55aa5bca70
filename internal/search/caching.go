package search

import (
	"fmt"
	"sync"
	"time"

	"github.com/dastanaron/browsershell/internal/models"
	"github.com/dastanaron/browsershell/internal/monitoring"
	"go.uber.org/zap"
)

// Store is the backing store the search snapshot is read from.
type Store interface {
	// BookmarksAndFavorites returns favorites first, then the other bookmarks.
	BookmarksAndFavorites() ([]models.Bookmark, error)
	// OnChange registers a callback fired after every mutation.
	OnChange(fn func())
}

// CachingSearch ranks bookmarks over an in-memory snapshot of a Store. The
// snapshot is loaded on first use and dropped whenever the store changes.
type CachingSearch struct {
	store   Store
	logger  *zap.Logger
	metrics *monitoring.Metrics

	mu       sync.Mutex
	snapshot []models.Bookmark
	loaded   bool
}

// NewCachingSearch creates a search over store. metrics may be nil.
func NewCachingSearch(store Store, logger *zap.Logger, metrics *monitoring.Metrics) *CachingSearch {
	s := &CachingSearch{
		store:   store,
		logger:  logger.Named("search"),
		metrics: metrics,
	}
	store.OnChange(s.invalidate)
	return s
}

func (s *CachingSearch) invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshot = nil
	s.loaded = false
}

func (s *CachingSearch) candidates() ([]models.Bookmark, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loaded {
		return s.snapshot, nil
	}

	all, err := s.store.BookmarksAndFavorites()
	if err != nil {
		return nil, fmt.Errorf("loading bookmarks: %w", err)
	}
	s.metrics.SearchReloaded()
	s.logger.Debug("search snapshot loaded", zap.Int("count", len(all)))

	s.snapshot = all
	s.loaded = true
	return all, nil
}

// SearchRanked returns the scored matches for query, best first.
func (s *CachingSearch) SearchRanked(query string) ([]Result, error) {
	start := time.Now()
	defer func() { s.metrics.ObserveSearch(time.Since(start)) }()

	all, err := s.candidates()
	if err != nil {
		return nil, err
	}
	return Rank(query, all), nil
}

// Search returns the bookmarks matching query, best first. No match yields
// an empty slice.
func (s *CachingSearch) Search(query string) ([]models.Bookmark, error) {
	results, err := s.SearchRanked(query)
	if err != nil {
		return nil, err
	}
	return Bookmarks(results), nil
}

// SearchAsync runs Search in a new goroutine and passes its result to
// completion.
func (s *CachingSearch) SearchAsync(query string, completion func([]models.Bookmark, error)) {
	go func() {
		completion(s.Search(query))
	}()
}

// Bookmarks strips the scores from results.
func Bookmarks(results []Result) []models.Bookmark {
	out := make([]models.Bookmark, 0, len(results))
	for _, r := range results {
		out = append(out, r.Bookmark)
	}
	return out
}
