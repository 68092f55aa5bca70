package search

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dastanaron/browsershell/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeStore struct {
	mu        sync.Mutex
	bookmarks []models.Bookmark
	err       error
	loads     int
	listeners []func()
}

func (s *fakeStore) BookmarksAndFavorites() ([]models.Bookmark, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.loads++
	return s.bookmarks, s.err
}

func (s *fakeStore) OnChange(fn func()) {
	s.listeners = append(s.listeners, fn)
}

func (s *fakeStore) change(bookmarks []models.Bookmark) {
	s.mu.Lock()
	s.bookmarks = bookmarks
	s.mu.Unlock()

	for _, fn := range s.listeners {
		fn()
	}
}

func TestCachingSearch_UsesSnapshotUntilChange(t *testing.T) {
	store := &fakeStore{bookmarks: titleStore}
	s := NewCachingSearch(store, zap.NewNop(), nil)

	got, err := s.Search("bookmark")
	require.NoError(t, err)
	assert.Len(t, got, 4)

	_, err = s.Search("fav")
	require.NoError(t, err)
	assert.Equal(t, 1, store.loads)

	store.change(urlStore)

	got, err = s.Search("exam")
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, 2, store.loads)
}

func TestCachingSearch_NoMatchIsEmpty(t *testing.T) {
	s := NewCachingSearch(&fakeStore{bookmarks: titleStore}, zap.NewNop(), nil)

	got, err := s.Search("nothing here")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestCachingSearch_StoreError(t *testing.T) {
	storeErr := errors.New("disk on fire")
	store := &fakeStore{err: storeErr}
	s := NewCachingSearch(store, zap.NewNop(), nil)

	_, err := s.Search("x")
	assert.ErrorIs(t, err, storeErr)

	store.err = nil
	store.bookmarks = titleStore
	got, err := s.Search("t")
	require.NoError(t, err)
	assert.Len(t, got, 8)
}

func TestCachingSearch_Async(t *testing.T) {
	s := NewCachingSearch(&fakeStore{bookmarks: urlStore}, zap.NewNop(), nil)

	done := make(chan []models.Bookmark, 1)
	s.SearchAsync("duck", func(got []models.Bookmark, err error) {
		assert.NoError(t, err)
		done <- got
	})

	select {
	case got := <-done:
		require.Len(t, got, 2)
		assert.Equal(t, "Test D 1", got[0].Title)
	case <-time.After(5 * time.Second):
		t.Fatal("completion was not called")
	}
}
