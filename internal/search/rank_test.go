package search

import (
	"testing"

	"github.com/dastanaron/browsershell/internal/models"
	"github.com/stretchr/testify/assert"
)

func bm(title, url string, favorite bool) models.Bookmark {
	return models.Bookmark{Title: title, URL: url, IsFavorite: favorite}
}

const ddg = "https://duckduckgo.com"

var (
	b1   = bm("bookmark test 1", ddg, false)
	b2   = bm("test bookmark 2", ddg, false)
	b12  = bm("bookmark test 12", ddg, false)
	b12a = bm("test bookmark 12 a", ddg, false)
	f1   = bm("fav test 1", ddg, true)
	f2   = bm("test fav 2", ddg, true)
	f12  = bm("fav test 12", ddg, true)
	f12a = bm("test fav 12 a", ddg, true)

	titleStore = []models.Bookmark{b1, b2, b12, b12a, f1, f2, f12, f12a}

	urlStore = []models.Bookmark{
		bm("Test E 1", "https://example.com", false),
		bm("Test E 2", "https://example.com", false),
		bm("Test N 1 Duck", "https://www.nasa.gov", false),
		bm("Test D 1", "https://duckduckgo.com", false),
	}

	quotedStore = []models.Bookmark{
		bm(`"Cats and Dogs"`, "https://cats.example", false),
		bm("«Рукописи не горят»: первый замысел", "https://ru.example", false),
	}
)

func titles(results []Result) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		out = append(out, r.Title)
	}
	return out
}

func TestRank_Counts(t *testing.T) {
	testCases := []struct {
		name  string
		store []models.Bookmark
		query string
		want  int
	}{
		{name: "t", store: titleStore, query: "t", want: 8},
		{name: "b", store: titleStore, query: "b", want: 4},
		{name: "digit", store: titleStore, query: "1", want: 6},
		{name: "a", store: titleStore, query: "a", want: 2},
		{name: "mid_word", store: titleStore, query: "k", want: 0},
		{name: "mid_word_e", store: titleStore, query: "e", want: 0},
		{name: "longer_than_word", store: titleStore, query: "testing", want: 0},
		{name: "domain", store: urlStore, query: "exam", want: 2},
		{name: "domain_and_word", store: urlStore, query: "exam 2", want: 1},
		{name: "title_everywhere", store: urlStore, query: "test", want: 4},
		{name: "quote_stripped", store: quotedStore, query: "Cats", want: 1},
		{name: "quote_itself", store: quotedStore, query: `"`, want: 1},
		{name: "guillemet_stripped", store: quotedStore, query: "Р", want: 1},
		{name: "guillemet_itself", store: quotedStore, query: "«", want: 1},
		{name: "cyrillic_mid_title", store: quotedStore, query: "горят", want: 1},
		{name: "blank", store: titleStore, query: "   ", want: 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := Rank(tc.query, tc.store)
			assert.NotNil(t, got)
			assert.Len(t, got, tc.want)
		})
	}
}

func TestRank_Order(t *testing.T) {
	testCases := []struct {
		query string
		want  []models.Bookmark
	}{
		{query: "t", want: []models.Bookmark{f2, f12a, b2, b12a, f1, f12, b1, b12}},
		{query: "tes", want: []models.Bookmark{f2, f12a, b2, b12a, f1, f12, b1, b12}},
		{query: "bookmark", want: []models.Bookmark{b1, b12, b2, b12a}},
		{query: "tes fav", want: []models.Bookmark{f2, f12a, f1, f12}},
		{query: "fav 1", want: []models.Bookmark{f12a, f1, f12}},
		{query: "1", want: []models.Bookmark{f1, f12, f12a, b1, b12, b12a}},
		{query: "te bo", want: []models.Bookmark{b2, b12a, b1, b12}},
	}

	for _, tc := range testCases {
		t.Run(tc.query, func(t *testing.T) {
			want := make([]string, 0, len(tc.want))
			for _, b := range tc.want {
				want = append(want, b.Title)
			}
			assert.Equal(t, want, titles(Rank(tc.query, titleStore)))
		})
	}
}

func TestRank_DomainBeatsTitle(t *testing.T) {
	got := titles(Rank("duck", urlStore))

	assert.Equal(t, []string{"Test D 1", "Test N 1 Duck"}, got)
}

func TestRank_Scores(t *testing.T) {
	got := Rank("exam 2", urlStore)

	if assert.Len(t, got, 1) {
		assert.Equal(t, "Test E 2", got[0].Title)
		assert.Equal(t, scoreDomainPrefix+scoreAllTokens, got[0].Score)
	}
}

func TestRank_RegistrableDomain(t *testing.T) {
	store := []models.Bookmark{bm("Hacker News", "https://news.ycombinator.com/", false)}

	assert.Len(t, Rank("ycomb", store), 1)
	assert.Len(t, Rank("news", store), 1)
}

func TestRank_Deduplicates(t *testing.T) {
	store := []models.Bookmark{
		bm("same", "https://a.example", false),
		bm("same", "https://a.example", false),
		bm("same", "https://a.example", true),
		bm("same", "https://b.example", false),
	}

	got := Rank("same", store)

	assert.Len(t, got, 3)
	assert.True(t, got[0].IsFavorite)
}
