package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hnServer(t *testing.T, ids []int, stories map[int]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/topstories.json" {
			json.NewEncoder(w).Encode(ids)
			return
		}

		var id int
		if _, err := fmt.Sscanf(r.URL.Path, "/item/%d.json", &id); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		story, ok := stories[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(story)
	}))
}

func TestHackerNews_SkipsJobsAndTextPosts(t *testing.T) {
	posted := time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC)
	srv := hnServer(t, []int{1, 2, 3}, map[int]any{
		1: map[string]any{"id": 1, "type": "story", "title": "Story one", "url": "https://one.example.com", "by": "alice", "time": posted.Unix(), "score": 120, "descendants": 45},
		2: map[string]any{"id": 2, "type": "job", "title": "We are hiring", "url": "https://jobs.example.com", "by": "corp", "time": posted.Unix()},
		3: map[string]any{"id": 3, "type": "story", "title": "Ask HN: something", "text": "<p>question</p>", "by": "bob", "time": posted.Unix()},
	})
	defer srv.Close()

	hn := NewHackerNews(testClient(), HackerNewsOptions{BaseURL: srv.URL, Request: fastRequest()}, testLogger())
	items, err := hn.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)

	item := items[0]
	assert.Equal(t, SourceHackerNews, item.Source)
	assert.Equal(t, "Story one", item.Title)
	assert.Equal(t, "https://one.example.com", item.URL)
	assert.Equal(t, "alice", item.Author)
	assert.Equal(t, posted, item.PublishedAt)
	require.NotNil(t, item.Score)
	assert.Equal(t, 120, *item.Score)
	require.NotNil(t, item.CommentCount)
	assert.Equal(t, 45, *item.CommentCount)
}

func TestHackerNews_FailedStoryDoesNotFailCollection(t *testing.T) {
	now := time.Now().Unix()
	srv := hnServer(t, []int{10, 11, 12}, map[int]any{
		10: map[string]any{"id": 10, "type": "story", "title": "Ten", "url": "https://ten.example.com", "time": now},
		12: map[string]any{"id": 12, "type": "poll", "title": "Poll", "time": now},
	})
	defer srv.Close()

	hn := NewHackerNews(testClient(), HackerNewsOptions{BaseURL: srv.URL, Request: fastRequest()}, testLogger())
	items, err := hn.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "https://ten.example.com", items[0].URL)
}

func TestHackerNews_CapsMaxStories(t *testing.T) {
	now := time.Now().Unix()
	stories := map[int]any{}
	var ids []int
	for i := 1; i <= 10; i++ {
		ids = append(ids, i)
		stories[i] = map[string]any{"id": i, "type": "story", "title": fmt.Sprintf("S%d", i), "url": fmt.Sprintf("https://s%d.example.com", i), "time": now}
	}
	srv := hnServer(t, ids, stories)
	defer srv.Close()

	hn := NewHackerNews(testClient(), HackerNewsOptions{BaseURL: srv.URL, MaxStories: 4, Concurrency: 2, Request: fastRequest()}, testLogger())
	items, err := hn.Collect(context.Background())
	require.NoError(t, err)
	assert.Len(t, items, 4)
}

func TestHackerNews_TopStoriesFailureIsTotal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	hn := NewHackerNews(testClient(), HackerNewsOptions{BaseURL: srv.URL, Request: fastRequest()}, testLogger())
	_, err := hn.Collect(context.Background())
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "top stories"))
}

func TestNormalizeHNStory_RejectsLongTitle(t *testing.T) {
	_, err := normalizeHNStory(&hnStory{
		ID:    1,
		Title: strings.Repeat("t", 600),
		URL:   "https://example.com",
		Time:  time.Now().Unix(),
	})
	assert.ErrorIs(t, err, ErrInvalidItem)
}
