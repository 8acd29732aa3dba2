package collector

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/elonfeng/trendpulse/internal/dedup"
	"github.com/elonfeng/trendpulse/pkg/source"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeSource struct {
	name  source.SourceType
	items []source.Item
	err   error
	panic bool
	calls int
}

func (f *fakeSource) Name() source.SourceType { return f.name }

func (f *fakeSource) Collect(context.Context) ([]source.Item, error) {
	f.calls++
	if f.panic {
		panic("adapter exploded")
	}
	return f.items, f.err
}

// urlStorer stores by URL like the real engine, first write wins.
type urlStorer struct {
	seen  map[string]int64
	calls int
	errs  []string
}

func newURLStorer() *urlStorer { return &urlStorer{seen: make(map[string]int64)} }

func (s *urlStorer) DeduplicateAndStore(_ context.Context, items []source.Item, _ source.SourceType) dedup.Result {
	s.calls++
	res := dedup.Result{Errors: s.errs}
	for _, item := range items {
		if _, ok := s.seen[item.URL]; ok {
			res.DuplicatesSkipped++
			continue
		}
		id := int64(len(s.seen) + 1)
		s.seen[item.URL] = id
		res.ItemsStored++
		res.Stored = append(res.Stored, dedup.StoredItem{ID: id, Item: item})
	}
	return res
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, id int64, item source.Item) error {
	return m.Called(ctx, id, item).Error(0)
}

func sampleItems(src source.SourceType, n int) []source.Item {
	items := make([]source.Item, n)
	for i := range items {
		items[i] = source.Item{
			Source:      src,
			Title:       fmt.Sprintf("%s item %d", src, i),
			URL:         fmt.Sprintf("https://example.com/%s/%d", src, i),
			PublishedAt: time.Now().UTC(),
		}
	}
	return items
}

func TestRun_AllSourcesSucceed(t *testing.T) {
	hn := &fakeSource{name: source.SourceHackerNews, items: sampleItems(source.SourceHackerNews, 3)}
	rss := &fakeSource{name: source.SourceRSS, items: sampleItems(source.SourceRSS, 2)}
	st := newURLStorer()

	o := New([]source.Source{hn, rss}, st, Options{}, testLogger)
	report := o.Run(context.Background())

	require.Len(t, report.Results, 2)
	assert.False(t, report.Failed())
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, report.RunID, report.Results[0].RunID)
	assert.Equal(t, source.SourceHackerNews, report.Results[0].Source)
	assert.Equal(t, 3, report.Results[0].ItemsCollected)
	assert.Equal(t, 3, report.Results[0].ItemsStored)
	assert.Equal(t, 2, report.Results[1].ItemsStored)
	assert.Equal(t, []source.SourceType{source.SourceHackerNews, source.SourceRSS}, o.Sources())
}

func TestRun_SecondRunOnlyDuplicates(t *testing.T) {
	hn := &fakeSource{name: source.SourceHackerNews, items: sampleItems(source.SourceHackerNews, 4)}
	o := New([]source.Source{hn}, newURLStorer(), Options{}, testLogger)

	first := o.Run(context.Background())
	second := o.Run(context.Background())

	assert.Equal(t, 4, first.Results[0].ItemsStored)
	assert.Zero(t, second.Results[0].ItemsStored)
	assert.Equal(t, 4, second.Results[0].DuplicatesSkipped)
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestRun_ContinueOnError(t *testing.T) {
	broken := &fakeSource{name: source.SourceNewsAPI, err: errors.New("newsapi status \"error\"")}
	hn := &fakeSource{name: source.SourceHackerNews, items: sampleItems(source.SourceHackerNews, 1)}

	o := New([]source.Source{broken, hn}, newURLStorer(), Options{ContinueOnError: true}, testLogger)
	report := o.Run(context.Background())

	require.Len(t, report.Results, 2)
	assert.True(t, report.Failed())
	assert.False(t, report.Results[0].Success)
	assert.Contains(t, report.Results[0].Errors[0], "newsapi status")
	assert.True(t, report.Results[1].Success)
	assert.Equal(t, []source.SourceType{source.SourceNewsAPI}, report.FailedSources())
}

func TestRun_StopOnError(t *testing.T) {
	broken := &fakeSource{name: source.SourceRSS, err: errors.New("all 2 rss feeds failed")}
	hn := &fakeSource{name: source.SourceHackerNews}

	report := New([]source.Source{broken, hn}, newURLStorer(), Options{}, testLogger).Run(context.Background())

	require.Len(t, report.Results, 1)
	assert.True(t, report.Failed())
	assert.Zero(t, hn.calls)
}

func TestRun_PanicBecomesFailedResult(t *testing.T) {
	bad := &fakeSource{name: source.SourceHackerNews, panic: true}
	good := &fakeSource{name: source.SourceRSS, items: sampleItems(source.SourceRSS, 1)}

	report := New([]source.Source{bad, good}, newURLStorer(), Options{ContinueOnError: true}, testLogger).Run(context.Background())

	require.Len(t, report.Results, 2)
	assert.False(t, report.Results[0].Success)
	assert.Contains(t, report.Results[0].Errors[0], "adapter exploded")
	assert.True(t, report.Results[1].Success)
}

func TestRun_DryRunSkipsStorage(t *testing.T) {
	hn := &fakeSource{name: source.SourceHackerNews, items: sampleItems(source.SourceHackerNews, 2)}
	st := newURLStorer()

	report := New([]source.Source{hn}, st, Options{DryRun: true}, testLogger).Run(context.Background())

	assert.True(t, report.DryRun)
	assert.True(t, report.Results[0].Success)
	assert.Equal(t, 2, report.Results[0].ItemsCollected)
	assert.Zero(t, report.Results[0].ItemsStored)
	assert.Zero(t, st.calls)
}

func TestRun_StorageErrorsFailSource(t *testing.T) {
	hn := &fakeSource{name: source.SourceHackerNews, items: sampleItems(source.SourceHackerNews, 2)}
	st := newURLStorer()
	st.errs = []string{"bulk insert 2 items: connection reset"}

	report := New([]source.Source{hn}, st, Options{}, testLogger).Run(context.Background())

	assert.False(t, report.Results[0].Success)
	assert.Equal(t, []string{"bulk insert 2 items: connection reset"}, report.Results[0].Errors)
}

func TestRun_FilterCountsDroppedItems(t *testing.T) {
	items := sampleItems(source.SourceRSS, 3)
	items[1].Title = "Crypto giveaway"
	rss := &fakeSource{name: source.SourceRSS, items: items}

	opts := Options{Filter: source.NewFilter(nil, []string{"crypto"})}
	report := New([]source.Source{rss}, newURLStorer(), opts, testLogger).Run(context.Background())

	res := report.Results[0]
	assert.Equal(t, 3, res.ItemsCollected)
	assert.Equal(t, 1, res.ItemsFiltered)
	assert.Equal(t, 2, res.ItemsStored)
}

func TestRun_PublishesStoredItems(t *testing.T) {
	items := sampleItems(source.SourceHackerNews, 2)
	hn := &fakeSource{name: source.SourceHackerNews, items: items}

	pub := new(mockPublisher)
	pub.On("Publish", mock.Anything, int64(1), items[0]).Return(nil)
	pub.On("Publish", mock.Anything, int64(2), items[1]).Return(errors.New("channel closed"))

	report := New([]source.Source{hn}, newURLStorer(), Options{}, testLogger, WithPublisher(pub)).Run(context.Background())

	res := report.Results[0]
	assert.True(t, res.Success, "publish failures are warnings")
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "channel closed")
	pub.AssertExpectations(t)
}

func TestPrintSummary(t *testing.T) {
	report := &Report{
		RunID:    "run-1",
		Duration: 1500 * time.Millisecond,
		Results: []Result{
			{Source: source.SourceHackerNews, Success: true, ItemsCollected: 1200, ItemsStored: 1100, DuplicatesSkipped: 100, Duration: 900 * time.Millisecond},
			{Source: source.SourceNewsAPI, Success: false, Errors: []string{"newsapi: API key required"}},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, PrintSummary(&buf, report))
	out := buf.String()

	assert.Contains(t, out, "SOURCE")
	assert.Contains(t, out, "1,200")
	assert.Contains(t, out, "FAILED")
	assert.Contains(t, out, "newsapi error: newsapi: API key required")
	assert.Contains(t, out, "FAILED: 1 of 2 sources failed (newsapi)")
}

func TestPrintSummary_Success(t *testing.T) {
	report := &Report{Results: []Result{{Source: source.SourceRSS, Success: true, ItemsCollected: 5, ItemsStored: 5}}}

	var buf bytes.Buffer
	require.NoError(t, PrintSummary(&buf, report))
	assert.Contains(t, buf.String(), "SUCCESS: 5 collected, 5 stored, 0 duplicates from 1 sources")
}

func TestPrintJSON(t *testing.T) {
	report := &Report{RunID: "abc", Results: []Result{{Source: source.SourceRSS, Success: true, ItemsFiltered: 2}}}

	var buf bytes.Buffer
	require.NoError(t, PrintJSON(&buf, report))
	assert.Contains(t, buf.String(), `"run_id": "abc"`)
	assert.Contains(t, buf.String(), `"items_filtered": 2`)
}
