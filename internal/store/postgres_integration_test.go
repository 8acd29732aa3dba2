//go:build integration

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/elonfeng/trendpulse/pkg/source"
)

type PostgresIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *postgres.PostgresContainer
	store     *SQLStore
}

func (s *PostgresIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()

	container, err := postgres.Run(s.ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("trendpulse_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	connStr, err := container.ConnectionString(s.ctx, "sslmode=disable")
	s.Require().NoError(err)

	st, err := Open("postgres", connStr)
	s.Require().NoError(err)
	s.store = st
}

func (s *PostgresIntegrationSuite) TearDownSuite() {
	if s.store != nil {
		s.store.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func (s *PostgresIntegrationSuite) SetupTest() {
	_, err := s.store.db.ExecContext(s.ctx, "TRUNCATE items RESTART IDENTITY")
	s.Require().NoError(err)
}

func TestPostgresIntegrationSuite(t *testing.T) {
	suite.Run(t, new(PostgresIntegrationSuite))
}

func (s *PostgresIntegrationSuite) TestMigrationsAreIdempotent() {
	connStr, err := s.container.ConnectionString(s.ctx, "sslmode=disable")
	s.Require().NoError(err)

	again, err := Open("postgres", connStr)
	s.Require().NoError(err)
	s.NoError(again.Close())
}

func (s *PostgresIntegrationSuite) TestInsertItems_ReturnsIDsInOrder() {
	now := time.Now().UTC().Truncate(time.Microsecond)
	items := []source.Item{
		testItem(source.SourceHackerNews, 1, now),
		testItem(source.SourceRSS, 2, now),
	}

	ids, err := s.store.InsertItems(s.ctx, items)
	s.Require().NoError(err)
	s.Equal([]int64{1, 2}, ids)

	got, err := s.store.GetItem(s.ctx, ids[1])
	s.Require().NoError(err)
	s.Equal(items[1].URL, got.URL)
	s.True(now.Equal(got.PublishedAt))
}

func (s *PostgresIntegrationSuite) TestInsertItems_DuplicateRollsBack() {
	now := time.Now().UTC()
	_, err := s.store.InsertItems(s.ctx, []source.Item{testItem(source.SourceRSS, 1, now)})
	s.Require().NoError(err)

	_, err = s.store.InsertItems(s.ctx, []source.Item{
		testItem(source.SourceRSS, 2, now),
		testItem(source.SourceRSS, 1, now),
	})
	s.ErrorIs(err, ErrDuplicate)

	counts, err := s.store.CountItemsBySource(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, counts[source.SourceRSS])
}

func (s *PostgresIntegrationSuite) TestInsertItem_Duplicate() {
	item := testItem(source.SourceNewsAPI, 1, time.Now().UTC())
	_, err := s.store.InsertItem(s.ctx, item)
	s.Require().NoError(err)

	_, err = s.store.InsertItem(s.ctx, item)
	s.ErrorIs(err, ErrDuplicate)
}

func (s *PostgresIntegrationSuite) TestExistingURLs() {
	now := time.Now().UTC()
	item := testItem(source.SourceHackerNews, 9, now)
	_, err := s.store.InsertItem(s.ctx, item)
	s.Require().NoError(err)

	found, err := s.store.ExistingURLs(s.ctx, []string{item.URL, "https://example.com/other"})
	s.Require().NoError(err)
	s.Len(found, 1)
	s.Contains(found, item.URL)
}

func (s *PostgresIntegrationSuite) TestSearchItems() {
	now := time.Now().UTC()
	a := testItem(source.SourceRSS, 1, now)
	a.Title = "Postgres full text search tricks"
	b := testItem(source.SourceRSS, 2, now)
	b.Title = "Kubernetes operators"

	_, err := s.store.InsertItems(s.ctx, []source.Item{a, b})
	s.Require().NoError(err)

	found, err := s.store.SearchItems(s.ctx, "searching", 10)
	s.Require().NoError(err)
	s.Require().Len(found, 1)
	s.Equal(a.URL, found[0].URL)
}
