package database

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gratefulvortex/reviews-scraper/internal/models"
)

func TestConfig_DSN(t *testing.T) {
	cfg := Config{Host: "db", Port: 5433, User: "scraper", Password: "p@ss word", Database: "reviews"}
	assert.Equal(t, "postgres://scraper:p%40ss%20word@db:5433/reviews?sslmode=disable", cfg.DSN())

	cfg.SSLMode = "require"
	assert.Contains(t, cfg.DSN(), "sslmode=require")
}

func TestReviewArgs_UnknownRatingIsNull(t *testing.T) {
	repo := NewReviewRepository(nil, "run-1", "https://www.influenster.com/reviews/x", nil)

	args := repo.reviewArgs(&models.Review{ID: "a", Site: models.SiteInfluenster, Username: "ann"})
	require.Len(t, args, 14)
	assert.Equal(t, "run-1", args[0])
	assert.Equal(t, "influenster", args[2])
	assert.Nil(t, args[5])

	args = repo.reviewArgs(&models.Review{ID: "b", Site: models.SiteAmazon, Rating: 4})
	rating, ok := args[5].(*int)
	require.True(t, ok)
	assert.Equal(t, 4, *rating)
}

func testDB(t *testing.T) *DB {
	t.Helper()
	if os.Getenv("INTEGRATION_TEST") != "true" {
		t.Skip("Skipping integration test")
	}
	port, _ := strconv.Atoi(getenv("DB_PORT", "5432"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := New(ctx, Config{
		Host:     getenv("DB_HOST", "localhost"),
		Port:     port,
		User:     getenv("DB_USER", "postgres"),
		Password: getenv("DB_PASSWORD", "postgres"),
		Database: getenv("DB_NAME", "reviews_test"),
		MaxConns: 2,
	})
	require.NoError(t, err)
	t.Cleanup(db.Close)
	return db
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func TestReviewRepository_AppendAndReplace(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	repo := NewReviewRepository(db, uuid.New().String(), "https://www.amazon.com/product-reviews/B0", nil)
	require.NoError(t, repo.Init(ctx))

	a := &models.Review{ID: "a", Site: models.SiteAmazon, Title: "A", Rating: 5}
	b := &models.Review{ID: "b", Site: models.SiteAmazon, Title: "B", Rating: 1}

	require.NoError(t, repo.Append(ctx, []*models.Review{a}))
	require.NoError(t, repo.Append(ctx, []*models.Review{a, b}))

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, repo.Replace(ctx, []*models.Review{b}))
	n, err = repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
