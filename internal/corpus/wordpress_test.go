package corpus

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/diveroast/internal/models"
)

func articles(page, n int) []Article {
	out := make([]Article, n)
	for i := range out {
		id := page*1000 + i
		out[i] = Article{
			ID:      id,
			Link:    fmt.Sprintf("https://dan.org/a/%d", id),
			Title:   rendered{Rendered: fmt.Sprintf("Article %d", id)},
			Content: rendered{Rendered: "<p>Body</p>"},
		}
	}
	return out
}

func TestFetchAllPaginates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/wp-json/wp/v2/dan_alert_diver", r.URL.Path)
		assert.Equal(t, ModifiedAfter, r.URL.Query().Get("modified_after"))
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		if page > 2 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(articles(page, 2))
	}))
	defer srv.Close()

	c, err := NewWordPressClient(srv.URL+"/wp-json/wp/v2", 0)
	require.NoError(t, err)
	c.perPage = 2

	got, err := c.FetchAll(context.Background(), "dan_alert_diver")
	require.NoError(t, err)
	assert.Len(t, got, 4)
	assert.Equal(t, 1000, got[0].ID)
}

func TestFetchAllStopsOnShortPage(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_ = json.NewEncoder(w).Encode(articles(1, 3))
	}))
	defer srv.Close()

	c, err := NewWordPressClient(srv.URL, 0)
	require.NoError(t, err)

	got, err := c.FetchAll(context.Background(), "dan_diving_incidents")
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetchAllRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode([]Article{})
	}))
	defer srv.Close()

	c, err := NewWordPressClient(srv.URL, 0)
	require.NoError(t, err)

	got, err := c.FetchAll(context.Background(), "dan_health_resources")
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetchAllClientError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c, err := NewWordPressClient(srv.URL, 0)
	require.NoError(t, err)

	_, err = c.FetchAll(context.Background(), "missing")
	assert.ErrorContains(t, err, "status 404")
}

func TestCategoryFor(t *testing.T) {
	assert.Equal(t, models.CategoryIncident, CategoryFor("dan_diving_incidents"))
	for _, r := range []string{"dan_health_resources", "dan_alert_diver", "dan_diseases_conds"} {
		assert.Equal(t, models.CategoryGuideline, CategoryFor(r))
	}
}
