// Package corpus scrapes DAN incident reports and safety guidelines and
// loads them, chunked and embedded, into the retrieval store.
package corpus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/time/rate"

	"github.com/raphaelgruber/diveroast/internal/models"
)

// Resources are the WordPress post types scraped from dan.org.
var Resources = []string{
	"dan_health_resources",
	"dan_alert_diver",
	"dan_diving_incidents",
	"dan_diseases_conds",
}

// ModifiedAfter bounds the scrape to posts modified since this instant.
const ModifiedAfter = "2000-01-01T00:00:00"

const defaultPerPage = 100

// Article is the subset of a WordPress post the pipeline uses.
type Article struct {
	ID       int      `json:"id"`
	Link     string   `json:"link"`
	Modified string   `json:"modified"`
	Title    rendered `json:"title"`
	Content  rendered `json:"content"`
}

type rendered struct {
	Rendered string `json:"rendered"`
}

// WordPressClient pages through WordPress REST collections at a bounded rate.
type WordPressClient struct {
	baseURL *url.URL
	http    *http.Client
	limiter *rate.Limiter
	perPage int
}

// NewWordPressClient creates a client for a wp-json/wp/v2 base URL.
// ratePerSecond <= 0 disables throttling.
func NewWordPressClient(baseURL string, ratePerSecond float64) (*WordPressClient, error) {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse wordpress base url: %w", err)
	}
	limit := rate.Inf
	if ratePerSecond > 0 {
		limit = rate.Limit(ratePerSecond)
	}
	return &WordPressClient{
		baseURL: u,
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(limit, 1),
		perPage: defaultPerPage,
	}, nil
}

// errLastPage marks the end of a collection.
var errLastPage = errors.New("past last page")

// FetchAll returns every article of a resource. WordPress answers 400 for
// a page past the end; that and an empty page both end pagination.
func (c *WordPressClient) FetchAll(ctx context.Context, resource string) ([]Article, error) {
	var all []Article
	for page := 1; ; page++ {
		articles, err := c.fetchPage(ctx, resource, page)
		if errors.Is(err, errLastPage) {
			return all, nil
		}
		if err != nil {
			return all, fmt.Errorf("%s page %d: %w", resource, page, err)
		}
		if len(articles) == 0 {
			return all, nil
		}
		all = append(all, articles...)
		if len(articles) < c.perPage {
			return all, nil
		}
	}
}

func (c *WordPressClient) fetchPage(ctx context.Context, resource string, page int) ([]Article, error) {
	u := c.baseURL.JoinPath(resource)
	q := u.Query()
	q.Set("per_page", strconv.Itoa(c.perPage))
	q.Set("page", strconv.Itoa(page))
	q.Set("modified_after", ModifiedAfter)
	q.Set("orderby", "id")
	q.Set("order", "asc")
	u.RawQuery = q.Encode()

	op := func() ([]Article, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, backoff.Permanent(err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusBadRequest:
			return nil, backoff.Permanent(errLastPage)
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil, fmt.Errorf("status %d", resp.StatusCode)
		case resp.StatusCode != http.StatusOK:
			return nil, backoff.Permanent(fmt.Errorf("status %d", resp.StatusCode))
		}

		var articles []Article
		if err := json.NewDecoder(resp.Body).Decode(&articles); err != nil {
			return nil, backoff.Permanent(fmt.Errorf("decode: %w", err))
		}
		return articles, nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	return backoff.Retry(ctx, op, backoff.WithBackOff(b), backoff.WithMaxTries(3))
}

// CategoryFor maps a resource to its corpus category.
func CategoryFor(resource string) string {
	if resource == "dan_diving_incidents" {
		return models.CategoryIncident
	}
	return models.CategoryGuideline
}
