// Package openlibrary is a small client for the two Open Library endpoints
// the catalog uses: free-text search and subject listings.
//
// Three things sit between a caller and the network:
//
//  1. a TTL cache of decoded results, so repeated searches cost nothing;
//  2. a singleflight group, so N concurrent identical queries make one request;
//  3. a token-bucket limiter, so we stay polite to a free public API.
package openlibrary

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/sakif/book-club/internal/catalog"
)

const DefaultBaseURL = "https://openlibrary.org"

// maxBody bounds how much of a response we will read.
const maxBody = 8 << 20

type Config struct {
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond float64
	CacheTTL          time.Duration
	UserAgent         string
}

type Client struct {
	baseURL   string
	userAgent string
	http      *http.Client
	limiter   *rate.Limiter
	cache     *cache.Cache
	ttl       time.Duration
	group     singleflight.Group
	logger    *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 2
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 15 * time.Minute
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "book-club/1.0"
	}

	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		userAgent: cfg.UserAgent,
		http:      &http.Client{Timeout: cfg.Timeout},
		limiter:   rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 5),
		cache:     cache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
		ttl:       cfg.CacheTTL,
		logger:    logger,
	}
}

type searchResponse struct {
	Docs []catalog.SearchDoc `json:"docs"`
}

type subjectResponse struct {
	Works []catalog.SearchDoc `json:"works"`
}

// Search runs a free-text query against /search.json.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]catalog.SearchDoc, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("limit", strconv.Itoa(limit))

	return c.fetchDocs(ctx, "/search.json?"+q.Encode(), func(body []byte) ([]catalog.SearchDoc, error) {
		var resp searchResponse
		err := json.Unmarshal(body, &resp)
		return resp.Docs, err
	})
}

// Subject lists works filed under subject, e.g. "science fiction".
func (c *Client) Subject(ctx context.Context, subject string, limit int) ([]catalog.SearchDoc, error) {
	slug := SubjectSlug(subject)
	if slug == "" {
		return nil, fmt.Errorf("openlibrary: empty subject")
	}
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))

	return c.fetchDocs(ctx, "/subjects/"+url.PathEscape(slug)+".json?"+q.Encode(), func(body []byte) ([]catalog.SearchDoc, error) {
		var resp subjectResponse
		err := json.Unmarshal(body, &resp)
		return resp.Works, err
	})
}

// SubjectSlug lower-cases and underscores a subject name the way Open Library
// builds its subject URLs.
func SubjectSlug(subject string) string {
	return strings.Join(strings.Fields(strings.ToLower(subject)), "_")
}

// fetchDocs returns the cached docs for path, or fetches and decodes them.
// Callers get their own copy of the slice header; docs are never mutated.
func (c *Client) fetchDocs(ctx context.Context, path string, decode func([]byte) ([]catalog.SearchDoc, error)) ([]catalog.SearchDoc, error) {
	if cached, ok := c.cache.Get(path); ok {
		return slices.Clone(cached.([]catalog.SearchDoc)), nil
	}

	v, err, shared := c.group.Do(path, func() (any, error) {
		body, err := c.get(ctx, path)
		if err != nil {
			return nil, err
		}
		docs, err := decode(body)
		if err != nil {
			return nil, fmt.Errorf("openlibrary: decoding %s: %w", path, err)
		}
		if docs == nil {
			docs = []catalog.SearchDoc{}
		}
		c.cache.Set(path, docs, c.ttl)
		return docs, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.logger.Debug("openlibrary request shared", slog.String("path", path))
	}
	return slices.Clone(v.([]catalog.SearchDoc)), nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("openlibrary: waiting for rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("openlibrary: building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openlibrary: GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	c.logger.Info("openlibrary request",
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("openlibrary: GET %s: unexpected status %d", path, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("openlibrary: reading %s: %w", path, err)
	}
	return body, nil
}
