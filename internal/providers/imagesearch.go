package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

const customSearchEndpoint = "https://customsearch.googleapis.com/customsearch/v1"

type searchResponse struct {
	Items []struct {
		Link  string `json:"link"`
		Image struct {
			ThumbnailLink string `json:"thumbnailLink"`
		} `json:"image"`
	} `json:"items"`
}

// GoogleImageSearchClient implements ImageSearchProvider against the Google
// Custom Search JSON API, restricted to large photographic results with safe
// search enabled.
type GoogleImageSearchClient struct {
	apiKey   string
	cx       string
	endpoint string
	client   *http.Client
	log      zerolog.Logger
}

// NewGoogleImageSearchClient constructs an image search client for the given
// Custom Search engine id.
func NewGoogleImageSearchClient(apiKey, cx string, timeout time.Duration, log zerolog.Logger) *GoogleImageSearchClient {
	return &GoogleImageSearchClient{
		apiKey:   apiKey,
		cx:       cx,
		endpoint: customSearchEndpoint,
		client:   &http.Client{Timeout: timeout},
		log:      log,
	}
}

// SearchImages implements ImageSearchProvider. A vendor quota rejection (403
// or 429) is reported as ErrDailyQuotaExceeded so callers can distinguish
// exhausted budget from an ordinary failure.
func (c *GoogleImageSearchClient) SearchImages(ctx context.Context, query string, limit int) ([]ImageResult, error) {
	if limit < 1 {
		limit = 1
	}
	if limit > 10 {
		limit = 10 // API maximum per page
	}

	q := url.Values{}
	q.Set("key", c.apiKey)
	q.Set("cx", c.cx)
	q.Set("q", query)
	q.Set("searchType", "image")
	q.Set("num", strconv.Itoa(limit))
	q.Set("imgSize", "large")
	q.Set("imgType", "photo")
	q.Set("safe", "active")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call custom search: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	c.log.Debug().
		Str("event", "api_call").
		Str("api", "custom-search").
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("provider call")

	// The API reports exhausted daily quota as 403 (and sometimes 429).
	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrDailyQuotaExceeded
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("custom search status %d: %s", resp.StatusCode, truncateBody(raw))
	}

	var parsed searchResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	out := make([]ImageResult, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		if item.Link == "" {
			continue
		}
		out = append(out, ImageResult{
			Link:      item.Link,
			Thumbnail: item.Image.ThumbnailLink,
		})
	}
	return out, nil
}
