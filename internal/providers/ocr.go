package providers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const visionAnnotateEndpoint = "https://vision.googleapis.com/v1/images:annotate"

type annotateRequest struct {
	Requests []annotateItem `json:"requests"`
}

type annotateItem struct {
	Image    annotateImage     `json:"image"`
	Features []annotateFeature `json:"features"`
}

type annotateImage struct {
	Content string `json:"content"`
}

type annotateFeature struct {
	Type       string `json:"type"`
	MaxResults int    `json:"maxResults,omitempty"`
}

type annotateResponse struct {
	Responses []struct {
		FullTextAnnotation struct {
			Text string `json:"text"`
		} `json:"fullTextAnnotation"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	} `json:"responses"`
}

// GoogleOCRClient implements OCRProvider against the Google Vision
// images:annotate API using document text detection. It returns raw text
// lines with no menu semantics; callers apply their own heuristics.
type GoogleOCRClient struct {
	apiKey   string
	endpoint string
	client   *http.Client
	log      zerolog.Logger
}

// NewGoogleOCRClient constructs an OCR client with the given per-call timeout.
func NewGoogleOCRClient(apiKey string, timeout time.Duration, log zerolog.Logger) *GoogleOCRClient {
	return &GoogleOCRClient{
		apiKey:   apiKey,
		endpoint: visionAnnotateEndpoint,
		client:   &http.Client{Timeout: timeout},
		log:      log,
	}
}

// DetectLines implements OCRProvider.
func (c *GoogleOCRClient) DetectLines(ctx context.Context, image []byte) ([]string, error) {
	body := annotateRequest{
		Requests: []annotateItem{{
			Image: annotateImage{Content: base64.StdEncoding.EncodeToString(image)},
			Features: []annotateFeature{
				{Type: "DOCUMENT_TEXT_DETECTION"},
				{Type: "LABEL_DETECTION", MaxResults: 10},
			},
		}},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"?key="+c.apiKey, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call images:annotate: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	c.log.Debug().
		Str("event", "api_call").
		Str("api", "images-annotate").
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("provider call")

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrDailyQuotaExceeded
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("images:annotate status %d: %s", resp.StatusCode, truncateBody(raw))
	}

	var parsed annotateResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if len(parsed.Responses) == 0 {
		return nil, fmt.Errorf("empty annotate response")
	}
	if e := parsed.Responses[0].Error; e != nil {
		return nil, fmt.Errorf("images:annotate error: %s", e.Message)
	}

	var lines []string
	for _, ln := range strings.Split(parsed.Responses[0].FullTextAnnotation.Text, "\n") {
		if ln = strings.TrimSpace(ln); ln != "" {
			lines = append(lines, ln)
		}
	}
	return lines, nil
}
