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

	"github.com/tbourn/menuscan-backend/internal/domain"
)

const openAIEndpoint = "https://api.openai.com/v1/chat/completions"

// chatMessage et al. mirror the chat-completions wire format. Content is a
// string for plain text turns and a part list for multimodal ones, so it is
// typed as any and built explicitly per call.
type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// menuReply is the JSON shape the vision prompt demands from the model.
type menuReply struct {
	IsMenu bool `json:"is_menu"`
	Dishes []struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	} `json:"dishes"`
}

// OpenAIClient talks to an OpenAI-compatible chat-completions API and
// implements both VisionProvider (vision model) and TextGenerator (text
// model). The zero value is not usable; construct with NewOpenAIClient.
type OpenAIClient struct {
	apiKey      string
	textModel   string
	visionModel string
	targetLang  string
	endpoint    string
	client      *http.Client
	log         zerolog.Logger
}

// NewOpenAIClient constructs a client. timeout bounds every call; the
// enclosing request context can cancel earlier.
func NewOpenAIClient(apiKey, textModel, visionModel, targetLang string, timeout time.Duration, log zerolog.Logger) *OpenAIClient {
	return &OpenAIClient{
		apiKey:      apiKey,
		textModel:   textModel,
		visionModel: visionModel,
		targetLang:  targetLang,
		endpoint:    openAIEndpoint,
		client:      &http.Client{Timeout: timeout},
		log:         log,
	}
}

// visionInstruction is the canonical extraction prompt: menu judgment,
// translation, category merging, section-header dropping, and printed
// description capture, returned as strict JSON.
const visionInstruction = `You read photographs of restaurant menus.
Decide first whether the image shows a menu at all.
If it does, extract every individual dish:
- Translate dish names into %s when the menu is in another language.
- When a generic item name sits under a food-type category, merge the category into the name (item "Avocado" under category "Toast" becomes "Avocado Toast").
- Skip structural section headers such as "Appetizers" or "Mains"; they are not dishes.
- When the menu prints its own description for a dish, include it verbatim.
Reply with JSON only, no prose, in exactly this shape:
{"is_menu": true, "dishes": [{"name": "...", "description": "..."}]}`

// ExtractMenu implements VisionProvider.
func (c *OpenAIClient) ExtractMenu(ctx context.Context, image []byte, mime string) (*MenuExtraction, error) {
	dataURL := fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(image))

	req := chatRequest{
		Model: c.visionModel,
		Messages: []chatMessage{
			{Role: "system", Content: fmt.Sprintf(visionInstruction, c.targetLang)},
			{Role: "user", Content: []contentPart{
				{Type: "text", Text: "Extract the dishes from this menu photo."},
				{Type: "image_url", ImageURL: &imageURL{URL: dataURL}},
			}},
		},
		MaxTokens: 2000,
	}

	content, err := c.complete(ctx, req)
	if err != nil {
		return nil, err
	}

	var reply menuReply
	if err := json.Unmarshal([]byte(extractJSON(content)), &reply); err != nil {
		return nil, fmt.Errorf("unparseable vision reply: %w", err)
	}

	out := &MenuExtraction{IsMenu: reply.IsMenu}
	for _, d := range reply.Dishes {
		name := strings.TrimSpace(d.Name)
		if name == "" {
			continue
		}
		out.Dishes = append(out.Dishes, domain.ExtractedDish{
			Name:        name,
			Description: strings.TrimSpace(d.Description),
		})
	}
	return out, nil
}

// Complete implements TextGenerator.
func (c *OpenAIClient) Complete(ctx context.Context, system, prompt string) (string, error) {
	req := chatRequest{
		Model: c.textModel,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
		Temperature: 0.7,
		MaxTokens:   800,
	}
	return c.complete(ctx, req)
}

// complete posts one chat request and returns the first choice's content.
func (c *OpenAIClient) complete(ctx context.Context, body chatRequest) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call chat completions: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	c.log.Debug().
		Str("event", "api_call").
		Str("api", "chat-completions").
		Str("model", body.Model).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("provider call")

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", ErrDailyQuotaExceeded
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("chat completions status %d: %s", resp.StatusCode, truncateBody(raw))
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

// extractJSON tolerates models that wrap JSON in markdown fences or prose:
// it strips ``` fences and cuts to the outermost {...} span.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	start := strings.IndexAny(s, "{[")
	end := strings.LastIndexAny(s, "}]")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return strings.TrimSpace(s)
}

// truncateBody keeps provider error bodies loggable without flooding.
func truncateBody(b []byte) string {
	const max = 512
	if len(b) > max {
		return string(b[:max]) + "…"
	}
	return string(b)
}
