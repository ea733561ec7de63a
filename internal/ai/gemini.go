package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/goccy/go-json"
)

const maxErrBody = 512

var (
	ErrUpstream      = errors.New("ai upstream error")
	ErrEmptyResponse = errors.New("ai returned no candidates")
	ErrTimeout       = errors.New("ai request timed out")
)

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type content struct {
	Parts []part `json:"parts"`
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// GeminiClient calls the generateContent endpoint of the Gemini API.
type GeminiClient struct {
	BaseURL string
	Model   string
	APIKey  string
	Client  *http.Client
}

func NewGeminiClient(baseURL, model, apiKey string) *GeminiClient {
	return &GeminiClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Model:   model,
		APIKey:  apiKey,
		Client:  &http.Client{},
	}
}

func (c *GeminiClient) ModelName() string { return c.Model }

// Generate sends one prompt, plus an optional JPEG image, and returns the
// trimmed text of the first candidate. Deadlines come from ctx.
func (c *GeminiClient) Generate(ctx context.Context, prompt string, jpeg []byte) (string, error) {
	parts := []part{{Text: prompt}}
	if len(jpeg) > 0 {
		parts = append(parts, part{InlineData: &inlineData{
			MimeType: "image/jpeg",
			Data:     base64.StdEncoding.EncodeToString(jpeg),
		}})
	}
	body, err := json.Marshal(generateRequest{Contents: []content{{Parts: parts}}})
	if err != nil {
		return "", err
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s",
		c.BaseURL, url.PathEscape(c.Model), url.QueryEscape(c.APIKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return "", err
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return "", ErrTimeout
		}
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return "", ErrTimeout
		}
		return "", fmt.Errorf("%w: %s", ErrUpstream, redactKey(err.Error(), c.APIKey))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrBody))
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("%w: status=%d body=%q", ErrUpstream, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", ErrTimeout
		}
		return "", fmt.Errorf("%w: decode: %v", ErrUpstream, err)
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return "", ErrEmptyResponse
	}
	return strings.TrimSpace(out.Candidates[0].Content.Parts[0].Text), nil
}

// url.Error includes the request URL, which carries the key.
func redactKey(s, key string) string {
	if key == "" {
		return s
	}
	s = strings.ReplaceAll(s, url.QueryEscape(key), "REDACTED")
	return strings.ReplaceAll(s, key, "REDACTED")
}
