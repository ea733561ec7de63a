package ai_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"EcoMarket/internal/ai"
)

type wireReq struct {
	Contents []struct {
		Parts []struct {
			Text       string `json:"text"`
			InlineData *struct {
				MimeType string `json:"mime_type"`
				Data     string `json:"data"`
			} `json:"inline_data"`
		} `json:"parts"`
	} `json:"contents"`
}

func TestGeminiClient_Generate(t *testing.T) {
	var got wireReq
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1beta/models/gemini-test:generateContent", r.URL.Path)
		assert.Equal(t, "secret", r.URL.Query().Get("key"))
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"  Madera, Muebles \n"}]}}]}`)
	}))
	defer srv.Close()

	c := ai.NewGeminiClient(srv.URL+"/", "gemini-test", "secret")
	out, err := c.Generate(context.Background(), "hola", []byte{0xff, 0xd8})
	require.NoError(t, err)
	assert.Equal(t, "Madera, Muebles", out)

	require.Len(t, got.Contents, 1)
	parts := got.Contents[0].Parts
	require.Len(t, parts, 2)
	assert.Equal(t, "hola", parts[0].Text)
	require.NotNil(t, parts[1].InlineData)
	assert.Equal(t, "image/jpeg", parts[1].InlineData.MimeType)
	assert.Equal(t, "/9g=", parts[1].InlineData.Data)
}

func TestGeminiClient_Errors(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"bad status", http.StatusForbidden, `{"error":"denied"}`, ai.ErrUpstream},
		{"no candidates", http.StatusOK, `{"candidates":[]}`, ai.ErrEmptyResponse},
		{"no parts", http.StatusOK, `{"candidates":[{"content":{"parts":[]}}]}`, ai.ErrEmptyResponse},
		{"garbage", http.StatusOK, `not json`, ai.ErrUpstream},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			}))
			defer srv.Close()

			_, err := ai.NewGeminiClient(srv.URL, "m", "secret").Generate(context.Background(), "p", nil)
			assert.ErrorIs(t, err, tc.want)
			assert.NotContains(t, err.Error(), "secret")
		})
	}
}

func TestGeminiClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := ai.NewGeminiClient(srv.URL, "m", "k").Generate(ctx, "p", nil)
	assert.ErrorIs(t, err, ai.ErrTimeout)
}

func TestGeminiClient_ConnectionErrorHidesKey(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := ai.NewGeminiClient(url, "m", "topsecret").Generate(context.Background(), "p", nil)
	require.ErrorIs(t, err, ai.ErrUpstream)
	assert.False(t, strings.Contains(err.Error(), "topsecret"))
}
