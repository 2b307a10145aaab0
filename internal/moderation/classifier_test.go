package moderation

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func wordlist(t *testing.T) *WordlistClassifier {
	t.Helper()
	w, err := NewWordlistClassifier(DefaultWordlists())
	require.NoError(t, err)
	return w
}

func TestWordlistClassifier(t *testing.T) {
	w := wordlist(t)

	tests := []struct {
		name  string
		input string
		want  Classification
	}{
		{"clean text", "my dog learned a new trick today", Safe},
		{"harassment word", "I hate this so much", Harassment},
		{"spam phrase", "click here for cheap kibble", Spam},
		{"leet speak evasion", "I h4te you", Harassment},
		{"punctuation evasion", "h.a.t.e", Harassment},
		{"spaced spam phrase", "buy  now", Spam},
		{"priority picks harassment over spam", "click here if you hate cats", Harassment},
		{"empty", "", Safe},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := w.Classify(context.Background(), tt.input)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestClientUsesRemoteVerdict(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/ai/moderate", r.URL.Path)
		var req moderateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "post", req.ContentType)
		_ = json.NewEncoder(w).Encode(moderateResponse{
			IsApproved: false,
			Flags:      []string{"harassment"},
			Confidence: 0.9,
		})
	}))
	defer ts.Close()

	c := NewClient(ts.URL, wordlist(t), testLogger())
	got, err := c.Classify(context.Background(), "whatever the model says")
	require.NoError(t, err)
	require.Equal(t, Harassment, got)
}

func TestClientApprovedIsSafe(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(moderateResponse{IsApproved: true})
	}))
	defer ts.Close()

	c := NewClient(ts.URL, wordlist(t), testLogger())
	got, err := c.Classify(context.Background(), "I hate nothing") // remote verdict wins
	require.NoError(t, err)
	require.Equal(t, Safe, got)
}

func TestClientFallsBackWhenServiceDown(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	c := NewClient(ts.URL, wordlist(t), testLogger())
	got, err := c.Classify(context.Background(), "I hate mondays")
	require.NoError(t, err)
	require.Equal(t, Harassment, got)
}

func TestClientFallsBackWhenUnreachable(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", wordlist(t), testLogger())
	got, err := c.Classify(context.Background(), "free money inside")
	require.NoError(t, err)
	require.Equal(t, Spam, got)
}

func TestClientWithoutURLUsesFallbackOnly(t *testing.T) {
	c := NewClient("", wordlist(t), testLogger())
	got, err := c.Classify(context.Background(), "such a sweet cat")
	require.NoError(t, err)
	require.Equal(t, Safe, got)
}
