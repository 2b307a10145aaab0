// Package moderation classifies post content. The primary path asks the AI
// service over its REST endpoint; a local wordlist automaton takes over when
// the service is unreachable, so posts never stay unflagged just because the
// model is down.
package moderation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
)

// Classification labels a piece of content.
type Classification string

const (
	Safe          Classification = "safe"
	Spam          Classification = "spam"
	Harassment    Classification = "harassment"
	Inappropriate Classification = "inappropriate"
)

// Classifier is the moderation collaborator consumed by the post service.
type Classifier interface {
	Classify(ctx context.Context, text string) (Classification, error)
}

// Client calls the AI service's moderation endpoint and falls back to the
// local classifier on transport failure.
type Client struct {
	baseURL  string
	http     *http.Client
	fallback Classifier
	log      *slog.Logger
}

// NewClient builds the remote classifier. baseURL may be empty, in which
// case only the fallback runs.
func NewClient(baseURL string, fallback Classifier, log *slog.Logger) *Client {
	return &Client{
		baseURL:  baseURL,
		http:     &http.Client{Timeout: 10 * time.Second},
		fallback: fallback,
		log:      log,
	}
}

type moderateRequest struct {
	Text        string `json:"text"`
	ContentType string `json:"content_type"`
}

type moderateResponse struct {
	IsApproved bool     `json:"is_approved"`
	Flags      []string `json:"flags"`
	Confidence float64  `json:"confidence"`
}

// Classify asks the AI service for a verdict. Every failure path defers to
// the fallback; classification is best-effort by contract.
func (c *Client) Classify(ctx context.Context, text string) (Classification, error) {
	if c.baseURL == "" {
		return c.fallback.Classify(ctx, text)
	}

	body, err := json.Marshal(moderateRequest{Text: text, ContentType: "post"})
	if err != nil {
		return Safe, fmt.Errorf("encoding moderation request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/ai/moderate", bytes.NewReader(body))
	if err != nil {
		return Safe, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("moderation service unreachable, using fallback", "error", err)
		return c.fallback.Classify(ctx, text)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		c.log.Warn("moderation service error, using fallback", "status", resp.StatusCode)
		return c.fallback.Classify(ctx, text)
	}

	var verdict moderateResponse
	if err := json.NewDecoder(resp.Body).Decode(&verdict); err != nil {
		c.log.Warn("undecodable moderation response, using fallback", "error", err)
		return c.fallback.Classify(ctx, text)
	}

	if verdict.IsApproved || len(verdict.Flags) == 0 {
		return Safe, nil
	}
	switch verdict.Flags[0] {
	case string(Harassment):
		return Harassment, nil
	case string(Spam):
		return Spam, nil
	default:
		return Inappropriate, nil
	}
}

// WordlistClassifier matches content against per-category wordlists with an
// Aho-Corasick automaton. Matching runs on normalized runes so spacing,
// punctuation, and common leet substitutions do not dodge the lists.
type WordlistClassifier struct {
	machines map[Classification]*goahocorasick.Machine
}

// categoryOrder fixes the verdict priority when several categories match.
var categoryOrder = []Classification{Harassment, Inappropriate, Spam}

// NewWordlistClassifier builds one automaton per category.
func NewWordlistClassifier(wordlists map[Classification][]string) (*WordlistClassifier, error) {
	machines := make(map[Classification]*goahocorasick.Machine, len(wordlists))
	for category, words := range wordlists {
		if len(words) == 0 {
			continue
		}
		patterns := make([][]rune, len(words))
		for i, word := range words {
			patterns[i] = normalizeRunes([]rune(word))
		}
		m := new(goahocorasick.Machine)
		if err := m.Build(patterns); err != nil {
			return nil, fmt.Errorf("building %s matcher: %w", category, err)
		}
		machines[category] = m
	}
	return &WordlistClassifier{machines: machines}, nil
}

// Classify returns the highest-priority category whose wordlist matches.
func (w *WordlistClassifier) Classify(_ context.Context, text string) (Classification, error) {
	normalized := normalizeRunes([]rune(text))
	if len(normalized) == 0 {
		return Safe, nil
	}
	for _, category := range categoryOrder {
		m, ok := w.machines[category]
		if !ok {
			continue
		}
		if len(m.MultiPatternSearch(normalized, true)) > 0 {
			return category, nil
		}
	}
	return Safe, nil
}

// DefaultWordlists is the built-in seed used when no list is configured.
func DefaultWordlists() map[Classification][]string {
	return map[Classification][]string{
		Harassment:    {"hate", "attack", "abuse"},
		Inappropriate: {"violence"},
		Spam:          {"buy now", "click here", "free money"},
	}
}

// normalizeRunes lowercases, strips punctuation and spacing, and maps leet
// substitutions back to letters.
func normalizeRunes(input []rune) []rune {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		clean := simplifyRune(r)
		if isNoise(clean) {
			continue
		}
		out = append(out, unicode.ToLower(clean))
	}
	return out
}

func simplifyRune(r rune) rune {
	switch r {
	case '4', '@':
		return 'a'
	case '3':
		return 'e'
	case '1', '!', '|':
		return 'i'
	case '0':
		return 'o'
	case '5', '$':
		return 's'
	default:
		return r
	}
}

func isNoise(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSpace(r) || unicode.IsSymbol(r)
}
