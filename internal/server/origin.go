package server

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// originChecker enforces the Origin allow-list on websocket upgrades. Built
// once per Server; requests only read it.
type originChecker struct {
	allowed  map[string]struct{}
	allowAll bool
	log      *slog.Logger
}

func newOriginChecker(origins []string, log *slog.Logger) *originChecker {
	oc := &originChecker{
		allowed: make(map[string]struct{}, len(origins)),
		log:     log,
	}
	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		if trimmed == "*" {
			oc.allowAll = true
			continue
		}
		normalized, ok := normalizeOrigin(trimmed)
		if !ok {
			log.Warn("ignoring invalid origin in configuration", "origin", origin)
			continue
		}
		oc.allowed[normalized] = struct{}{}
	}
	return oc
}

// check is plugged into the websocket upgrader's CheckOrigin.
func (oc *originChecker) check(r *http.Request) bool {
	header := r.Header.Get("Origin")
	if header == "" {
		// Non-browser clients (and tests) send no Origin; the token is
		// their gate, not the allow-list.
		return true
	}
	normalized, ok := normalizeOrigin(header)
	if !ok {
		return false
	}
	if oc.allowAll {
		return true
	}
	if _, exists := oc.allowed[normalized]; exists {
		return true
	}
	oc.log.Warn("blocked websocket upgrade from disallowed origin", "origin", header)
	return false
}

// normalizeOrigin lowercases scheme://host so comparisons are
// case-insensitive and path-free.
func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}
