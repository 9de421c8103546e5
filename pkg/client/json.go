package client

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"

	"github.com/menta2k/cover-studio/pkg/types"
)

var (
	reBlockComment = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reLineComment  = regexp.MustCompile(`(?m)^\s*//.*$`)
	reTailComment  = regexp.MustCompile(`(?m)([,{\[])\s*//[^"\n]*$`)
	reTrailing     = regexp.MustCompile(`,(\s*[}\]])`)
)

// SanitizeModelJSON removes code fences, comments and trailing commas
// from a model's JSON answer and keeps the outermost object.
func SanitizeModelJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	// Strip triple-backtick fences if present
	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.Trim(strings.TrimSpace(raw), "`")

	raw = reBlockComment.ReplaceAllString(raw, "")
	raw = reLineComment.ReplaceAllString(raw, "")
	raw = reTailComment.ReplaceAllString(raw, "$1")
	raw = reTrailing.ReplaceAllString(raw, "$1")

	// Keep only the outermost {...}
	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}
	return strings.TrimSpace(raw)
}

// ParseLayout decodes a model answer into a GeneratedLayout. Answers that
// carry no JSON object are permanent failures.
func ParseLayout(op, raw string) (*types.GeneratedLayout, error) {
	raw = SanitizeModelJSON(raw)
	if !strings.HasPrefix(raw, "{") {
		return nil, NewError(Permanent, op, errors.New("model returned non-JSON response"))
	}
	var out types.GeneratedLayout
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, NewError(Permanent, op, err)
	}
	return &out, nil
}
