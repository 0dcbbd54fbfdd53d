package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/forPelevin/vshorts/internal/domain/highlights"
	"github.com/forPelevin/vshorts/internal/types"
)

type Adapter struct {
	key     string
	model   string
	baseURL string
	client  *http.Client
}

const (
	requestTimeout   = 90 * time.Second
	promptCandidates = 40
)

func New(apiKey, model, baseURL string) *Adapter {
	if model == "" {
		model = "anthropic/claude-3.5-sonnet"
	}
	return &Adapter{
		key:     apiKey,
		model:   model,
		baseURL: normalizeBaseURL(baseURL),
		client:  &http.Client{Timeout: 5 * time.Minute},
	}
}

// Pick asks the model to choose one highlight window out of the scored
// candidates. Any malformed or out-of-bounds answer degrades to the
// best-scored candidate, so the pipeline stays usable without a reliable
// model.
func (a *Adapter) Pick(
	ctx context.Context,
	tr types.Transcript,
	cands []types.Candidate,
	minHighlight, maxHighlight time.Duration,
) (types.Highlight, error) {
	_ = tr

	if len(cands) == 0 {
		return types.Highlight{}, errors.New("openrouter: no candidate windows")
	}
	top := highlights.Top(cands, promptCandidates)

	type cand struct {
		Idx      int     `json:"idx"`
		StartSec float64 `json:"start_sec"`
		EndSec   float64 `json:"end_sec"`
		Text     string  `json:"text"`
		Score    float64 `json:"score"`
	}
	arr := make([]cand, 0, len(top))
	for i, c := range top {
		arr = append(arr, cand{Idx: i, StartSec: c.Start.Seconds(), EndSec: c.End.Seconds(), Text: c.Text, Score: c.Score})
	}
	pb, err := json.Marshal(map[string]any{
		"minSec":     minHighlight.Seconds(),
		"maxSec":     maxHighlight.Seconds(),
		"candidates": arr,
	})
	if err != nil {
		return types.Highlight{}, fmt.Errorf("marshal prompt: %w", err)
	}

	payload := map[string]any{
		"model":  a.model,
		"stream": false,
		"messages": []map[string]any{
			{"role": "user", "content": buildPrompt(pb)},
		},
		"response_format": map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name": "vshorts_highlight",
				"schema": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"start_sec": map[string]any{"type": "number"},
						"end_sec":   map[string]any{"type": "number"},
						"content":   map[string]any{"type": "string"},
					},
					"required": []string{"start_sec", "end_sec", "content"},
				},
			},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return types.Highlight{}, fmt.Errorf("marshal request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, "POST", a.baseURL+"/api/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return types.Highlight{}, err
	}
	req.Header.Set("Authorization", "Bearer "+a.key)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return types.Highlight{}, fmt.Errorf("openrouter timeout after %s (model=%s)", requestTimeout, a.model)
		}
		return types.Highlight{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		rb, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return types.Highlight{}, fmt.Errorf("openrouter status %d and read body failed: %v", resp.StatusCode, readErr)
		}
		return types.Highlight{}, fmt.Errorf("openrouter status %d: %s", resp.StatusCode, truncate(redactSecrets(string(rb), a.key), 400))
	}

	var raw struct {
		Choices []struct {
			Message struct {
				Content any `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return types.Highlight{}, err
	}
	if len(raw.Choices) == 0 {
		return fallbackHighlight(top), nil
	}

	content, err := messageContentToString(raw.Choices[0].Message.Content)
	if err != nil {
		return fallbackHighlight(top), nil
	}
	clean, err := extractJSONObject(content)
	if err != nil {
		return fallbackHighlight(top), nil
	}

	var out struct {
		StartSec float64 `json:"start_sec"`
		EndSec   float64 `json:"end_sec"`
		Content  string  `json:"content"`
	}
	if err := json.Unmarshal([]byte(clean), &out); err != nil {
		return fallbackHighlight(top), nil
	}

	hl := types.Highlight{
		Start:   time.Duration(out.StartSec * float64(time.Second)),
		End:     time.Duration(out.EndSec * float64(time.Second)),
		Content: strings.TrimSpace(out.Content),
	}
	if hl.Start < 0 {
		hl.Start = 0
	}
	d := hl.End - hl.Start
	if d < minHighlight || (maxHighlight > 0 && d > maxHighlight) {
		return fallbackHighlight(top), nil
	}
	return hl, nil
}

func buildPrompt(candsJSON []byte) string {
	return "Select the single best highlight window from the candidate list. " +
		"Return strictly valid JSON (no markdown, no code fences) matching the provided schema. " +
		"Prefer a window with a strong hook that ends on a complete thought. " +
		"The window duration must be between minSec and maxSec." +
		"\n\nCandidates JSON:\n" + string(candsJSON)
}

func fallbackHighlight(cands []types.Candidate) types.Highlight {
	best := cands[0]
	for _, c := range cands[1:] {
		if c.Score > best.Score {
			best = c
		}
	}
	return types.Highlight{Start: best.Start, End: best.End, Content: strings.TrimSpace(best.Text)}
}

func messageContentToString(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case []any:
		// Some providers return an array of {type,text} parts.
		var b strings.Builder
		for _, it := range x {
			m, ok := it.(map[string]any)
			if !ok {
				continue
			}
			if t, ok := m["text"].(string); ok {
				b.WriteString(t)
			}
		}
		s := b.String()
		if strings.TrimSpace(s) == "" {
			return "", errors.New("openrouter: empty content")
		}
		return s, nil
	default:
		return "", fmt.Errorf("openrouter: unexpected content type %T", v)
	}
}

func extractJSONObject(s string) (string, error) {
	t := strings.TrimSpace(s)
	if t == "" {
		return "", errors.New("openrouter: empty content")
	}

	// Strip markdown code fences.
	if strings.HasPrefix(t, "```") {
		if i := strings.Index(t, "\n"); i >= 0 {
			t = t[i+1:]
		}
		if j := strings.LastIndex(t, "```"); j >= 0 {
			t = t[:j]
		}
		t = strings.TrimSpace(t)
	}

	// Best-effort: take the first JSON object found.
	start := strings.Index(t, "{")
	end := strings.LastIndex(t, "}")
	if start >= 0 && end > start {
		return t[start : end+1], nil
	}
	return "", fmt.Errorf("openrouter: could not locate JSON object in: %q", truncate(t, 200))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

var (
	bearerTokenRE = regexp.MustCompile(`(?i)\bBearer\s+[A-Za-z0-9._-]+\b`)
	authHeaderRE  = regexp.MustCompile(`(?i)(authorization\s*[:=]\s*)([^\n\r,;]+)`)
	apiKeyFieldRE = regexp.MustCompile(`(?i)(api[_-]?key\s*[:=]\s*)([^\n\r,;]+)`)
)

func redactSecrets(s, apiKey string) string {
	if s == "" {
		return s
	}
	out := s
	if apiKey != "" {
		out = strings.ReplaceAll(out, apiKey, "[REDACTED]")
	}
	out = bearerTokenRE.ReplaceAllString(out, "Bearer [REDACTED]")
	out = authHeaderRE.ReplaceAllString(out, "${1}[REDACTED]")
	out = apiKeyFieldRE.ReplaceAllString(out, "${1}[REDACTED]")
	return out
}
