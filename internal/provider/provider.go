// Package provider sends the configured prompt to each AI provider and
// normalizes every outcome, success or failure, into an event. One
// provider failing never blocks the others.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/stellarlinkco/dailylog/internal/event"
)

const (
	defaultOpenAIBase    = "https://api.openai.com"
	defaultAnthropicBase = "https://api.anthropic.com"
	defaultGeminiBase    = "https://generativelanguage.googleapis.com"

	maxAttempts       = 2
	defaultRetryDelay = 600 * time.Millisecond
	queryTopic        = "Cross-AI API Query"
	summaryMax        = 240
)

var retryableStatus = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

var transientNetworkHints = []string{
	"failed to fetch", "network", "timeout", "econnreset", "temporar",
}

// HTTPError is a provider HTTP failure: a non-success status after
// retries are exhausted, with any detail message parsed from the body.
type HTTPError struct {
	Provider string
	Status   int
	Detail   string
}

func (e *HTTPError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s request failed (%d): %s", e.Provider, e.Status, e.Detail)
	}
	return fmt.Sprintf("%s request failed (%d)", e.Provider, e.Status)
}

// NetworkError is a transport-level failure reaching a provider.
type NetworkError struct {
	Provider string
	Err      error
}

func (e *NetworkError) Error() string {
	reason := "Unknown network error"
	if e.Err != nil {
		reason = e.Err.Error()
	}
	return fmt.Sprintf("%s network error: %s. Check internet, firewall/VPN/proxy, and API endpoint access.", e.Provider, reason)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Settings carries the per-run provider configuration. A provider with
// an empty key is simply not queried.
type Settings struct {
	Prompt         string
	OpenAIKey      string
	OpenAIModel    string
	AnthropicKey   string
	AnthropicModel string
	GeminiKey      string
	GeminiModel    string
}

// Client queries the three provider HTTP APIs. Base URLs and the retry
// delay are settable for tests.
type Client struct {
	httpClient    *http.Client
	openAIBase    string
	anthropicBase string
	geminiBase    string
	retryDelay    time.Duration
	now           func() time.Time
}

// Option configures a Client.
type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithBaseURLs(openAI, anthropic, gemini string) Option {
	return func(c *Client) {
		c.openAIBase = openAI
		c.anthropicBase = anthropic
		c.geminiBase = gemini
	}
}

func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) { c.retryDelay = d }
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		openAIBase:    defaultOpenAIBase,
		anthropicBase: defaultAnthropicBase,
		geminiBase:    defaultGeminiBase,
		retryDelay:    defaultRetryDelay,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var spaceRunRe = regexp.MustCompile(`\s+`)

func truncate(value string) string {
	compact := strings.TrimSpace(spaceRunRe.ReplaceAllString(value, " "))
	if compact == "" {
		return "No technical response content."
	}
	if len(compact) > summaryMax {
		cut := summaryMax - 3
		for cut > 0 && !utf8.RuneStart(compact[cut]) {
			cut--
		}
		return compact[:cut] + "..."
	}
	return compact
}

// errorDetailFromBody pulls a human-readable message out of a provider
// error payload: a top-level "message", a string "error", or an error
// object's type/status/message joined with " - ".
func errorDetailFromBody(body []byte) string {
	var payload struct {
		Message string          `json:"message"`
		Error   json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if msg := strings.TrimSpace(payload.Message); msg != "" {
		return msg
	}
	if len(payload.Error) == 0 {
		return ""
	}

	var errStr string
	if json.Unmarshal(payload.Error, &errStr) == nil {
		return strings.TrimSpace(errStr)
	}

	var errObj struct {
		Type    string `json:"type"`
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	if json.Unmarshal(payload.Error, &errObj) == nil {
		var parts []string
		for _, p := range []string{errObj.Type, errObj.Status, errObj.Message} {
			if s := strings.TrimSpace(p); s != "" {
				parts = append(parts, s)
			}
		}
		if len(parts) > 0 {
			return strings.Join(parts, " - ")
		}
	}
	return ""
}

func isRetryableNetworkError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, hint := range transientNetworkHints {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}

func (c *Client) sleep(ctx context.Context, attempt int) {
	select {
	case <-time.After(c.retryDelay * time.Duration(attempt)):
	case <-ctx.Done():
	}
}

// postWithRetry performs the request up to maxAttempts times. Retries
// happen only for the fixed transient status set or for transport
// errors that look transient; backoff is linear (delay * attempt).
func (c *Client) postWithRetry(ctx context.Context, providerName string, build func() (*http.Request, error)) ([]byte, error) {
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		req, err := build()
		if err != nil {
			return nil, fmt.Errorf("%s build request: %w", providerName, err)
		}
		resp, err := c.httpClient.Do(req.WithContext(ctx))
		if err != nil {
			if attempt < maxAttempts && isRetryableNetworkError(err) {
				c.sleep(ctx, attempt)
				continue
			}
			return nil, &NetworkError{Provider: providerName, Err: err}
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			if readErr != nil {
				return nil, &NetworkError{Provider: providerName, Err: readErr}
			}
			return body, nil
		}

		if retryableStatus[resp.StatusCode] && attempt < maxAttempts {
			c.sleep(ctx, attempt)
			continue
		}
		return nil, &HTTPError{Provider: providerName, Status: resp.StatusCode, Detail: errorDetailFromBody(body)}
	}
	return nil, fmt.Errorf("%s request failed (unknown)", providerName)
}

func (c *Client) postJSON(ctx context.Context, providerName, rawURL string, headers map[string]string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%s encode request: %w", providerName, err)
	}
	return c.postWithRetry(ctx, providerName, func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodPost, rawURL, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		return req, nil
	})
}

func (c *Client) queryOpenAI(ctx context.Context, apiKey, model, prompt string) (string, error) {
	body, err := c.postJSON(ctx, "OpenAI", c.openAIBase+"/v1/responses",
		map[string]string{"Authorization": "Bearer " + apiKey},
		map[string]any{"model": model, "input": prompt})
	if err != nil {
		return "", err
	}

	var payload struct {
		OutputText string `json:"output_text"`
		Output     []struct {
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
		} `json:"output"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("OpenAI parse response: %w", err)
	}
	if strings.TrimSpace(payload.OutputText) != "" {
		return payload.OutputText, nil
	}
	var parts []string
	for _, chunk := range payload.Output {
		for _, part := range chunk.Content {
			if (part.Type == "output_text" || part.Type == "text") && part.Text != "" {
				parts = append(parts, part.Text)
			}
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n")), nil
}

func (c *Client) queryAnthropic(ctx context.Context, apiKey, model, prompt string) (string, error) {
	body, err := c.postJSON(ctx, "Anthropic", c.anthropicBase+"/v1/messages",
		map[string]string{"x-api-key": apiKey, "anthropic-version": "2023-06-01"},
		map[string]any{
			"model":      model,
			"max_tokens": 1200,
			"messages":   []map[string]any{{"role": "user", "content": prompt}},
		})
	if err != nil {
		return "", err
	}

	var payload struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("Anthropic parse response: %w", err)
	}
	var parts []string
	for _, part := range payload.Content {
		if part.Type == "text" && part.Text != "" {
			parts = append(parts, part.Text)
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n")), nil
}

func (c *Client) queryGemini(ctx context.Context, apiKey, model, prompt string) (string, error) {
	rawURL := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s",
		c.geminiBase, url.PathEscape(model), url.QueryEscape(apiKey))
	body, err := c.postJSON(ctx, "Gemini", rawURL, nil,
		map[string]any{
			"contents": []map[string]any{
				{"role": "user", "parts": []map[string]any{{"text": prompt}}},
			},
		})
	if err != nil {
		return "", err
	}

	var payload struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("Gemini parse response: %w", err)
	}
	if len(payload.Candidates) == 0 {
		return "", nil
	}
	var parts []string
	for _, part := range payload.Candidates[0].Content.Parts {
		if part.Text != "" {
			parts = append(parts, part.Text)
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n")), nil
}

type providerCall struct {
	source event.Source
	label  string
	rawRef string
	query  func(ctx context.Context) (string, error)
}

// QueryAll runs one call per configured provider, all concurrently and
// independently awaited. Every call resolves to a well-formed event:
// failures become events whose summary embeds the provider name and
// error detail. The result is stamped with wall-clock call time and
// sorted ascending by timestamp.
func (c *Client) QueryAll(ctx context.Context, s Settings) []event.NormalizedEvent {
	prompt := strings.TrimSpace(s.Prompt)
	if prompt == "" {
		return nil
	}

	var calls []providerCall
	if key := strings.TrimSpace(s.OpenAIKey); key != "" {
		model := strings.TrimSpace(s.OpenAIModel)
		calls = append(calls, providerCall{
			source: event.SourceChatGPT,
			label:  "OpenAI",
			rawRef: "openai-api",
			query: func(ctx context.Context) (string, error) {
				return c.queryOpenAI(ctx, key, model, prompt)
			},
		})
	}
	if key := strings.TrimSpace(s.AnthropicKey); key != "" {
		model := strings.TrimSpace(s.AnthropicModel)
		calls = append(calls, providerCall{
			source: event.SourceClaude,
			label:  "Anthropic",
			rawRef: "anthropic-api",
			query: func(ctx context.Context) (string, error) {
				return c.queryAnthropic(ctx, key, model, prompt)
			},
		})
	}
	if key := strings.TrimSpace(s.GeminiKey); key != "" {
		model := strings.TrimSpace(s.GeminiModel)
		calls = append(calls, providerCall{
			source: event.SourceGemini,
			label:  "Gemini",
			rawRef: "gemini-api",
			query: func(ctx context.Context) (string, error) {
				return c.queryGemini(ctx, key, model, prompt)
			},
		})
	}

	events := make([]event.NormalizedEvent, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call providerCall) {
			defer wg.Done()
			text, err := call.query(ctx)
			ev := event.NormalizedEvent{
				Source:    call.source,
				Timestamp: c.now().UTC().Format(time.RFC3339),
				Topic:     queryTopic,
				RawRef:    call.rawRef,
			}
			if err != nil {
				ev.OneLineSummary = truncate(fmt.Sprintf("%s error: %s", call.label, err.Error()))
				ev.RawRef = call.rawRef + "-error"
			} else {
				ev.OneLineSummary = truncate(text)
			}
			events[i] = ev
		}(i, call)
	}
	wg.Wait()

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp < events[j].Timestamp
	})
	return events
}
