package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/menta2k/cover-studio/pkg/client"
	"github.com/menta2k/cover-studio/pkg/types"
)

const op = "ollama layout"

// DefaultModel is used when no model is configured.
const DefaultModel = "qwen2.5vl:7b"

// Client wraps the Ollama API client
type Client struct {
	baseURL *url.URL
	http    *http.Client
	model   string
}

// NewClient creates a new Ollama client
func NewClient(ollamaURL, model string) (*Client, error) {
	return NewClientWithHTTP(ollamaURL, model, http.DefaultClient)
}

// NewClientWithHTTP creates a client on a caller-supplied http.Client.
func NewClientWithHTTP(ollamaURL, model string, hc *http.Client) (*Client, error) {
	// Parse the provided URL
	parsedURL, err := url.Parse(ollamaURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("invalid URL %q: scheme and host required", ollamaURL)
	}

	// Create base URL from the provided URL (removing path like /api/chat)
	baseURL := &url.URL{
		Scheme: parsedURL.Scheme,
		Host:   parsedURL.Host,
	}
	if model == "" {
		model = DefaultModel
	}

	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{baseURL: baseURL, http: hc, model: model}, nil
}

// statusRecorder remembers the last HTTP status so SDK errors can be
// classified by code.
type statusRecorder struct {
	next   http.RoundTripper
	status int
}

func (r *statusRecorder) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := r.next.RoundTrip(req)
	if resp != nil {
		r.status = resp.StatusCode
	}
	return resp, err
}

// newSDK returns an SDK client for one call, with its own status recorder.
func (c *Client) newSDK() (*api.Client, *statusRecorder) {
	next := c.http.Transport
	if next == nil {
		next = http.DefaultTransport
	}
	rec := &statusRecorder{next: next}
	hc := *c.http
	hc.Transport = rec
	// Create client with the specified URL, ignoring environment
	return api.NewClient(c.baseURL, &hc), rec
}

// GenerateLayout asks the model for a layout in JSON mode.
func (c *Client) GenerateLayout(ctx context.Context, req client.LayoutRequest) (*types.GeneratedLayout, error) {
	// Add timeout if context doesn't have one (vision models on CPU are slow)
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 300*time.Second)
		defer cancel()
	}

	prompt := req.Prompt
	if prompt == "" {
		prompt = client.LayoutPrompt(req.Title, req.FilterLabel)
	}

	streamFalse := false
	options := map[string]any{"temperature": 0.7}

	// Qwen VL models stay closer to the schema with a lower top_p
	if strings.Contains(strings.ToLower(c.model), "qwen") {
		options["top_p"] = 0.8
		options["num_ctx"] = 4096
	}

	chatReq := &api.ChatRequest{
		Model: c.model,
		Messages: []api.Message{
			{
				Role:    "user",
				Content: prompt,
				Images:  []api.ImageData{api.ImageData(req.Image)},
			},
		},
		Stream:  &streamFalse,
		Format:  json.RawMessage(`"json"`),
		Options: options,
	}

	sdk, rec := c.newSDK()
	var responseContent string
	err := sdk.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		responseContent += resp.Message.Content
		return nil
	})
	if err != nil {
		return nil, classify(err, rec.status)
	}

	if strings.TrimSpace(responseContent) == "" {
		return nil, client.NewError(client.Transient, op, errors.New("empty response from ollama"))
	}
	return client.ParseLayout(op, responseContent)
}

// classify maps Ollama SDK errors onto service failure kinds, preferring
// the status code of the failed response.
func classify(err error, status int) error {
	wrapped := fmt.Errorf("ollama chat error: %w", err)
	var se api.StatusError
	if errors.As(err, &se) && se.StatusCode >= 400 {
		status = se.StatusCode
	}
	if status >= 400 {
		return client.NewError(client.KindForStatus(status), op, wrapped)
	}
	return client.Classify(op, wrapped)
}
