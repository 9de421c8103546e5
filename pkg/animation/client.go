// Package animation drives the asynchronous image-to-video service: create
// a job, poll it to completion and fetch the resulting media.
package animation

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/menta2k/cover-studio/pkg/client"
	"github.com/menta2k/cover-studio/pkg/types"
)

const op = "animation"

// Wire values accepted by the service for the output shape.
const (
	AspectWide = "16:9"
	AspectTall = "9:16"
)

// WireAspect maps a crop ratio to one of the two accepted wire values:
// landscape ratios are wide, everything else is tall.
func WireAspect(r types.AspectRatio) string {
	if r.Landscape() {
		return AspectWide
	}
	return AspectTall
}

type inlineImage struct {
	Data     string `json:"data"`
	MimeType string `json:"mimeType"`
}

type createRequest struct {
	Prompt      string      `json:"prompt"`
	Image       inlineImage `json:"image"`
	AspectRatio string      `json:"aspectRatio"`
}

type createResponse struct {
	ID string `json:"id"`
}

// HTTPClient talks to the video job endpoints.
type HTTPClient struct {
	baseURL    *url.URL
	apiKey     string
	keySource  func() (string, error)
	httpClient *http.Client
}

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithAPIKey sends the key as a bearer token.
func WithAPIKey(key string) Option {
	return func(c *HTTPClient) { c.apiKey = key }
}

// WithKeySource resolves the API key before every request. An error from
// source aborts the request before anything is sent.
func WithKeySource(source func() (string, error)) Option {
	return func(c *HTTPClient) { c.keySource = source }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *HTTPClient) { c.httpClient = hc }
}

// NewHTTPClient creates a client for the service at serverURL.
func NewHTTPClient(serverURL string, opts ...Option) (*HTTPClient, error) {
	u, err := url.Parse(strings.TrimSuffix(serverURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid URL %q: scheme and host required", serverURL)
	}

	c := &HTTPClient{
		baseURL:    u,
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// CreateJob submits the still and prompt and returns the job handle.
func (c *HTTPClient) CreateJob(ctx context.Context, req client.AnimationRequest) (client.JobID, error) {
	if req.AspectRatio != AspectWide && req.AspectRatio != AspectTall {
		return "", client.NewError(client.Permanent, op, fmt.Errorf("unsupported aspect ratio %q", req.AspectRatio))
	}
	if len(req.Image) == 0 {
		return "", client.NewError(client.Permanent, op, errors.New("no image"))
	}

	body := createRequest{
		Prompt: req.Prompt,
		Image: inlineImage{
			Data:     base64.StdEncoding.EncodeToString(req.Image),
			MimeType: req.MimeType,
		},
		AspectRatio: req.AspectRatio,
	}

	var resp createResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/videos", body, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", client.NewError(client.Transient, op, errors.New("service returned no job id"))
	}
	return client.JobID(resp.ID), nil
}

// PollJob fetches the current state of a job.
func (c *HTTPClient) PollJob(ctx context.Context, id client.JobID) (client.JobStatus, error) {
	var status client.JobStatus
	err := c.doJSON(ctx, http.MethodGet, "/v1/videos/"+url.PathEscape(string(id)), nil, &status)
	return status, err
}

// Download opens the media at uri. Relative URIs resolve against the
// service base URL. The caller closes the body.
func (c *HTTPClient) Download(ctx context.Context, uri string) (io.ReadCloser, error) {
	ref, err := url.Parse(uri)
	if err != nil {
		return nil, client.NewError(client.Permanent, op, fmt.Errorf("invalid media uri: %w", err))
	}
	target := c.baseURL.ResolveReference(ref)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, client.NewError(client.Permanent, op, err)
	}
	// only send the key back to our own service
	if target.Host == c.baseURL.Host {
		if err := c.authorize(req); err != nil {
			return nil, err
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, client.Classify(op, fmt.Errorf("download media: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, client.FromStatus(op, resp.StatusCode, body)
	}
	return resp.Body, nil
}

func (c *HTTPClient) authorize(req *http.Request) error {
	key := c.apiKey
	if c.keySource != nil {
		k, err := c.keySource()
		if err != nil {
			return err
		}
		key = k
	}
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	return nil
}

func (c *HTTPClient) doJSON(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return client.NewError(client.Permanent, op, fmt.Errorf("failed to marshal request: %w", err))
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, body)
	if err != nil {
		return client.NewError(client.Permanent, op, fmt.Errorf("failed to create request: %w", err))
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if err := c.authorize(req); err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return client.Classify(op, fmt.Errorf("failed to send request: %w", err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return client.Classify(op, fmt.Errorf("failed to read response: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return client.FromStatus(op, resp.StatusCode, data)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return client.NewError(client.Permanent, op, fmt.Errorf("failed to parse response: %w", err))
	}
	return nil
}
