// Package backend speaks the cat-mood analysis HTTP API: a low-level client
// for JSON, multipart, and line-stream exchanges, plus transports for each
// backend contract revision.
package backend

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/whiskerworks/catmood/analysis"
)

const defaultTimeout = 60 * time.Second

// Client performs raw HTTP exchanges against a base URL, attaching a bearer
// token when configured. Non-2xx statuses are returned to the caller, never
// turned into errors at this layer, and there are no retries.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// NewClient builds a client with the default per-request timeout.
func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Token:      token,
		HTTPClient: &http.Client{Timeout: defaultTimeout},
	}
}

// PostJSON sends body as JSON and returns the raw status and response bytes.
// The error is non-nil only for transport-level failures.
func (c *Client) PostJSON(ctx context.Context, path string, body any, headers map[string]string) (int, []byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := c.newRequest(ctx, path, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return 0, nil, &analysis.NetworkError{Op: "POST " + path, Err: err}
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, &analysis.NetworkError{Op: "read " + path, Err: err}
	}
	return resp.StatusCode, b, nil
}

// PostMultipart sends a multipart form with the given text fields and one
// file part.
func (c *Client) PostMultipart(ctx context.Context, path string, fields map[string]string, fileField string, fileBytes []byte, filename, mimeType string) (int, []byte, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return 0, nil, fmt.Errorf("write field %s: %w", k, err)
		}
	}
	part, err := w.CreateFormFile(fileField, filename)
	if err != nil {
		return 0, nil, fmt.Errorf("create file part: %w", err)
	}
	if _, err := part.Write(fileBytes); err != nil {
		return 0, nil, fmt.Errorf("write file part: %w", err)
	}
	if err := w.Close(); err != nil {
		return 0, nil, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := c.newRequest(ctx, path, &buf)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	if mimeType != "" {
		req.Header.Set("X-File-Mime-Type", mimeType)
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return 0, nil, &analysis.NetworkError{Op: "POST " + path, Err: err}
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, &analysis.NetworkError{Op: "read " + path, Err: err}
	}
	return resp.StatusCode, b, nil
}

// StreamLines sends body as JSON and returns the response as a lazy sequence
// of text lines. The stream runs until the server closes it or ctx is
// cancelled; the per-request timeout does not apply. The caller must Close
// the stream.
func (c *Client) StreamLines(ctx context.Context, path string, body any, headers map[string]string) (int, *LineStream, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := c.newRequest(ctx, path, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	// Clone without the timeout: it would cut long-lived streams short.
	streamClient := *c.httpClient()
	streamClient.Timeout = 0

	resp, err := streamClient.Do(req)
	if err != nil {
		return 0, nil, &analysis.NetworkError{Op: "POST " + path, Err: err}
	}
	return resp.StatusCode, newLineStream(resp.Body), nil
}

func (c *Client) newRequest(ctx context.Context, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	return req, nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: defaultTimeout}
}

// LineStream is a lazy UTF-8 line reader over a response body.
type LineStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
}

func newLineStream(body io.ReadCloser) *LineStream {
	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	return &LineStream{body: body, scanner: sc}
}

// Next returns the next line, or io.EOF when the server closes the stream.
func (s *LineStream) Next() (string, error) {
	if s.scanner.Scan() {
		return s.scanner.Text(), nil
	}
	if err := s.scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

// ReadAll drains the remaining body. Useful for error envelopes on non-2xx
// responses; call before Next.
func (s *LineStream) ReadAll() ([]byte, error) {
	return io.ReadAll(s.body)
}

// Close releases the underlying response body.
func (s *LineStream) Close() error {
	return s.body.Close()
}
