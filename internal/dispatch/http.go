package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
)

const maxReplyBytes = 1 << 20

// StatusError is returned for non-2xx HTTP replies.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("endpoint returned HTTP %d", e.Code)
	}
	return fmt.Sprintf("endpoint returned HTTP %d: %s", e.Code, body)
}

// HTTPClient posts {"text": ...} as JSON.
type HTTPClient struct {
	client *http.Client
}

// NewHTTPClient wraps client, or http.DefaultClient when nil.
func NewHTTPClient(client *http.Client) *HTTPClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPClient{client: client}
}

type textPayload struct {
	Text string `json:"text"`
}

type replyPayload struct {
	Text   *string `json:"text"`
	Reply  *string `json:"reply"`
	Output *string `json:"output"`
}

func (c *HTTPClient) Send(ctx context.Context, text string, endpoint Endpoint) (string, error) {
	if err := endpoint.Validate(); err != nil {
		return "", err
	}
	ctx, cancel := withTimeout(ctx, endpoint.Timeout)
	defer cancel()

	body, err := json.Marshal(textPayload{Text: text})
	if err != nil {
		return "", fmt.Errorf("encode dispatch payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimSpace(endpoint.URL), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build dispatch request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/plain")
	for key, value := range endpoint.Headers {
		req.Header.Set(key, ExpandHeader(value))
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("post to endpoint: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return "", fmt.Errorf("read endpoint reply: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &StatusError{Code: resp.StatusCode, Body: string(raw)}
	}
	return decodeReply(resp.Header.Get("Content-Type"), raw)
}

// decodeReply accepts {"text"|"reply"|"output": ...} JSON or a plain-text body.
func decodeReply(contentType string, raw []byte) (string, error) {
	mediaType, _, _ := mime.ParseMediaType(contentType)
	if mediaType != "application/json" && !strings.HasSuffix(mediaType, "+json") {
		return strings.TrimSpace(string(raw)), nil
	}

	var payload replyPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", fmt.Errorf("decode endpoint reply: %w", err)
	}
	for _, candidate := range []*string{payload.Text, payload.Reply, payload.Output} {
		if candidate != nil {
			return strings.TrimSpace(*candidate), nil
		}
	}
	return "", fmt.Errorf("decode endpoint reply: no text field in %s", strings.TrimSpace(string(raw)))
}
