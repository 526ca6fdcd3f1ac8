package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/klauspost/compress/zlib"
)

var (
	// ErrEmptyBody is returned when an authority answers 200 with no content.
	ErrEmptyBody = errors.New("empty response body")
	// ErrMalformed is returned when a response cannot be inflated.
	ErrMalformed = errors.New("malformed response body")
)

// maxBodySize bounds a single compressed response.
const maxBodySize = 64 << 20

// Transport performs a GET and returns the (inflated) body.
type Transport interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// HTTPTransport is a thin HTTP client for directory resources.
type HTTPTransport struct {
	http *http.Client
}

// NewHTTPTransport wraps client; nil means a default client without its own
// timeout (the fetch deadline comes from the request context).
func NewHTTPTransport(client *http.Client) *HTTPTransport {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPTransport{http: client}
}

// Get fetches url. Resources ending in ".z" are zlib-inflated.
func (t *HTTPTransport) Get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	res, err := t.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		msg := strings.TrimSpace(string(body))
		if msg != "" && isPrintable(msg) {
			return nil, fmt.Errorf("request failed: %s: %s", res.Status, msg)
		}
		return nil, fmt.Errorf("request failed: %s", res.Status)
	}

	raw, err := io.ReadAll(io.LimitReader(res.Body, maxBodySize))
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, ErrEmptyBody
	}
	if !strings.HasSuffix(req.URL.Path, ".z") {
		return raw, nil
	}
	return inflate(raw)
}

func inflate(raw []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	defer zr.Close()

	body, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(body) == 0 {
		return nil, ErrEmptyBody
	}
	return body, nil
}

func isPrintable(s string) bool {
	for _, r := range s {
		if r < 0x20 && r != '\n' && r != '\t' {
			return false
		}
	}
	return true
}
