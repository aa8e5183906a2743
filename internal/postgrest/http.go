package postgrest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/sqlrest/internal/ir"
)

// HTTPConfig configures an HTTPClient.
type HTTPConfig struct {
	// URL is the PostgREST base URL, e.g. https://project.example.com/rest/v1.
	URL string

	// APIKey is sent as the apikey header and as a bearer token.
	APIKey string

	// Schema selects a non-default schema via Accept-Profile/Content-Profile.
	Schema string

	// Timeout bounds each request. Defaults to 30s.
	Timeout time.Duration

	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
}

// HTTPClient executes requests against a PostgREST server.
//
// Thread-safety: HTTPClient is immutable after construction and safe for
// concurrent use.
type HTTPClient struct {
	base   *url.URL
	apiKey string
	schema string
	http   *http.Client
}

// NewHTTPClient validates cfg and creates a client. A missing URL or API
// key fails here rather than on the first request.
func NewHTTPClient(cfg HTTPConfig) (*HTTPClient, error) {
	if cfg.URL == "" {
		return nil, errors.New("postgrest: URL is required")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("postgrest: API key is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.URL, "/"))
	if err != nil {
		return nil, fmt.Errorf("postgrest: invalid URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("postgrest: URL scheme must be http or https, got %q", base.Scheme)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &HTTPClient{
		base:   base,
		apiKey: cfg.APIKey,
		schema: cfg.Schema,
		http:   httpClient,
	}, nil
}

// Execute sends req and decodes the response.
func (c *HTTPClient) Execute(ctx context.Context, req *Request) (*Response, error) {
	httpReq, err := c.newRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("postgrest request failed: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read postgrest response: %w", err)
	}

	if httpResp.StatusCode >= 400 {
		return nil, decodeError(httpResp.StatusCode, body)
	}

	resp := &Response{}
	if req.Count {
		n, err := parseContentRange(httpResp.Header.Get("Content-Range"))
		if err != nil {
			return nil, err
		}
		resp.Count = &n
		return resp, nil
	}

	rows, err := decodeRows(body)
	if err != nil {
		return nil, err
	}
	resp.Rows = rows
	if req.Action != ActionSelect {
		resp.Affected = int64(len(rows))
	}
	return resp, nil
}

func (c *HTTPClient) newRequest(ctx context.Context, req *Request) (*http.Request, error) {
	u := *c.base
	u.Path = u.Path + "/" + url.PathEscape(req.Table)
	u.RawQuery = QueryValues(req).Encode()

	var (
		method string
		body   io.Reader
	)
	switch req.Action {
	case ActionSelect:
		method = http.MethodGet
		if req.Count {
			method = http.MethodHead
		}
	case ActionInsert:
		method = http.MethodPost
		data, err := marshalBody(req.Body, true)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(data)
	case ActionUpdate:
		method = http.MethodPatch
		data, err := marshalBody(req.Body, false)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(data)
	case ActionDelete:
		method = http.MethodDelete
	default:
		return nil, fmt.Errorf("postgrest: unknown action %q", req.Action)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("apikey", c.apiKey)
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	if c.schema != "" {
		if req.Action == ActionSelect {
			httpReq.Header.Set("Accept-Profile", c.schema)
		} else {
			httpReq.Header.Set("Content-Profile", c.schema)
		}
	}

	switch {
	case req.Count:
		httpReq.Header.Set("Prefer", "count=exact")
	case req.Action != ActionSelect:
		// Mutations always ask for a representation so the affected row
		// count is known.
		httpReq.Header.Set("Prefer", "return=representation")
	}

	if req.Range != nil && !req.Count {
		httpReq.Header.Set("Range-Unit", "items")
		httpReq.Header.Set("Range", fmt.Sprintf("%d-%d", req.Range.From, req.Range.To))
	}
	return httpReq, nil
}

func marshalBody(rows []ir.Object, asArray bool) ([]byte, error) {
	var v ir.Value
	switch {
	case asArray:
		arr := make(ir.Array, len(rows))
		for i, r := range rows {
			arr[i] = r
		}
		v = arr
	case len(rows) == 1:
		v = rows[0]
	default:
		return nil, fmt.Errorf("postgrest: update needs exactly one payload, got %d", len(rows))
	}
	data, err := ir.MarshalValue(v)
	if err != nil {
		return nil, fmt.Errorf("encode request body: %w", err)
	}
	return data, nil
}

func decodeRows(body []byte) ([]map[string]any, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return []map[string]any{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var rows []map[string]any
	if err := dec.Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode postgrest response: %w", err)
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	return rows, nil
}

func decodeError(status int, body []byte) error {
	pe := &Error{Status: status}
	if err := json.Unmarshal(body, pe); err != nil || pe.Message == "" {
		pe.Code = "HTTP" + strconv.Itoa(status)
		pe.Message = strings.TrimSpace(string(body))
		if pe.Message == "" {
			pe.Message = http.StatusText(status)
		}
	}
	return pe
}

// parseContentRange extracts the total from "0-24/3573" or "*/3573".
func parseContentRange(header string) (int64, error) {
	i := strings.LastIndexByte(header, '/')
	if i < 0 {
		return 0, fmt.Errorf("postgrest: missing total in Content-Range %q", header)
	}
	total := header[i+1:]
	if total == "*" {
		return 0, fmt.Errorf("postgrest: server did not report an exact count (Content-Range %q)", header)
	}
	n, err := strconv.ParseInt(total, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("postgrest: invalid Content-Range %q: %w", header, err)
	}
	return n, nil
}
