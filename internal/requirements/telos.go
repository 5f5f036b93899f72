package requirements

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ldi/metis/internal/errors"
)

const defaultTimeout = 10 * time.Second

// TelosClient reads requirements from a Telos server over its REST API.
type TelosClient struct {
	baseURL string
	client  *http.Client
}

var _ Upstream = (*TelosClient)(nil)

// NewTelosClient returns a client for the server at baseURL
// (e.g. "http://localhost:8008"). A zero timeout means 10s.
func NewTelosClient(baseURL string, timeout time.Duration) (*TelosClient, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("telos base URL is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid telos URL: %w", err)
	}
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return &TelosClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}, nil
}

type searchResponse struct {
	Requirements []Requirement `json:"requirements"`
	Total        int           `json:"total"`
}

func (c *TelosClient) Search(ctx context.Context, p SearchParams) (SearchResult, error) {
	q := url.Values{}
	if p.Query != "" {
		q.Set("query", p.Query)
	}
	if p.Status != "" {
		q.Set("status", p.Status)
	}
	if p.Category != "" {
		q.Set("category", p.Category)
	}
	if p.Page > 0 {
		q.Set("page", strconv.Itoa(p.Page))
	}
	if p.PageSize > 0 {
		q.Set("page_size", strconv.Itoa(p.PageSize))
	}

	var resp searchResponse
	if err := c.get(ctx, "/api/v1/requirements?"+q.Encode(), "requirements", &resp); err != nil {
		return SearchResult{}, err
	}
	return SearchResult{
		Requirements: resp.Requirements,
		Total:        resp.Total,
		Page:         p.Page,
		PageSize:     p.PageSize,
	}, nil
}

func (c *TelosClient) Get(ctx context.Context, id string) (*Requirement, error) {
	var req Requirement
	if err := c.get(ctx, "/api/v1/requirements/"+url.PathEscape(id), "requirement "+id, &req); err != nil {
		return nil, err
	}
	if req.ID == "" {
		req.ID = id
	}
	return &req, nil
}

// get issues a GET and decodes a 200 response into out. what names the
// resource in NotFound errors.
func (c *TelosClient) get(ctx context.Context, path, what string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return errors.Upstream("telos request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return errors.NotFound("telos", what)
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return errors.InvalidArgumentf("telos rejected request: %s", strings.TrimSpace(string(body)))
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return errors.Upstream(fmt.Sprintf("telos returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Upstream("decode telos response", err)
	}
	return nil
}
