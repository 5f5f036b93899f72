// Package requirements adapts an external requirement tracker into tasks and
// requirement references. It only ever reads from the tracker.
package requirements

import (
	"context"
)

// Requirement is a record as the upstream tracker reports it.
type Requirement struct {
	ID          string   `json:"requirement_id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Status      string   `json:"status,omitempty"`
	Priority    string   `json:"priority,omitempty"`
	Category    string   `json:"category,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// SearchParams narrows a requirement search. Zero Page and PageSize mean the
// first page of DefaultPageSize records.
type SearchParams struct {
	Query    string `json:"query,omitempty"`
	Status   string `json:"status,omitempty"`
	Category string `json:"category,omitempty"`
	Page     int    `json:"page"`
	PageSize int    `json:"page_size"`
}

const (
	DefaultPageSize = 50
	MaxPageSize     = 100
)

type SearchResult struct {
	Requirements []Requirement `json:"requirements"`
	Total        int           `json:"total"`
	Page         int           `json:"page"`
	PageSize     int           `json:"page_size"`
}

// Upstream is the read-only contract of the external tracker. Get returns a
// NotFound error for unknown ids; both methods return UpstreamUnavailable
// when the tracker cannot answer.
type Upstream interface {
	Search(ctx context.Context, p SearchParams) (SearchResult, error)
	Get(ctx context.Context, id string) (*Requirement, error)
}
