package requirements

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ldi/metis/internal/errors"
)

func newTelosServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/requirements", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("query") != "login" || q.Get("page") != "2" || q.Get("page_size") != "10" {
			http.Error(w, "unexpected query "+r.URL.RawQuery, http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"requirements": []Requirement{{ID: "REQ-9", Title: "Login throttling"}},
			"total":        11,
		})
	})
	mux.HandleFunc("GET /api/v1/requirements/{id}", func(w http.ResponseWriter, r *http.Request) {
		switch r.PathValue("id") {
		case "REQ-9":
			json.NewEncoder(w).Encode(Requirement{ID: "REQ-9", Title: "Login throttling", Priority: "high"})
		case "boom":
			http.Error(w, "database is locked", http.StatusServiceUnavailable)
		case "garbled":
			w.Write([]byte("{not json"))
		default:
			http.NotFound(w, r)
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestTelosClientSearch(t *testing.T) {
	srv := newTelosServer(t)
	c, err := NewTelosClient(srv.URL+"/", time.Second)
	if err != nil {
		t.Fatalf("NewTelosClient failed: %v", err)
	}

	res, err := c.Search(context.Background(), SearchParams{Query: "login", Page: 2, PageSize: 10})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if res.Total != 11 || len(res.Requirements) != 1 || res.Requirements[0].ID != "REQ-9" {
		t.Errorf("Unexpected result %+v", res)
	}

	if _, err := c.Search(context.Background(), SearchParams{Query: "other"}); !errors.Is(err, errors.ErrInvalidArgument) {
		t.Errorf("Expected InvalidArgument for 400, got %v", err)
	}
}

func TestTelosClientGet(t *testing.T) {
	srv := newTelosServer(t)
	c, _ := NewTelosClient(srv.URL, time.Second)
	ctx := context.Background()

	req, err := c.Get(ctx, "REQ-9")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if req.Title != "Login throttling" || req.Priority != "high" {
		t.Errorf("Unexpected requirement %+v", req)
	}

	tests := []struct {
		id   string
		want error
	}{
		{"REQ-404", errors.ErrNotFound},
		{"boom", errors.ErrUpstreamUnavailable},
		{"garbled", errors.ErrUpstreamUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			if _, err := c.Get(ctx, tt.id); !errors.Is(err, tt.want) {
				t.Errorf("Get(%s) = %v, want %v", tt.id, err, tt.want)
			}
		})
	}
}

func TestTelosClientUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, _ := NewTelosClient(url, 200*time.Millisecond)
	if _, err := c.Get(context.Background(), "REQ-1"); !errors.Is(err, errors.ErrUpstreamUnavailable) {
		t.Errorf("Expected UpstreamUnavailable, got %v", err)
	}
}

func TestNewTelosClientRequiresURL(t *testing.T) {
	if _, err := NewTelosClient("", 0); err == nil {
		t.Error("Expected error for empty URL")
	}
}
