package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ldi/metis/internal/errors"
	"github.com/ldi/metis/internal/events"
	"github.com/ldi/metis/internal/graph"
	"github.com/ldi/metis/internal/requirements"
	"github.com/ldi/metis/internal/service"
	"github.com/ldi/metis/pkg/models"
)

type stubUpstream struct {
	reqs map[string]requirements.Requirement
	down bool
}

func (u *stubUpstream) Search(_ context.Context, p requirements.SearchParams) (requirements.SearchResult, error) {
	if u.down {
		return requirements.SearchResult{}, errors.Upstream("telos unreachable", nil)
	}
	var out []requirements.Requirement
	for _, r := range u.reqs {
		out = append(out, r)
	}
	return requirements.SearchResult{Requirements: out, Total: len(out)}, nil
}

func (u *stubUpstream) Get(_ context.Context, id string) (*requirements.Requirement, error) {
	if u.down {
		return nil, errors.Upstream("telos unreachable", nil)
	}
	r, ok := u.reqs[id]
	if !ok {
		return nil, errors.NotFound("requirement", id)
	}
	return &r, nil
}

type testEnv struct {
	srv      *Server
	handler  http.Handler
	hub      *events.Hub
	upstream *stubUpstream
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	hub := events.NewHub()
	t.Cleanup(hub.Close)
	svc := service.New(graph.New(), hub)
	up := &stubUpstream{reqs: map[string]requirements.Requirement{
		"REQ-1": {ID: "REQ-1", Title: "Export reports as CSV", Description: "All columns", Priority: "low"},
	}}
	srv := NewServer(svc, requirements.NewGateway(up, svc, nil), hub, opts...)
	return &testEnv{srv: srv, handler: srv.Handler(), hub: hub, upstream: up}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (e *testEnv) createTask(t *testing.T, in map[string]any) *models.Task {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/v1/tasks", in)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[TaskResponse](t, rec).Task
}

func TestRootAndHealth(t *testing.T) {
	env := newTestEnv(t, WithPort(8011))

	rec := env.do(t, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	root := decode[map[string]any](t, rec)
	assert.Equal(t, "Metis", root["name"])
	assert.Equal(t, "running", root["status"])

	rec = env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	health := decode[map[string]any](t, rec)
	assert.Equal(t, "healthy", health["status"])
	assert.EqualValues(t, 8011, health["port"])
}

func TestTaskCRUD(t *testing.T) {
	env := newTestEnv(t)

	task := env.createTask(t, map[string]any{
		"title":    "Write migration",
		"priority": "high",
		"tags":     []string{"DB"},
	})
	assert.NotEmpty(t, task.ID)
	assert.Equal(t, models.PriorityHigh, task.Priority)
	assert.Equal(t, models.TaskStatusPending, task.Status)
	assert.Equal(t, []string{"db"}, task.Tags)

	rec := env.do(t, http.MethodGet, "/api/v1/tasks/"+task.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Write migration", decode[TaskResponse](t, rec).Task.Title)

	rec = env.do(t, http.MethodPut, "/api/v1/tasks/"+task.ID, map[string]any{"status": "in_progress"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.TaskStatusInProgress, decode[TaskResponse](t, rec).Task.Status)

	rec = env.do(t, http.MethodDelete, "/api/v1/tasks/"+task.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[MessageResponse](t, rec).Success)

	rec = env.do(t, http.MethodGet, "/api/v1/tasks/"+task.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	errResp := decode[ErrorResponse](t, rec)
	assert.False(t, errResp.Success)
	assert.Equal(t, http.StatusNotFound, errResp.StatusCode)
}

func TestTaskValidationErrors(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body any
	}{
		{"missing title", map[string]any{"description": "no title"}},
		{"bad status", map[string]any{"title": "x", "status": "done"}},
		{"bad date", map[string]any{"title": "x", "due_date": "next week"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/v1/tasks", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks", bytes.NewBufferString("{broken"))
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListTasks(t *testing.T) {
	env := newTestEnv(t)
	env.createTask(t, map[string]any{"title": "Alpha", "assignee": "ann"})
	env.createTask(t, map[string]any{"title": "Beta", "priority": "urgent"})
	env.createTask(t, map[string]any{"title": "Gamma", "assignee": "ann"})

	rec := env.do(t, http.MethodGet, "/api/v1/tasks?assignee=ann", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[TaskListResponse](t, rec)
	assert.Equal(t, 2, list.Total)
	assert.Equal(t, 50, list.PageSize)

	rec = env.do(t, http.MethodGet, "/api/v1/tasks?page=2&page_size=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list = decode[TaskListResponse](t, rec)
	require.Len(t, list.Tasks, 1)
	assert.Equal(t, "Gamma", list.Tasks[0].Title)
	assert.Equal(t, 2, list.TotalPages)

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/v1/tasks?page_size=101", nil).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/v1/tasks?page=abc", nil).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/v1/tasks?priority=p0", nil).Code)
}

func TestSubtaskAndRequirementRoutes(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t, map[string]any{"title": "Parent"})
	base := "/api/v1/tasks/" + task.ID

	rec := env.do(t, http.MethodPost, base+"/subtasks", map[string]any{"title": "child"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	sub := decode[SubtaskResponse](t, rec).Subtask

	rec = env.do(t, http.MethodPut, base+"/subtasks/"+sub.ID, map[string]any{"completed": true})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[SubtaskResponse](t, rec).Subtask.Completed)

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodDelete, base+"/subtasks/"+sub.ID, nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodDelete, base+"/subtasks/"+sub.ID, nil).Code)

	rec = env.do(t, http.MethodPost, base+"/requirements", map[string]any{"requirement_id": "REQ-9"})
	require.Equal(t, http.StatusCreated, rec.Code)
	ref := decode[RequirementRefResponse](t, rec).RequirementRef
	assert.Equal(t, models.RelationshipImplements, ref.RelationshipType)

	rec = env.do(t, http.MethodPut, base+"/requirements/"+ref.ID, map[string]any{"relationship_type": "documents"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.RelationshipDocuments, decode[RequirementRefResponse](t, rec).RequirementRef.RelationshipType)

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodDelete, base+"/requirements/"+ref.ID, nil).Code)
}

func TestDependencyRoutes(t *testing.T) {
	env := newTestEnv(t)
	a := env.createTask(t, map[string]any{"title": "A"})
	b := env.createTask(t, map[string]any{"title": "B"})

	rec := env.do(t, http.MethodPost, "/api/v1/dependencies", map[string]any{
		"source_task_id":  a.ID,
		"target_task_id":  b.ID,
		"dependency_type": "depends_on",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	dep := decode[DependencyResponse](t, rec).Dependency

	rec = env.do(t, http.MethodPost, "/api/v1/dependencies", map[string]any{
		"source_task_id": b.ID,
		"target_task_id": a.ID,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, decode[ErrorResponse](t, rec).Message, "cycle")

	rec = env.do(t, http.MethodPost, "/api/v1/dependencies", map[string]any{
		"source_task_id": a.ID,
		"target_task_id": b.ID,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/dependencies", map[string]any{
		"source_task_id": a.ID,
		"target_task_id": a.ID,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPut, "/api/v1/dependencies/"+dep.ID, map[string]any{"dependency_type": "related_to"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.DependencyRelatedTo, decode[DependencyResponse](t, rec).Dependency.Type)

	rec = env.do(t, http.MethodGet, "/api/v1/tasks/"+b.ID+"/dependencies", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[DependencyListResponse](t, rec).Total)

	rec = env.do(t, http.MethodGet, "/api/v1/dependencies?dependency_type=depends_on", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, decode[DependencyListResponse](t, rec).Total)

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodDelete, "/api/v1/tasks/"+a.ID, nil).Code)

	rec = env.do(t, http.MethodGet, "/api/v1/dependencies", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[DependencyListResponse](t, rec)
	assert.Equal(t, 0, list.Total)
	assert.NotNil(t, list.Dependencies)

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/v1/dependencies/"+dep.ID, nil).Code)
}

func TestComplexityStatisticsAndGraph(t *testing.T) {
	env := newTestEnv(t)
	a := env.createTask(t, map[string]any{"title": "A", "priority": "urgent"})
	b := env.createTask(t, map[string]any{"title": "B"})
	rec := env.do(t, http.MethodPost, "/api/v1/dependencies", map[string]any{
		"source_task_id": b.ID,
		"target_task_id": a.ID,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/tasks/"+a.ID+"/complexity", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	score := decode[ComplexityResponse](t, rec).Complexity
	assert.Equal(t, 1, score.DependenciesCount)

	rec = env.do(t, http.MethodPost, "/api/v1/tasks/"+a.ID+"/complexity", map[string]any{
		"factors": map[string]any{"technical_difficulty": 11},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	env.do(t, http.MethodPut, "/api/v1/tasks/"+a.ID, map[string]any{"status": "completed"})
	rec = env.do(t, http.MethodGet, "/api/v1/statistics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	st := decode[StatisticsResponse](t, rec).Statistics
	assert.Equal(t, 2, st.Total)
	assert.Equal(t, 50.0, st.CompletionRate)

	rec = env.do(t, http.MethodGet, "/api/v1/graph", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	g := decode[GraphResponse](t, rec)
	require.Len(t, g.Nodes, 2)
	assert.Equal(t, b.ID, g.Nodes[0].ID)
	assert.Len(t, g.Edges, 1)
}

func TestTelosRoutes(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/telos/requirements?query=csv", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	search := decode[RequirementSearchResponse](t, rec)
	assert.Equal(t, 1, search.Total)
	assert.Equal(t, 1, search.Page)

	rec = env.do(t, http.MethodPost, "/api/v1/telos/requirements/REQ-1/import", map[string]any{"assignee": "lee"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	task := decode[TaskResponse](t, rec).Task
	assert.Equal(t, "Export reports as CSV", task.Title)
	assert.Equal(t, models.PriorityLow, task.Priority)
	require.Len(t, task.RequirementRefs, 1)

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodPost, "/api/v1/telos/requirements/REQ-404/import", nil).Code)

	other := env.createTask(t, map[string]any{"title": "Test CSV export"})
	rec = env.do(t, http.MethodPost, "/api/v1/tasks/"+other.ID+"/telos/requirements/REQ-1", map[string]any{"relationship_type": "tests"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	refResp := decode[RequirementRefResponse](t, rec)
	assert.Equal(t, models.RelationshipTests, refResp.RequirementRef.RelationshipType)
	require.NotNil(t, refResp.Task)
	assert.Len(t, refResp.Task.RequirementRefs, 1)

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodPost, "/api/v1/tasks/nope/telos/requirements/REQ-1", nil).Code)

	env.upstream.down = true
	assert.Equal(t, http.StatusBadGateway, env.do(t, http.MethodGet, "/api/v1/telos/requirements", nil).Code)
}

func TestTelosRoutesWithoutGateway(t *testing.T) {
	hub := events.NewHub()
	defer hub.Close()
	srv := NewServer(service.New(graph.New(), hub), nil, hub)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/telos/requirements", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t, WithAllowedOrigins("http://localhost:3000"))

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/tasks", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/api/v1/tasks", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCustomPrefix(t *testing.T) {
	env := newTestEnv(t, WithAPIPrefix("/api/v2"))
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/v2/tasks", nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/v1/tasks", nil).Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{errors.NotFound("task", "x"), http.StatusNotFound},
		{errors.InvalidArgumentf("bad"), http.StatusBadRequest},
		{errors.SelfDependency("x"), http.StatusBadRequest},
		{errors.Cyclic([]string{"a", "b", "a"}), http.StatusConflict},
		{errors.DuplicateDependency("d", "a", "b", "depends_on"), http.StatusConflict},
		{errors.Upstream("down", nil), http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
