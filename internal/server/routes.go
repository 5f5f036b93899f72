package server

import "net/http"

func (s *Server) registerRoutes() *http.ServeMux {
	mux := http.NewServeMux()
	p := s.prefix

	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET "+s.wsPath, s.handleWebSocket)

	mux.HandleFunc("POST "+p+"/tasks", s.handleCreateTask)
	mux.HandleFunc("GET "+p+"/tasks", s.handleListTasks)
	mux.HandleFunc("GET "+p+"/tasks/{id}", s.handleGetTask)
	mux.HandleFunc("PUT "+p+"/tasks/{id}", s.handleUpdateTask)
	mux.HandleFunc("DELETE "+p+"/tasks/{id}", s.handleDeleteTask)

	mux.HandleFunc("POST "+p+"/tasks/{id}/subtasks", s.handleAddSubtask)
	mux.HandleFunc("PUT "+p+"/tasks/{id}/subtasks/{sid}", s.handleUpdateSubtask)
	mux.HandleFunc("DELETE "+p+"/tasks/{id}/subtasks/{sid}", s.handleRemoveSubtask)

	mux.HandleFunc("POST "+p+"/tasks/{id}/requirements", s.handleAddRequirementRef)
	mux.HandleFunc("PUT "+p+"/tasks/{id}/requirements/{rid}", s.handleUpdateRequirementRef)
	mux.HandleFunc("DELETE "+p+"/tasks/{id}/requirements/{rid}", s.handleRemoveRequirementRef)

	mux.HandleFunc("POST "+p+"/tasks/{id}/complexity", s.handleAnalyzeComplexity)
	mux.HandleFunc("GET "+p+"/statistics", s.handleStatistics)
	mux.HandleFunc("GET "+p+"/graph", s.handleGraph)

	mux.HandleFunc("POST "+p+"/dependencies", s.handleCreateDependency)
	mux.HandleFunc("GET "+p+"/dependencies", s.handleListDependencies)
	mux.HandleFunc("GET "+p+"/dependencies/{id}", s.handleGetDependency)
	mux.HandleFunc("PUT "+p+"/dependencies/{id}", s.handleUpdateDependency)
	mux.HandleFunc("DELETE "+p+"/dependencies/{id}", s.handleDeleteDependency)
	mux.HandleFunc("GET "+p+"/tasks/{id}/dependencies", s.handleTaskDependencies)

	mux.HandleFunc("GET "+p+"/telos/requirements", s.handleSearchRequirements)
	mux.HandleFunc("POST "+p+"/telos/requirements/{rid}/import", s.handleImportRequirement)
	mux.HandleFunc("POST "+p+"/tasks/{id}/telos/requirements/{rid}", s.handleAddTelosReference)

	return mux
}
