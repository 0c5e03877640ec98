package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket route
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// Prometheus metrics
	mux.Handle("/metrics", s.app.Metrics.Handler())

	// API routes - Groups
	mux.HandleFunc("/api/groups", s.handleGroupsRoute)                                  // GET (list), POST (register)
	mux.HandleFunc("/api/groups/{id}", s.handleGroupRoute)                              // GET, DELETE
	mux.HandleFunc("/api/groups/{id}/monitoring", s.handleMonitoringRoute)              // POST enable, DELETE disable, PATCH update
	mux.HandleFunc("/api/groups/{id}/run", s.app.GroupHandler.RunGroupHandler)          // POST - run now
	mux.HandleFunc("/api/groups/{id}/posts", s.app.GroupHandler.ListPostsHandler)       // GET - harvested posts
	mux.HandleFunc("/api/posts/{key}/comments", s.app.GroupHandler.ListCommentsHandler) // GET - harvested comments

	// API routes - Monitoring engine
	mux.HandleFunc("/api/monitoring/run-cycle", s.app.MonitoringHandler.RunCycleHandler)
	mux.HandleFunc("/api/monitoring/stats", s.app.MonitoringHandler.StatsHandler)

	// API routes - System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}

// handleGroupsRoute routes /api/groups requests (list and register)
func (s *Server) handleGroupsRoute(w http.ResponseWriter, r *http.Request) {
	RouteResourceCollection(w, r,
		s.app.GroupHandler.ListGroupsHandler,
		s.app.GroupHandler.RegisterGroupHandler,
	)
}

// handleGroupRoute routes /api/groups/{id} requests
func (s *Server) handleGroupRoute(w http.ResponseWriter, r *http.Request) {
	RouteResourceItem(w, r,
		s.app.GroupHandler.GetGroupHandler,
		s.app.GroupHandler.DeleteGroupHandler,
	)
}

// handleMonitoringRoute routes /api/groups/{id}/monitoring requests
func (s *Server) handleMonitoringRoute(w http.ResponseWriter, r *http.Request) {
	RouteByMethod(w, r, MethodRouter{
		"POST":   s.app.GroupHandler.EnableMonitoringHandler,
		"DELETE": s.app.GroupHandler.DisableMonitoringHandler,
		"PATCH":  s.app.GroupHandler.UpdateMonitoringHandler,
	})
}
