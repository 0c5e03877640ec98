package handlers

import (
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/harvestd/internal/interfaces"
)

// GroupHandler serves the group registry and monitoring controls
type GroupHandler struct {
	monitoring interfaces.MonitoringService
	content    interfaces.ContentStorage
	logger     arbor.ILogger
}

func NewGroupHandler(monitoring interfaces.MonitoringService, content interfaces.ContentStorage, logger arbor.ILogger) *GroupHandler {
	return &GroupHandler{
		monitoring: monitoring,
		content:    content,
		logger:     logger,
	}
}

type registerGroupRequest struct {
	ExternalID string `json:"external_id"`
	Name       string `json:"name"`
}

type enableMonitoringRequest struct {
	IntervalMinutes int `json:"interval_minutes"`
	Priority        int `json:"priority"`
}

// ListGroupsHandler handles GET /api/groups
func (h *GroupHandler) ListGroupsHandler(w http.ResponseWriter, r *http.Request) {
	groups, err := h.monitoring.ListGroups(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list groups")
		WriteServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"groups": groups,
		"count":  len(groups),
	})
}

// RegisterGroupHandler handles POST /api/groups
func (h *GroupHandler) RegisterGroupHandler(w http.ResponseWriter, r *http.Request) {
	var req registerGroupRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.ExternalID) == "" {
		WriteError(w, http.StatusBadRequest, "external_id is required")
		return
	}

	group, err := h.monitoring.RegisterGroup(r.Context(), req.ExternalID, req.Name)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	WriteJSON(w, http.StatusCreated, group)
}

// GetGroupHandler handles GET /api/groups/{id}
func (h *GroupHandler) GetGroupHandler(w http.ResponseWriter, r *http.Request) {
	group, err := h.monitoring.GetGroup(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, group)
}

// DeleteGroupHandler handles DELETE /api/groups/{id}
func (h *GroupHandler) DeleteGroupHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.monitoring.DeleteGroup(r.Context(), id); err != nil {
		WriteServiceError(w, err)
		return
	}

	WriteSuccess(w, "Group "+id+" deleted")
}

// EnableMonitoringHandler handles POST /api/groups/{id}/monitoring
func (h *GroupHandler) EnableMonitoringHandler(w http.ResponseWriter, r *http.Request) {
	var req enableMonitoringRequest
	if r.ContentLength != 0 {
		if err := DecodeJSON(w, r, &req); err != nil {
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	group, err := h.monitoring.EnableMonitoring(r.Context(), r.PathValue("id"), req.IntervalMinutes, req.Priority)
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, group)
}

// DisableMonitoringHandler handles DELETE /api/groups/{id}/monitoring
func (h *GroupHandler) DisableMonitoringHandler(w http.ResponseWriter, r *http.Request) {
	group, err := h.monitoring.DisableMonitoring(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, group)
}

// UpdateMonitoringHandler handles PATCH /api/groups/{id}/monitoring
func (h *GroupHandler) UpdateMonitoringHandler(w http.ResponseWriter, r *http.Request) {
	var settings interfaces.MonitoringSettings
	if err := DecodeJSON(w, r, &settings); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	group, err := h.monitoring.UpdateMonitoringSettings(r.Context(), r.PathValue("id"), settings)
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, group)
}

// RunGroupHandler handles POST /api/groups/{id}/run
func (h *GroupHandler) RunGroupHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	id := r.PathValue("id")
	if err := h.monitoring.RunGroupNow(r.Context(), id); err != nil {
		WriteServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusAccepted, map[string]string{
		"status":   "queued",
		"group_id": id,
	})
}

// ListPostsHandler handles GET /api/groups/{id}/posts
func (h *GroupHandler) ListPostsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	groupID := r.PathValue("id")
	limit, offset := GetPaginationParams(r)

	posts, err := h.content.ListPosts(r.Context(), groupID, limit, offset)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	total, err := h.content.CountPosts(r.Context(), groupID)
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"posts":  posts,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// ListCommentsHandler handles GET /api/posts/{key}/comments
func (h *GroupHandler) ListCommentsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	postKey := r.PathValue("key")
	limit, offset := GetPaginationParams(r)

	comments, err := h.content.ListComments(r.Context(), postKey, limit, offset)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	total, err := h.content.CountComments(r.Context(), postKey)
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"comments": comments,
		"total":    total,
		"limit":    limit,
		"offset":   offset,
	})
}
