package handlers

import (
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/familyassistant/server/internal/apperr"
	"github.com/familyassistant/server/internal/household"
	"github.com/familyassistant/server/internal/model"
)

// TasksHandler serves family tasks. It runs behind middleware.Authorize, so a scope is always present.
type TasksHandler struct {
	tasks *household.TaskService
	log   zerolog.Logger
}

// NewTasksHandler creates a new tasks handler
func NewTasksHandler(tasks *household.TaskService, log zerolog.Logger) *TasksHandler {
	return &TasksHandler{tasks: tasks, log: log.With().Str("component", "tasks_handler").Logger()}
}

// HandleList handles GET /tasks?completed=
func (h *TasksHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	scope, ok := requireScope(w, r)
	if !ok {
		return
	}
	var completed *bool
	if raw := r.URL.Query().Get("completed"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			respondWithAppError(w, apperr.Validation("completed must be true or false"))
			return
		}
		completed = &v
	}

	tasks, err := h.tasks.List(r.Context(), scope, completed)
	if err != nil {
		respondWithAppError(w, err)
		return
	}
	out := make([]taskResponse, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, newTaskResponse(t))
	}
	respondJSON(w, h.log, http.StatusOK, map[string]any{"tasks": out})
}

// HandleCreate handles POST /tasks
func (h *TasksHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	scope, ok := requireScope(w, r)
	if !ok {
		return
	}
	var in model.TaskPatch
	if err := decodeJSON(r, &in); err != nil {
		respondWithAppError(w, err)
		return
	}
	t, err := h.tasks.Create(r.Context(), scope, in)
	if err != nil {
		respondWithAppError(w, err)
		return
	}
	respondJSON(w, h.log, http.StatusCreated, map[string]any{"task": newTaskResponse(t)})
}

// HandleUpdate handles PUT /tasks with the task id in the body
func (h *TasksHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	scope, ok := requireScope(w, r)
	if !ok {
		return
	}
	var target struct {
		ID string `json:"id"`
	}
	var patch model.TaskPatch
	if err := decodeJSON(r, &target, &patch); err != nil {
		respondWithAppError(w, err)
		return
	}
	id, err := parseID(target.ID, "task id")
	if err != nil {
		respondWithAppError(w, err)
		return
	}
	t, err := h.tasks.Update(r.Context(), scope, id, patch)
	if err != nil {
		respondWithAppError(w, err)
		return
	}
	respondJSON(w, h.log, http.StatusOK, map[string]any{"task": newTaskResponse(t)})
}

// HandleComplete handles DELETE /tasks?id=. Tasks are completed, never removed.
func (h *TasksHandler) HandleComplete(w http.ResponseWriter, r *http.Request) {
	scope, ok := requireScope(w, r)
	if !ok {
		return
	}
	id, err := parseID(r.URL.Query().Get("id"), "task id")
	if err != nil {
		respondWithAppError(w, err)
		return
	}
	t, err := h.tasks.Complete(r.Context(), scope, id)
	if err != nil {
		respondWithAppError(w, err)
		return
	}
	respondJSON(w, h.log, http.StatusOK, map[string]any{"success": true, "task": newTaskResponse(t)})
}
