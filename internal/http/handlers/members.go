package handlers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/familyassistant/server/internal/apperr"
	"github.com/familyassistant/server/internal/household"
	"github.com/familyassistant/server/internal/middleware"
	"github.com/familyassistant/server/internal/model"
)

// MembersHandler serves the family roster. It runs behind middleware.Authenticate;
// listing works without a family, every write needs one.
type MembersHandler struct {
	members *household.MemberService
	log     zerolog.Logger
}

// NewMembersHandler creates a new members handler
func NewMembersHandler(members *household.MemberService, log zerolog.Logger) *MembersHandler {
	return &MembersHandler{members: members, log: log.With().Str("component", "members_handler").Logger()}
}

// memberEnvelope holds the dispatch fields of a POST /members body
type memberEnvelope struct {
	Action   string `json:"action"`
	MemberID string `json:"member_id"`
	ID       string `json:"id"`
}

func (e memberEnvelope) targetID() (uuid.UUID, error) {
	raw := e.MemberID
	if raw == "" {
		raw = e.ID
	}
	return parseID(raw, "member id")
}

// HandleList handles GET /members
func (h *MembersHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	scope, ok := middleware.GetScope(r.Context())
	if !ok {
		respondJSON(w, h.log, http.StatusOK, map[string]any{"members": []memberResponse{}})
		return
	}
	members, err := h.members.List(r.Context(), scope.FamilyID)
	if err != nil {
		respondWithAppError(w, err)
		return
	}
	out := make([]memberResponse, 0, len(members))
	for _, m := range members {
		out = append(out, newMemberResponse(m))
	}
	respondJSON(w, h.log, http.StatusOK, map[string]any{"members": out})
}

// HandlePost handles POST /members with action add (default), update or delete
func (h *MembersHandler) HandlePost(w http.ResponseWriter, r *http.Request) {
	scope, ok := requireScope(w, r)
	if !ok {
		return
	}
	body, err := readBody(r)
	if err != nil {
		respondWithAppError(w, err)
		return
	}
	var env memberEnvelope
	var patch model.MemberPatch
	if err := decodeInto(body, &env, &patch); err != nil {
		respondWithAppError(w, err)
		return
	}

	switch strings.TrimSpace(env.Action) {
	case "", "add":
		m, err := h.members.Add(r.Context(), scope, patch)
		if err != nil {
			respondWithAppError(w, err)
			return
		}
		respondJSON(w, h.log, http.StatusCreated, map[string]any{"success": true, "member": newMemberResponse(m)})
	case "update":
		id, err := env.targetID()
		if err != nil {
			respondWithAppError(w, err)
			return
		}
		h.update(w, r, scope, id, patch)
	case "delete":
		id, err := env.targetID()
		if err != nil {
			respondWithAppError(w, err)
			return
		}
		h.remove(w, r, scope, id)
	default:
		respondWithError(w, http.StatusBadRequest, "unknown action")
	}
}

// HandlePut handles PUT /members with the member id in the body
func (h *MembersHandler) HandlePut(w http.ResponseWriter, r *http.Request) {
	scope, ok := requireScope(w, r)
	if !ok {
		return
	}
	body, err := readBody(r)
	if err != nil {
		respondWithAppError(w, err)
		return
	}
	var env memberEnvelope
	var patch model.MemberPatch
	if err := decodeInto(body, &env, &patch); err != nil {
		respondWithAppError(w, err)
		return
	}
	id, err := env.targetID()
	if err != nil {
		respondWithAppError(w, err)
		return
	}
	h.update(w, r, scope, id, patch)
}

// HandleDelete handles DELETE /members?id=
func (h *MembersHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	scope, ok := requireScope(w, r)
	if !ok {
		return
	}
	id, err := parseID(r.URL.Query().Get("id"), "member id")
	if err != nil {
		respondWithAppError(w, err)
		return
	}
	h.remove(w, r, scope, id)
}

func (h *MembersHandler) update(w http.ResponseWriter, r *http.Request, scope model.FamilyScope, id uuid.UUID, patch model.MemberPatch) {
	m, err := h.members.Update(r.Context(), scope, id, patch)
	if err != nil {
		respondWithAppError(w, err)
		return
	}
	respondJSON(w, h.log, http.StatusOK, map[string]any{"success": true, "member": newMemberResponse(m)})
}

func (h *MembersHandler) remove(w http.ResponseWriter, r *http.Request, scope model.FamilyScope, id uuid.UUID) {
	if err := h.members.Remove(r.Context(), scope, id); err != nil {
		respondWithAppError(w, err)
		return
	}
	respondJSON(w, h.log, http.StatusOK, map[string]bool{"success": true})
}

// requireScope writes 403 when the caller has no household
func requireScope(w http.ResponseWriter, r *http.Request) (model.FamilyScope, bool) {
	scope, ok := middleware.GetScope(r.Context())
	if !ok {
		respondWithError(w, http.StatusForbidden, "user is not a member of a family")
	}
	return scope, ok
}

func parseID(raw, field string) (uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return uuid.Nil, apperr.Validation("%s is required", field)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperr.Validation("%s is not a valid id", field)
	}
	return id, nil
}
