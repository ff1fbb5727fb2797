package controllers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/iota-uz/taskflow/modules/tasks/domain/entities/access"
	"github.com/iota-uz/taskflow/modules/tasks/domain/entities/action"
	"github.com/iota-uz/taskflow/modules/tasks/domain/entities/resource"
	"github.com/iota-uz/taskflow/modules/tasks/services"
	"github.com/iota-uz/taskflow/pkg/constants"
	"github.com/iota-uz/taskflow/pkg/serrors"
)

// PermissionsController is the engine's HTTP surface: access checks, action
// execution and the audit trail. The task manager's own routes (creating
// projects, tasks, notes) live in the host application, not here.
type PermissionsController struct {
	basePath   string
	resolver   *services.AccessResolver
	visibility *services.VisibilityService
	executor   *services.ActionExecutor
	actions    action.Repository
}

func NewPermissionsController(
	resolver *services.AccessResolver,
	visibility *services.VisibilityService,
	executor *services.ActionExecutor,
	actions action.Repository,
) *PermissionsController {
	return &PermissionsController{
		basePath:   "/permissions",
		resolver:   resolver,
		visibility: visibility,
		executor:   executor,
		actions:    actions,
	}
}

func (c *PermissionsController) Key() string {
	return c.basePath
}

func (c *PermissionsController) Register(r *mux.Router) {
	router := r.PathPrefix(c.basePath).Subrouter()
	router.HandleFunc("/access/{type}/{uid}", c.resolveAccess).Methods(http.MethodGet)
	router.HandleFunc("/filters/{type}", c.buildFilter).Methods(http.MethodGet)
	router.HandleFunc("/actions", c.executeAction).Methods(http.MethodPost)
	router.HandleFunc("/actions", c.listActions).Methods(http.MethodGet)
}

func (c *PermissionsController) resolveAccess(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	resourceType, err := resource.ParseType(vars["type"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	resourceUID, err := uuid.Parse(vars["uid"])
	if err != nil {
		http.Error(w, "invalid resource uid", http.StatusBadRequest)
		return
	}
	userID, err := strconv.ParseUint(r.URL.Query().Get("user_id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid user_id", http.StatusBadRequest)
		return
	}

	lvl, err := c.resolver.ResolveForUserID(r.Context(), uint(userID), resourceType, resourceUID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"level": lvl.String()})
}

// buildFilter serves the list-time visibility predicate so the host
// application can splice it into its own list queries. The `alias` and
// `arg_offset` query params control rendering; defaults suit a bare
// single-table SELECT.
func (c *PermissionsController) buildFilter(w http.ResponseWriter, r *http.Request) {
	resourceType, err := resource.ParseType(mux.Vars(r)["type"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	q := r.URL.Query()
	userID, err := strconv.ParseUint(q.Get("user_id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid user_id", http.StatusBadRequest)
		return
	}
	alias := q.Get("alias")
	if alias == "" {
		alias = "t"
	}
	argOffset := 0
	if v := q.Get("arg_offset"); v != "" {
		if argOffset, err = strconv.Atoi(v); err != nil || argOffset < 0 {
			http.Error(w, "invalid arg_offset", http.StatusBadRequest)
			return
		}
	}

	pred, err := c.visibility.BuildFilterForUserID(r.Context(), resourceType, uint(userID))
	if err != nil {
		writeError(w, err)
		return
	}
	clause, args := pred.ToSQL(alias, argOffset)
	writeJSON(w, http.StatusOK, map[string]any{
		"clause":    clause,
		"args":      args,
		"match_all": pred.MatchAll,
	})
}

type executeActionRequest struct {
	Verb         string          `json:"verb" validate:"required"`
	ActorID      uint            `json:"actor_id" validate:"required"`
	TargetID     uint            `json:"target_id" validate:"required"`
	ResourceType string          `json:"resource_type" validate:"required"`
	ResourceUID  string          `json:"resource_uid" validate:"required,uuid"`
	AccessLevel  string          `json:"access_level" validate:"omitempty,oneof=none ro rw admin"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
}

func (c *PermissionsController) executeAction(w http.ResponseWriter, r *http.Request) {
	var req executeActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := constants.Validate.Struct(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	verb, err := action.ParseVerb(req.Verb)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	resourceType, err := resource.ParseType(req.ResourceType)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	resourceUID, err := uuid.Parse(req.ResourceUID)
	if err != nil {
		http.Error(w, "invalid resource uid", http.StatusBadRequest)
		return
	}
	lvl := access.LevelNone
	if req.AccessLevel != "" {
		if lvl, err = access.ParseLevel(req.AccessLevel); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	actionID, err := c.executor.ExecuteForUserIDs(r.Context(), verb, req.ActorID, req.TargetID, resourceType, resourceUID, lvl)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"action_id": actionID.String()})
}

func (c *PermissionsController) listActions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := &action.FindParams{Limit: 50}

	if v := q.Get("actor_uid"); v != "" {
		uid, err := uuid.Parse(v)
		if err != nil {
			http.Error(w, "invalid actor_uid", http.StatusBadRequest)
			return
		}
		params.ActorUID = &uid
	}
	if v := q.Get("target_uid"); v != "" {
		uid, err := uuid.Parse(v)
		if err != nil {
			http.Error(w, "invalid target_uid", http.StatusBadRequest)
			return
		}
		params.TargetUID = &uid
	}
	if v := q.Get("verb"); v != "" {
		verb, err := action.ParseVerb(v)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		params.Verb = verb
	}
	if v := q.Get("limit"); v != "" {
		if params.Limit, _ = strconv.Atoi(v); params.Limit <= 0 || params.Limit > 500 {
			params.Limit = 50
		}
	}
	if v := q.Get("offset"); v != "" {
		params.Offset, _ = strconv.Atoi(v)
	}

	acts, err := c.actions.List(r.Context(), params)
	if err != nil {
		writeError(w, err)
		return
	}
	total, err := c.actions.Count(r.Context(), params)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]map[string]any, 0, len(acts))
	for _, act := range acts {
		entry := map[string]any{
			"id":            act.ID.String(),
			"actor_uid":     act.ActorUID.String(),
			"verb":          string(act.Verb),
			"resource_type": string(act.ResourceType),
			"resource_uid":  act.ResourceUID.String(),
			"target_uid":    act.TargetUID.String(),
			"created_at":    act.CreatedAt.Format(time.RFC3339),
		}
		if act.Level != access.LevelNone {
			entry["access_level"] = act.Level.String()
		}
		out = append(out, entry)
	}
	writeJSON(w, http.StatusOK, map[string]any{"actions": out, "total": total})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	var base *serrors.BaseError
	if errors.As(err, &base) {
		writeJSON(w, statusForCode(base.Code), map[string]string{
			"code":    base.Code,
			"message": base.Message,
		})
		return
	}
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

func statusForCode(code string) int {
	switch code {
	case "TASKS_NOT_FOUND":
		return http.StatusNotFound
	case "TASKS_FORBIDDEN", "TASKS_MEMBERS_FORBIDDEN":
		return http.StatusForbidden
	case "TASKS_CONFLICT":
		return http.StatusConflict
	case "TASKS_VALIDATION":
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
