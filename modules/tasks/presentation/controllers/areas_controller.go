package controllers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/iota-uz/taskflow/modules/tasks/domain/entities/area"
	"github.com/iota-uz/taskflow/modules/tasks/services"
	"github.com/iota-uz/taskflow/pkg/constants"
)

type AreasController struct {
	basePath   string
	membership *services.AreaMembershipService
}

func NewAreasController(membership *services.AreaMembershipService) *AreasController {
	return &AreasController{
		basePath:   "/areas",
		membership: membership,
	}
}

func (c *AreasController) Key() string {
	return c.basePath
}

func (c *AreasController) Register(r *mux.Router) {
	router := r.PathPrefix(c.basePath).Subrouter()
	router.HandleFunc("/{uid}/members", c.listMembers).Methods(http.MethodGet)
	router.HandleFunc("/{uid}/members", c.addMember).Methods(http.MethodPost)
	router.HandleFunc("/{uid}/members/{userUID}", c.updateRole).Methods(http.MethodPut)
	router.HandleFunc("/{uid}/members/{userUID}", c.removeMember).Methods(http.MethodDelete)
}

type memberRequest struct {
	ActorUID  string `json:"actor_uid" validate:"required,uuid"`
	TargetUID string `json:"target_uid,omitempty" validate:"omitempty,uuid"`
	Role      string `json:"role,omitempty" validate:"omitempty,oneof=member admin"`
}

func (c *AreasController) listMembers(w http.ResponseWriter, r *http.Request) {
	areaUID, err := uuid.Parse(mux.Vars(r)["uid"])
	if err != nil {
		http.Error(w, "invalid area uid", http.StatusBadRequest)
		return
	}
	actorUID, err := uuid.Parse(r.URL.Query().Get("actor_uid"))
	if err != nil {
		http.Error(w, "invalid actor_uid", http.StatusBadRequest)
		return
	}

	members, err := c.membership.GetMembers(r.Context(), areaUID, actorUID)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]map[string]string, 0, len(members))
	for _, m := range members {
		out = append(out, map[string]string{
			"user_uid":   m.UserUID.String(),
			"role":       string(m.Role),
			"added_by":   m.AddedBy.String(),
			"created_at": m.CreatedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"members": out})
}

func (c *AreasController) addMember(w http.ResponseWriter, r *http.Request) {
	areaUID, err := uuid.Parse(mux.Vars(r)["uid"])
	if err != nil {
		http.Error(w, "invalid area uid", http.StatusBadRequest)
		return
	}
	var req memberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := constants.Validate.Struct(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	cmd, err := buildMemberCommand(areaUID, req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := c.membership.AddMember(r.Context(), cmd); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (c *AreasController) updateRole(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	areaUID, err := uuid.Parse(vars["uid"])
	if err != nil {
		http.Error(w, "invalid area uid", http.StatusBadRequest)
		return
	}
	targetUID, err := uuid.Parse(vars["userUID"])
	if err != nil {
		http.Error(w, "invalid user uid", http.StatusBadRequest)
		return
	}
	var req memberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := constants.Validate.Struct(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	actorUID, err := uuid.Parse(req.ActorUID)
	if err != nil {
		http.Error(w, "invalid actor_uid", http.StatusBadRequest)
		return
	}
	role, err := area.ParseRole(req.Role)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := c.membership.UpdateRole(r.Context(), areaUID, targetUID, actorUID, role); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *AreasController) removeMember(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	areaUID, err := uuid.Parse(vars["uid"])
	if err != nil {
		http.Error(w, "invalid area uid", http.StatusBadRequest)
		return
	}
	targetUID, err := uuid.Parse(vars["userUID"])
	if err != nil {
		http.Error(w, "invalid user uid", http.StatusBadRequest)
		return
	}
	actorUID, err := uuid.Parse(r.URL.Query().Get("actor_uid"))
	if err != nil {
		http.Error(w, "invalid actor_uid", http.StatusBadRequest)
		return
	}

	if err := c.membership.RemoveMember(r.Context(), areaUID, targetUID, actorUID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func buildMemberCommand(areaUID uuid.UUID, req memberRequest) (services.AddMemberCommand, error) {
	cmd := services.AddMemberCommand{AreaUID: areaUID, Role: area.RoleMember}
	actorUID, err := uuid.Parse(req.ActorUID)
	if err != nil {
		return cmd, err
	}
	targetUID, err := uuid.Parse(req.TargetUID)
	if err != nil {
		return cmd, err
	}
	cmd.ActorUID = actorUID
	cmd.TargetUID = targetUID
	if req.Role != "" {
		if cmd.Role, err = area.ParseRole(req.Role); err != nil {
			return cmd, err
		}
	}
	return cmd, nil
}
