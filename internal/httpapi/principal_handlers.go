package httpapi

import (
	"net/http"

	"crewdock.org/internal/audit"
	"crewdock.org/internal/auth"
)

func (a *API) handleCreateTenant(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name   string `json:"name"`
		Domain string `json:"domain"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeAuthError(w, err)
		return
	}
	t, err := a.dir.CreateTenant(r.Context(), req.Name, req.Domain)
	if err != nil {
		writeAuthError(w, err)
		return
	}
	audit.LogEvent(r.Context(), "tenant_created", map[string]any{
		"tenant_id": t.ID,
		"domain":    t.Domain,
	})
	writeJSON(w, http.StatusCreated, t)
}

func (a *API) handleGetTenant(w http.ResponseWriter, r *http.Request) {
	subject, _ := principalFrom(r)
	t, err := a.dir.GetTenant(r.Context(), subject)
	if err != nil {
		writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (a *API) handleCreatePrincipal(w http.ResponseWriter, r *http.Request) {
	subject, _ := principalFrom(r)
	var req struct {
		Email  string  `json:"email"`
		Role   string  `json:"role"`
		TeamID *string `json:"team_id"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeAuthError(w, err)
		return
	}
	p, err := a.dir.CreatePrincipal(r.Context(), subject, req.Email, auth.Role(req.Role), req.TeamID)
	if err != nil {
		writeAuthError(w, err)
		return
	}
	audit.LogEvent(r.Context(), "principal_created", map[string]any{
		"principal_id": p.ID,
		"role":         string(p.Role),
	})
	writeJSON(w, http.StatusCreated, p)
}

func (a *API) handleGetPrincipal(w http.ResponseWriter, r *http.Request) {
	subject, _ := principalFrom(r)
	p, err := a.dir.GetPrincipal(r.Context(), subject, r.PathValue("id"))
	if err != nil {
		writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *API) handleListPrincipals(w http.ResponseWriter, r *http.Request) {
	subject, _ := principalFrom(r)
	list, err := a.dir.ListPrincipals(r.Context(), subject)
	if err != nil {
		writeAuthError(w, err)
		return
	}
	if list == nil {
		list = []auth.Principal{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"principals": list})
}

func (a *API) handleUpdatePrincipal(w http.ResponseWriter, r *http.Request) {
	subject, _ := principalFrom(r)
	var req struct {
		Email       *string `json:"email"`
		Role        *string `json:"role"`
		TeamID      *string `json:"team_id"`
		ClearTeamID bool    `json:"clear_team_id"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeAuthError(w, err)
		return
	}
	upd := auth.PrincipalUpdate{
		Email:       req.Email,
		TeamID:      req.TeamID,
		ClearTeamID: req.ClearTeamID,
	}
	if req.Role != nil {
		role := auth.Role(*req.Role)
		upd.Role = &role
	}
	p, err := a.dir.UpdatePrincipal(r.Context(), subject, r.PathValue("id"), upd)
	if err != nil {
		writeAuthError(w, err)
		return
	}
	audit.LogEvent(r.Context(), "principal_updated", map[string]any{"principal_id": p.ID})
	writeJSON(w, http.StatusOK, p)
}

func (a *API) handleDeletePrincipal(w http.ResponseWriter, r *http.Request) {
	subject, _ := principalFrom(r)
	id := r.PathValue("id")
	if err := a.dir.DeletePrincipal(r.Context(), subject, id); err != nil {
		writeAuthError(w, err)
		return
	}
	audit.LogEvent(r.Context(), "principal_deleted", map[string]any{"principal_id": id})
	w.WriteHeader(http.StatusNoContent)
}
