package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"driftregistry.org/internal/authz"
)

type createOrganizationRequest struct {
	Name     string                     `json:"name"`
	Settings authz.OrganizationSettings `json:"settings"`
}

type attachRepositoryRequest struct {
	Repository string `json:"repository"`
}

type createTeamRequest struct {
	Name string `json:"name"`
}

type memberRequest struct {
	UserID string `json:"user_id"`
}

type createUserRequest struct {
	Username   string            `json:"username"`
	Attributes map[string]string `json:"attributes"`
}

type updateAttributesRequest struct {
	Attributes map[string]string `json:"attributes"`
}

type createRoleRequest struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Permissions []authz.Permission `json:"permissions"`
	Parent      string             `json:"parent"`
	Priority    int                `json:"priority"`
}

type updateRolePermissionsRequest struct {
	Permissions []authz.Permission `json:"permissions"`
}

type setRoleParentRequest struct {
	Parent string `json:"parent"`
}

type createAssignmentRequest struct {
	Subject authz.Subject `json:"subject"`
	RoleID  string        `json:"role_id"`
	Scope   authz.Scope   `json:"scope"`
}

func (a *API) handleOrganizations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		if !a.ensureAdmin(w, r) {
			return
		}
		var req createOrganizationRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		org, err := a.store.CreateOrganization(r.Context(), req.Name, req.Settings)
		if err != nil {
			handleAuthzError(w, r, err)
			return
		}
		w.Header().Set("Location", fmt.Sprintf("/v1/organizations/%s", org.ID))
		writeJSON(w, http.StatusCreated, org)
	case http.MethodGet:
		if !a.ensureAdmin(w, r) {
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"organizations": a.store.ListOrganizations(r.Context()),
		})
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodGet)
	}
}

func (a *API) handleOrganizationScoped(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/organizations/")
	path = strings.Trim(path, "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	orgID := parts[0]
	if len(parts) == 1 {
		a.handleOrganization(w, r, orgID)
		return
	}
	if len(parts) != 2 {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	switch parts[1] {
	case "settings":
		a.handleOrganizationSettings(w, r, orgID)
	case "repositories":
		a.handleOrganizationRepositories(w, r, orgID)
	case "teams":
		a.handleOrganizationTeams(w, r, orgID)
	case "users":
		a.handleOrganizationUsers(w, r, orgID)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleOrganization(w http.ResponseWriter, r *http.Request, orgID string) {
	switch r.Method {
	case http.MethodGet:
		if !a.ensureAdmin(w, r) {
			return
		}
		org, err := a.store.GetOrganization(r.Context(), orgID)
		if err != nil {
			handleAuthzError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, org)
	case http.MethodDelete:
		if !a.ensureAdmin(w, r) {
			return
		}
		if err := a.store.DeleteOrganization(r.Context(), orgID); err != nil {
			handleAuthzError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodDelete)
	}
}

func (a *API) handleOrganizationSettings(w http.ResponseWriter, r *http.Request, orgID string) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	if !a.ensureAdmin(w, r) {
		return
	}
	var req authz.OrganizationSettings
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	org, err := a.store.UpdateOrganizationSettings(r.Context(), orgID, req)
	if err != nil {
		handleAuthzError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, org)
}

func (a *API) handleOrganizationRepositories(w http.ResponseWriter, r *http.Request, orgID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.ensureAdmin(w, r) {
		return
	}
	var req attachRepositoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	org, err := a.store.AttachRepository(r.Context(), orgID, req.Repository)
	if err != nil {
		handleAuthzError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, org)
}

func (a *API) handleOrganizationTeams(w http.ResponseWriter, r *http.Request, orgID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.ensureAdmin(w, r) {
		return
	}
	var req createTeamRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	team, err := a.store.CreateTeam(r.Context(), orgID, req.Name)
	if err != nil {
		handleAuthzError(w, r, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/v1/teams/%s", team.ID))
	writeJSON(w, http.StatusCreated, team)
}

func (a *API) handleOrganizationUsers(w http.ResponseWriter, r *http.Request, orgID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.ensureAdmin(w, r) {
		return
	}
	var req memberRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.store.AddUserToOrganization(r.Context(), req.UserID, orgID); err != nil {
		handleAuthzError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleTeamScoped(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/teams/")
	path = strings.Trim(path, "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	teamID := parts[0]
	switch {
	case len(parts) == 1:
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		if !a.ensureAdmin(w, r) {
			return
		}
		team, err := a.store.GetTeam(r.Context(), teamID)
		if err != nil {
			handleAuthzError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, team)
	case len(parts) == 2 && parts[1] == "repositories":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		if !a.ensureAdmin(w, r) {
			return
		}
		var req attachRepositoryRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		team, err := a.store.AttachTeamRepository(r.Context(), teamID, req.Repository)
		if err != nil {
			handleAuthzError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, team)
	case len(parts) == 2 && parts[1] == "members":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		if !a.ensureAdmin(w, r) {
			return
		}
		var req memberRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if err := a.store.AddTeamMember(r.Context(), teamID, req.UserID); err != nil {
			handleAuthzError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case len(parts) == 3 && parts[1] == "members":
		if r.Method != http.MethodDelete {
			methodNotAllowed(w, r, http.MethodDelete)
			return
		}
		if !a.ensureAdmin(w, r) {
			return
		}
		if err := a.store.RemoveTeamMember(r.Context(), teamID, parts[2]); err != nil {
			handleAuthzError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.ensureAdmin(w, r) {
		return
	}
	var req createUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, err := a.store.CreateUser(r.Context(), req.Username, req.Attributes)
	if err != nil {
		handleAuthzError(w, r, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/v1/users/%s", user.ID))
	writeJSON(w, http.StatusCreated, user)
}

func (a *API) handleUserScoped(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/users/")
	path = strings.Trim(path, "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	userID := parts[0]
	switch {
	case len(parts) == 1:
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		if !a.ensureAdmin(w, r) {
			return
		}
		user, err := a.store.GetUser(r.Context(), userID)
		if err != nil {
			handleAuthzError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, user)
	case len(parts) == 2 && parts[1] == "attributes":
		if r.Method != http.MethodPut {
			methodNotAllowed(w, r, http.MethodPut)
			return
		}
		if !a.ensureAdmin(w, r) {
			return
		}
		var req updateAttributesRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		user, err := a.store.SetUserAttributes(r.Context(), userID, req.Attributes)
		if err != nil {
			handleAuthzError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, user)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleRoles(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		if !a.ensureAdmin(w, r) {
			return
		}
		var req createRoleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		role, err := a.store.CreateRole(r.Context(), req.Name, req.Description, req.Permissions, req.Parent, req.Priority)
		if err != nil {
			handleAuthzError(w, r, err)
			return
		}
		w.Header().Set("Location", fmt.Sprintf("/v1/roles/%s", role.ID))
		writeJSON(w, http.StatusCreated, role)
	case http.MethodGet:
		if !a.ensureAdmin(w, r) {
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"roles": a.store.ListRoles(r.Context()),
		})
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodGet)
	}
}

func (a *API) handleRoleScoped(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/roles/")
	path = strings.Trim(path, "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	roleID := parts[0]
	switch {
	case len(parts) == 1:
		a.handleRole(w, r, roleID)
	case len(parts) == 2 && parts[1] == "permissions":
		if r.Method != http.MethodPut {
			methodNotAllowed(w, r, http.MethodPut)
			return
		}
		if !a.ensureAdmin(w, r) {
			return
		}
		var req updateRolePermissionsRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		role, err := a.store.UpdateRolePermissions(r.Context(), roleID, req.Permissions)
		if err != nil {
			handleAuthzError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, role)
	case len(parts) == 2 && parts[1] == "parent":
		if r.Method != http.MethodPut {
			methodNotAllowed(w, r, http.MethodPut)
			return
		}
		if !a.ensureAdmin(w, r) {
			return
		}
		var req setRoleParentRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		role, err := a.store.SetRoleParent(r.Context(), roleID, req.Parent)
		if err != nil {
			handleAuthzError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, role)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleRole(w http.ResponseWriter, r *http.Request, roleID string) {
	switch r.Method {
	case http.MethodGet:
		if !a.ensureAdmin(w, r) {
			return
		}
		role, err := a.store.GetRole(r.Context(), roleID)
		if err != nil {
			handleAuthzError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, role)
	case http.MethodDelete:
		if !a.ensureAdmin(w, r) {
			return
		}
		if err := a.store.DeleteRole(r.Context(), roleID); err != nil {
			handleAuthzError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodDelete)
	}
}

func (a *API) handleAssignments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		if !a.ensureAdmin(w, r) {
			return
		}
		var req createAssignmentRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		assignment, err := a.store.CreateAssignment(r.Context(), req.Subject, req.RoleID, req.Scope)
		if err != nil {
			handleAuthzError(w, r, err)
			return
		}
		w.Header().Set("Location", fmt.Sprintf("/v1/assignments/%s", assignment.ID))
		writeJSON(w, http.StatusCreated, assignment)
	case http.MethodGet:
		if !a.ensureAdmin(w, r) {
			return
		}
		subject := strings.TrimSpace(r.URL.Query().Get("subject"))
		if subject == "" {
			writeError(w, r, http.StatusBadRequest, "subject query parameter is required")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"assignments": a.store.ListAssignments(r.Context(), subject),
		})
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodGet)
	}
}

func (a *API) handleAssignmentScoped(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/assignments/")
	path = strings.Trim(path, "/")
	if path == "" || strings.Contains(path, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	if !a.ensureAdmin(w, r) {
		return
	}
	if err := a.store.RemoveAssignment(r.Context(), path); err != nil {
		handleAuthzError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
