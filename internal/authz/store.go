package authz

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"driftregistry.org/internal/ids"
)

// Store is the authoritative in-memory entity store. Mutations are serialized
// through a single writer path; readers load an immutable snapshot via an
// atomic pointer and are never blocked. Every successful mutation bumps the
// version counter, which the decision cache compares against.
type Store struct {
	mu   sync.Mutex
	snap atomic.Pointer[Snapshot]
}

// NewStore creates an empty store at version zero.
func NewStore() *Store {
	s := &Store{}
	s.snap.Store(newSnapshot())
	return s
}

// Snapshot returns the current immutable view.
func (s *Store) Snapshot() *Snapshot {
	return s.snap.Load()
}

// Version returns the current store version.
func (s *Store) Version() uint64 {
	return s.snap.Load().Version
}

// mutate runs fn against a clone of the current snapshot and publishes the
// clone only if fn succeeds, so a rejected mutation leaves no trace.
func (s *Store) mutate(fn func(*Snapshot) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.snap.Load().clone()
	if err := fn(next); err != nil {
		return err
	}
	next.Version++
	s.snap.Store(next)
	return nil
}

// CreateOrganization registers a new tenant. Names are unique among live
// organizations; a configured default role must exist.
func (s *Store) CreateOrganization(ctx context.Context, name string, settings OrganizationSettings) (Organization, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Organization{}, fmt.Errorf("%w: organization name is required", ErrInvalidInput)
	}
	var org Organization
	err := s.mutate(func(snap *Snapshot) error {
		for _, existing := range snap.Organizations {
			if !existing.Deleted && existing.Name == name {
				return fmt.Errorf("%w: organization %s", ErrConflict, name)
			}
		}
		if settings.DefaultRole != "" {
			if _, ok := snap.role(settings.DefaultRole); !ok {
				return fmt.Errorf("%w: default role %s", ErrNotFound, settings.DefaultRole)
			}
		}
		now := time.Now().UTC()
		org = Organization{
			ID:        ids.New(),
			Name:      name,
			Settings:  settings,
			CreatedAt: now,
			UpdatedAt: now,
		}
		snap.Organizations[org.ID] = org
		return nil
	})
	return org, err
}

// GetOrganization returns a live organization.
func (s *Store) GetOrganization(ctx context.Context, id string) (Organization, error) {
	org, ok := s.Snapshot().organization(id)
	if !ok {
		return Organization{}, fmt.Errorf("%w: organization %s", ErrNotFound, id)
	}
	return org, nil
}

// ListOrganizations returns live organizations ordered by name.
func (s *Store) ListOrganizations(ctx context.Context) []Organization {
	snap := s.Snapshot()
	out := make([]Organization, 0, len(snap.Organizations))
	for _, org := range snap.Organizations {
		if !org.Deleted {
			out = append(out, org)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// UpdateOrganizationSettings replaces an organization's settings.
func (s *Store) UpdateOrganizationSettings(ctx context.Context, id string, settings OrganizationSettings) (Organization, error) {
	var org Organization
	err := s.mutate(func(snap *Snapshot) error {
		existing, ok := snap.organization(id)
		if !ok {
			return fmt.Errorf("%w: organization %s", ErrNotFound, id)
		}
		if settings.DefaultRole != "" {
			if _, ok := snap.role(settings.DefaultRole); !ok {
				return fmt.Errorf("%w: default role %s", ErrNotFound, settings.DefaultRole)
			}
		}
		existing.Settings = settings
		existing.UpdatedAt = time.Now().UTC()
		snap.Organizations[id] = existing
		org = existing
		return nil
	})
	return org, err
}

// AttachRepository references a repository from an organization.
func (s *Store) AttachRepository(ctx context.Context, orgID, repoID string) (Organization, error) {
	repoID = strings.TrimSpace(repoID)
	if repoID == "" {
		return Organization{}, fmt.Errorf("%w: repository id is required", ErrInvalidInput)
	}
	var org Organization
	err := s.mutate(func(snap *Snapshot) error {
		existing, ok := snap.organization(orgID)
		if !ok {
			return fmt.Errorf("%w: organization %s", ErrNotFound, orgID)
		}
		for _, r := range existing.Repositories {
			if r == repoID {
				org = existing
				return nil
			}
		}
		existing.Repositories = appendCopy(existing.Repositories, repoID)
		existing.UpdatedAt = time.Now().UTC()
		snap.Organizations[orgID] = existing
		org = existing
		return nil
	})
	return org, err
}

// DeleteOrganization soft-deletes the organization and cascades to its teams
// and to assignments scoped to it, preserving audit referential integrity.
func (s *Store) DeleteOrganization(ctx context.Context, id string) error {
	return s.mutate(func(snap *Snapshot) error {
		org, ok := snap.organization(id)
		if !ok {
			return fmt.Errorf("%w: organization %s", ErrNotFound, id)
		}
		org.Deleted = true
		org.UpdatedAt = time.Now().UTC()
		snap.Organizations[id] = org

		teamIDs := map[string]struct{}{}
		for tid, t := range snap.Teams {
			if t.Deleted || t.OrganizationID != id {
				continue
			}
			t.Deleted = true
			t.UpdatedAt = org.UpdatedAt
			snap.Teams[tid] = t
			teamIDs[tid] = struct{}{}
		}
		for aid, a := range snap.Assignments {
			if a.Deleted {
				continue
			}
			drop := false
			switch {
			case a.Scope.Kind == ScopeOrganization && a.Scope.ID == id:
				drop = true
			case a.Scope.Kind == ScopeTeam:
				_, drop = teamIDs[a.Scope.ID]
			case a.Scope.Kind == ScopeRepository && !strings.Contains(a.Scope.ID, "*"):
				// An exact repository scope that resolved only into this
				// organization is orphaned once the organization is gone.
				drop = snap.repositoryInOrganization(org, a.Scope.ID) && !snap.repositoryExists(a.Scope.ID)
			}
			if !drop && a.Subject.Kind == SubjectTeam {
				_, drop = teamIDs[a.Subject.ID]
			}
			if drop {
				a.Deleted = true
				snap.Assignments[aid] = a
			}
		}
		return nil
	})
}

// CreateTeam creates a team inside an organization. The organization
// reference never changes afterwards.
func (s *Store) CreateTeam(ctx context.Context, orgID, name string) (Team, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Team{}, fmt.Errorf("%w: team name is required", ErrInvalidInput)
	}
	var team Team
	err := s.mutate(func(snap *Snapshot) error {
		if _, ok := snap.organization(orgID); !ok {
			return fmt.Errorf("%w: organization %s", ErrNotFound, orgID)
		}
		for _, t := range snap.Teams {
			if !t.Deleted && t.OrganizationID == orgID && t.Name == name {
				return fmt.Errorf("%w: team %s", ErrConflict, name)
			}
		}
		now := time.Now().UTC()
		team = Team{
			ID:             ids.New(),
			Name:           name,
			OrganizationID: orgID,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		snap.Teams[team.ID] = team
		return nil
	})
	return team, err
}

// GetTeam returns a live team.
func (s *Store) GetTeam(ctx context.Context, id string) (Team, error) {
	t, ok := s.Snapshot().team(id)
	if !ok {
		return Team{}, fmt.Errorf("%w: team %s", ErrNotFound, id)
	}
	return t, nil
}

// AttachTeamRepository grants a team access to a repository identifier.
func (s *Store) AttachTeamRepository(ctx context.Context, teamID, repoID string) (Team, error) {
	repoID = strings.TrimSpace(repoID)
	if repoID == "" {
		return Team{}, fmt.Errorf("%w: repository id is required", ErrInvalidInput)
	}
	var team Team
	err := s.mutate(func(snap *Snapshot) error {
		t, ok := snap.team(teamID)
		if !ok {
			return fmt.Errorf("%w: team %s", ErrNotFound, teamID)
		}
		for _, r := range t.Repositories {
			if r == repoID {
				team = t
				return nil
			}
		}
		t.Repositories = appendCopy(t.Repositories, repoID)
		t.UpdatedAt = time.Now().UTC()
		snap.Teams[teamID] = t
		team = t
		return nil
	})
	return team, err
}

// AddTeamMember puts a user on a team; team membership implies membership in
// the team's organization.
func (s *Store) AddTeamMember(ctx context.Context, teamID, userID string) error {
	return s.mutate(func(snap *Snapshot) error {
		t, ok := snap.team(teamID)
		if !ok {
			return fmt.Errorf("%w: team %s", ErrNotFound, teamID)
		}
		u, ok := snap.user(userID)
		if !ok {
			return fmt.Errorf("%w: user %s", ErrNotFound, userID)
		}
		if contains(t.Members, userID) {
			return fmt.Errorf("%w: user %s already on team", ErrConflict, userID)
		}
		now := time.Now().UTC()
		t.Members = appendCopy(t.Members, userID)
		t.UpdatedAt = now
		snap.Teams[teamID] = t

		u.Teams = appendCopy(u.Teams, teamID)
		if !contains(u.Organizations, t.OrganizationID) {
			u.Organizations = appendCopy(u.Organizations, t.OrganizationID)
		}
		u.UpdatedAt = now
		snap.Users[userID] = u
		return nil
	})
}

// RemoveTeamMember takes a user off a team. Organization membership is kept;
// it may have been granted independently.
func (s *Store) RemoveTeamMember(ctx context.Context, teamID, userID string) error {
	return s.mutate(func(snap *Snapshot) error {
		t, ok := snap.team(teamID)
		if !ok {
			return fmt.Errorf("%w: team %s", ErrNotFound, teamID)
		}
		u, ok := snap.user(userID)
		if !ok {
			return fmt.Errorf("%w: user %s", ErrNotFound, userID)
		}
		if !contains(t.Members, userID) {
			return fmt.Errorf("%w: user %s not on team", ErrNotFound, userID)
		}
		now := time.Now().UTC()
		t.Members = remove(t.Members, userID)
		t.UpdatedAt = now
		snap.Teams[teamID] = t

		u.Teams = remove(u.Teams, teamID)
		u.UpdatedAt = now
		snap.Users[userID] = u
		return nil
	})
}

// CreateUser registers a user. Usernames are unique.
func (s *Store) CreateUser(ctx context.Context, username string, attributes map[string]string) (User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return User{}, fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	var user User
	err := s.mutate(func(snap *Snapshot) error {
		for _, u := range snap.Users {
			if u.Username == username {
				return fmt.Errorf("%w: user %s", ErrConflict, username)
			}
		}
		now := time.Now().UTC()
		user = User{
			ID:         ids.New(),
			Username:   username,
			Attributes: copyAttrs(attributes),
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		snap.Users[user.ID] = user
		return nil
	})
	return user, err
}

// GetUser returns a user by id.
func (s *Store) GetUser(ctx context.Context, id string) (User, error) {
	u, ok := s.Snapshot().user(id)
	if !ok {
		return User{}, fmt.Errorf("%w: user %s", ErrNotFound, id)
	}
	return u, nil
}

// SetUserAttributes replaces a user's attribute map.
func (s *Store) SetUserAttributes(ctx context.Context, id string, attributes map[string]string) (User, error) {
	var user User
	err := s.mutate(func(snap *Snapshot) error {
		u, ok := snap.user(id)
		if !ok {
			return fmt.Errorf("%w: user %s", ErrNotFound, id)
		}
		u.Attributes = copyAttrs(attributes)
		u.UpdatedAt = time.Now().UTC()
		snap.Users[id] = u
		user = u
		return nil
	})
	return user, err
}

// AddUserToOrganization records direct organization membership.
func (s *Store) AddUserToOrganization(ctx context.Context, userID, orgID string) error {
	return s.mutate(func(snap *Snapshot) error {
		if _, ok := snap.organization(orgID); !ok {
			return fmt.Errorf("%w: organization %s", ErrNotFound, orgID)
		}
		u, ok := snap.user(userID)
		if !ok {
			return fmt.Errorf("%w: user %s", ErrNotFound, userID)
		}
		if contains(u.Organizations, orgID) {
			return fmt.Errorf("%w: user %s already a member", ErrConflict, userID)
		}
		u.Organizations = appendCopy(u.Organizations, orgID)
		u.UpdatedAt = time.Now().UTC()
		snap.Users[userID] = u
		return nil
	})
}

// CreateRole defines a role. Permissions and conditions are validated here so
// evaluation never sees malformed configuration.
func (s *Store) CreateRole(ctx context.Context, name, description string, permissions []Permission, parent string, priority int) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	if err := validatePermissions(permissions); err != nil {
		return Role{}, err
	}
	var role Role
	err := s.mutate(func(snap *Snapshot) error {
		for _, r := range snap.Roles {
			if r.Name == name {
				return fmt.Errorf("%w: role %s", ErrConflict, name)
			}
		}
		if parent != "" {
			if _, ok := snap.role(parent); !ok {
				return fmt.Errorf("%w: parent role %s", ErrNotFound, parent)
			}
		}
		now := time.Now().UTC()
		role = Role{
			ID:          ids.New(),
			Name:        name,
			Description: strings.TrimSpace(description),
			Permissions: copyPermissions(permissions),
			Parent:      parent,
			Priority:    priority,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		snap.Roles[role.ID] = role
		return nil
	})
	return role, err
}

// GetRole returns a role by id.
func (s *Store) GetRole(ctx context.Context, id string) (Role, error) {
	r, ok := s.Snapshot().role(id)
	if !ok {
		return Role{}, fmt.Errorf("%w: role %s", ErrNotFound, id)
	}
	return r, nil
}

// ListRoles returns all roles ordered by name.
func (s *Store) ListRoles(ctx context.Context) []Role {
	snap := s.Snapshot()
	out := make([]Role, 0, len(snap.Roles))
	for _, r := range snap.Roles {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// UpdateRolePermissions replaces a role's permission list.
func (s *Store) UpdateRolePermissions(ctx context.Context, id string, permissions []Permission) (Role, error) {
	if err := validatePermissions(permissions); err != nil {
		return Role{}, err
	}
	var role Role
	err := s.mutate(func(snap *Snapshot) error {
		r, ok := snap.role(id)
		if !ok {
			return fmt.Errorf("%w: role %s", ErrNotFound, id)
		}
		r.Permissions = copyPermissions(permissions)
		r.UpdatedAt = time.Now().UTC()
		snap.Roles[id] = r
		role = r
		return nil
	})
	return role, err
}

// SetRoleParent points a role at a new parent, rejecting any pointer that
// would close an inheritance cycle. The role is untouched on rejection.
func (s *Store) SetRoleParent(ctx context.Context, id, parent string) (Role, error) {
	var role Role
	err := s.mutate(func(snap *Snapshot) error {
		r, ok := snap.role(id)
		if !ok {
			return fmt.Errorf("%w: role %s", ErrNotFound, id)
		}
		if parent != "" {
			if _, ok := snap.role(parent); !ok {
				return fmt.Errorf("%w: parent role %s", ErrNotFound, parent)
			}
			// Walk up from the proposed parent; reaching the role itself
			// means the pointer would close a cycle.
			seen := 0
			for cur := parent; cur != ""; {
				if cur == id {
					return fmt.Errorf("%w: %s -> %s", ErrCyclicRole, id, parent)
				}
				next, ok := snap.role(cur)
				if !ok {
					break
				}
				cur = next.Parent
				if seen++; seen > len(snap.Roles) {
					return fmt.Errorf("%w: %s -> %s", ErrCyclicRole, id, parent)
				}
			}
		}
		r.Parent = parent
		r.UpdatedAt = time.Now().UTC()
		snap.Roles[id] = r
		role = r
		return nil
	})
	return role, err
}

// DeleteRole removes a role that nothing references.
func (s *Store) DeleteRole(ctx context.Context, id string) error {
	return s.mutate(func(snap *Snapshot) error {
		if _, ok := snap.role(id); !ok {
			return fmt.Errorf("%w: role %s", ErrNotFound, id)
		}
		for _, r := range snap.Roles {
			if r.Parent == id {
				return fmt.Errorf("%w: role %s is inherited by %s", ErrConflict, id, r.ID)
			}
		}
		for _, a := range snap.Assignments {
			if !a.Deleted && a.RoleID == id {
				return fmt.Errorf("%w: role %s is assigned", ErrConflict, id)
			}
		}
		for _, org := range snap.Organizations {
			if !org.Deleted && org.Settings.DefaultRole == id {
				return fmt.Errorf("%w: role %s is a default role", ErrConflict, id)
			}
		}
		delete(snap.Roles, id)
		return nil
	})
}

// CreateAssignment binds a role to a subject at a scope. Scopes referencing
// missing entities are rejected; a repository scope may be a glob pattern.
func (s *Store) CreateAssignment(ctx context.Context, subject Subject, roleID string, scope Scope) (Assignment, error) {
	if subject.ID == "" || (subject.Kind != SubjectUser && subject.Kind != SubjectTeam) {
		return Assignment{}, fmt.Errorf("%w: subject is required", ErrInvalidInput)
	}
	var assignment Assignment
	err := s.mutate(func(snap *Snapshot) error {
		if _, ok := snap.role(roleID); !ok {
			return fmt.Errorf("%w: role %s", ErrNotFound, roleID)
		}
		switch subject.Kind {
		case SubjectUser:
			if _, ok := snap.user(subject.ID); !ok {
				return fmt.Errorf("%w: user %s", ErrNotFound, subject.ID)
			}
		case SubjectTeam:
			if _, ok := snap.team(subject.ID); !ok {
				return fmt.Errorf("%w: team %s", ErrNotFound, subject.ID)
			}
		}
		if err := validateScope(snap, scope); err != nil {
			return err
		}
		assignment = Assignment{
			ID:        ids.New(),
			Subject:   subject,
			RoleID:    roleID,
			Scope:     scope,
			CreatedAt: time.Now().UTC(),
		}
		snap.Assignments[assignment.ID] = assignment
		return nil
	})
	return assignment, err
}

// RemoveAssignment soft-deletes an assignment.
func (s *Store) RemoveAssignment(ctx context.Context, id string) error {
	return s.mutate(func(snap *Snapshot) error {
		a, ok := snap.Assignments[id]
		if !ok || a.Deleted {
			return fmt.Errorf("%w: assignment %s", ErrNotFound, id)
		}
		a.Deleted = true
		snap.Assignments[id] = a
		return nil
	})
}

// ListAssignments returns live assignments, optionally filtered by subject id.
func (s *Store) ListAssignments(ctx context.Context, subjectID string) []Assignment {
	snap := s.Snapshot()
	out := make([]Assignment, 0, len(snap.Assignments))
	for _, a := range snap.Assignments {
		if a.Deleted {
			continue
		}
		if subjectID != "" && a.Subject.ID != subjectID {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func validateScope(snap *Snapshot, scope Scope) error {
	switch scope.Kind {
	case ScopeGlobal:
		return nil
	case ScopeOrganization:
		if _, ok := snap.organization(scope.ID); !ok {
			return fmt.Errorf("%w: organization %s", ErrDanglingScope, scope.ID)
		}
		return nil
	case ScopeTeam:
		if _, ok := snap.team(scope.ID); !ok {
			return fmt.Errorf("%w: team %s", ErrDanglingScope, scope.ID)
		}
		return nil
	case ScopeRepository:
		if scope.ID == "" {
			return fmt.Errorf("%w: repository scope requires an id", ErrInvalidInput)
		}
		// Negation is a condition feature; a repository scope has no use
		// for '!' and would never match.
		if strings.Contains(scope.ID, "!") {
			return fmt.Errorf("%w: repository scope does not support negation", ErrInvalidInput)
		}
		if strings.Contains(scope.ID, "*") {
			return nil
		}
		if !snap.repositoryExists(scope.ID) {
			return fmt.Errorf("%w: repository %s", ErrDanglingScope, scope.ID)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown scope kind %q", ErrInvalidInput, scope.Kind)
	}
}

func validatePermissions(permissions []Permission) error {
	for _, p := range permissions {
		if !p.Resource.Valid() {
			return fmt.Errorf("%w: unknown resource type %q", ErrInvalidInput, p.Resource)
		}
		if !p.Action.Valid() {
			return fmt.Errorf("%w: unknown action %q", ErrInvalidInput, p.Action)
		}
		for _, c := range p.Conditions {
			if err := c.Validate(); err != nil {
				return err
			}
		}
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// appendCopy returns a fresh slice so entries shared between snapshots are
// never mutated in place.
func appendCopy(list []string, v string) []string {
	out := make([]string, 0, len(list)+1)
	out = append(out, list...)
	return append(out, v)
}

func remove(list []string, v string) []string {
	out := make([]string, 0, len(list))
	for _, item := range list {
		if item != v {
			out = append(out, item)
		}
	}
	return out
}

func copyAttrs(attrs map[string]string) map[string]string {
	if len(attrs) == 0 {
		return nil
	}
	out := make(map[string]string, len(attrs))
	for k, v := range attrs {
		out[k] = v
	}
	return out
}

func copyPermissions(perms []Permission) []Permission {
	if len(perms) == 0 {
		return nil
	}
	out := make([]Permission, len(perms))
	copy(out, perms)
	for i := range out {
		if len(perms[i].Conditions) > 0 {
			conds := make([]Condition, len(perms[i].Conditions))
			copy(conds, perms[i].Conditions)
			out[i].Conditions = conds
		}
	}
	return out
}
