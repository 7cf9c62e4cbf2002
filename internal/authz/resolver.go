package authz

import "sort"

// PermissionKey identifies a (resource, action) pair in an effective
// permission set.
type PermissionKey struct {
	Resource ResourceType
	Action   Action
}

// Grant is one applicable permission together with its attribution: the role
// and assignment it came from, the assignment's scope, and the role priority
// used for tie-breaking.
type Grant struct {
	Permission   Permission
	RoleID       string
	AssignmentID string
	Scope        Scope
	Priority     int
}

// PermissionSet maps (resource, action) pairs to the grants that could
// authorize them. Grants are ordered by role priority, then scope
// specificity, so the first passing grant is the deterministic winner.
type PermissionSet map[PermissionKey][]Grant

// resolve expands a subject's assignments into an effective permission set
// for the requested scope: direct assignments, assignments held by the
// subject's teams, and the default role of each organization the subject
// belongs to. An unknown subject resolves to an empty set; the service fails
// closed on it.
func resolve(snap *Snapshot, subjectID string, scope Scope) PermissionSet {
	assignments := collectAssignments(snap, subjectID)
	set := PermissionSet{}
	for _, a := range assignments {
		if !scopeContains(snap, a.Scope, scope) {
			continue
		}
		role, ok := snap.role(a.RoleID)
		if !ok {
			continue
		}
		for _, perm := range expandRole(snap, role) {
			key := PermissionKey{Resource: perm.Resource, Action: perm.Action}
			set[key] = append(set[key], Grant{
				Permission:   perm,
				RoleID:       role.ID,
				AssignmentID: a.ID,
				Scope:        a.Scope,
				Priority:     role.Priority,
			})
		}
	}
	for _, grants := range set {
		sortGrants(grants)
	}
	return set
}

func collectAssignments(snap *Snapshot, subjectID string) []Assignment {
	var out []Assignment
	user, known := snap.user(subjectID)
	for _, a := range snap.Assignments {
		if a.Deleted {
			continue
		}
		switch a.Subject.Kind {
		case SubjectUser:
			if a.Subject.ID == subjectID {
				out = append(out, a)
			}
		case SubjectTeam:
			if known && contains(user.Teams, a.Subject.ID) {
				if _, live := snap.team(a.Subject.ID); live {
					out = append(out, a)
				}
			}
		}
	}
	if known {
		for _, orgID := range user.Organizations {
			org, ok := snap.organization(orgID)
			if !ok || org.Settings.DefaultRole == "" {
				continue
			}
			out = append(out, Assignment{
				ID:      "default:" + orgID,
				Subject: UserSubject(subjectID),
				RoleID:  org.Settings.DefaultRole,
				Scope:   OrganizationScope(orgID),
			})
		}
	}
	return out
}

// scopeContains reports whether an assignment scope covers the requested
// scope. Organization scope covers the organization itself and any team or
// repository inside it; team scope covers the team and its repositories;
// repository scope matches exact or glob.
func scopeContains(snap *Snapshot, have, want Scope) bool {
	switch have.Kind {
	case ScopeGlobal:
		return true
	case ScopeOrganization:
		switch want.Kind {
		case ScopeOrganization:
			return want.ID == have.ID
		case ScopeTeam:
			t, ok := snap.team(want.ID)
			return ok && t.OrganizationID == have.ID
		case ScopeRepository:
			org, ok := snap.organization(have.ID)
			return ok && snap.repositoryInOrganization(org, want.ID)
		}
		return false
	case ScopeTeam:
		switch want.Kind {
		case ScopeTeam:
			return want.ID == have.ID
		case ScopeRepository:
			t, ok := snap.team(have.ID)
			return ok && contains(t.Repositories, want.ID)
		}
		return false
	case ScopeRepository:
		if want.Kind != ScopeRepository {
			return false
		}
		return have.ID == want.ID || globMatch(have.ID, want.ID)
	default:
		return false
	}
}

// expandRole walks the single-parent inheritance chain collecting
// permissions. A child's permissions shadow inherited ones on the same
// (resource, action) pair. The walk is bounded defensively even though the
// store rejects cycles.
func expandRole(snap *Snapshot, role Role) []Permission {
	var out []Permission
	seen := map[PermissionKey]struct{}{}
	limit := len(snap.Roles) + 1
	for depth := 0; depth < limit; depth++ {
		level := map[PermissionKey]struct{}{}
		for _, p := range role.Permissions {
			key := PermissionKey{Resource: p.Resource, Action: p.Action}
			if _, shadowed := seen[key]; shadowed {
				continue
			}
			level[key] = struct{}{}
			out = append(out, p)
		}
		for key := range level {
			seen[key] = struct{}{}
		}
		if role.Parent == "" {
			break
		}
		parent, ok := snap.role(role.Parent)
		if !ok {
			break
		}
		role = parent
	}
	return out
}

// sortGrants orders candidates by role priority, then scope specificity
// (Repository > Team > Organization > Global), then ids for stability.
func sortGrants(grants []Grant) {
	sort.SliceStable(grants, func(i, j int) bool {
		if grants[i].Priority != grants[j].Priority {
			return grants[i].Priority > grants[j].Priority
		}
		si, sj := grants[i].Scope.Specificity(), grants[j].Scope.Specificity()
		if si != sj {
			return si > sj
		}
		if grants[i].RoleID != grants[j].RoleID {
			return grants[i].RoleID < grants[j].RoleID
		}
		return grants[i].AssignmentID < grants[j].AssignmentID
	})
}
