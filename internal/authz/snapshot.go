package authz

import "strings"

// Snapshot is an immutable view of the entity store at a known version.
// Readers hold a snapshot for the duration of a decision and never observe
// partial mutations. Values inside a snapshot must be treated as read-only;
// the writer replaces whole entries rather than mutating in place.
type Snapshot struct {
	Version       uint64
	Organizations map[string]Organization
	Teams         map[string]Team
	Users         map[string]User
	Roles         map[string]Role
	Assignments   map[string]Assignment
}

func newSnapshot() *Snapshot {
	return &Snapshot{
		Organizations: map[string]Organization{},
		Teams:         map[string]Team{},
		Users:         map[string]User{},
		Roles:         map[string]Role{},
		Assignments:   map[string]Assignment{},
	}
}

// clone shallow-copies the entity maps. Entry values are immutable by
// convention, so sharing them between snapshots is safe.
func (s *Snapshot) clone() *Snapshot {
	next := &Snapshot{
		Version:       s.Version,
		Organizations: make(map[string]Organization, len(s.Organizations)),
		Teams:         make(map[string]Team, len(s.Teams)),
		Users:         make(map[string]User, len(s.Users)),
		Roles:         make(map[string]Role, len(s.Roles)),
		Assignments:   make(map[string]Assignment, len(s.Assignments)),
	}
	for k, v := range s.Organizations {
		next.Organizations[k] = v
	}
	for k, v := range s.Teams {
		next.Teams[k] = v
	}
	for k, v := range s.Users {
		next.Users[k] = v
	}
	for k, v := range s.Roles {
		next.Roles[k] = v
	}
	for k, v := range s.Assignments {
		next.Assignments[k] = v
	}
	return next
}

// organization returns a live organization.
func (s *Snapshot) organization(id string) (Organization, bool) {
	org, ok := s.Organizations[id]
	if !ok || org.Deleted {
		return Organization{}, false
	}
	return org, true
}

// team returns a live team.
func (s *Snapshot) team(id string) (Team, bool) {
	t, ok := s.Teams[id]
	if !ok || t.Deleted {
		return Team{}, false
	}
	return t, true
}

// user returns a known user.
func (s *Snapshot) user(id string) (User, bool) {
	u, ok := s.Users[id]
	return u, ok
}

// role returns a known role.
func (s *Snapshot) role(id string) (Role, bool) {
	r, ok := s.Roles[id]
	return r, ok
}

// repositoryInOrganization reports whether a repository identifier belongs to
// the organization: either explicitly attached, or namespaced under the
// organization's name or id ("acme/api" belongs to "acme") unless the
// organization is isolated.
func (s *Snapshot) repositoryInOrganization(org Organization, repoID string) bool {
	for _, r := range org.Repositories {
		if r == repoID {
			return true
		}
	}
	if org.Settings.Isolated {
		return false
	}
	ns, _, ok := strings.Cut(repoID, "/")
	if !ok {
		return false
	}
	return ns == org.Name || ns == org.ID
}

// repositoryExists reports whether any live organization or team references
// the repository identifier.
func (s *Snapshot) repositoryExists(repoID string) bool {
	for _, org := range s.Organizations {
		if org.Deleted {
			continue
		}
		if s.repositoryInOrganization(org, repoID) {
			return true
		}
	}
	for _, t := range s.Teams {
		if t.Deleted {
			continue
		}
		for _, r := range t.Repositories {
			if r == repoID {
				return true
			}
		}
	}
	return false
}
