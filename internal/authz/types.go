package authz

import "time"

// ResourceType identifies the class of registry object a permission protects.
type ResourceType string

const (
	ResourceRegistry     ResourceType = "registry"
	ResourceOrganization ResourceType = "organization"
	ResourceTeam         ResourceType = "team"
	ResourceRepository   ResourceType = "repository"
	ResourceImage        ResourceType = "image"
	ResourceTag          ResourceType = "tag"
	ResourceBlob         ResourceType = "blob"
	ResourceManifest     ResourceType = "manifest"
	ResourceUser         ResourceType = "user"
	ResourceRole         ResourceType = "role"
	ResourceSettings     ResourceType = "settings"
)

var resourceTypes = map[ResourceType]struct{}{
	ResourceRegistry:     {},
	ResourceOrganization: {},
	ResourceTeam:         {},
	ResourceRepository:   {},
	ResourceImage:        {},
	ResourceTag:          {},
	ResourceBlob:         {},
	ResourceManifest:     {},
	ResourceUser:         {},
	ResourceRole:         {},
	ResourceSettings:     {},
}

// Valid reports whether rt is a known resource type.
func (rt ResourceType) Valid() bool {
	_, ok := resourceTypes[rt]
	return ok
}

// Action identifies an operation on a resource.
type Action string

const (
	ActionRead   Action = "read"
	ActionList   Action = "list"
	ActionSearch Action = "search"

	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"

	ActionPull Action = "pull"
	ActionPush Action = "push"
	ActionTag  Action = "tag"
	ActionSign Action = "sign"

	ActionAdmin          Action = "admin"
	ActionManageMembers  Action = "manage_members"
	ActionManageRoles    Action = "manage_roles"
	ActionManageSettings Action = "manage_settings"
	ActionAudit          Action = "audit"
)

var actions = map[Action]struct{}{
	ActionRead:           {},
	ActionList:           {},
	ActionSearch:         {},
	ActionCreate:         {},
	ActionUpdate:         {},
	ActionDelete:         {},
	ActionPull:           {},
	ActionPush:           {},
	ActionTag:            {},
	ActionSign:           {},
	ActionAdmin:          {},
	ActionManageMembers:  {},
	ActionManageRoles:    {},
	ActionManageSettings: {},
	ActionAudit:          {},
}

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	_, ok := actions[a]
	return ok
}

// ScopeKind is the breadth at which an assignment applies.
type ScopeKind string

const (
	ScopeGlobal       ScopeKind = "global"
	ScopeOrganization ScopeKind = "organization"
	ScopeTeam         ScopeKind = "team"
	ScopeRepository   ScopeKind = "repository"
)

// Scope narrows an assignment to a slice of the registry. A repository scope
// ID may be a glob pattern.
type Scope struct {
	Kind ScopeKind `json:"kind"`
	ID   string    `json:"id,omitempty"`
}

// GlobalScope applies everywhere.
func GlobalScope() Scope { return Scope{Kind: ScopeGlobal} }

// OrganizationScope applies within one organization.
func OrganizationScope(id string) Scope { return Scope{Kind: ScopeOrganization, ID: id} }

// TeamScope applies to a team and its repositories.
func TeamScope(id string) Scope { return Scope{Kind: ScopeTeam, ID: id} }

// RepositoryScope applies to repositories matching id (exact or glob).
func RepositoryScope(id string) Scope { return Scope{Kind: ScopeRepository, ID: id} }

// Specificity orders scopes for tie-breaking: Repository > Team >
// Organization > Global.
func (s Scope) Specificity() int {
	switch s.Kind {
	case ScopeRepository:
		return 3
	case ScopeTeam:
		return 2
	case ScopeOrganization:
		return 1
	default:
		return 0
	}
}

func (s Scope) String() string {
	if s.Kind == ScopeGlobal || s.ID == "" {
		return string(s.Kind)
	}
	return string(s.Kind) + ":" + s.ID
}

// OrganizationSettings carries per-tenant defaults.
type OrganizationSettings struct {
	// DefaultRole, when set, is granted to every member of the organization
	// at organization scope without an explicit assignment.
	DefaultRole string `json:"default_role,omitempty"`
	// Isolated blocks repository namespace matching by name prefix; only
	// explicitly attached repositories belong to the organization.
	Isolated bool `json:"isolated,omitempty"`
}

// Organization is the top-level tenant boundary. Repositories are referenced
// by identifier, not contained.
type Organization struct {
	ID           string               `json:"id"`
	Name         string               `json:"name"`
	Settings     OrganizationSettings `json:"settings"`
	Repositories []string             `json:"repositories,omitempty"`
	CreatedAt    time.Time            `json:"created_at"`
	UpdatedAt    time.Time            `json:"updated_at"`
	Deleted      bool                 `json:"deleted,omitempty"`
}

// Team groups users within exactly one organization. The organization
// reference is immutable after creation.
type Team struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	OrganizationID string    `json:"organization_id"`
	Members        []string  `json:"members,omitempty"`
	Repositories   []string  `json:"repositories,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	Deleted        bool      `json:"deleted,omitempty"`
}

// User is a human or service account known to the engine.
type User struct {
	ID            string            `json:"id"`
	Username      string            `json:"username"`
	Organizations []string          `json:"organizations,omitempty"`
	Teams         []string          `json:"teams,omitempty"`
	Attributes    map[string]string `json:"attributes,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// Permission grants an action on a resource type, optionally gated by
// conditions. Conditions within one permission are conjunctive; independent
// permissions on the same (resource, action) pair are disjunctive.
type Permission struct {
	Resource   ResourceType `json:"resource"`
	Action     Action       `json:"action"`
	Conditions []Condition  `json:"conditions,omitempty"`
}

// Role is a named bundle of permissions with single-parent inheritance and a
// priority used for tie-breaking across roles.
type Role struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Permissions []Permission `json:"permissions,omitempty"`
	Parent      string       `json:"parent,omitempty"`
	Priority    int          `json:"priority"`
	System      bool         `json:"system,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// SubjectKind distinguishes user and team assignment subjects.
type SubjectKind string

const (
	SubjectUser SubjectKind = "user"
	SubjectTeam SubjectKind = "team"
)

// Subject is the holder of an assignment.
type Subject struct {
	Kind SubjectKind `json:"kind"`
	ID   string      `json:"id"`
}

// UserSubject builds a user subject.
func UserSubject(id string) Subject { return Subject{Kind: SubjectUser, ID: id} }

// TeamSubject builds a team subject.
func TeamSubject(id string) Subject { return Subject{Kind: SubjectTeam, ID: id} }

// Assignment binds a role to a subject at a scope.
type Assignment struct {
	ID        string    `json:"id"`
	Subject   Subject   `json:"subject"`
	RoleID    string    `json:"role_id"`
	Scope     Scope     `json:"scope"`
	CreatedAt time.Time `json:"created_at"`
	Deleted   bool      `json:"deleted,omitempty"`
}

// Decision is the outcome of an authorization check with attribution for
// audit.
type Decision struct {
	Allow        bool   `json:"allow"`
	Reason       string `json:"reason"`
	RoleID       string `json:"role_id,omitempty"`
	AssignmentID string `json:"assignment_id,omitempty"`
	Scope        Scope  `json:"scope"`
}

// Decision reasons surfaced to callers and audit records.
const (
	ReasonNoMatchingGrant        = "no matching grant"
	ReasonConditionsNotSatisfied = "conditions not satisfied"
	ReasonInternalError          = "internal error"
)
