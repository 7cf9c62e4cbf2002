package authz

import (
	"context"
	"testing"
)

func TestResolveUnknownSubjectIsEmpty(t *testing.T) {
	store := NewStore()
	set := resolve(store.Snapshot(), "nobody", GlobalScope())
	if len(set) != 0 {
		t.Fatalf("unknown subject resolved to %d keys", len(set))
	}
}

func TestResolveDirectAssignment(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	role, _ := store.CreateRole(ctx, "pusher", "", []Permission{
		{Resource: ResourceRepository, Action: ActionPush},
	}, "", 0)
	user, _ := store.CreateUser(ctx, "alice", nil)
	a, _ := store.CreateAssignment(ctx, UserSubject(user.ID), role.ID, GlobalScope())

	set := resolve(store.Snapshot(), user.ID, RepositoryScope("acme/api"))
	grants := set[PermissionKey{Resource: ResourceRepository, Action: ActionPush}]
	if len(grants) != 1 {
		t.Fatalf("expected 1 grant, got %d", len(grants))
	}
	if grants[0].RoleID != role.ID || grants[0].AssignmentID != a.ID {
		t.Fatalf("wrong attribution: %+v", grants[0])
	}
}

func TestResolveInheritanceAndShadowing(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	parent, _ := store.CreateRole(ctx, "base", "", []Permission{
		{Resource: ResourceRepository, Action: ActionPull},
		{
			Resource:   ResourceRepository,
			Action:     ActionPush,
			Conditions: []Condition{{Kind: ConditionTimeRange, Start: "09:00", End: "17:00"}},
		},
	}, "", 0)
	// The child re-declares push unconditionally; the parent's conditioned
	// push must be shadowed.
	child, _ := store.CreateRole(ctx, "lead", "", []Permission{
		{Resource: ResourceRepository, Action: ActionPush},
	}, parent.ID, 0)

	user, _ := store.CreateUser(ctx, "alice", nil)
	store.CreateAssignment(ctx, UserSubject(user.ID), child.ID, GlobalScope())

	set := resolve(store.Snapshot(), user.ID, RepositoryScope("acme/api"))

	pulls := set[PermissionKey{Resource: ResourceRepository, Action: ActionPull}]
	if len(pulls) != 1 {
		t.Fatalf("inherited pull missing, got %d grants", len(pulls))
	}
	pushes := set[PermissionKey{Resource: ResourceRepository, Action: ActionPush}]
	if len(pushes) != 1 {
		t.Fatalf("expected child push to shadow the parent, got %d grants", len(pushes))
	}
	if len(pushes[0].Permission.Conditions) != 0 {
		t.Fatalf("shadowed permission leaked through: %+v", pushes[0].Permission)
	}
}

func TestGrantOrderingPriorityThenSpecificity(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	org, _ := store.CreateOrganization(ctx, "acme", OrganizationSettings{})
	store.AttachRepository(ctx, org.ID, "acme/api")

	low, _ := store.CreateRole(ctx, "low", "", []Permission{
		{Resource: ResourceRepository, Action: ActionPush},
	}, "", 10)
	high, _ := store.CreateRole(ctx, "high", "", []Permission{
		{Resource: ResourceRepository, Action: ActionPush},
	}, "", 90)

	user, _ := store.CreateUser(ctx, "alice", nil)
	// Low-priority role at the most specific scope, high-priority role at
	// organization scope. Priority wins over specificity.
	store.CreateAssignment(ctx, UserSubject(user.ID), low.ID, RepositoryScope("acme/api"))
	store.CreateAssignment(ctx, UserSubject(user.ID), high.ID, OrganizationScope(org.ID))

	set := resolve(store.Snapshot(), user.ID, RepositoryScope("acme/api"))
	grants := set[PermissionKey{Resource: ResourceRepository, Action: ActionPush}]
	if len(grants) != 2 {
		t.Fatalf("expected 2 grants, got %d", len(grants))
	}
	if grants[0].RoleID != high.ID {
		t.Fatalf("priority should order first, got role %s", grants[0].RoleID)
	}

	// With equal priorities the more specific scope orders first.
	even, _ := store.CreateRole(ctx, "even", "", []Permission{
		{Resource: ResourceRepository, Action: ActionPull},
	}, "", 50)
	store.CreateAssignment(ctx, UserSubject(user.ID), even.ID, OrganizationScope(org.ID))
	store.CreateAssignment(ctx, UserSubject(user.ID), even.ID, RepositoryScope("acme/api"))

	set = resolve(store.Snapshot(), user.ID, RepositoryScope("acme/api"))
	pulls := set[PermissionKey{Resource: ResourceRepository, Action: ActionPull}]
	if len(pulls) != 2 {
		t.Fatalf("expected 2 pull grants, got %d", len(pulls))
	}
	if pulls[0].Scope.Kind != ScopeRepository {
		t.Fatalf("specificity should break the tie, got scope %s", pulls[0].Scope.Kind)
	}
}

func TestResolveTeamAssignments(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	org, _ := store.CreateOrganization(ctx, "acme", OrganizationSettings{})
	team, _ := store.CreateTeam(ctx, org.ID, "backend")
	store.AttachTeamRepository(ctx, team.ID, "acme/api")

	role, _ := store.CreateRole(ctx, "pusher", "", []Permission{
		{Resource: ResourceRepository, Action: ActionPush},
	}, "", 0)
	store.CreateAssignment(ctx, TeamSubject(team.ID), role.ID, TeamScope(team.ID))

	user, _ := store.CreateUser(ctx, "alice", nil)
	store.AddTeamMember(ctx, team.ID, user.ID)

	set := resolve(store.Snapshot(), user.ID, RepositoryScope("acme/api"))
	if len(set[PermissionKey{Resource: ResourceRepository, Action: ActionPush}]) != 1 {
		t.Fatalf("team assignment should reach the member")
	}

	// A repository outside the team's list is not covered by team scope.
	set = resolve(store.Snapshot(), user.ID, RepositoryScope("acme/other"))
	if len(set[PermissionKey{Resource: ResourceRepository, Action: ActionPush}]) != 0 {
		t.Fatalf("team scope leaked to an unattached repository")
	}
}

func TestResolveOrganizationDefaultRole(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	if err := SeedDefaults(ctx, store); err != nil {
		t.Fatalf("seed: %v", err)
	}

	org, err := store.CreateOrganization(ctx, "acme", OrganizationSettings{DefaultRole: RoleViewer})
	if err != nil {
		t.Fatalf("create org: %v", err)
	}
	user, _ := store.CreateUser(ctx, "alice", nil)
	if err := store.AddUserToOrganization(ctx, user.ID, org.ID); err != nil {
		t.Fatalf("add member: %v", err)
	}

	set := resolve(store.Snapshot(), user.ID, RepositoryScope("acme/api"))
	grants := set[PermissionKey{Resource: ResourceRepository, Action: ActionPull}]
	if len(grants) != 1 {
		t.Fatalf("default role should grant pull, got %d grants", len(grants))
	}
	if grants[0].AssignmentID != "default:"+org.ID {
		t.Fatalf("synthetic assignment id: %q", grants[0].AssignmentID)
	}

	// Membership elsewhere does not leak: stranger has nothing.
	set = resolve(store.Snapshot(), "stranger", RepositoryScope("acme/api"))
	if len(set) != 0 {
		t.Fatalf("non-member resolved grants")
	}
}

func TestScopeContainsNamespaceMatching(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	org, _ := store.CreateOrganization(ctx, "acme", OrganizationSettings{})
	snap := store.Snapshot()

	// Repositories under the organization's name prefix belong to it without
	// explicit attachment.
	if !scopeContains(snap, OrganizationScope(org.ID), RepositoryScope("acme/api")) {
		t.Fatalf("namespace prefix should match")
	}
	if scopeContains(snap, OrganizationScope(org.ID), RepositoryScope("globex/api")) {
		t.Fatalf("foreign namespace matched")
	}

	// Isolated organizations only own what is attached.
	if _, err := store.UpdateOrganizationSettings(ctx, org.ID, OrganizationSettings{Isolated: true}); err != nil {
		t.Fatalf("update settings: %v", err)
	}
	snap = store.Snapshot()
	if scopeContains(snap, OrganizationScope(org.ID), RepositoryScope("acme/api")) {
		t.Fatalf("isolated org matched by prefix")
	}
	store.AttachRepository(ctx, org.ID, "acme/api")
	snap = store.Snapshot()
	if !scopeContains(snap, OrganizationScope(org.ID), RepositoryScope("acme/api")) {
		t.Fatalf("attached repository should match")
	}
}
