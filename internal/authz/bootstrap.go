package authz

import (
	"context"
	"fmt"
	"time"
)

// Builtin role identifiers. System roles are created once per store and form
// an inheritance chain: viewer <- developer <- admin.
const (
	RoleAdmin     = "admin"
	RoleDeveloper = "developer"
	RoleViewer    = "viewer"
)

// SeedDefaults installs the builtin roles into a fresh store. It is
// idempotent: stores that already carry a builtin role are left alone.
func SeedDefaults(ctx context.Context, store *Store) error {
	roles := []Role{
		{
			ID:          RoleViewer,
			Name:        "Viewer",
			Description: "Read-only registry access",
			Priority:    10,
			System:      true,
			Permissions: []Permission{
				{Resource: ResourceRegistry, Action: ActionRead},
				{Resource: ResourceRepository, Action: ActionList},
				{Resource: ResourceRepository, Action: ActionPull},
			},
		},
		{
			ID:          RoleDeveloper,
			Name:        "Developer",
			Description: "Can push and pull images",
			Parent:      RoleViewer,
			Priority:    50,
			System:      true,
			Permissions: []Permission{
				{Resource: ResourceRepository, Action: ActionPush},
				{Resource: ResourceRepository, Action: ActionTag},
			},
		},
		{
			ID:          RoleAdmin,
			Name:        "Administrator",
			Description: "Full control of organizations and repositories",
			Parent:      RoleDeveloper,
			Priority:    100,
			System:      true,
			Permissions: []Permission{
				{Resource: ResourceOrganization, Action: ActionAdmin},
				{Resource: ResourceRepository, Action: ActionAdmin},
				{Resource: ResourceRepository, Action: ActionDelete},
				{Resource: ResourceRegistry, Action: ActionAudit},
			},
		},
	}
	return store.mutate(func(snap *Snapshot) error {
		now := time.Now().UTC()
		for _, role := range roles {
			if _, exists := snap.Roles[role.ID]; exists {
				continue
			}
			if err := validatePermissions(role.Permissions); err != nil {
				return fmt.Errorf("seed role %s: %w", role.ID, err)
			}
			role.CreatedAt = now
			role.UpdatedAt = now
			snap.Roles[role.ID] = role
		}
		return nil
	})
}
