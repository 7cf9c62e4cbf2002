package authz

import (
	"context"
	"strings"
	"time"

	"driftregistry.org/internal/audit"
	"driftregistry.org/internal/ids"
	"driftregistry.org/internal/obs"
)

// Auditor receives one record per authorization decision. Recording must not
// block; the engine fires and forgets.
type Auditor interface {
	Record(rec audit.Record)
}

// Service is the authorization façade: it resolves effective permissions
// through the cache, evaluates conditions, applies default-deny, and emits an
// audit record per call. Calls are synchronous and purely in-memory; they
// never fail open.
type Service struct {
	store   *Store
	cache   *Cache
	auditor Auditor
}

// Option configures a Service.
type Option func(*Service)

// WithCache overrides the default decision cache.
func WithCache(c *Cache) Option {
	return func(s *Service) { s.cache = c }
}

// WithAuditor attaches a decision auditor.
func WithAuditor(a Auditor) Option {
	return func(s *Service) { s.auditor = a }
}

// NewService builds a Service over the given store.
func NewService(store *Store, opts ...Option) *Service {
	s := &Service{
		store: store,
		cache: NewCache(0, 0),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Authorize decides whether subject may perform action on the identified
// resource. The caller has already authenticated the subject and validated
// the resource identifier; a check on a nonexistent resource still evaluates
// normally. Internal faults surface as a deny, never as an error.
func (s *Service) Authorize(ctx context.Context, subjectID, resourceID string, resource ResourceType, action Action, rctx RequestContext) (dec Decision) {
	if rctx.Time.IsZero() {
		rctx.Time = time.Now().UTC()
	}
	rctx.Resource = resourceID

	defer func() {
		if r := recover(); r != nil {
			dec = Decision{Allow: false, Reason: ReasonInternalError}
			obs.LogRequest(map[string]any{
				"level":   "error",
				"msg":     "authorize panic",
				"subject": subjectID,
				"panic":   r,
			})
		}
		obs.DecisionObserved(dec.Allow, dec.Reason)
		s.emitAudit(subjectID, resourceID, resource, action, rctx, dec)
	}()

	if strings.TrimSpace(subjectID) == "" || !resource.Valid() || !action.Valid() {
		return Decision{Allow: false, Reason: ReasonNoMatchingGrant}
	}

	scope := scopeForResource(resource, resourceID)
	snap := s.store.Snapshot()
	obs.SetStoreVersion(snap.Version)

	// Attribute conditions see the subject's stored attributes; values
	// supplied on the request override stored ones.
	if user, ok := snap.user(subjectID); ok && len(user.Attributes) > 0 {
		merged := make(map[string]string, len(user.Attributes)+len(rctx.Attributes))
		for k, v := range user.Attributes {
			merged[k] = v
		}
		for k, v := range rctx.Attributes {
			merged[k] = v
		}
		rctx.Attributes = merged
	}

	set, ok := s.cache.Get(subjectID, scope, snap.Version)
	if ok {
		obs.CacheHit()
	} else {
		obs.CacheMiss()
		set = resolve(snap, subjectID, scope)
		s.cache.Put(subjectID, scope, snap.Version, set)
	}

	grants := set[PermissionKey{Resource: resource, Action: action}]
	if len(grants) == 0 {
		return Decision{Allow: false, Reason: ReasonNoMatchingGrant, Scope: scope}
	}
	for _, g := range grants {
		if EvaluateAll(g.Permission.Conditions, rctx) {
			return Decision{
				Allow:        true,
				Reason:       "granted by role " + g.RoleID,
				RoleID:       g.RoleID,
				AssignmentID: g.AssignmentID,
				Scope:        g.Scope,
			}
		}
	}
	return Decision{Allow: false, Reason: ReasonConditionsNotSatisfied, Scope: scope}
}

func (s *Service) emitAudit(subjectID, resourceID string, resource ResourceType, action Action, rctx RequestContext, dec Decision) {
	if s.auditor == nil {
		return
	}
	var source string
	if rctx.SourceAddr.IsValid() {
		source = rctx.SourceAddr.String()
	}
	s.auditor.Record(audit.Record{
		ID:           ids.New(),
		Time:         rctx.Time,
		Subject:      subjectID,
		Resource:     resourceID,
		ResourceType: string(resource),
		Action:       string(action),
		Allow:        dec.Allow,
		Reason:       dec.Reason,
		RoleID:       dec.RoleID,
		AssignmentID: dec.AssignmentID,
		Scope:        dec.Scope.String(),
		Source:       source,
	})
}

// scopeForResource derives the requested scope from the resource reference.
// Repository-addressed content (images, tags, blobs, manifests) narrows to
// the repository; everything else is organization, team, or global.
func scopeForResource(resource ResourceType, resourceID string) Scope {
	switch resource {
	case ResourceRepository, ResourceImage, ResourceTag, ResourceBlob, ResourceManifest:
		return RepositoryScope(resourceID)
	case ResourceOrganization:
		return OrganizationScope(resourceID)
	case ResourceTeam:
		return TeamScope(resourceID)
	default:
		return GlobalScope()
	}
}
