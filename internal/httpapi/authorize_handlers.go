package httpapi

import (
	"net/http"
	"net/netip"
	"strings"
	"time"

	"driftregistry.org/internal/authz"
)

type authorizeContext struct {
	Time       string            `json:"time"`
	SourceAddr string            `json:"source_addr"`
	Attributes map[string]string `json:"attributes"`
}

type authorizeRequest struct {
	Subject      string           `json:"subject"`
	ResourceType string           `json:"resource_type"`
	Resource     string           `json:"resource"`
	Action       string           `json:"action"`
	Context      authorizeContext `json:"context"`
}

func (a *API) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req authorizeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Subject) == "" {
		writeError(w, r, http.StatusBadRequest, "subject is required")
		return
	}
	resource := authz.ResourceType(req.ResourceType)
	if !resource.Valid() {
		writeError(w, r, http.StatusBadRequest, "unknown resource_type")
		return
	}
	action := authz.Action(req.Action)
	if !action.Valid() {
		writeError(w, r, http.StatusBadRequest, "unknown action")
		return
	}

	rctx := authz.RequestContext{
		Attributes: req.Context.Attributes,
	}
	if req.Context.Time != "" {
		ts, err := time.Parse(time.RFC3339, req.Context.Time)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "context.time must be RFC3339")
			return
		}
		rctx.Time = ts
	}
	if req.Context.SourceAddr != "" {
		addr, err := netip.ParseAddr(req.Context.SourceAddr)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "context.source_addr must be an IP address")
			return
		}
		rctx.SourceAddr = addr
	}

	dec := a.svc.Authorize(r.Context(), req.Subject, req.Resource, resource, action, rctx)
	writeJSON(w, http.StatusOK, dec)
}
