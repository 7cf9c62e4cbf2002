package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"driftregistry.org/internal/audit"
)

// handleAuditQuery serves filtered, paginated reads over persisted decision
// records.
func (a *API) handleAuditQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if a.auditor == nil {
		writeError(w, r, http.StatusServiceUnavailable, "audit store unavailable")
		return
	}
	if !a.ensureAdmin(w, r) {
		return
	}

	q, err := auditQueryFromRequest(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	result, err := a.auditor.Query(r.Context(), q)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "audit query failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func auditQueryFromRequest(r *http.Request) (audit.Query, error) {
	values := r.URL.Query()
	q := audit.Query{
		Subject:  strings.TrimSpace(values.Get("subject")),
		Resource: strings.TrimSpace(values.Get("resource")),
	}

	if raw := strings.TrimSpace(values.Get("allow")); raw != "" {
		allow, err := strconv.ParseBool(raw)
		if err != nil {
			return audit.Query{}, errors.New("allow must be a boolean")
		}
		q.Allow = &allow
	}
	if raw := strings.TrimSpace(values.Get("from")); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return audit.Query{}, errors.New("from must be RFC3339")
		}
		q.From = ts
	}
	if raw := strings.TrimSpace(values.Get("to")); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return audit.Query{}, errors.New("to must be RFC3339")
		}
		q.To = ts
	}

	var err error
	if q.Page, err = parsePositiveInt(values.Get("page"), 1); err != nil {
		return audit.Query{}, errors.New("page must be a positive integer")
	}
	if q.PageSize, err = parsePositiveInt(values.Get("page_size"), 0); err != nil {
		return audit.Query{}, errors.New("page_size must be a positive integer")
	}
	return q, nil
}

func parsePositiveInt(raw string, def int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val < 1 {
		return 0, errors.New("must be a positive integer")
	}
	return val, nil
}
