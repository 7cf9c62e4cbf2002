package audit

import (
	"context"
	"time"
)

// Record is one immutable authorization decision with its justification.
// Records are ordered by timestamp and never rewritten once persisted.
type Record struct {
	ID           string    `json:"id"`
	Time         time.Time `json:"time"`
	Subject      string    `json:"subject"`
	Resource     string    `json:"resource"`
	ResourceType string    `json:"resource_type"`
	Action       string    `json:"action"`
	Allow        bool      `json:"allow"`
	Reason       string    `json:"reason"`
	RoleID       string    `json:"role_id,omitempty"`
	AssignmentID string    `json:"assignment_id,omitempty"`
	Scope        string    `json:"scope"`
	Source       string    `json:"source,omitempty"`
}

// Sink persists batches of records.
type Sink interface {
	Write(ctx context.Context, batch []Record) error
}

// Query filters an audit read. Zero values leave a dimension unfiltered.
type Query struct {
	Subject  string
	Resource string
	Allow    *bool
	From     time.Time
	To       time.Time
	Page     int
	PageSize int
}

// PagingInfo describes the window a Result covers.
type PagingInfo struct {
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	PrevPage int  `json:"prev_page,omitempty"`
	NextPage int  `json:"next_page,omitempty"`
	HasNext  bool `json:"has_next"`
}

// Result is one page of matching records.
type Result struct {
	Records []Record   `json:"records"`
	Paging  PagingInfo `json:"paging"`
}

// Querier reads persisted records back for operational tooling.
type Querier interface {
	Query(ctx context.Context, q Query) (Result, error)
}

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// Normalize clamps pagination to sane bounds.
func (q *Query) Normalize() {
	if q.PageSize <= 0 {
		q.PageSize = defaultPageSize
	}
	if q.PageSize > maxPageSize {
		q.PageSize = maxPageSize
	}
	if q.Page <= 0 {
		q.Page = 1
	}
}

// Matches reports whether a record passes the query's filters.
func (q Query) Matches(rec Record) bool {
	if q.Subject != "" && rec.Subject != q.Subject {
		return false
	}
	if q.Resource != "" && rec.Resource != q.Resource {
		return false
	}
	if q.Allow != nil && rec.Allow != *q.Allow {
		return false
	}
	if !q.From.IsZero() && rec.Time.Before(q.From) {
		return false
	}
	if !q.To.IsZero() && rec.Time.After(q.To) {
		return false
	}
	return true
}

// paging builds PagingInfo from a normalized query and a has-next probe.
func paging(q Query, hasNext bool) PagingInfo {
	info := PagingInfo{Page: q.Page, PageSize: q.PageSize, HasNext: hasNext}
	if q.Page > 1 {
		info.PrevPage = q.Page - 1
	}
	if hasNext {
		info.NextPage = q.Page + 1
	}
	return info
}
