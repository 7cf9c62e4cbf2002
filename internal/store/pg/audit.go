package pg

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"driftregistry.org/internal/audit"
)

var (
	_ audit.Sink    = (*Store)(nil)
	_ audit.Querier = (*Store)(nil)
)

// Write inserts a batch inside one transaction so a partial flush never
// persists.
func (s *Store) Write(ctx context.Context, batch []audit.Record) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	if len(batch) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, rec := range batch {
		if _, err := tx.ExecContext(ctx, `
			insert into audit_records
				(id, occurred_at, subject, resource, resource_type, action,
				 allowed, reason, role_id, assignment_id, scope, source)
			values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		`,
			rec.ID, rec.Time, rec.Subject, rec.Resource, rec.ResourceType, rec.Action,
			rec.Allow, rec.Reason, rec.RoleID, rec.AssignmentID, rec.Scope, rec.Source,
		); err != nil {
			return fmt.Errorf("insert audit record %s: %w", rec.ID, err)
		}
	}
	return tx.Commit()
}

// Query reads one page of records matching the filters, ordered by
// timestamp. One extra row is fetched to decide has-next.
func (s *Store) Query(ctx context.Context, q audit.Query) (audit.Result, error) {
	if s.db == nil {
		return audit.Result{}, errors.New("database connection unavailable")
	}
	q.Normalize()

	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if q.Subject != "" {
		where = append(where, "subject = "+arg(q.Subject))
	}
	if q.Resource != "" {
		where = append(where, "resource = "+arg(q.Resource))
	}
	if q.Allow != nil {
		where = append(where, "allowed = "+arg(*q.Allow))
	}
	if !q.From.IsZero() {
		where = append(where, "occurred_at >= "+arg(q.From))
	}
	if !q.To.IsZero() {
		where = append(where, "occurred_at <= "+arg(q.To))
	}

	query := `
		select id, occurred_at, subject, resource, resource_type, action,
		       allowed, reason, role_id, assignment_id, scope, source
		from audit_records`
	if len(where) > 0 {
		query += " where " + strings.Join(where, " and ")
	}
	query += " order by occurred_at, id"
	query += " limit " + arg(q.PageSize+1)
	query += " offset " + arg((q.Page-1)*q.PageSize)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return audit.Result{}, err
	}
	defer rows.Close()

	records := make([]audit.Record, 0, q.PageSize)
	hasNext := false
	for rows.Next() {
		var rec audit.Record
		if err := rows.Scan(
			&rec.ID, &rec.Time, &rec.Subject, &rec.Resource, &rec.ResourceType, &rec.Action,
			&rec.Allow, &rec.Reason, &rec.RoleID, &rec.AssignmentID, &rec.Scope, &rec.Source,
		); err != nil {
			return audit.Result{}, err
		}
		if len(records) == q.PageSize {
			hasNext = true
			break
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return audit.Result{}, err
	}

	result := audit.Result{Records: records}
	result.Paging = audit.PagingInfo{Page: q.Page, PageSize: q.PageSize, HasNext: hasNext}
	if q.Page > 1 {
		result.Paging.PrevPage = q.Page - 1
	}
	if hasNext {
		result.Paging.NextPage = q.Page + 1
	}
	return result, nil
}
