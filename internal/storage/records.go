package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// UpsertRecord inserts r or replaces the record with the same kind and id.
func (s *SQLiteStore) UpsertRecord(ctx context.Context, r *Record) error {
	if r.Kind == "" || r.ID == "" {
		return errors.New("storage: record kind and id are required")
	}
	if r.CreatedAtUnixMs == 0 {
		r.CreatedAtUnixMs = time.Now().UnixMilli()
	}
	if r.Status == "" {
		r.Status = "active"
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO records (kind, id, name, description, status, owner_id, created_at_unix_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(kind, id) DO UPDATE SET
		  name = excluded.name,
		  description = excluded.description,
		  status = excluded.status,
		  owner_id = excluded.owner_id
	`, r.Kind, r.ID, r.Name, r.Description, r.Status, r.OwnerID, r.CreatedAtUnixMs)
	if err != nil {
		return fmt.Errorf("failed to upsert record: %w", err)
	}
	return nil
}

// GetRecord returns the record of kind with id, or ErrNotFound.
func (s *SQLiteStore) GetRecord(ctx context.Context, kind, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT kind, id, name, description, status, owner_id, created_at_unix_ms
		FROM records
		WHERE kind = ? AND id = ?
	`, kind, id)

	var r Record
	err := row.Scan(&r.Kind, &r.ID, &r.Name, &r.Description, &r.Status, &r.OwnerID, &r.CreatedAtUnixMs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return &r, nil
}

// CountRecords returns the number of records of kind.
func (s *SQLiteStore) CountRecords(ctx context.Context, kind string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records WHERE kind = ?`, kind).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return n, nil
}

// SearchRecords returns one page of records ordered by name. A page past the
// end yields no items but still reports the real last page.
func (s *SQLiteStore) SearchRecords(ctx context.Context, q SearchQuery) (*SearchResult, error) {
	perPage := q.PerPage
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	page := max(q.Page, 1)

	where := " WHERE kind = ?"
	args := []any{q.Kind}

	if text := strings.TrimSpace(q.Text); text != "" {
		where += ` AND (name LIKE ? ESCAPE '\' OR description LIKE ? ESCAPE '\')`
		pattern := "%" + escapeLike(text) + "%"
		args = append(args, pattern, pattern)
	}

	if q.Status != "" {
		where += " AND status = ?"
		args = append(args, q.Status)
	}

	if q.OwnerID != "" {
		where += " AND owner_id = ?"
		args = append(args, q.OwnerID)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM records"+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count records: %w", err)
	}

	query := `
		SELECT kind, id, name, description, status, owner_id, created_at_unix_ms
		FROM records` + where + `
		ORDER BY name COLLATE NOCASE, id
		LIMIT ? OFFSET ?
	`
	args = append(args, perPage, (page-1)*perPage)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	res := &SearchResult{
		Items:       make([]Record, 0, perPage),
		CurrentPage: page,
		LastPage:    lastPage(total, perPage),
		Total:       total,
	}
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.Kind, &r.ID, &r.Name, &r.Description, &r.Status, &r.OwnerID, &r.CreatedAtUnixMs); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		res.Items = append(res.Items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}

	return res, nil
}

// lastPage is at least 1 so an empty result still has a page 1.
func lastPage(total, perPage int) int {
	if total <= 0 {
		return 1
	}
	return (total + perPage - 1) / perPage
}

// escapeLike escapes LIKE wildcards so user text matches literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
