package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/seantiz/vexing/internal/model"
)

// PutStoredRequest inserts or replaces a stored request.
func (c *Client) PutStoredRequest(ctx context.Context, sr *model.StoredRequest) error {
	if sr.UpdatedAt.IsZero() {
		sr.UpdatedAt = time.Now().UTC()
	}
	_, err := c.db.ExecContext(ctx, c.Rebind(
		`INSERT INTO stored_requests (kind, id, data, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (kind, id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`),
		sr.Kind, sr.ID, string(sr.Data), sr.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert stored request: %w", err)
	}
	return nil
}

// GetStoredRequest retrieves a stored request by kind and ID.
func (c *Client) GetStoredRequest(ctx context.Context, kind, id string) (*model.StoredRequest, error) {
	sr := &model.StoredRequest{}
	var data string
	err := c.db.QueryRowContext(ctx, c.Rebind(
		`SELECT kind, id, data, updated_at FROM stored_requests WHERE kind = ? AND id = ?`),
		kind, id,
	).Scan(&sr.Kind, &sr.ID, &data, &sr.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get stored request: %w", err)
	}
	sr.Data = json.RawMessage(data)
	return sr, nil
}

// ListStoredRequests returns a page of stored requests of the given kind (all
// kinds when empty) ordered by kind and ID, along with the total count.
func (c *Client) ListStoredRequests(ctx context.Context, kind string, limit, offset int) ([]*model.StoredRequest, int, error) {
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, 0, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()

	where := ""
	args := []any{}
	if kind != "" {
		where = " WHERE kind = ?"
		args = append(args, kind)
	}

	var total int
	if err := tx.QueryRowContext(ctx, c.Rebind("SELECT COUNT(*) FROM stored_requests"+where), args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count stored requests: %w", err)
	}

	rows, err := tx.QueryContext(ctx, c.Rebind(
		"SELECT kind, id, data, updated_at FROM stored_requests"+where+" ORDER BY kind, id LIMIT ? OFFSET ?"),
		append(args, limit, offset)...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list stored requests: %w", err)
	}
	defer rows.Close()

	var out []*model.StoredRequest
	for rows.Next() {
		sr := &model.StoredRequest{}
		var data string
		if err := rows.Scan(&sr.Kind, &sr.ID, &data, &sr.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan stored request: %w", err)
		}
		sr.Data = json.RawMessage(data)
		out = append(out, sr)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate stored requests: %w", err)
	}

	return out, total, nil
}

// DeleteStoredRequest removes a stored request.
func (c *Client) DeleteStoredRequest(ctx context.Context, kind, id string) error {
	result, err := c.db.ExecContext(ctx, c.Rebind(
		"DELETE FROM stored_requests WHERE kind = ? AND id = ?"), kind, id)
	if err != nil {
		return fmt.Errorf("delete stored request: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
