package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/weftworks/weft/internal/domain/model/thread"
	"github.com/weftworks/weft/internal/domain/repository"
	"github.com/weftworks/weft/internal/infrastructure/transaction"
)

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// ThreadRepositoryImpl is the SQLite-backed thread registry.
type ThreadRepositoryImpl struct {
	db *sql.DB
}

// NewThreadRepository creates a new thread repository
func NewThreadRepository(db *sql.DB) *ThreadRepositoryImpl {
	return &ThreadRepositoryImpl{db: db}
}

// getDB returns the transaction from context if present, otherwise the
// plain connection.
func (r *ThreadRepositoryImpl) getDB(ctx context.Context) dbtx {
	if tx, ok := transaction.GetTxFromContext(ctx); ok {
		return tx
	}
	return r.db
}

const threadColumns = `thread_id, directive, parent_thread_id, status, suspend_reason,
	limits_json, cost_json, capabilities_json, result, error_text, escalation_json,
	created_at, updated_at`

// Register inserts a new thread record.
func (r *ThreadRepositoryImpl) Register(ctx context.Context, t *thread.Thread) error {
	limitsJSON, costJSON, capsJSON, escJSON, err := marshalThread(t)
	if err != nil {
		return err
	}
	_, err = r.getDB(ctx).ExecContext(ctx, `
		INSERT INTO threads (`+threadColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID(), t.Directive(), nullable(t.ParentID()), string(t.Status()), string(t.SuspendReason()),
		limitsJSON, costJSON, capsJSON, t.Result(), t.ErrorText(), escJSON,
		t.CreatedAt(), t.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("register thread %s: %w", t.ID(), err)
	}
	return nil
}

// Save persists the thread's full current state over the existing row.
func (r *ThreadRepositoryImpl) Save(ctx context.Context, t *thread.Thread) error {
	limitsJSON, costJSON, capsJSON, escJSON, err := marshalThread(t)
	if err != nil {
		return err
	}
	res, err := r.getDB(ctx).ExecContext(ctx, `
		UPDATE threads
		SET status = ?, suspend_reason = ?, limits_json = ?, cost_json = ?,
		    capabilities_json = ?, result = ?, error_text = ?, escalation_json = ?,
		    updated_at = ?
		WHERE thread_id = ?`,
		string(t.Status()), string(t.SuspendReason()), limitsJSON, costJSON,
		capsJSON, t.Result(), t.ErrorText(), escJSON,
		t.UpdatedAt(), t.ID(),
	)
	if err != nil {
		return fmt.Errorf("save thread %s: %w", t.ID(), err)
	}
	return requireRow(res, t.ID())
}

// UpdateStatus transitions the stored row, enforcing lifecycle rules.
func (r *ThreadRepositoryImpl) UpdateStatus(ctx context.Context, id string, status thread.Status, reason thread.SuspendReason) error {
	current, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := current.TransitionTo(status, reason, time.Now()); err != nil {
		return err
	}
	res, err := r.getDB(ctx).ExecContext(ctx, `
		UPDATE threads SET status = ?, suspend_reason = ?, updated_at = ?
		WHERE thread_id = ?`,
		string(current.Status()), string(current.SuspendReason()), current.UpdatedAt(), id,
	)
	if err != nil {
		return fmt.Errorf("update status of thread %s: %w", id, err)
	}
	return requireRow(res, id)
}

// Get loads one thread by id.
func (r *ThreadRepositoryImpl) Get(ctx context.Context, id string) (*thread.Thread, error) {
	row := r.getDB(ctx).QueryRowContext(ctx,
		`SELECT `+threadColumns+` FROM threads WHERE thread_id = ?`, id)
	t, err := scanThread(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", repository.ErrThreadNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get thread %s: %w", id, err)
	}
	return t, nil
}

// ListActive returns every thread in a non-terminal status.
func (r *ThreadRepositoryImpl) ListActive(ctx context.Context) ([]*thread.Thread, error) {
	return r.list(ctx, `SELECT `+threadColumns+` FROM threads
		WHERE status IN ('running', 'suspended') ORDER BY created_at`)
}

// ListChildren returns the direct children of a thread.
func (r *ThreadRepositoryImpl) ListChildren(ctx context.Context, parentID string) ([]*thread.Thread, error) {
	return r.list(ctx, `SELECT `+threadColumns+` FROM threads
		WHERE parent_thread_id = ? ORDER BY created_at`, parentID)
}

// SetResult finalizes cost and result text for a thread.
func (r *ThreadRepositoryImpl) SetResult(ctx context.Context, id string, cost thread.Cost, result, errorText string) error {
	costJSON, err := json.Marshal(cost)
	if err != nil {
		return fmt.Errorf("marshal cost: %w", err)
	}
	res, err := r.getDB(ctx).ExecContext(ctx, `
		UPDATE threads SET cost_json = ?, result = ?, error_text = ?, updated_at = ?
		WHERE thread_id = ?`,
		string(costJSON), result, errorText, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("set result of thread %s: %w", id, err)
	}
	return requireRow(res, id)
}

func (r *ThreadRepositoryImpl) list(ctx context.Context, query string, args ...interface{}) ([]*thread.Thread, error) {
	rows, err := r.getDB(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	defer rows.Close()

	var threads []*thread.Thread
	for rows.Next() {
		t, err := scanThread(rows)
		if err != nil {
			return nil, fmt.Errorf("scan thread: %w", err)
		}
		threads = append(threads, t)
	}
	return threads, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanThread(row rowScanner) (*thread.Thread, error) {
	var (
		id, directive, status, suspendReason      string
		parentID, escJSON                         sql.NullString
		limitsJSON, costJSON, capsJSON            string
		result, errorText                         string
		createdAt, updatedAt                      time.Time
	)
	if err := row.Scan(&id, &directive, &parentID, &status, &suspendReason,
		&limitsJSON, &costJSON, &capsJSON, &result, &errorText, &escJSON,
		&createdAt, &updatedAt); err != nil {
		return nil, err
	}

	var limits thread.Limits
	if err := json.Unmarshal([]byte(limitsJSON), &limits); err != nil {
		return nil, fmt.Errorf("unmarshal limits: %w", err)
	}
	var cost thread.Cost
	if err := json.Unmarshal([]byte(costJSON), &cost); err != nil {
		return nil, fmt.Errorf("unmarshal cost: %w", err)
	}
	var caps []string
	if err := json.Unmarshal([]byte(capsJSON), &caps); err != nil {
		return nil, fmt.Errorf("unmarshal capabilities: %w", err)
	}
	var escalation *thread.Escalation
	if escJSON.Valid && escJSON.String != "" {
		escalation = &thread.Escalation{}
		if err := json.Unmarshal([]byte(escJSON.String), escalation); err != nil {
			return nil, fmt.Errorf("unmarshal escalation: %w", err)
		}
	}

	return thread.ReconstructThread(
		id, directive, parentID.String,
		thread.Status(status), thread.SuspendReason(suspendReason),
		limits, cost, caps, result, errorText, escalation,
		createdAt, updatedAt,
	), nil
}

func marshalThread(t *thread.Thread) (limitsJSON, costJSON, capsJSON string, escJSON interface{}, err error) {
	limits, err := json.Marshal(t.Limits())
	if err != nil {
		return "", "", "", nil, fmt.Errorf("marshal limits: %w", err)
	}
	cost, err := json.Marshal(t.Cost())
	if err != nil {
		return "", "", "", nil, fmt.Errorf("marshal cost: %w", err)
	}
	caps, err := json.Marshal(t.Capabilities())
	if err != nil {
		return "", "", "", nil, fmt.Errorf("marshal capabilities: %w", err)
	}
	escJSON = nil
	if esc := t.Escalation(); esc != nil {
		data, err := json.Marshal(esc)
		if err != nil {
			return "", "", "", nil, fmt.Errorf("marshal escalation: %w", err)
		}
		escJSON = string(data)
	}
	return string(limits), string(cost), string(caps), escJSON, nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", repository.ErrThreadNotFound, id)
	}
	return nil
}
