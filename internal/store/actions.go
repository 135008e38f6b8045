package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

const actionColumns = `id, type, target_id, destination, metadata, direction,
	priority, status, retry_count, last_error, not_before, created_at`

const (
	sqlInsertAction = `INSERT INTO actions (type, target_id, destination, metadata,
		direction, priority, status, retry_count, last_error, not_before, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 'pending', 0, '', 0, ?)`

	sqlGetActionByTarget = `SELECT ` + actionColumns + `
		FROM actions WHERE target_id = ? AND type = ? AND status IN ('pending', 'processing')`

	sqlClaimNext = `SELECT ` + actionColumns + `
		FROM actions
		WHERE status = 'pending' AND not_before <= ?
		ORDER BY priority DESC, created_at ASC
		LIMIT 1`

	sqlMarkProcessing = `UPDATE actions SET status = 'processing' WHERE id = ? AND status = 'pending'`

	sqlCompleteAction = `UPDATE actions SET status = 'completed' WHERE id = ?`

	sqlFailAction = `UPDATE actions
		SET status = ?, retry_count = retry_count + 1, last_error = ?, not_before = ?
		WHERE id = ?`

	sqlCancelAction = `DELETE FROM actions WHERE target_id = ? AND status IN ('pending', 'processing')`

	sqlCountPending = `SELECT COUNT(*) FROM actions WHERE status IN ('pending', 'processing')`
)

func (s *Store) actionStmtDefs() []stmtDef {
	return []stmtDef{
		{&s.actionStmts.insert, sqlInsertAction, "insertAction"},
		{&s.actionStmts.getByTarget, sqlGetActionByTarget, "getActionByTarget"},
		{&s.actionStmts.claimNext, sqlClaimNext, "claimNextAction"},
		{&s.actionStmts.complete, sqlCompleteAction, "completeAction"},
		{&s.actionStmts.fail, sqlFailAction, "failAction"},
		{&s.actionStmts.cancel, sqlCancelAction, "cancelAction"},
		{&s.actionStmts.countPending, sqlCountPending, "countPendingActions"},
	}
}

func scanAction(row interface{ Scan(...any) error }) (*Action, error) {
	a := &Action{}

	err := row.Scan(
		&a.ID, &a.Type, &a.TargetID, &a.Destination, &a.Metadata, &a.Direction,
		&a.Priority, &a.Status, &a.RetryCount, &a.LastError, &a.NotBefore, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return a, nil
}

// Enqueue inserts a new action, or coalesces with an already-pending action
// against the same target and type (spec.md section 4.3: "coalescing
// happens at enqueue time under the same transaction that decided a new
// action was needed, not as a later pass"). Coalescing keeps the existing
// row's priority if it is already higher, and refreshes destination/metadata
// to the latest intent (e.g. a second rename supersedes the first).
func (s *Store) Enqueue(ctx context.Context, a *Action) (int64, error) {
	var id int64

	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		// A full upload carries the file's whole content, so it supersedes
		// any update_content still pending for the same target.
		if a.Type == ActionUpload {
			if _, err := tx.ExecContext(ctx, `DELETE FROM actions WHERE target_id = ? AND type = ? AND status = 'pending'`,
				a.TargetID, ActionUpdateContent); err != nil {
				return fmt.Errorf("supersede update_content: %w", err)
			}
		}

		existing, err := scanAction(tx.QueryRowContext(ctx, sqlGetActionByTarget, a.TargetID, a.Type))

		switch {
		case errors.Is(err, sql.ErrNoRows):
			now := NowNano()

			res, insertErr := tx.ExecContext(ctx, sqlInsertAction,
				a.Type, a.TargetID, a.Destination, a.Metadata, a.Direction, a.Priority, now)
			if insertErr != nil {
				return fmt.Errorf("insert action: %w", insertErr)
			}

			id, err = res.LastInsertId()
			if err != nil {
				return fmt.Errorf("read inserted action id: %w", err)
			}

			return nil

		case err != nil:
			return fmt.Errorf("check existing action: %w", err)

		default:
			id = existing.ID
			priority := existing.Priority
			if a.Priority > priority {
				priority = a.Priority
			}

			_, updErr := tx.ExecContext(ctx,
				`UPDATE actions SET destination = ?, metadata = ?, priority = ?, direction = ?
				 WHERE id = ?`,
				a.Destination, a.Metadata, priority, a.Direction, existing.ID)
			if updErr != nil {
				return fmt.Errorf("coalesce action: %w", updErr)
			}

			return nil
		}
	})
	if err != nil {
		return 0, fmt.Errorf("store: enqueue action for %s: %w", a.TargetID, err)
	}

	return id, nil
}

// ClaimNext atomically selects and marks "processing" the highest-priority
// eligible pending action (priority desc, then FIFO by created_at),
// returning (nil, nil) if the queue is empty.
func (s *Store) ClaimNext(ctx context.Context) (*Action, error) {
	var claimed *Action

	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		a, err := scanAction(tx.QueryRowContext(ctx, sqlClaimNext, NowNano()))
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}

		if err != nil {
			return fmt.Errorf("select next action: %w", err)
		}

		res, err := tx.ExecContext(ctx, sqlMarkProcessing, a.ID)
		if err != nil {
			return fmt.Errorf("mark processing: %w", err)
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("read rows affected: %w", err)
		}

		if affected == 0 {
			// Lost the race to another claimer; caller retries.
			return nil
		}

		a.Status = ActionProcessing
		claimed = a

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: claim next action: %w", err)
	}

	return claimed, nil
}

// ClaimNextByTypes behaves like ClaimNext but restricts eligible actions to
// the given set of types, so the metadata worker can claim only short,
// latency-sensitive actions (list_children, rename, move, ensure_latest)
// while IO workers claim everything else (spec.md section 5: "a dedicated
// metadata worker that handles short, latency-sensitive operations").
func (s *Store) ClaimNextByTypes(ctx context.Context, types []ActionType) (*Action, error) {
	if len(types) == 0 {
		return nil, fmt.Errorf("store: claim next by types: empty type set")
	}

	placeholders := make([]string, len(types))
	args := make([]any, 0, len(types)+1)
	args = append(args, NowNano())

	for i, t := range types {
		placeholders[i] = "?"
		args = append(args, t)
	}

	query := `SELECT ` + actionColumns + `
		FROM actions
		WHERE status = 'pending' AND not_before <= ? AND type IN (` + strings.Join(placeholders, ",") + `)
		ORDER BY priority DESC, created_at ASC
		LIMIT 1`

	var claimed *Action

	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		a, err := scanAction(tx.QueryRowContext(ctx, query, args...))
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}

		if err != nil {
			return fmt.Errorf("select next action by types: %w", err)
		}

		res, err := tx.ExecContext(ctx, sqlMarkProcessing, a.ID)
		if err != nil {
			return fmt.Errorf("mark processing: %w", err)
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("read rows affected: %w", err)
		}

		if affected == 0 {
			// Lost the race to another claimer; caller retries.
			return nil
		}

		a.Status = ActionProcessing
		claimed = a

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: claim next action by types: %w", err)
	}

	return claimed, nil
}

// Complete marks an action as completed.
func (s *Store) Complete(ctx context.Context, id int64) error {
	if _, err := s.actionStmts.complete.ExecContext(ctx, id); err != nil {
		return fmt.Errorf("store: complete action %d: %w", id, err)
	}

	return nil
}

// Fail records a failed attempt. If retryCount+1 has not reached maxRetries,
// the action returns to pending with notBefore gating the next attempt
// (backoff computed by the caller, typically via go-retry); otherwise it is
// marked permanently failed.
func (s *Store) Fail(ctx context.Context, id int64, errMsg string, notBefore int64, retryCount, maxRetries int) error {
	status := ActionPending
	if retryCount+1 >= maxRetries {
		status = ActionFailed
	}

	if _, err := s.actionStmts.fail.ExecContext(ctx, status, errMsg, notBefore, id); err != nil {
		return fmt.Errorf("store: fail action %d: %w", id, err)
	}

	return nil
}

// Cancel removes any pending or processing action against targetID. Used
// when a delete makes a queued upload/rename moot.
func (s *Store) Cancel(ctx context.Context, targetID string) error {
	if _, err := s.actionStmts.cancel.ExecContext(ctx, targetID); err != nil {
		return fmt.Errorf("store: cancel actions for %s: %w", targetID, err)
	}

	return nil
}

// CountPending returns the number of actions still pending or processing,
// used by the control server's /status endpoint and the queue-depth metric.
func (s *Store) CountPending(ctx context.Context) (int, error) {
	var n int

	if err := s.actionStmts.countPending.QueryRowContext(ctx).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count pending actions: %w", err)
	}

	return n, nil
}

// ListFailed returns all actions that exhausted their retry budget. No
// command or endpoint displays them; tests use it to inspect failures.
func (s *Store) ListFailed(ctx context.Context) ([]*Action, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+actionColumns+` FROM actions WHERE status = 'failed'`)
	if err != nil {
		return nil, fmt.Errorf("store: list failed actions: %w", err)
	}
	defer rows.Close()

	var out []*Action

	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan action row: %w", err)
		}

		out = append(out, a)
	}

	return out, rows.Err()
}
