package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"boardflow-api/domain"
)

// ErrTaskNotFound is returned when a position operation references a task
// that does not exist.
var ErrTaskNotFound = errors.New("task not found")

// ReorderItem is one explicit (task, position) assignment for BulkReorder.
type ReorderItem struct {
	TaskID   string `json:"taskId"`
	Position int    `json:"position"`
}

func samePartition(a, b domain.Partition) bool {
	if a.ColumnID != b.ColumnID {
		return false
	}
	if a.SwimlaneID == nil || b.SwimlaneID == nil {
		return a.SwimlaneID == b.SwimlaneID
	}
	return *a.SwimlaneID == *b.SwimlaneID
}

// nextPosition returns max(position)+1 for the partition, or 0 when it is
// empty. It must run inside the transaction of the insert it serves.
func nextPosition(ctx context.Context, exec executor, p domain.Partition) (int, error) {
	var pos int
	err := exec.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(position) + 1, 0) FROM tasks
		WHERE column_id = ? AND swimlane_id IS ?`,
		p.ColumnID, swimArg(p)).Scan(&pos)
	if err != nil {
		return 0, fmt.Errorf("next position: %w", err)
	}
	return pos, nil
}

// NextPosition returns the append position for a partition.
func (s *Storage) NextPosition(ctx context.Context, p domain.Partition) (int, error) {
	return nextPosition(ctx, s.db, p)
}

// MovePartition moves a task within its partition or across partitions,
// keeping both partitions contiguous. targetPos is clamped to the valid
// range. All shifts happen in one transaction; any failure rolls the
// partitions back to their pre-call state.
func (s *Storage) MovePartition(ctx context.Context, taskID string, to domain.Partition, targetPos int) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var from domain.Partition
		var swimlane sql.NullString
		var cur int
		err := tx.QueryRowContext(ctx,
			`SELECT column_id, swimlane_id, position FROM tasks WHERE id = ?`, taskID).
			Scan(&from.ColumnID, &swimlane, &cur)
		if err == sql.ErrNoRows {
			return fmt.Errorf("move task %s: %w", taskID, ErrTaskNotFound)
		}
		if err != nil {
			return fmt.Errorf("load task %s: %w", taskID, err)
		}
		if swimlane.Valid {
			from.SwimlaneID = &swimlane.String
		}

		if samePartition(from, to) {
			return reorderWithin(ctx, tx, taskID, from, cur, targetPos)
		}
		return moveAcross(ctx, tx, taskID, from, to, cur, targetPos)
	})
}

// reorderWithin shifts the tasks between the old and new position by one
// and drops the moved task into the freed slot.
func reorderWithin(ctx context.Context, tx *sql.Tx, taskID string, p domain.Partition, cur, target int) error {
	var count int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tasks WHERE column_id = ? AND swimlane_id IS ?`,
		p.ColumnID, swimArg(p)).Scan(&count); err != nil {
		return fmt.Errorf("count partition: %w", err)
	}
	target = clamp(target, 0, count-1)
	if target == cur {
		return nil
	}

	if target > cur {
		_, err := tx.ExecContext(ctx, `
			UPDATE tasks SET position = position - 1
			WHERE column_id = ? AND swimlane_id IS ? AND position > ? AND position <= ?`,
			p.ColumnID, swimArg(p), cur, target)
		if err != nil {
			return fmt.Errorf("shift down: %w", err)
		}
	} else {
		_, err := tx.ExecContext(ctx, `
			UPDATE tasks SET position = position + 1
			WHERE column_id = ? AND swimlane_id IS ? AND position >= ? AND position < ?`,
			p.ColumnID, swimArg(p), target, cur)
		if err != nil {
			return fmt.Errorf("shift up: %w", err)
		}
	}

	_, err := tx.ExecContext(ctx, `UPDATE tasks SET position = ? WHERE id = ?`, target, taskID)
	if err != nil {
		return fmt.Errorf("place task: %w", err)
	}
	return nil
}

// moveAcross closes the gap in the source partition, opens a slot in the
// target partition and reassigns the task.
func moveAcross(ctx context.Context, tx *sql.Tx, taskID string, from, to domain.Partition, cur, target int) error {
	var count int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tasks WHERE column_id = ? AND swimlane_id IS ?`,
		to.ColumnID, swimArg(to)).Scan(&count); err != nil {
		return fmt.Errorf("count target partition: %w", err)
	}
	target = clamp(target, 0, count)

	_, err := tx.ExecContext(ctx, `
		UPDATE tasks SET position = position - 1
		WHERE column_id = ? AND swimlane_id IS ? AND position > ?`,
		from.ColumnID, swimArg(from), cur)
	if err != nil {
		return fmt.Errorf("close gap: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE tasks SET position = position + 1
		WHERE column_id = ? AND swimlane_id IS ? AND position >= ?`,
		to.ColumnID, swimArg(to), target)
	if err != nil {
		return fmt.Errorf("open slot: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE tasks SET column_id = ?, swimlane_id = ?, position = ? WHERE id = ?`,
		to.ColumnID, swimArg(to), target, taskID)
	if err != nil {
		return fmt.Errorf("place task: %w", err)
	}
	return nil
}

// Compact renumbers a partition to 0..n-1 preserving relative order. Used
// after a removal that was not paired with a re-insertion.
func (s *Storage) Compact(ctx context.Context, p domain.Partition) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT id FROM tasks
			WHERE column_id = ? AND swimlane_id IS ?
			ORDER BY position`, p.ColumnID, swimArg(p))
		if err != nil {
			return fmt.Errorf("list partition: %w", err)
		}
		var ids []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			ids = append(ids, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for i, id := range ids {
			if _, err := tx.ExecContext(ctx,
				`UPDATE tasks SET position = ? WHERE id = ?`, i, id); err != nil {
				return fmt.Errorf("renumber task %s: %w", id, err)
			}
		}
		return nil
	})
}

// BulkReorder applies explicit position assignments within one partition
// as a single transaction. The caller is responsible for supplying a
// valid permutation; contiguity is not verified here.
func (s *Storage) BulkReorder(ctx context.Context, p domain.Partition, items []ReorderItem) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, it := range items {
			res, err := tx.ExecContext(ctx, `
				UPDATE tasks SET position = ?
				WHERE id = ? AND column_id = ? AND swimlane_id IS ?`,
				it.Position, it.TaskID, p.ColumnID, swimArg(p))
			if err != nil {
				return fmt.Errorf("reorder task %s: %w", it.TaskID, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			if n == 0 {
				return fmt.Errorf("reorder task %s: %w", it.TaskID, ErrTaskNotFound)
			}
		}
		return nil
	})
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		hi = lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
