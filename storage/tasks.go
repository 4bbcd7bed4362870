package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"boardflow-api/domain"
)

const taskColumns = `id, board_id, column_id, swimlane_id, title, status, priority, position,
	assignee_id, due_date, completed_at, parent_id, created_by, created_at, updated_at`

func scanTask(row interface{ Scan(...any) error }) (*domain.Task, error) {
	t := &domain.Task{}
	var swimlane, assignee, parent sql.NullString
	var due, completed sql.NullTime
	err := row.Scan(
		&t.ID, &t.BoardID, &t.ColumnID, &swimlane, &t.Title, &t.Status, &t.Priority, &t.Position,
		&assignee, &due, &completed, &parent, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if swimlane.Valid {
		t.SwimlaneID = &swimlane.String
	}
	if assignee.Valid {
		t.AssigneeID = &assignee.String
	}
	if due.Valid {
		d := due.Time
		t.DueDate = &d
	}
	if completed.Valid {
		c := completed.Time
		t.CompletedAt = &c
	}
	if parent.Valid {
		t.ParentID = &parent.String
	}
	return t, nil
}

func queryTasks(ctx context.Context, exec executor, query string, args ...any) ([]domain.Task, error) {
	rows, err := exec.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return tasks, nil
}

func swimArg(p domain.Partition) any {
	if p.SwimlaneID == nil {
		return nil
	}
	return *p.SwimlaneID
}

// CreateTask inserts a new task appended at the end of its partition. The
// next position is computed inside the same transaction as the insert so
// concurrent creates cannot claim the same slot. If t.ID is empty a new
// UUID is generated.
func (s *Storage) CreateTask(ctx context.Context, t *domain.Task) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = domain.StatusTodo
	}
	if t.Priority == "" {
		t.Priority = domain.PriorityMedium
	}
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now

	return s.withTx(ctx, func(tx *sql.Tx) error {
		pos, err := nextPosition(ctx, tx, t.Partition())
		if err != nil {
			return err
		}
		t.Position = pos
		_, err = tx.ExecContext(ctx, `
			INSERT INTO tasks (`+taskColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID, t.BoardID, t.ColumnID, swimArg(t.Partition()), t.Title, t.Status, t.Priority,
			t.Position, t.AssigneeID, t.DueDate, t.CompletedAt, t.ParentID, t.CreatedBy,
			t.CreatedAt, t.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert task: %w", err)
		}
		return nil
	})
}

// GetTask retrieves a task by ID, returning nil when it does not exist.
func (s *Storage) GetTask(ctx context.Context, id string) (*domain.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// TaskFieldUpdate describes a partial task update. Pointer fields are
// applied when non-nil; the Set* flags allow clearing nullable columns.
type TaskFieldUpdate struct {
	Title    *string
	Status   *domain.TaskStatus
	Priority *domain.TaskPriority

	SetAssignee bool
	AssigneeID  *string

	SetDueDate bool
	DueDate    *time.Time
}

// UpdateTaskFields applies a partial update. Moving a task to DONE stamps
// completed_at; moving it out of DONE clears it.
func (s *Storage) UpdateTaskFields(ctx context.Context, id string, upd TaskFieldUpdate) error {
	now := time.Now().UTC()
	set := "updated_at = ?"
	args := []any{now}
	if upd.Title != nil {
		set += ", title = ?"
		args = append(args, *upd.Title)
	}
	if upd.Status != nil {
		set += ", status = ?"
		args = append(args, *upd.Status)
		if *upd.Status == domain.StatusDone {
			set += ", completed_at = ?"
			args = append(args, now)
		} else {
			set += ", completed_at = NULL"
		}
	}
	if upd.Priority != nil {
		set += ", priority = ?"
		args = append(args, *upd.Priority)
	}
	if upd.SetAssignee {
		set += ", assignee_id = ?"
		args = append(args, upd.AssigneeID)
	}
	if upd.SetDueDate {
		set += ", due_date = ?"
		args = append(args, upd.DueDate)
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx, "UPDATE tasks SET "+set+" WHERE id = ?", args...)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// PartitionTasks returns the tasks of one partition ordered by position.
func (s *Storage) PartitionTasks(ctx context.Context, p domain.Partition) ([]domain.Task, error) {
	return queryTasks(ctx, s.db, `
		SELECT `+taskColumns+` FROM tasks
		WHERE column_id = ? AND swimlane_id IS ?
		ORDER BY position`, p.ColumnID, swimArg(p))
}

// CountPartition returns the number of tasks in a partition.
func (s *Storage) CountPartition(ctx context.Context, p domain.Partition) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tasks WHERE column_id = ? AND swimlane_id IS ?`,
		p.ColumnID, swimArg(p)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count partition: %w", err)
	}
	return n, nil
}

// AddLabel attaches a label to a task. Adding an existing label is a no-op.
func (s *Storage) AddLabel(ctx context.Context, taskID, label string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO task_labels (task_id, label) VALUES (?, ?)`, taskID, label)
	if err != nil {
		return fmt.Errorf("add label: %w", err)
	}
	return nil
}

// RemoveLabel detaches a label from a task. Removing an absent label is a no-op.
func (s *Storage) RemoveLabel(ctx context.Context, taskID, label string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM task_labels WHERE task_id = ? AND label = ?`, taskID, label)
	if err != nil {
		return fmt.Errorf("remove label: %w", err)
	}
	return nil
}

// Labels returns the labels attached to a task.
func (s *Storage) Labels(ctx context.Context, taskID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT label FROM task_labels WHERE task_id = ? ORDER BY label`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var labels []string
	for rows.Next() {
		var l string
		if err := rows.Scan(&l); err != nil {
			return nil, err
		}
		labels = append(labels, l)
	}
	return labels, rows.Err()
}

// InsertComment creates a comment attributed to authorID.
func (s *Storage) InsertComment(ctx context.Context, taskID, authorID, body string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO comments (id, task_id, author_id, body, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(), taskID, authorID, body, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	return nil
}

// Comment is one comment row attached to a task.
type Comment struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"taskId"`
	AuthorID  string    `json:"authorId"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}

// Comments returns a task's comments, oldest first.
func (s *Storage) Comments(ctx context.Context, taskID string) ([]Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, task_id, author_id, body, created_at
		FROM comments WHERE task_id = ? ORDER BY created_at`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var comments []Comment
	for rows.Next() {
		var c Comment
		if err := rows.Scan(&c.ID, &c.TaskID, &c.AuthorID, &c.Body, &c.CreatedAt); err != nil {
			return nil, err
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

// CreateBoard inserts a board row.
func (s *Storage) CreateBoard(ctx context.Context, id, name string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO boards (id, name, created_at) VALUES (?, ?, ?)`, id, name, time.Now().UTC())
	return err
}

// CreateColumn inserts a column row. wipLimit of nil means unlimited.
func (s *Storage) CreateColumn(ctx context.Context, c domain.Column) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO columns (id, board_id, name, wip_limit) VALUES (?, ?, ?, ?)`,
		c.ID, c.BoardID, c.Name, c.WIPLimit)
	return err
}

// OverdueTasks returns incomplete tasks whose due date has passed.
func (s *Storage) OverdueTasks(ctx context.Context, now time.Time) ([]domain.Task, error) {
	return queryTasks(ctx, s.db, `
		SELECT `+taskColumns+` FROM tasks
		WHERE due_date IS NOT NULL AND due_date < ? AND status != ?
		ORDER BY due_date`, now, domain.StatusDone)
}

// DueSoonTasks returns incomplete tasks due within the given window.
func (s *Storage) DueSoonTasks(ctx context.Context, now time.Time, window time.Duration) ([]domain.Task, error) {
	return queryTasks(ctx, s.db, `
		SELECT `+taskColumns+` FROM tasks
		WHERE due_date IS NOT NULL AND due_date <= ? AND status != ?
		ORDER BY due_date`, now.Add(window), domain.StatusDone)
}

// StaleTasks returns incomplete tasks not updated since the cutoff.
func (s *Storage) StaleTasks(ctx context.Context, cutoff time.Time) ([]domain.Task, error) {
	return queryTasks(ctx, s.db, `
		SELECT `+taskColumns+` FROM tasks
		WHERE updated_at < ? AND status != ?
		ORDER BY updated_at`, cutoff, domain.StatusDone)
}

// WIPBreach describes a column whose active-task count exceeds its limit,
// along with the most recently updated offending task.
type WIPBreach struct {
	Column domain.Column
	Count  int
	Task   domain.Task
}

// WIPBreaches returns one entry per column with a configured limit whose
// count of non-done tasks exceeds it.
func (s *Storage) WIPBreaches(ctx context.Context) ([]WIPBreach, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.board_id, c.name, c.wip_limit, COUNT(t.id)
		FROM columns c
		JOIN tasks t ON t.column_id = c.id AND t.status != ?
		WHERE c.wip_limit IS NOT NULL
		GROUP BY c.id
		HAVING COUNT(t.id) > c.wip_limit`, domain.StatusDone)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var breaches []WIPBreach
	for rows.Next() {
		var b WIPBreach
		var limit int
		if err := rows.Scan(&b.Column.ID, &b.Column.BoardID, &b.Column.Name, &limit, &b.Count); err != nil {
			return nil, fmt.Errorf("scan wip breach: %w", err)
		}
		b.Column.WIPLimit = &limit
		breaches = append(breaches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range breaches {
		tasks, err := queryTasks(ctx, s.db, `
			SELECT `+taskColumns+` FROM tasks
			WHERE column_id = ? AND status != ?
			ORDER BY updated_at DESC LIMIT 1`, breaches[i].Column.ID, domain.StatusDone)
		if err != nil {
			return nil, err
		}
		if len(tasks) > 0 {
			breaches[i].Task = tasks[0]
		}
	}
	return breaches, nil
}
