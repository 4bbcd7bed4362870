package storage

import (
	"context"
	"sort"
	"testing"

	"boardflow-api/domain"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedBoard(t *testing.T, s *Storage, boardID string, columnIDs ...string) {
	t.Helper()
	ctx := context.Background()
	if err := s.CreateBoard(ctx, boardID, "board "+boardID); err != nil {
		t.Fatalf("create board: %v", err)
	}
	for _, id := range columnIDs {
		if err := s.CreateColumn(ctx, domain.Column{ID: id, BoardID: boardID, Name: id}); err != nil {
			t.Fatalf("create column %s: %v", id, err)
		}
	}
}

func seedTask(t *testing.T, s *Storage, id, boardID, columnID string) *domain.Task {
	t.Helper()
	task := &domain.Task{
		ID:        id,
		BoardID:   boardID,
		ColumnID:  columnID,
		Title:     "task " + id,
		CreatedBy: "u1",
	}
	if err := s.CreateTask(context.Background(), task); err != nil {
		t.Fatalf("create task %s: %v", id, err)
	}
	return task
}

// assertContiguous verifies the partition invariant: positions are
// exactly {0..n-1}.
func assertContiguous(t *testing.T, s *Storage, p domain.Partition) {
	t.Helper()
	tasks, err := s.PartitionTasks(context.Background(), p)
	if err != nil {
		t.Fatalf("partition tasks: %v", err)
	}
	positions := make([]int, len(tasks))
	for i, task := range tasks {
		positions[i] = task.Position
	}
	sort.Ints(positions)
	for i, pos := range positions {
		if pos != i {
			t.Fatalf("partition %v positions not contiguous: %v", p, positions)
		}
	}
}

// assertOrder verifies the partition holds exactly the given task IDs in
// position order.
func assertOrder(t *testing.T, s *Storage, p domain.Partition, want ...string) {
	t.Helper()
	tasks, err := s.PartitionTasks(context.Background(), p)
	if err != nil {
		t.Fatalf("partition tasks: %v", err)
	}
	if len(tasks) != len(want) {
		t.Fatalf("partition %v has %d tasks, want %d", p, len(tasks), len(want))
	}
	for i, task := range tasks {
		if task.ID != want[i] {
			got := make([]string, len(tasks))
			for j, tk := range tasks {
				got[j] = tk.ID
			}
			t.Fatalf("partition %v order = %v, want %v", p, got, want)
		}
		if task.Position != i {
			t.Fatalf("task %s at position %d, want %d", task.ID, task.Position, i)
		}
	}
}
