package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/xraph/payflow"
	"github.com/xraph/payflow/checkpoint"
	"github.com/xraph/payflow/id"
	"github.com/xraph/payflow/state"
)

// Ensure Store implements store.Store at compile time.
// We can't import store here (import cycle), so we verify each subsystem.
var (
	_ state.Store      = (*Store)(nil)
	_ checkpoint.Store = (*Store)(nil)
)

// Store is a fully in-memory implementation of store.Store.
// Safe for concurrent access. Intended for unit testing and development.
type Store struct {
	mu sync.RWMutex

	states      map[string]*state.WorkflowState
	checkpoints map[string]*checkpoint.Checkpoint
	queue       map[string]*checkpoint.ReviewQueueItem
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		states:      make(map[string]*state.WorkflowState),
		checkpoints: make(map[string]*checkpoint.Checkpoint),
		queue:       make(map[string]*checkpoint.ReviewQueueItem),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle — Migrate / Ping / Close
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Workflow state store
// ──────────────────────────────────────────────────

// CreateState persists a new workflow state.
func (m *Store) CreateState(_ context.Context, st *state.WorkflowState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := st.WorkflowID.String()
	if _, exists := m.states[key]; exists {
		return fmt.Errorf("%w: workflow %s already exists", payflow.ErrInvalidState, key)
	}
	m.states[key] = st.Clone()
	return nil
}

// GetState retrieves a workflow state by workflow ID.
func (m *Store) GetState(_ context.Context, workflowID id.WorkflowID) (*state.WorkflowState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st, ok := m.states[workflowID.String()]
	if !ok {
		return nil, payflow.ErrWorkflowNotFound
	}
	return st.Clone(), nil
}

// UpdateState persists changes to an existing workflow state.
func (m *Store) UpdateState(_ context.Context, st *state.WorkflowState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := st.WorkflowID.String()
	if _, ok := m.states[key]; !ok {
		return payflow.ErrWorkflowNotFound
	}
	m.states[key] = st.Clone()
	return nil
}

// ListStates returns workflow states matching the options, newest first.
func (m *Store) ListStates(_ context.Context, opts state.ListOpts) ([]*state.WorkflowState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*state.WorkflowState
	for _, st := range m.states {
		if opts.Status != "" && st.Status != opts.Status {
			continue
		}
		out = append(out, st.Clone())
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	return paginate(out, opts.Offset, opts.Limit), nil
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

// ──────────────────────────────────────────────────
// Checkpoint store
// ──────────────────────────────────────────────────

// CreateCheckpoint persists a checkpoint and its queue projection
// atomically.
func (m *Store) CreateCheckpoint(_ context.Context, cp *checkpoint.Checkpoint, item *checkpoint.ReviewQueueItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := cp.CheckpointID.String()
	if _, exists := m.checkpoints[key]; exists {
		return fmt.Errorf("%w: checkpoint %s already exists", payflow.ErrInvalidState, key)
	}
	m.checkpoints[key] = cloneCheckpoint(cp)
	m.queue[key] = cloneItem(item)
	return nil
}

// GetCheckpoint retrieves a checkpoint by ID.
func (m *Store) GetCheckpoint(_ context.Context, checkpointID id.CheckpointID) (*checkpoint.Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cp, ok := m.checkpoints[checkpointID.String()]
	if !ok {
		return nil, payflow.ErrCheckpointNotFound
	}
	return cloneCheckpoint(cp), nil
}

// ApplyDecision records a reviewer decision with compare-and-set
// semantics on the AWAITING_REVIEW status.
func (m *Store) ApplyDecision(_ context.Context, checkpointID id.CheckpointID, decision checkpoint.Decision, reviewerID, notes string) (*checkpoint.Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := checkpointID.String()
	cp, ok := m.checkpoints[key]
	if !ok {
		return nil, payflow.ErrCheckpointNotFound
	}

	switch cp.Status {
	case checkpoint.StatusAwaitingReview:
		// The only state a decision lands in.
	case checkpoint.StatusReviewed, checkpoint.StatusResumed:
		return nil, payflow.ErrAlreadyReviewed
	default:
		return nil, fmt.Errorf("%w: checkpoint %s is %s", payflow.ErrCheckpointClosed, key, cp.Status)
	}

	cp.Status = checkpoint.StatusReviewed
	cp.Decision = decision
	cp.ReviewerID = reviewerID
	cp.Notes = notes
	cp.ReviewedAt = time.Now().UTC()
	cp.NextStage = checkpoint.NextStageFor(decision)
	cp.ResumeToken = id.NewResumeTokenID()
	cp.Touch()

	if item, ok := m.queue[key]; ok {
		item.Status = checkpoint.StatusReviewed
	}

	return cloneCheckpoint(cp), nil
}

// MarkResumed moves a REVIEWED checkpoint to RESUMED.
func (m *Store) MarkResumed(_ context.Context, checkpointID id.CheckpointID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := checkpointID.String()
	cp, ok := m.checkpoints[key]
	if !ok {
		return payflow.ErrCheckpointNotFound
	}
	if cp.Status != checkpoint.StatusReviewed {
		return fmt.Errorf("%w: checkpoint %s is %s, want %s",
			payflow.ErrInvalidState, key, cp.Status, checkpoint.StatusReviewed)
	}

	cp.Status = checkpoint.StatusResumed
	cp.ResumedAt = time.Now().UTC()
	cp.Touch()

	if item, ok := m.queue[key]; ok {
		item.Status = checkpoint.StatusResumed
	}
	return nil
}

// PendingReviews lists AWAITING_REVIEW queue items ordered by priority
// ascending, then created_at ascending.
func (m *Store) PendingReviews(_ context.Context) ([]*checkpoint.ReviewQueueItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*checkpoint.ReviewQueueItem
	for _, item := range m.queue {
		if item.Status != checkpoint.StatusAwaitingReview {
			continue
		}
		out = append(out, cloneItem(item))
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	return out, nil
}

// ListWorkflowCheckpoints returns all checkpoints for a workflow,
// oldest first.
func (m *Store) ListWorkflowCheckpoints(_ context.Context, workflowID id.WorkflowID) ([]*checkpoint.Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*checkpoint.Checkpoint
	for _, cp := range m.checkpoints {
		if cp.WorkflowID != workflowID {
			continue
		}
		out = append(out, cloneCheckpoint(cp))
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	return out, nil
}

// ──────────────────────────────────────────────────
// Copy helpers
// ──────────────────────────────────────────────────

func cloneCheckpoint(cp *checkpoint.Checkpoint) *checkpoint.Checkpoint {
	out := *cp
	out.StateBlob = append([]byte(nil), cp.StateBlob...)
	if cp.Evidence != nil {
		ev := *cp.Evidence
		ev.DiscrepancyItems = append([]string(nil), cp.Evidence.DiscrepancyItems...)
		out.Evidence = &ev
	}
	return &out
}

func cloneItem(item *checkpoint.ReviewQueueItem) *checkpoint.ReviewQueueItem {
	out := *item
	return &out
}
