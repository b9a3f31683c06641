package redis

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/xraph/payflow"
	"github.com/xraph/payflow/id"
	"github.com/xraph/payflow/state"
)

// CreateState persists a new workflow state.
func (s *Store) CreateState(ctx context.Context, st *state.WorkflowState) error {
	wfID := st.WorkflowID.String()
	key := stateKey(wfID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("payflow/redis: create state exists: %w", err)
	}
	if exists > 0 {
		return fmt.Errorf("%w: workflow %s already exists", payflow.ErrInvalidState, wfID)
	}

	fields, err := stateToMap(st)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.SAdd(ctx, stateIDsKey, wfID)
	if _, err = pipe.Exec(ctx); err != nil {
		return fmt.Errorf("payflow/redis: create state: %w", err)
	}
	return nil
}

// GetState retrieves a workflow state by ID.
func (s *Store) GetState(ctx context.Context, workflowID id.WorkflowID) (*state.WorkflowState, error) {
	vals, err := s.client.HGetAll(ctx, stateKey(workflowID.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("payflow/redis: get state: %w", err)
	}
	if len(vals) == 0 {
		return nil, fmt.Errorf("%w: %s", payflow.ErrWorkflowNotFound, workflowID)
	}
	return mapToState(vals)
}

// UpdateState persists the full current state of an existing workflow.
func (s *Store) UpdateState(ctx context.Context, st *state.WorkflowState) error {
	key := stateKey(st.WorkflowID.String())

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("payflow/redis: update state exists: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("%w: %s", payflow.ErrWorkflowNotFound, st.WorkflowID)
	}

	fields, err := stateToMap(st)
	if err != nil {
		return err
	}
	fields["updated_at"] = time.Now().UTC().Format(time.RFC3339Nano)

	if _, err = s.client.HSet(ctx, key, fields).Result(); err != nil {
		return fmt.Errorf("payflow/redis: update state: %w", err)
	}
	return nil
}

// ListStates returns workflow states, newest first.
func (s *Store) ListStates(ctx context.Context, opts state.ListOpts) ([]*state.WorkflowState, error) {
	ids, err := s.client.SMembers(ctx, stateIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("payflow/redis: list states smembers: %w", err)
	}

	var states []*state.WorkflowState
	for _, wfID := range ids {
		vals, getErr := s.client.HGetAll(ctx, stateKey(wfID)).Result()
		if getErr != nil || len(vals) == 0 {
			continue
		}
		st, convErr := mapToState(vals)
		if convErr != nil {
			continue
		}
		if opts.Status != "" && st.Status != opts.Status {
			continue
		}
		states = append(states, st)
	}

	sort.Slice(states, func(i, j int) bool {
		return states[i].CreatedAt.After(states[j].CreatedAt)
	})

	if opts.Offset > 0 && opts.Offset < len(states) {
		states = states[opts.Offset:]
	} else if opts.Offset >= len(states) && opts.Offset > 0 {
		return nil, nil
	}
	if opts.Limit > 0 && opts.Limit < len(states) {
		states = states[:opts.Limit]
	}
	return states, nil
}

// ── helpers ──

func stateToMap(st *state.WorkflowState) (map[string]interface{}, error) {
	blob, err := st.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("payflow/redis: snapshot state: %w", err)
	}

	return map[string]interface{}{
		"id":         st.WorkflowID.String(),
		"status":     string(st.Status),
		"stage":      string(st.CurrentStage),
		"invoice_id": st.Payload.InvoiceID,
		"state":      string(blob),
		"created_at": st.CreatedAt.Format(time.RFC3339Nano),
		"updated_at": st.UpdatedAt.Format(time.RFC3339Nano),
	}, nil
}

func mapToState(m map[string]string) (*state.WorkflowState, error) {
	st, err := state.FromSnapshot([]byte(m["state"]))
	if err != nil {
		return nil, fmt.Errorf("payflow/redis: decode state %q: %w", m["id"], err)
	}
	return st, nil
}
