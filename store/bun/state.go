package bunstore

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/payflow"
	"github.com/xraph/payflow/id"
	"github.com/xraph/payflow/state"
)

// CreateState persists a new workflow state row.
func (s *Store) CreateState(ctx context.Context, st *state.WorkflowState) error {
	m, err := toStateModel(st)
	if err != nil {
		return err
	}
	_, err = s.db.NewInsert().Model(m).Exec(ctx)
	if err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("%w: workflow %s already exists", payflow.ErrInvalidState, st.WorkflowID)
		}
		return fmt.Errorf("payflow/bun: create state: %w", err)
	}
	return nil
}

// GetState retrieves a workflow state by ID.
func (s *Store) GetState(ctx context.Context, workflowID id.WorkflowID) (*state.WorkflowState, error) {
	m := new(workflowStateModel)
	err := s.db.NewSelect().Model(m).
		Where("id = ?", workflowID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("%w: %s", payflow.ErrWorkflowNotFound, workflowID)
		}
		return nil, fmt.Errorf("payflow/bun: get state: %w", err)
	}
	return fromStateModel(m)
}

// UpdateState persists the full current state of an existing workflow.
func (s *Store) UpdateState(ctx context.Context, st *state.WorkflowState) error {
	m, err := toStateModel(st)
	if err != nil {
		return err
	}
	m.UpdatedAt = time.Now().UTC()

	res, err := s.db.NewUpdate().Model(m).WherePK().Exec(ctx)
	if err != nil {
		return fmt.Errorf("payflow/bun: update state: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return fmt.Errorf("%w: %s", payflow.ErrWorkflowNotFound, st.WorkflowID)
	}
	return nil
}

// ListStates returns workflow states, newest first.
func (s *Store) ListStates(ctx context.Context, opts state.ListOpts) ([]*state.WorkflowState, error) {
	var models []workflowStateModel
	q := s.db.NewSelect().Model(&models)

	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}

	q = q.Order("created_at DESC")

	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("payflow/bun: list states: %w", err)
	}

	states := make([]*state.WorkflowState, 0, len(models))
	for i := range models {
		st, convErr := fromStateModel(&models[i])
		if convErr != nil {
			return nil, convErr
		}
		states = append(states, st)
	}
	return states, nil
}
