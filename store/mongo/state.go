package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/payflow"
	"github.com/xraph/payflow/id"
	"github.com/xraph/payflow/state"
)

// CreateState persists a new workflow state document.
func (s *Store) CreateState(ctx context.Context, st *state.WorkflowState) error {
	m, err := toStateModel(st)
	if err != nil {
		return err
	}
	_, err = s.db.Collection(colStates).InsertOne(ctx, m)
	if err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("%w: workflow %s already exists", payflow.ErrInvalidState, st.WorkflowID)
		}
		return fmt.Errorf("payflow/mongo: create state: %w", err)
	}
	return nil
}

// GetState retrieves a workflow state by ID.
func (s *Store) GetState(ctx context.Context, workflowID id.WorkflowID) (*state.WorkflowState, error) {
	var m workflowStateModel
	err := s.db.Collection(colStates).
		FindOne(ctx, bson.M{"_id": workflowID.String()}).
		Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("%w: %s", payflow.ErrWorkflowNotFound, workflowID)
		}
		return nil, fmt.Errorf("payflow/mongo: get state: %w", err)
	}
	return fromStateModel(&m)
}

// UpdateState persists the full current state of an existing workflow.
func (s *Store) UpdateState(ctx context.Context, st *state.WorkflowState) error {
	m, err := toStateModel(st)
	if err != nil {
		return err
	}
	m.UpdatedAt = now()

	res, err := s.db.Collection(colStates).ReplaceOne(ctx, bson.M{"_id": m.ID}, m)
	if err != nil {
		return fmt.Errorf("payflow/mongo: update state: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: %s", payflow.ErrWorkflowNotFound, st.WorkflowID)
	}
	return nil
}

// ListStates returns workflow states, newest first.
func (s *Store) ListStates(ctx context.Context, opts state.ListOpts) ([]*state.WorkflowState, error) {
	filter := bson.M{}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}

	findOpts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		findOpts.SetSkip(int64(opts.Offset))
	}

	cursor, err := s.db.Collection(colStates).Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("payflow/mongo: list states: %w", err)
	}
	defer cursor.Close(ctx)

	var models []workflowStateModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("payflow/mongo: list states decode: %w", err)
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
