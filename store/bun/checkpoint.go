package bunstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/xraph/payflow"
	"github.com/xraph/payflow/checkpoint"
	"github.com/xraph/payflow/id"
)

// CreateCheckpoint persists a checkpoint and its review queue projection
// in one transaction.
func (s *Store) CreateCheckpoint(ctx context.Context, cp *checkpoint.Checkpoint, item *checkpoint.ReviewQueueItem) error {
	return s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(toCheckpointModel(cp)).Exec(ctx); err != nil {
			if isDuplicateKey(err) {
				return fmt.Errorf("%w: checkpoint %s already exists", payflow.ErrInvalidState, cp.CheckpointID)
			}
			return fmt.Errorf("payflow/bun: create checkpoint: %w", err)
		}
		if _, err := tx.NewInsert().Model(toQueueModel(item)).Exec(ctx); err != nil {
			return fmt.Errorf("payflow/bun: create queue item: %w", err)
		}
		return nil
	})
}

// GetCheckpoint retrieves a checkpoint by ID.
func (s *Store) GetCheckpoint(ctx context.Context, checkpointID id.CheckpointID) (*checkpoint.Checkpoint, error) {
	m := new(checkpointModel)
	err := s.db.NewSelect().Model(m).
		Where("id = ?", checkpointID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("%w: %s", payflow.ErrCheckpointNotFound, checkpointID)
		}
		return nil, fmt.Errorf("payflow/bun: get checkpoint: %w", err)
	}
	return fromCheckpointModel(m)
}

// ApplyDecision records a reviewer verdict. The update is conditional on
// the checkpoint still awaiting review: of two racing reviewers exactly
// one wins, and exactly one resume token is ever minted.
func (s *Store) ApplyDecision(ctx context.Context, checkpointID id.CheckpointID, decision checkpoint.Decision, reviewerID, notes string) (*checkpoint.Checkpoint, error) {
	token := id.NewResumeTokenID()
	nextStage := checkpoint.NextStageFor(decision)
	now := time.Now().UTC()

	err := s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().
			TableExpr("payflow_checkpoints").
			Set("status = ?", string(checkpoint.StatusReviewed)).
			Set("decision = ?", string(decision)).
			Set("reviewer_id = ?", reviewerID).
			Set("notes = ?", notes).
			Set("reviewed_at = ?", now).
			Set("next_stage = ?", string(nextStage)).
			Set("resume_token = ?", token.String()).
			Set("updated_at = ?", now).
			Where("id = ?", checkpointID.String()).
			Where("status = ?", string(checkpoint.StatusAwaitingReview)).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("payflow/bun: apply decision: %w", err)
		}

		rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
		if rows == 0 {
			return s.decisionConflict(ctx, tx, checkpointID)
		}

		if _, err := tx.NewUpdate().
			TableExpr("payflow_review_queue").
			Set("status = ?", string(checkpoint.StatusReviewed)).
			Where("checkpoint_id = ?", checkpointID.String()).
			Exec(ctx); err != nil {
			return fmt.Errorf("payflow/bun: update queue item: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.GetCheckpoint(ctx, checkpointID)
}

// decisionConflict maps a lost conditional update onto the right sentinel.
func (s *Store) decisionConflict(ctx context.Context, tx bun.Tx, checkpointID id.CheckpointID) error {
	var status string
	err := tx.NewSelect().
		TableExpr("payflow_checkpoints").
		Column("status").
		Where("id = ?", checkpointID.String()).
		Limit(1).
		Scan(ctx, &status)
	if err != nil {
		if isNoRows(err) {
			return fmt.Errorf("%w: %s", payflow.ErrCheckpointNotFound, checkpointID)
		}
		return fmt.Errorf("payflow/bun: check checkpoint status: %w", err)
	}

	switch checkpoint.Status(status) {
	case checkpoint.StatusReviewed, checkpoint.StatusResumed:
		return fmt.Errorf("%w: checkpoint %s", payflow.ErrAlreadyReviewed, checkpointID)
	default:
		return fmt.Errorf("%w: checkpoint %s is %s", payflow.ErrCheckpointClosed, checkpointID, status)
	}
}

// MarkResumed transitions a reviewed checkpoint to RESUMED.
func (s *Store) MarkResumed(ctx context.Context, checkpointID id.CheckpointID) error {
	now := time.Now().UTC()

	res, err := s.db.NewUpdate().
		TableExpr("payflow_checkpoints").
		Set("status = ?", string(checkpoint.StatusResumed)).
		Set("resumed_at = ?", now).
		Set("updated_at = ?", now).
		Where("id = ?", checkpointID.String()).
		Where("status = ?", string(checkpoint.StatusReviewed)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("payflow/bun: mark resumed: %w", err)
	}

	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		exists, existErr := s.db.NewSelect().
			TableExpr("payflow_checkpoints").
			Where("id = ?", checkpointID.String()).
			Exists(ctx)
		if existErr != nil {
			return fmt.Errorf("payflow/bun: check checkpoint exists: %w", existErr)
		}
		if !exists {
			return fmt.Errorf("%w: %s", payflow.ErrCheckpointNotFound, checkpointID)
		}
		return fmt.Errorf("%w: checkpoint %s is not reviewed", payflow.ErrInvalidState, checkpointID)
	}

	_, err = s.db.NewUpdate().
		TableExpr("payflow_review_queue").
		Set("status = ?", string(checkpoint.StatusResumed)).
		Where("checkpoint_id = ?", checkpointID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("payflow/bun: update queue item: %w", err)
	}
	return nil
}

// PendingReviews returns queue items awaiting review, most urgent first.
func (s *Store) PendingReviews(ctx context.Context) ([]*checkpoint.ReviewQueueItem, error) {
	var models []reviewQueueModel
	err := s.db.NewSelect().Model(&models).
		Where("status = ?", string(checkpoint.StatusAwaitingReview)).
		Order("priority ASC", "created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("payflow/bun: pending reviews: %w", err)
	}

	items := make([]*checkpoint.ReviewQueueItem, 0, len(models))
	for i := range models {
		item, convErr := fromQueueModel(&models[i])
		if convErr != nil {
			return nil, convErr
		}
		items = append(items, item)
	}
	return items, nil
}

// ListWorkflowCheckpoints returns a workflow's checkpoints, oldest first.
func (s *Store) ListWorkflowCheckpoints(ctx context.Context, workflowID id.WorkflowID) ([]*checkpoint.Checkpoint, error) {
	var models []checkpointModel
	err := s.db.NewSelect().Model(&models).
		Where("workflow_id = ?", workflowID.String()).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("payflow/bun: list workflow checkpoints: %w", err)
	}

	cps := make([]*checkpoint.Checkpoint, 0, len(models))
	for i := range models {
		cp, convErr := fromCheckpointModel(&models[i])
		if convErr != nil {
			return nil, convErr
		}
		cps = append(cps, cp)
	}
	return cps, nil
}
