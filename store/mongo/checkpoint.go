package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/payflow"
	"github.com/xraph/payflow/checkpoint"
	"github.com/xraph/payflow/id"
)

// CreateCheckpoint persists a checkpoint and its review queue projection.
func (s *Store) CreateCheckpoint(ctx context.Context, cp *checkpoint.Checkpoint, item *checkpoint.ReviewQueueItem) error {
	_, err := s.db.Collection(colCheckpoints).InsertOne(ctx, toCheckpointModel(cp))
	if err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("%w: checkpoint %s already exists", payflow.ErrInvalidState, cp.CheckpointID)
		}
		return fmt.Errorf("payflow/mongo: create checkpoint: %w", err)
	}

	_, err = s.db.Collection(colReviewQueue).InsertOne(ctx, toQueueModel(item))
	if err != nil {
		return fmt.Errorf("payflow/mongo: create queue item: %w", err)
	}
	return nil
}

// GetCheckpoint retrieves a checkpoint by ID.
func (s *Store) GetCheckpoint(ctx context.Context, checkpointID id.CheckpointID) (*checkpoint.Checkpoint, error) {
	var m checkpointModel
	err := s.db.Collection(colCheckpoints).
		FindOne(ctx, bson.M{"_id": checkpointID.String()}).
		Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("%w: %s", payflow.ErrCheckpointNotFound, checkpointID)
		}
		return nil, fmt.Errorf("payflow/mongo: get checkpoint: %w", err)
	}
	return fromCheckpointModel(&m)
}

// ApplyDecision records a reviewer verdict. The update filter requires the
// checkpoint to still be awaiting review: if two reviewers race, only one
// update matches and only one resume token is ever minted.
func (s *Store) ApplyDecision(ctx context.Context, checkpointID id.CheckpointID, decision checkpoint.Decision, reviewerID, notes string) (*checkpoint.Checkpoint, error) {
	token := id.NewResumeTokenID()
	nextStage := checkpoint.NextStageFor(decision)
	t := now()

	filter := bson.M{
		"_id":    checkpointID.String(),
		"status": string(checkpoint.StatusAwaitingReview),
	}
	update := bson.M{
		"$set": bson.M{
			"status":       string(checkpoint.StatusReviewed),
			"decision":     string(decision),
			"reviewer_id":  reviewerID,
			"notes":        notes,
			"reviewed_at":  t,
			"next_stage":   string(nextStage),
			"resume_token": token.String(),
			"updated_at":   t,
		},
	}

	var m checkpointModel
	err := s.db.Collection(colCheckpoints).
		FindOneAndUpdate(ctx, filter, update,
			options.FindOneAndUpdate().SetReturnDocument(options.After)).
		Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, s.decisionConflict(ctx, checkpointID)
		}
		return nil, fmt.Errorf("payflow/mongo: apply decision: %w", err)
	}

	_, err = s.db.Collection(colReviewQueue).UpdateOne(ctx,
		bson.M{"_id": checkpointID.String()},
		bson.M{"$set": bson.M{"status": string(checkpoint.StatusReviewed)}},
	)
	if err != nil {
		return nil, fmt.Errorf("payflow/mongo: update queue item: %w", err)
	}

	return fromCheckpointModel(&m)
}

// decisionConflict maps a missed conditional update onto the right sentinel.
func (s *Store) decisionConflict(ctx context.Context, checkpointID id.CheckpointID) error {
	var m checkpointModel
	err := s.db.Collection(colCheckpoints).
		FindOne(ctx, bson.M{"_id": checkpointID.String()}).
		Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return fmt.Errorf("%w: %s", payflow.ErrCheckpointNotFound, checkpointID)
		}
		return fmt.Errorf("payflow/mongo: check checkpoint status: %w", err)
	}

	switch checkpoint.Status(m.Status) {
	case checkpoint.StatusReviewed, checkpoint.StatusResumed:
		return fmt.Errorf("%w: checkpoint %s", payflow.ErrAlreadyReviewed, checkpointID)
	default:
		return fmt.Errorf("%w: checkpoint %s is %s", payflow.ErrCheckpointClosed, checkpointID, m.Status)
	}
}

// MarkResumed transitions a reviewed checkpoint to RESUMED.
func (s *Store) MarkResumed(ctx context.Context, checkpointID id.CheckpointID) error {
	t := now()

	res, err := s.db.Collection(colCheckpoints).UpdateOne(ctx,
		bson.M{
			"_id":    checkpointID.String(),
			"status": string(checkpoint.StatusReviewed),
		},
		bson.M{"$set": bson.M{
			"status":     string(checkpoint.StatusResumed),
			"resumed_at": t,
			"updated_at": t,
		}},
	)
	if err != nil {
		return fmt.Errorf("payflow/mongo: mark resumed: %w", err)
	}
	if res.MatchedCount == 0 {
		count, cntErr := s.db.Collection(colCheckpoints).
			CountDocuments(ctx, bson.M{"_id": checkpointID.String()})
		if cntErr != nil {
			return fmt.Errorf("payflow/mongo: check checkpoint exists: %w", cntErr)
		}
		if count == 0 {
			return fmt.Errorf("%w: %s", payflow.ErrCheckpointNotFound, checkpointID)
		}
		return fmt.Errorf("%w: checkpoint %s is not reviewed", payflow.ErrInvalidState, checkpointID)
	}

	_, err = s.db.Collection(colReviewQueue).UpdateOne(ctx,
		bson.M{"_id": checkpointID.String()},
		bson.M{"$set": bson.M{"status": string(checkpoint.StatusResumed)}},
	)
	if err != nil {
		return fmt.Errorf("payflow/mongo: update queue item: %w", err)
	}
	return nil
}

// PendingReviews returns queue items awaiting review, most urgent first.
func (s *Store) PendingReviews(ctx context.Context) ([]*checkpoint.ReviewQueueItem, error) {
	findOpts := options.Find().SetSort(bson.D{
		{Key: "priority", Value: 1},
		{Key: "created_at", Value: 1},
	})

	cursor, err := s.db.Collection(colReviewQueue).Find(ctx,
		bson.M{"status": string(checkpoint.StatusAwaitingReview)}, findOpts)
	if err != nil {
		return nil, fmt.Errorf("payflow/mongo: pending reviews: %w", err)
	}
	defer cursor.Close(ctx)

	var models []reviewQueueModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("payflow/mongo: pending reviews decode: %w", err)
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
	findOpts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})

	cursor, err := s.db.Collection(colCheckpoints).Find(ctx,
		bson.M{"workflow_id": workflowID.String()}, findOpts)
	if err != nil {
		return nil, fmt.Errorf("payflow/mongo: list workflow checkpoints: %w", err)
	}
	defer cursor.Close(ctx)

	var models []checkpointModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("payflow/mongo: list workflow checkpoints decode: %w", err)
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
