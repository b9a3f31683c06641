package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/payflow"
	"github.com/xraph/payflow/checkpoint"
	"github.com/xraph/payflow/id"
	"github.com/xraph/payflow/state"
)

// CreateCheckpoint persists a checkpoint and its review queue projection.
func (s *Store) CreateCheckpoint(ctx context.Context, cp *checkpoint.Checkpoint, item *checkpoint.ReviewQueueItem) error {
	chkID := cp.CheckpointID.String()
	key := checkpointKey(chkID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("payflow/redis: create checkpoint exists: %w", err)
	}
	if exists > 0 {
		return fmt.Errorf("%w: checkpoint %s already exists", payflow.ErrInvalidState, chkID)
	}

	cpFields, err := checkpointToMap(cp)
	if err != nil {
		return err
	}
	itemFields := itemToMap(item)

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, cpFields)
	pipe.HSet(ctx, reviewItemKey(chkID), itemFields)
	pipe.ZAdd(ctx, reviewQueueKey, goredis.Z{
		Score:  reviewScore(item.Priority, item.CreatedAt),
		Member: chkID,
	})
	pipe.ZAdd(ctx, workflowCheckpointsKey(cp.WorkflowID.String()), goredis.Z{
		Score:  float64(cp.CreatedAt.UnixMilli()),
		Member: chkID,
	})
	if _, err = pipe.Exec(ctx); err != nil {
		return fmt.Errorf("payflow/redis: create checkpoint: %w", err)
	}
	return nil
}

// GetCheckpoint retrieves a checkpoint by ID.
func (s *Store) GetCheckpoint(ctx context.Context, checkpointID id.CheckpointID) (*checkpoint.Checkpoint, error) {
	vals, err := s.client.HGetAll(ctx, checkpointKey(checkpointID.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("payflow/redis: get checkpoint: %w", err)
	}
	if len(vals) == 0 {
		return nil, fmt.Errorf("%w: %s", payflow.ErrCheckpointNotFound, checkpointID)
	}
	return mapToCheckpoint(vals)
}

// ApplyDecision records a reviewer verdict. HSETNX on the decision field is
// the race tiebreaker: of two concurrent reviewers only one claims the
// field, so exactly one resume token is ever minted.
func (s *Store) ApplyDecision(ctx context.Context, checkpointID id.CheckpointID, decision checkpoint.Decision, reviewerID, notes string) (*checkpoint.Checkpoint, error) {
	chkID := checkpointID.String()
	key := checkpointKey(chkID)

	status, err := s.client.HGet(ctx, key, "status").Result()
	if err != nil {
		if err == goredis.Nil {
			return nil, fmt.Errorf("%w: %s", payflow.ErrCheckpointNotFound, checkpointID)
		}
		return nil, fmt.Errorf("payflow/redis: check checkpoint status: %w", err)
	}
	switch checkpoint.Status(status) {
	case checkpoint.StatusAwaitingReview:
	case checkpoint.StatusReviewed, checkpoint.StatusResumed:
		return nil, fmt.Errorf("%w: checkpoint %s", payflow.ErrAlreadyReviewed, checkpointID)
	default:
		return nil, fmt.Errorf("%w: checkpoint %s is %s", payflow.ErrCheckpointClosed, checkpointID, status)
	}

	claimed, err := s.client.HSetNX(ctx, key, "decision", string(decision)).Result()
	if err != nil {
		return nil, fmt.Errorf("payflow/redis: claim decision: %w", err)
	}
	if !claimed {
		return nil, fmt.Errorf("%w: checkpoint %s", payflow.ErrAlreadyReviewed, checkpointID)
	}

	now := time.Now().UTC()
	token := id.NewResumeTokenID()
	nextStage := checkpoint.NextStageFor(decision)

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key,
		"status", string(checkpoint.StatusReviewed),
		"reviewer_id", reviewerID,
		"notes", notes,
		"reviewed_at", now.Format(time.RFC3339Nano),
		"next_stage", string(nextStage),
		"resume_token", token.String(),
		"updated_at", now.Format(time.RFC3339Nano),
	)
	pipe.HSet(ctx, reviewItemKey(chkID), "status", string(checkpoint.StatusReviewed))
	pipe.ZRem(ctx, reviewQueueKey, chkID)
	if _, err = pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("payflow/redis: apply decision: %w", err)
	}

	return s.GetCheckpoint(ctx, checkpointID)
}

// MarkResumed transitions a reviewed checkpoint to RESUMED.
func (s *Store) MarkResumed(ctx context.Context, checkpointID id.CheckpointID) error {
	chkID := checkpointID.String()
	key := checkpointKey(chkID)

	status, err := s.client.HGet(ctx, key, "status").Result()
	if err != nil {
		if err == goredis.Nil {
			return fmt.Errorf("%w: %s", payflow.ErrCheckpointNotFound, checkpointID)
		}
		return fmt.Errorf("payflow/redis: check checkpoint status: %w", err)
	}
	if checkpoint.Status(status) != checkpoint.StatusReviewed {
		return fmt.Errorf("%w: checkpoint %s is not reviewed", payflow.ErrInvalidState, checkpointID)
	}

	now := time.Now().UTC()
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key,
		"status", string(checkpoint.StatusResumed),
		"resumed_at", now.Format(time.RFC3339Nano),
		"updated_at", now.Format(time.RFC3339Nano),
	)
	pipe.HSet(ctx, reviewItemKey(chkID), "status", string(checkpoint.StatusResumed))
	if _, err = pipe.Exec(ctx); err != nil {
		return fmt.Errorf("payflow/redis: mark resumed: %w", err)
	}
	return nil
}

// PendingReviews returns queue items awaiting review, most urgent first.
// The queue Sorted Set already orders by priority then creation time.
func (s *Store) PendingReviews(ctx context.Context) ([]*checkpoint.ReviewQueueItem, error) {
	ids, err := s.client.ZRange(ctx, reviewQueueKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("payflow/redis: pending reviews zrange: %w", err)
	}

	items := make([]*checkpoint.ReviewQueueItem, 0, len(ids))
	for _, chkID := range ids {
		vals, getErr := s.client.HGetAll(ctx, reviewItemKey(chkID)).Result()
		if getErr != nil || len(vals) == 0 {
			continue
		}
		item, convErr := mapToItem(vals)
		if convErr != nil {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

// ListWorkflowCheckpoints returns a workflow's checkpoints, oldest first.
func (s *Store) ListWorkflowCheckpoints(ctx context.Context, workflowID id.WorkflowID) ([]*checkpoint.Checkpoint, error) {
	ids, err := s.client.ZRange(ctx, workflowCheckpointsKey(workflowID.String()), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("payflow/redis: list workflow checkpoints: %w", err)
	}

	cps := make([]*checkpoint.Checkpoint, 0, len(ids))
	for _, chkID := range ids {
		vals, getErr := s.client.HGetAll(ctx, checkpointKey(chkID)).Result()
		if getErr != nil || len(vals) == 0 {
			continue
		}
		cp, convErr := mapToCheckpoint(vals)
		if convErr != nil {
			continue
		}
		cps = append(cps, cp)
	}
	return cps, nil
}

// ── helpers ──

// reviewScore orders the queue by priority (lower is more urgent) with a
// fractional time component for FIFO within the same priority.
func reviewScore(priority int, createdAt time.Time) float64 {
	return float64(priority) + float64(createdAt.UnixMilli())/1e15
}

func checkpointToMap(cp *checkpoint.Checkpoint) (map[string]interface{}, error) {
	m := map[string]interface{}{
		"id":          cp.CheckpointID.String(),
		"workflow_id": cp.WorkflowID.String(),
		"stage":       string(cp.Stage),
		"status":      string(cp.Status),
		"reason":      cp.Reason,
		"priority":    strconv.Itoa(cp.Priority),
		"invoice_id":  cp.InvoiceID,
		"vendor_name": cp.VendorName,
		"amount":      strconv.FormatFloat(cp.Amount, 'f', -1, 64),
		"currency":    cp.Currency,
		"match_score": strconv.FormatFloat(cp.MatchScore, 'f', -1, 64),
		"review_url":  cp.ReviewURL,
		"expires_at":  cp.ExpiresAt.Format(time.RFC3339Nano),
		"state_blob":  string(cp.StateBlob),
		"created_at":  cp.CreatedAt.Format(time.RFC3339Nano),
		"updated_at":  cp.UpdatedAt.Format(time.RFC3339Nano),
	}
	if cp.Evidence != nil {
		ev, err := json.Marshal(cp.Evidence)
		if err != nil {
			return nil, fmt.Errorf("payflow/redis: marshal evidence: %w", err)
		}
		m["evidence"] = string(ev)
	}
	return m, nil
}

func mapToCheckpoint(m map[string]string) (*checkpoint.Checkpoint, error) {
	chkID, err := id.ParseCheckpointID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("payflow/redis: parse checkpoint id: %w", err)
	}
	wfID, err := id.ParseWorkflowID(m["workflow_id"])
	if err != nil {
		return nil, fmt.Errorf("payflow/redis: parse workflow id: %w", err)
	}

	priority, _ := strconv.Atoi(m["priority"])
	amount, _ := strconv.ParseFloat(m["amount"], 64)
	matchScore, _ := strconv.ParseFloat(m["match_score"], 64)
	expiresAt, _ := time.Parse(time.RFC3339Nano, m["expires_at"])
	createdAt, _ := time.Parse(time.RFC3339Nano, m["created_at"])
	updatedAt, _ := time.Parse(time.RFC3339Nano, m["updated_at"])

	cp := &checkpoint.Checkpoint{
		Entity: payflow.Entity{
			CreatedAt: createdAt,
			UpdatedAt: updatedAt,
		},
		CheckpointID: chkID,
		WorkflowID:   wfID,
		Stage:        state.Stage(m["stage"]),
		Status:       checkpoint.Status(m["status"]),
		Reason:       m["reason"],
		Priority:     priority,
		InvoiceID:    m["invoice_id"],
		VendorName:   m["vendor_name"],
		Amount:       amount,
		Currency:     m["currency"],
		MatchScore:   matchScore,
		ReviewURL:    m["review_url"],
		ExpiresAt:    expiresAt,
		StateBlob:    []byte(m["state_blob"]),
		Decision:     checkpoint.Decision(m["decision"]),
		ReviewerID:   m["reviewer_id"],
		Notes:        m["notes"],
		NextStage:    state.Stage(m["next_stage"]),
	}

	if v := m["evidence"]; v != "" {
		var ev state.MatchEvidence
		if err := json.Unmarshal([]byte(v), &ev); err != nil {
			return nil, fmt.Errorf("payflow/redis: unmarshal evidence: %w", err)
		}
		cp.Evidence = &ev
	}
	if v := m["reviewed_at"]; v != "" {
		cp.ReviewedAt, _ = time.Parse(time.RFC3339Nano, v)
	}
	if v := m["resumed_at"]; v != "" {
		cp.ResumedAt, _ = time.Parse(time.RFC3339Nano, v)
	}
	if v := m["resume_token"]; v != "" {
		token, tokErr := id.ParseResumeTokenID(v)
		if tokErr != nil {
			return nil, fmt.Errorf("payflow/redis: parse resume token: %w", tokErr)
		}
		cp.ResumeToken = token
	}

	return cp, nil
}

func itemToMap(item *checkpoint.ReviewQueueItem) map[string]interface{} {
	return map[string]interface{}{
		"checkpoint_id": item.CheckpointID.String(),
		"workflow_id":   item.WorkflowID.String(),
		"invoice_id":    item.InvoiceID,
		"vendor_name":   item.VendorName,
		"amount":        strconv.FormatFloat(item.Amount, 'f', -1, 64),
		"currency":      item.Currency,
		"match_score":   strconv.FormatFloat(item.MatchScore, 'f', -1, 64),
		"reason":        item.Reason,
		"priority":      strconv.Itoa(item.Priority),
		"status":        string(item.Status),
		"review_url":    item.ReviewURL,
		"created_at":    item.CreatedAt.Format(time.RFC3339Nano),
		"expires_at":    item.ExpiresAt.Format(time.RFC3339Nano),
	}
}

func mapToItem(m map[string]string) (*checkpoint.ReviewQueueItem, error) {
	chkID, err := id.ParseCheckpointID(m["checkpoint_id"])
	if err != nil {
		return nil, fmt.Errorf("payflow/redis: parse checkpoint id: %w", err)
	}
	wfID, err := id.ParseWorkflowID(m["workflow_id"])
	if err != nil {
		return nil, fmt.Errorf("payflow/redis: parse workflow id: %w", err)
	}

	priority, _ := strconv.Atoi(m["priority"])
	amount, _ := strconv.ParseFloat(m["amount"], 64)
	matchScore, _ := strconv.ParseFloat(m["match_score"], 64)
	createdAt, _ := time.Parse(time.RFC3339Nano, m["created_at"])
	expiresAt, _ := time.Parse(time.RFC3339Nano, m["expires_at"])

	return &checkpoint.ReviewQueueItem{
		CheckpointID: chkID,
		WorkflowID:   wfID,
		InvoiceID:    m["invoice_id"],
		VendorName:   m["vendor_name"],
		Amount:       amount,
		Currency:     m["currency"],
		MatchScore:   matchScore,
		Reason:       m["reason"],
		Priority:     priority,
		Status:       checkpoint.Status(m["status"]),
		ReviewURL:    m["review_url"],
		CreatedAt:    createdAt,
		ExpiresAt:    expiresAt,
	}, nil
}
