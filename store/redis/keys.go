package redis

// Redis key naming conventions for payflow data.
// All keys are prefixed with "payflow:" to avoid collisions.

const keyPrefix = "payflow:"

// ── Workflow state keys ──

// stateKey returns the key for a workflow state entity: payflow:state:{id}
func stateKey(id string) string { return keyPrefix + "state:" + id }

// stateIDsKey is the Set tracking all workflow IDs for enumeration.
const stateIDsKey = keyPrefix + "state_ids"

// ── Checkpoint keys ──

// checkpointKey returns the key for a checkpoint entity: payflow:checkpoint:{id}
func checkpointKey(id string) string { return keyPrefix + "checkpoint:" + id }

// workflowCheckpointsKey returns the Sorted Set of a workflow's checkpoint
// IDs, scored by creation time.
func workflowCheckpointsKey(workflowID string) string {
	return keyPrefix + "wf_checkpoints:" + workflowID
}

// ── Review queue keys ──

// reviewQueueKey is the Sorted Set of pending checkpoint IDs, scored by
// priority with a fractional time component for FIFO within a priority.
const reviewQueueKey = keyPrefix + "review_queue"

// reviewItemKey returns the key for a review queue item: payflow:review_item:{id}
func reviewItemKey(id string) string { return keyPrefix + "review_item:" + id }
