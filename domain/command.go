package domain

import "github.com/bytedance/sonic"

// Command entity and type names used on the command queue.
const (
	EntityTask        = "task"
	TypeStatusChanged = "task-status-changed"
)

// Command represents a write owed to remote storage, carried on the command
// queue. For status changes Data holds a marshalled TaskChange.
type Command struct {
	// ID carries the idempotency key when enqueued.
	ID             string                 `json:"id,omitempty"`
	IdempotencyKey string                 `json:"idempotencyKey"`
	ProjectID      string                 `json:"projectId"`
	EntityType     string                 `json:"entityType"`
	Type           string                 `json:"type"`
	Data           sonic.NoCopyRawMessage `json:"data,omitempty"`
	Timestamp      int64                  `json:"timestamp"`
}

// CommandEnvelope wraps a command with the account issuing it.
type CommandEnvelope struct {
	AccountID string  `json:"accountId"`
	Command   Command `json:"command"`
}

// StatusChangeCommand builds the queue command owed after a cross-column move.
func StatusChangeCommand(projectID string, change TaskChange) (Command, error) {
	data, err := sonic.Marshal(change)
	if err != nil {
		return Command{}, err
	}
	return Command{
		ProjectID:  projectID,
		EntityType: EntityTask,
		Type:       TypeStatusChanged,
		Data:       data,
	}, nil
}
