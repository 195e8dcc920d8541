package domain

// BoardEvent announces that a project's board changed after a command was
// applied to storage. It is published on the update channel so open streams
// can refresh their snapshot.
type BoardEvent struct {
	AccountID string `json:"accountId"`
	ProjectID string `json:"projectId"`
	TaskID    string `json:"taskId,omitempty"`
	Status    Column `json:"status,omitempty"`
}
