package api

import (
	"context"

	"dataflow-api/domain"
)

// Storage abstracts persistence for handlers.
type Storage interface {
	ListTasks(ctx context.Context, accountID, projectID string) ([]domain.Task, error)
	InsertTask(ctx context.Context, accountID string, t domain.Task) error
	UpdateTask(ctx context.Context, accountID, taskID string, patch domain.TaskPatch) error
	DeleteTask(ctx context.Context, accountID, taskID string) error
	ListProjects(ctx context.Context, accountID string) ([]domain.Project, error)
	InsertProject(ctx context.Context, p domain.Project) error
	DeleteProject(ctx context.Context, accountID, projectID string) error
	EnqueueCommands(ctx context.Context, accountID string, cmds []domain.Command) error
}

// Authenticator is implemented by types able to extract account IDs from
// Authorization headers.
type Authenticator interface {
	AccountIDFromAuthHeader(string) (string, error)
}

// Deduper prevents processing of duplicate move commands.
type Deduper interface {
	// Add records the idempotency key and returns true if it was newly added.
	Add(ctx context.Context, accountID, key string) (bool, error)
	// Remove deletes a previously added key, used when dispatch fails.
	Remove(ctx context.Context, accountID, key string) error
}

// AccountService exposes the account lifecycle operations to the auth
// endpoints.
type AccountService interface {
	SignUp(ctx context.Context, email, password string) (domain.Account, error)
	SignIn(ctx context.Context, email, password string) (string, domain.Account, error)
	DeleteAccount(ctx context.Context, accountID, email string) error
	VerifyEmail(ctx context.Context, token string) error
	ResendVerification(ctx context.Context, email string) error
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
}

const postBodyMaxSize = 64 * 1024 // 64 KiB

// columnsResponse is the board snapshot handed to the presentation layer.
type columnsResponse struct {
	Todo       []domain.Task `json:"todo"`
	InProgress []domain.Task `json:"inProgress"`
	Done       []domain.Task `json:"done"`
}

func snapshotColumns(b domain.Board) columnsResponse {
	return columnsResponse{
		Todo:       orEmpty(b.Column(domain.ColumnTodo)),
		InProgress: orEmpty(b.Column(domain.ColumnInProgress)),
		Done:       orEmpty(b.Column(domain.ColumnDone)),
	}
}

func orEmpty(tasks []domain.Task) []domain.Task {
	if tasks == nil {
		return []domain.Task{}
	}
	return tasks
}

type moveResponse struct {
	Persisted      bool               `json:"persisted"`
	Change         *domain.TaskChange `json:"change,omitempty"`
	IdempotencyKey string             `json:"idempotencyKey,omitempty"`
	Columns        columnsResponse    `json:"columns"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}
