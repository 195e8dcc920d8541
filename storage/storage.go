package storage

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"

	"dataflow-api/domain"
)

// Storage provides access to the underlying persistence mechanisms: the
// task, project and account tables plus the command queue.
type Storage struct {
	taskTable    *aztables.Client
	projectTable *aztables.Client
	accountTable *aztables.Client
	commandQueue *azqueue.QueueClient
}

// New creates a Storage instance from the given connection string.
func New(connStr, tasksTable, projectsTable, accountsTable, commandQueue string) (*Storage, error) {
	tablesClientOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &tablesClientOptions)
	if err != nil {
		return nil, err
	}
	queueClientOptions := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	cq, err := azqueue.NewQueueClientFromConnectionString(connStr, commandQueue, &queueClientOptions)
	if err != nil {
		return nil, err
	}
	return &Storage{
		taskTable:    svc.NewClient(tasksTable),
		projectTable: svc.NewClient(projectsTable),
		accountTable: svc.NewClient(accountsTable),
		commandQueue: cq,
	}, nil
}

// taskEntity is the table-storage shape of a task. The timesheet is embedded
// as a JSON string since table entities hold no nested values.
type taskEntity struct {
	aztables.Entity
	ProjectID     string `json:"ProjectID"`
	Title         string `json:"Title"`
	Responsible   string `json:"Responsible"`
	CreationDate  string `json:"CreationDate"`
	DueDate       string `json:"DueDate"`
	CompletedDate string `json:"CompletedDate"`
	Status        string `json:"Status"`
	Timesheet     string `json:"Timesheet"`
}

func encodeTask(accountID string, t domain.Task) ([]byte, error) {
	sheet, err := json.Marshal(t.Timesheet)
	if err != nil {
		return nil, err
	}
	return json.Marshal(taskEntity{
		Entity:        aztables.Entity{PartitionKey: accountID, RowKey: t.ID},
		ProjectID:     t.ProjectID,
		Title:         t.Title,
		Responsible:   t.Responsible,
		CreationDate:  t.CreationDate.String(),
		DueDate:       t.DueDate.String(),
		CompletedDate: t.CompletedDate.String(),
		Status:        string(t.Status),
		Timesheet:     string(sheet),
	})
}

func decodeTask(ent taskEntity) (domain.Task, error) {
	creation, err := domain.ParseDate(ent.CreationDate)
	if err != nil {
		return domain.Task{}, err
	}
	due, err := domain.ParseDate(ent.DueDate)
	if err != nil {
		return domain.Task{}, err
	}
	completed, err := domain.ParseDate(ent.CompletedDate)
	if err != nil {
		return domain.Task{}, err
	}
	var sheet []domain.TimeEntry
	if ent.Timesheet != "" {
		if err := json.Unmarshal([]byte(ent.Timesheet), &sheet); err != nil {
			return domain.Task{}, err
		}
	}
	return domain.Task{
		ID:            ent.RowKey,
		ProjectID:     ent.ProjectID,
		Title:         ent.Title,
		Responsible:   ent.Responsible,
		CreationDate:  creation,
		DueDate:       due,
		CompletedDate: completed,
		Status:        domain.Column(ent.Status),
		Timesheet:     sheet,
	}, nil
}

// ListTasks retrieves the tasks of one project owned by the account.
func (s *Storage) ListTasks(ctx context.Context, accountID, projectID string) ([]domain.Task, error) {
	filter := "PartitionKey eq '" + escapeFilter(accountID) + "' and ProjectID eq '" + escapeFilter(projectID) + "'"
	pager := s.taskTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	tasks := []domain.Task{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range resp.Entities {
			var ent taskEntity
			if err := json.Unmarshal(raw, &ent); err != nil {
				return nil, err
			}
			t, err := decodeTask(ent)
			if err != nil {
				return nil, err
			}
			tasks = append(tasks, t)
		}
	}
	return tasks, nil
}

// InsertTask stores a new task row.
func (s *Storage) InsertTask(ctx context.Context, accountID string, t domain.Task) error {
	data, err := encodeTask(accountID, t)
	if err != nil {
		return err
	}
	_, err = s.taskTable.AddEntity(ctx, data, nil)
	return err
}

// UpdateTask merges the patched fields into an existing task row.
func (s *Storage) UpdateTask(ctx context.Context, accountID, taskID string, patch domain.TaskPatch) error {
	upd := map[string]any{
		"PartitionKey": accountID,
		"RowKey":       taskID,
	}
	if patch.Status != nil {
		upd["Status"] = string(*patch.Status)
	}
	if patch.CompletedDate != nil {
		upd["CompletedDate"] = patch.CompletedDate.String()
	}
	if patch.Timesheet != nil {
		sheet, err := json.Marshal(patch.Timesheet)
		if err != nil {
			return err
		}
		upd["Timesheet"] = string(sheet)
	}
	data, err := json.Marshal(upd)
	if err != nil {
		return err
	}
	etag := azcore.ETagAny
	_, err = s.taskTable.UpdateEntity(ctx, data, &aztables.UpdateEntityOptions{
		IfMatch:    &etag,
		UpdateMode: aztables.UpdateModeMerge,
	})
	return err
}

// DeleteTask removes a task row. Its embedded timesheet goes with it.
func (s *Storage) DeleteTask(ctx context.Context, accountID, taskID string) error {
	_, err := s.taskTable.DeleteEntity(ctx, accountID, taskID, nil)
	return err
}

type projectEntity struct {
	aztables.Entity
	Name      string `json:"Name"`
	CreatedAt string `json:"CreatedAt"`
}

// ListProjects retrieves all projects owned by the account.
func (s *Storage) ListProjects(ctx context.Context, accountID string) ([]domain.Project, error) {
	filter := "PartitionKey eq '" + escapeFilter(accountID) + "'"
	pager := s.projectTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	projects := []domain.Project{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range resp.Entities {
			var ent projectEntity
			if err := json.Unmarshal(raw, &ent); err != nil {
				return nil, err
			}
			created, _ := time.Parse(time.RFC3339, ent.CreatedAt)
			projects = append(projects, domain.Project{
				ID:        ent.RowKey,
				Name:      ent.Name,
				Owner:     ent.PartitionKey,
				CreatedAt: created,
			})
		}
	}
	return projects, nil
}

// InsertProject stores a new project row.
func (s *Storage) InsertProject(ctx context.Context, p domain.Project) error {
	data, err := json.Marshal(projectEntity{
		Entity:    aztables.Entity{PartitionKey: p.Owner, RowKey: p.ID},
		Name:      p.Name,
		CreatedAt: p.CreatedAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	_, err = s.projectTable.AddEntity(ctx, data, nil)
	return err
}

// DeleteProject removes a project row after cascade-deleting its tasks.
func (s *Storage) DeleteProject(ctx context.Context, accountID, projectID string) error {
	tasks, err := s.ListTasks(ctx, accountID, projectID)
	if err != nil {
		return err
	}
	for _, t := range tasks {
		if err := s.DeleteTask(ctx, accountID, t.ID); err != nil && !isNotFound(err) {
			return err
		}
	}
	_, err = s.projectTable.DeleteEntity(ctx, accountID, projectID, nil)
	return err
}

// EnqueueCommands sends the given commands to the command queue.
func (s *Storage) EnqueueCommands(ctx context.Context, accountID string, cmds []domain.Command) error {
	for _, cmd := range cmds {
		env := domain.CommandEnvelope{AccountID: accountID, Command: cmd}
		data, err := json.Marshal(env)
		if err != nil {
			return err
		}
		if _, err := s.commandQueue.EnqueueMessage(ctx, string(data), nil); err != nil {
			return err
		}
	}
	return nil
}

// Receipt identifies a dequeued message for acknowledgement.
type Receipt struct {
	ID         string
	PopReceipt string
}

// DequeueCommand retrieves a single command envelope from the queue, or nil
// when the queue is empty. The returned receipt acknowledges the message.
func (s *Storage) DequeueCommand(ctx context.Context) (*domain.CommandEnvelope, Receipt, error) {
	resp, err := s.commandQueue.DequeueMessage(ctx, nil)
	if err != nil {
		return nil, Receipt{}, err
	}
	if len(resp.Messages) == 0 {
		return nil, Receipt{}, nil
	}
	msg := resp.Messages[0]
	receipt := Receipt{ID: *msg.MessageID, PopReceipt: *msg.PopReceipt}
	var env domain.CommandEnvelope
	if err := json.Unmarshal([]byte(*msg.MessageText), &env); err != nil {
		// Malformed message: hand back the receipt so the caller can drop it.
		return nil, receipt, err
	}
	return &env, receipt, nil
}

// AckCommand deletes a processed message from the queue.
func (s *Storage) AckCommand(ctx context.Context, r Receipt) error {
	if r.ID == "" {
		return nil
	}
	_, err := s.commandQueue.DeleteMessage(ctx, r.ID, r.PopReceipt, nil)
	return err
}

func escapeFilter(v string) string {
	return strings.ReplaceAll(v, "'", "''")
}

func isNotFound(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == 404
}
