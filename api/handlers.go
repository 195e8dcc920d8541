package api

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"dataflow-api/domain"
)

// Deps bundles the collaborators handlers need. All fields are required
// except Stream, which disables the live-update endpoint when nil.
type Deps struct {
	Store    Storage
	Auth     Authenticator
	Deduper  Deduper
	Sender   *Sender
	Accounts AccountService
	Stream   *Stream
	Logger   *log.Logger
}

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, d Deps) {
	e.GET("/api/board", getBoard(d.Store, d.Auth, d.Logger))
	e.POST("/api/board/move", postMove(d))
	e.POST("/api/tasks", postTask(d.Store, d.Auth))
	e.DELETE("/api/tasks/:id", deleteTask(d.Store, d.Auth))
	e.POST("/api/tasks/:id/entries", postTimeEntry(d.Store, d.Auth))
	e.GET("/api/projects", getProjects(d.Store, d.Auth))
	e.POST("/api/projects", postProject(d.Store, d.Auth))
	e.DELETE("/api/projects/:id", deleteProject(d.Store, d.Auth))
	e.GET("/api/report", getReport(d.Store, d.Auth))
	e.GET("/api/export", getExport(d.Store, d.Auth))

	registerAccountRoutes(e, d.Accounts, d.Auth)

	if d.Stream != nil {
		e.GET("/api/stream", d.Stream.Handler(d.Auth))
	}

	e.GET("/healthz", healthz())
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

func getBoard(store Storage, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newBoardRequestMetrics(ctx, logger)
		if spanCtx != nil {
			c.SetRequest(c.Request().WithContext(spanCtx))
			ctx = spanCtx
		}
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		authStart := time.Now()
		accountID, authErr := auth.AccountIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		metrics.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			metrics.SetErrorStage("auth")
			err = c.JSON(http.StatusUnauthorized, errorResponse{Error: authErr.Error()})
			return err
		}

		projectID := strings.TrimSpace(c.QueryParam("projectId"))
		if projectID == "" {
			metrics.SetErrorStage("missing_project")
			err = c.JSON(http.StatusBadRequest, errorResponse{Error: "projectId is required"})
			return err
		}

		fetchStart := time.Now()
		tasks, fetchErr := store.ListTasks(ctx, accountID, projectID)
		metrics.ObserveFetch(time.Since(fetchStart))
		if fetchErr != nil {
			metrics.SetErrorStage("storage")
			c.Logger().Error(fetchErr)
			err = c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to load board"})
			return err
		}
		metrics.SetTasksReturned(len(tasks))

		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, snapshotColumns(domain.Load(tasks)))
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

type moveRequest struct {
	TaskID         string `json:"taskId,omitempty"`
	Source         string `json:"source"`
	SourceIndex    int    `json:"sourceIndex"`
	Dest           string `json:"dest,omitempty"`
	DestIndex      int    `json:"destIndex"`
	IdempotencyKey string `json:"idempotencyKey,omitempty"`
}

// postMove applies a drag gesture to the board. Same-column reorders and
// cancelled drags return immediately with the unchanged snapshot; moves that
// change a task's status update the local view first and hand the matching
// command to the sender. The response is 202 in that case because the remote
// write has not happened yet.
func postMove(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		accountID, err := d.Auth.AccountIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
		}

		projectID := strings.TrimSpace(c.QueryParam("projectId"))
		if projectID == "" {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "projectId is required"})
		}

		var req moveRequest
		if err := decodeBody(c.Request().Body, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}

		tasks, err := d.Store.ListTasks(ctx, accountID, projectID)
		if err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to load board"})
		}
		board := domain.Load(tasks)

		mv := domain.Move{
			Source:      domain.Column(req.Source),
			SourceIndex: req.SourceIndex,
			Dest:        domain.Column(req.Dest),
			DestIndex:   req.DestIndex,
		}
		if req.TaskID != "" {
			src := board.Column(mv.Source)
			if req.SourceIndex < 0 || req.SourceIndex >= len(src) || src[req.SourceIndex].ID != req.TaskID {
				return c.JSON(http.StatusConflict, errorResponse{
					Error: "board changed since the drag started",
					Code:  "stale_board",
				})
			}
		}

		next, change := domain.ApplyMove(board, mv)
		if change == nil {
			return c.JSON(http.StatusOK, moveResponse{
				Persisted: true,
				Columns:   snapshotColumns(next),
			})
		}

		key := req.IdempotencyKey
		if key == "" {
			key = uuid.NewString()
		}
		fresh, err := d.Deduper.Add(ctx, accountID, key)
		if err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to record move"})
		}
		if !fresh {
			return c.JSON(http.StatusAccepted, moveResponse{
				Change:         change,
				IdempotencyKey: key,
				Columns:        snapshotColumns(next),
			})
		}

		cmd, err := domain.StatusChangeCommand(projectID, *change)
		if err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to record move"})
		}
		cmd.IdempotencyKey = key
		cmd.ID = key
		cmd.Timestamp = nextTimestamp()

		if !d.Sender.Dispatch(accountID, []domain.Command{cmd}, []string{key}) {
			d.Logger.Warnf("dispatch buffer saturated, writing inline, account: %s", accountID)
			if err := d.Store.EnqueueCommands(ctx, accountID, []domain.Command{cmd}); err != nil {
				if rerr := d.Deduper.Remove(ctx, accountID, key); rerr != nil {
					d.Logger.Errorf("dedupe rollback failed, err: %v, key: %s", rerr, key)
				}
				d.Logger.Warnf("remote write failed, err: %v, account: %s", err, accountID)
			}
		}

		return c.JSON(http.StatusAccepted, moveResponse{
			Change:         change,
			IdempotencyKey: key,
			Columns:        snapshotColumns(next),
		})
	}
}

type createTaskRequest struct {
	Title        string `json:"title"`
	Responsible  string `json:"responsible,omitempty"`
	CreationDate string `json:"creationDate,omitempty"`
	DueDate      string `json:"dueDate,omitempty"`
}

func postTask(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		accountID, err := auth.AccountIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
		}
		projectID := strings.TrimSpace(c.QueryParam("projectId"))
		if projectID == "" {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "projectId is required"})
		}

		var req createTaskRequest
		if err := decodeBody(c.Request().Body, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}
		if strings.TrimSpace(req.Title) == "" {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "title is required"})
		}
		due, err := domain.ParseDate(req.DueDate)
		if err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid due date"})
		}
		created, err := domain.ParseDate(req.CreationDate)
		if err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid creation date"})
		}
		if created.IsZero() {
			created = domain.Today()
		} else if created.After(domain.Today()) {
			return c.JSON(http.StatusBadRequest, errorResponse{
				Error: "creation date cannot be in the future",
				Code:  "date_in_future",
			})
		}

		t := domain.Task{
			ID:           uuid.NewString(),
			ProjectID:    projectID,
			Title:        strings.TrimSpace(req.Title),
			Responsible:  strings.TrimSpace(req.Responsible),
			CreationDate: created,
			DueDate:      due,
			Status:       domain.ColumnTodo,
		}
		if err := store.InsertTask(ctx, accountID, t); err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to create task"})
		}
		return c.JSON(http.StatusCreated, t)
	}
}

func deleteTask(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		accountID, err := auth.AccountIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
		}
		taskID := c.Param("id")
		if taskID == "" {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "task id is required"})
		}
		if err := store.DeleteTask(ctx, accountID, taskID); err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to delete task"})
		}
		return c.NoContent(http.StatusNoContent)
	}
}

type timeEntryRequest struct {
	Date    string `json:"date"`
	Hours   *int   `json:"hours"`
	Minutes int    `json:"minutes"`
	Note    string `json:"note,omitempty"`
}

func postTimeEntry(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		accountID, err := auth.AccountIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
		}
		projectID := strings.TrimSpace(c.QueryParam("projectId"))
		if projectID == "" {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "projectId is required"})
		}
		taskID := c.Param("id")

		var req timeEntryRequest
		if err := decodeBody(c.Request().Body, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}
		if req.Hours == nil {
			return c.JSON(http.StatusBadRequest, errorResponse{
				Error: "hours is required",
				Code:  "missing_field",
			})
		}
		date, err := domain.ParseDate(req.Date)
		if err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid date"})
		}

		tasks, err := store.ListTasks(ctx, accountID, projectID)
		if err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to load board"})
		}
		task, _, ok := domain.Load(tasks).Find(taskID)
		if !ok {
			return c.JSON(http.StatusNotFound, errorResponse{Error: "task not found"})
		}

		entry := domain.TimeEntry{Date: date, Hours: *req.Hours, Minutes: req.Minutes, Note: req.Note}
		if err := domain.ValidateEntry(task, entry); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{
				Error: err.Error(),
				Code:  entryErrorCode(err),
			})
		}

		updated := domain.AppendEntry(task, entry)
		patch := domain.TaskPatch{Timesheet: updated.Timesheet}
		if err := store.UpdateTask(ctx, accountID, taskID, patch); err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to save time entry"})
		}
		return c.JSON(http.StatusOK, updated)
	}
}

func entryErrorCode(err error) string {
	switch err {
	case domain.ErrDateBeforeTaskStart:
		return "date_before_task_start"
	case domain.ErrDateInFuture:
		return "date_in_future"
	case domain.ErrMissingRequiredField:
		return "missing_field"
	default:
		return ""
	}
}

type createProjectRequest struct {
	Name string `json:"name"`
}

func getProjects(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		accountID, err := auth.AccountIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
		}
		projects, err := store.ListProjects(ctx, accountID)
		if err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to list projects"})
		}
		if projects == nil {
			projects = []domain.Project{}
		}
		return c.JSON(http.StatusOK, projects)
	}
}

func postProject(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		accountID, err := auth.AccountIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
		}
		var req createProjectRequest
		if err := decodeBody(c.Request().Body, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}
		name := strings.TrimSpace(req.Name)
		if name == "" {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "name is required"})
		}

		p := domain.Project{
			ID:        uuid.NewString(),
			Name:      name,
			Owner:     accountID,
			CreatedAt: time.Now().UTC(),
		}
		if err := store.InsertProject(ctx, p); err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to create project"})
		}
		return c.JSON(http.StatusCreated, p)
	}
}

func deleteProject(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		accountID, err := auth.AccountIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
		}
		projectID := c.Param("id")
		if projectID == "" {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "project id is required"})
		}
		if err := store.DeleteProject(ctx, accountID, projectID); err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to delete project"})
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func decodeBody(body io.Reader, v any) error {
	dec := sonic.ConfigStd.NewDecoder(io.LimitReader(body, postBodyMaxSize))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
