package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"dataflow-api/domain"
)

type reportResponse struct {
	TotalHours    string            `json:"totalHours"`
	ByResponsible map[string]string `json:"byResponsible"`
}

// getReport summarises logged time across the whole project, all columns
// included. Figures are pre-formatted decimal hour strings.
func getReport(store Storage, auth Authenticator) echo.HandlerFunc {
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

		tasks, err := store.ListTasks(ctx, accountID, projectID)
		if err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to load tasks"})
		}

		resp := reportResponse{
			TotalHours:    fmt.Sprintf("%.2f", domain.ProjectTotalHours(tasks)),
			ByResponsible: domain.HoursByResponsible(tasks),
		}
		if resp.ByResponsible == nil {
			resp.ByResponsible = map[string]string{}
		}
		return c.JSON(http.StatusOK, resp)
	}
}

// getExport streams the completed-work CSV as a file download. Projects with
// no completed tasks get a 409 so clients can tell "nothing to export" apart
// from a failed request.
func getExport(store Storage, auth Authenticator) echo.HandlerFunc {
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

		tasks, err := store.ListTasks(ctx, accountID, projectID)
		if err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to load tasks"})
		}

		done := domain.Load(tasks).Column(domain.ColumnDone)
		filename, data, err := domain.ExportCompleted(done, domain.Today())
		if err != nil {
			if errors.Is(err, domain.ErrNothingToExport) {
				return c.JSON(http.StatusConflict, errorResponse{
					Error: "no completed tasks to export",
					Code:  "nothing_to_export",
				})
			}
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to build export"})
		}

		c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
		return c.Blob(http.StatusOK, "text/csv; charset=utf-8", data)
	}
}
