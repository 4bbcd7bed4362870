package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"boardflow-api/domain"
	"boardflow-api/storage"
)

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, store Storage, rules RuleWriter, disp Dispatcher, auth Authenticator, logger *log.Logger) {
	e.GET("/api/boards/:boardId/rules", listRules(store, auth))
	e.POST("/api/boards/:boardId/rules", createRule(rules, auth))
	e.PUT("/api/rules/:id", updateRule(store, rules, auth))
	e.DELETE("/api/rules/:id", deleteRule(rules, auth))
	e.POST("/api/rules/:id/test", testRule(store, disp, auth))
	e.GET("/api/boards/:boardId/executions", listExecutions(store, auth))

	e.POST("/api/tasks", createTask(store, disp, auth))
	e.PATCH("/api/tasks/:id", updateTask(store, disp, auth))
	e.POST("/api/tasks/:id/move", moveTask(store, disp, auth))
	e.POST("/api/boards/:boardId/reorder", reorderTasks(store, auth))

	e.GET("/healthz", healthz(store))
}

func decodeBody(c echo.Context, v any) error {
	lr := io.LimitReader(c.Request().Body, requestBodyMaxSize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func healthz(store Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := store.Ping(c.Request().Context()); err != nil {
			return c.String(http.StatusServiceUnavailable, err.Error())
		}
		return c.NoContent(http.StatusOK)
	}
}

func listRules(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization")); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		rules, err := store.ListRules(c.Request().Context(), c.Param("boardId"))
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, rulesResponse{Rules: rules})
	}
}

func createRule(rules RuleWriter, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization")); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		var req ruleRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		rule := &domain.AutomationRule{
			BoardID:       c.Param("boardId"),
			Name:          req.Name,
			TriggerType:   req.TriggerType,
			TriggerConfig: req.TriggerConfig,
			ActionType:    req.ActionType,
			ActionConfig:  req.ActionConfig,
			Active:        true,
		}
		if req.Active != nil {
			rule.Active = *req.Active
		}
		if err := rules.CreateRule(c.Request().Context(), rule); err != nil {
			return c.String(http.StatusBadRequest, err.Error())
		}
		return c.JSON(http.StatusCreated, rule)
	}
}

func updateRule(store Storage, rules RuleWriter, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization")); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		ctx := c.Request().Context()
		rule, err := store.GetRule(ctx, c.Param("id"))
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		if rule == nil {
			return c.String(http.StatusNotFound, "rule not found")
		}
		var req ruleRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		rule.Name = req.Name
		rule.TriggerType = req.TriggerType
		rule.TriggerConfig = req.TriggerConfig
		rule.ActionType = req.ActionType
		rule.ActionConfig = req.ActionConfig
		if req.Active != nil {
			rule.Active = *req.Active
		}
		if err := rules.UpdateRule(ctx, rule); err != nil {
			return c.String(http.StatusBadRequest, err.Error())
		}
		return c.JSON(http.StatusOK, rule)
	}
}

func deleteRule(rules RuleWriter, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization")); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		if err := rules.DeleteRule(c.Request().Context(), c.Param("id")); err != nil {
			if errors.Is(err, storage.ErrRuleNotFound) {
				return c.String(http.StatusNotFound, "rule not found")
			}
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		return c.NoContent(http.StatusNoContent)
	}
}

// testRule runs one rule against a synthetic context built from an
// existing task, recording the outcome like a real firing.
func testRule(store Storage, disp Dispatcher, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		ctx := c.Request().Context()
		rule, err := store.GetRule(ctx, c.Param("id"))
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		if rule == nil {
			return c.String(http.StatusNotFound, "rule not found")
		}
		var req struct {
			TaskID string `json:"taskId"`
		}
		if err := decodeBody(c, &req); err != nil || req.TaskID == "" {
			return c.String(http.StatusBadRequest, "taskId required")
		}
		task, err := store.GetTask(ctx, req.TaskID)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		if task == nil {
			return c.String(http.StatusNotFound, "task not found")
		}
		evt := eventContextFor(task, userID, nil)
		status := disp.ExecuteRuleOnce(ctx, rule, evt)
		return c.JSON(http.StatusOK, map[string]string{"status": string(status)})
	}
}

func listExecutions(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization")); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		limit := 0
		if raw := c.QueryParam("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				return c.String(http.StatusBadRequest, "invalid limit")
			}
			limit = n
		}
		execs, err := store.ListExecutions(c.Request().Context(), c.Param("boardId"), limit)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, executionsResponse{Executions: execs})
	}
}

func createTask(store Storage, disp Dispatcher, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		var req createTaskRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if req.BoardID == "" || req.ColumnID == "" || req.Title == "" {
			return c.String(http.StatusBadRequest, "boardId, columnId and title are required")
		}
		task := &domain.Task{
			BoardID:    req.BoardID,
			ColumnID:   req.ColumnID,
			SwimlaneID: req.SwimlaneID,
			Title:      req.Title,
			DueDate:    req.DueDate,
			CreatedBy:  userID,
		}
		if req.Priority != "" {
			p := domain.TaskPriority(req.Priority)
			if !p.Valid() {
				return c.String(http.StatusBadRequest, "invalid priority")
			}
			task.Priority = p
		}
		ctx := c.Request().Context()
		if err := store.CreateTask(ctx, task); err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		disp.Dispatch(ctx, domain.TriggerTaskCreated, eventContextFor(task, userID, nil))
		return c.JSON(http.StatusCreated, task)
	}
}

func updateTask(store Storage, disp Dispatcher, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		var req updateTaskRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}

		ctx := c.Request().Context()
		before, err := store.GetTask(ctx, c.Param("id"))
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		if before == nil {
			return c.String(http.StatusNotFound, "task not found")
		}

		upd, badField := fieldUpdateFrom(req)
		if badField != "" {
			return c.String(http.StatusBadRequest, "invalid "+badField)
		}
		if err := store.UpdateTaskFields(ctx, before.ID, upd); err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		after, err := store.GetTask(ctx, before.ID)
		if err != nil || after == nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "task reload failed")
		}

		prev := before.Snapshot()
		dispatchUpdateTriggers(ctx, disp, eventContextFor(after, userID, &prev))
		return c.JSON(http.StatusOK, after)
	}
}

// fieldUpdateFrom converts the request into a storage update, returning
// the name of the first invalid field, if any.
func fieldUpdateFrom(req updateTaskRequest) (storage.TaskFieldUpdate, string) {
	var upd storage.TaskFieldUpdate
	upd.Title = req.Title
	if req.Status != nil {
		s := domain.TaskStatus(*req.Status)
		if !s.Valid() {
			return upd, "status"
		}
		upd.Status = &s
	}
	if req.Priority != nil {
		p := domain.TaskPriority(*req.Priority)
		if !p.Valid() {
			return upd, "priority"
		}
		upd.Priority = &p
	}
	if req.Assignee != nil {
		upd.SetAssignee = true
		if *req.Assignee != "" {
			upd.AssigneeID = req.Assignee
		}
	}
	if req.DueDate != nil {
		upd.SetDueDate = true
		if *req.DueDate != "" {
			due, err := time.Parse(time.RFC3339, *req.DueDate)
			if err != nil {
				return upd, "dueDate"
			}
			upd.DueDate = &due
		}
	}
	return upd, ""
}

// dispatchUpdateTriggers fires TASK_UPDATED plus the more specific
// triggers implied by the delta between the snapshots.
func dispatchUpdateTriggers(ctx context.Context, disp Dispatcher, evt *domain.EventContext) {
	disp.Dispatch(ctx, domain.TriggerTaskUpdated, evt)
	prev, cur := evt.Previous, evt.Current
	if cur == nil {
		return
	}
	if cur.Status == domain.StatusDone && (prev == nil || prev.Status != domain.StatusDone) {
		disp.Dispatch(ctx, domain.TriggerTaskCompleted, evt)
	}
	if evt.FieldChanged(domain.FieldAssignee) && cur.AssigneeID != nil {
		disp.Dispatch(ctx, domain.TriggerAssignedToUser, evt)
	}
	if evt.FieldChanged(domain.FieldPriority) {
		disp.Dispatch(ctx, domain.TriggerPriorityChanged, evt)
	}
}

func moveTask(store Storage, disp Dispatcher, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		var req moveTaskRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if req.ColumnID == "" {
			return c.String(http.StatusBadRequest, "columnId is required")
		}

		ctx := c.Request().Context()
		before, err := store.GetTask(ctx, c.Param("id"))
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		if before == nil {
			return c.String(http.StatusNotFound, "task not found")
		}

		to := domain.Partition{ColumnID: req.ColumnID, SwimlaneID: req.SwimlaneID}
		if err := store.MovePartition(ctx, before.ID, to, req.Position); err != nil {
			if errors.Is(err, storage.ErrTaskNotFound) {
				return c.String(http.StatusNotFound, "task not found")
			}
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		after, err := store.GetTask(ctx, before.ID)
		if err != nil || after == nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "task reload failed")
		}

		prev := before.Snapshot()
		disp.Dispatch(ctx, domain.TriggerTaskMoved, eventContextFor(after, userID, &prev))
		return c.JSON(http.StatusOK, after)
	}
}

func reorderTasks(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization")); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		var req reorderRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if req.ColumnID == "" || len(req.Items) == 0 {
			return c.String(http.StatusBadRequest, "columnId and items are required")
		}
		p := domain.Partition{ColumnID: req.ColumnID, SwimlaneID: req.SwimlaneID}
		ctx := c.Request().Context()
		if err := store.BulkReorder(ctx, p, req.Items); err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		// The caller supplies the permutation; Compact repairs any gaps it left.
		if err := store.Compact(ctx, p); err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		return c.NoContent(http.StatusNoContent)
	}
}

// eventContextFor builds the event context for a task mutation.
func eventContextFor(t *domain.Task, actorID string, previous *domain.Snapshot) *domain.EventContext {
	cur := t.Snapshot()
	return &domain.EventContext{
		TaskID:     t.ID,
		ActorID:    actorID,
		BoardID:    t.BoardID,
		ColumnID:   t.ColumnID,
		SwimlaneID: t.SwimlaneID,
		Previous:   previous,
		Current:    &cur,
	}
}
