package api

import (
	"net/http"
	"time"

	"github.com/antidetect/automation/internal/biz/run"
	"github.com/antidetect/automation/internal/biz/task"
	"github.com/antidetect/automation/internal/scheduler"
	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"github.com/samber/mo"
	"github.com/spf13/cast"
	"go.uber.org/zap"
)

type TaskAPI struct {
	usecase   *task.Usecase
	runRepo   run.Repo
	scheduler *scheduler.Scheduler
	logger    *zap.Logger
}

func NewTaskAPI(usecase *task.Usecase, runRepo run.Repo, sched *scheduler.Scheduler, logger *zap.Logger) *TaskAPI {
	return &TaskAPI{
		usecase:   usecase,
		runRepo:   runRepo,
		scheduler: sched,
		logger:    logger,
	}
}

type CreateTaskReq struct {
	Name      string        `json:"name" binding:"required"`
	ProjectID string        `json:"project_id"`
	Cadence   task.Cadence  `json:"cadence" binding:"required"`
	Schedule  task.Schedule `json:"schedule"`
	Timezone  string        `json:"timezone"`
	Targets   []task.Target `json:"targets" binding:"required"`
}

type UpdateTaskReq struct {
	Name     *string        `json:"name"`
	Cadence  *task.Cadence  `json:"cadence"`
	Schedule *task.Schedule `json:"schedule"`
	Timezone *string        `json:"timezone"`
	Targets  *[]task.Target `json:"targets"`
}

type TaskResponse struct {
	ID        uint64        `json:"id"`
	Name      string        `json:"name"`
	ProjectID string        `json:"project_id,omitempty"`
	Cadence   task.Cadence  `json:"cadence"`
	Schedule  task.Schedule `json:"schedule"`
	Timezone  string        `json:"timezone"`
	Targets   []task.Target `json:"targets"`
	Status    string        `json:"status"`
	NextRunAt *time.Time    `json:"next_run_at"`
	LastRunAt *time.Time    `json:"last_run_at"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

func toTaskResponse(t *task.Task) TaskResponse {
	return TaskResponse{
		ID:        t.ID,
		Name:      t.Name,
		ProjectID: t.ProjectID,
		Cadence:   t.Cadence,
		Schedule:  t.Schedule,
		Timezone:  t.Timezone,
		Targets:   t.Targets,
		Status:    string(t.Status),
		NextRunAt: t.NextRunAt,
		LastRunAt: t.LastRunAt,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}

type RunResponse struct {
	ID           uint64     `json:"id"`
	TaskID       uint64     `json:"task_id"`
	Status       string     `json:"status"`
	QueuedAt     time.Time  `json:"queued_at"`
	StartedAt    *time.Time `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at"`
	DurationMs   int64      `json:"duration_ms"`
	SuccessCount int        `json:"success_count"`
	FailCount    int        `json:"fail_count"`
	Error        string     `json:"error,omitempty"`
}

func toRunResponse(r *run.TaskRun) RunResponse {
	return RunResponse{
		ID:           r.ID,
		TaskID:       r.TaskID,
		Status:       string(r.Status),
		QueuedAt:     r.QueuedAt,
		StartedAt:    r.StartedAt,
		CompletedAt:  r.CompletedAt,
		DurationMs:   r.DurationMs,
		SuccessCount: r.SuccessCount,
		FailCount:    r.FailCount,
		Error:        r.Error,
	}
}

func (a *TaskAPI) List(c *gin.Context) {
	filter := &task.TaskFilter{}
	if status := c.Query("status"); status != "" {
		filter.Status = mo.Some(task.TaskStatus(status))
	}
	if projectID := c.Query("project_id"); projectID != "" {
		filter.ProjectID = mo.Some(projectID)
	}

	tasks, err := a.usecase.List(c.Request.Context(), filter)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, lo.Map(tasks, func(t *task.Task, _ int) TaskResponse {
		return toTaskResponse(t)
	}))
}

func (a *TaskAPI) Create(c *gin.Context) {
	var req CreateTaskReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "BAD_REQUEST", Message: err.Error()})
		return
	}

	t := &task.Task{
		Name:      req.Name,
		ProjectID: req.ProjectID,
		Cadence:   req.Cadence,
		Schedule:  req.Schedule,
		Timezone:  req.Timezone,
		Targets:   req.Targets,
	}
	if err := a.usecase.Create(c.Request.Context(), t); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, toTaskResponse(t))
}

func (a *TaskAPI) Get(c *gin.Context) {
	id, err := cast.ToUint64E(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "BAD_REQUEST", Message: "invalid task id"})
		return
	}

	t, err := a.usecase.Get(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, toTaskResponse(t))
}

func (a *TaskAPI) Update(c *gin.Context) {
	id, err := cast.ToUint64E(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "BAD_REQUEST", Message: "invalid task id"})
		return
	}

	var req UpdateTaskReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "BAD_REQUEST", Message: err.Error()})
		return
	}

	update := &task.UpdateRequest{
		Name:     mo.PointerToOption(req.Name),
		Cadence:  mo.PointerToOption(req.Cadence),
		Schedule: mo.PointerToOption(req.Schedule),
		Timezone: mo.PointerToOption(req.Timezone),
		Targets:  mo.PointerToOption(req.Targets),
	}
	t, err := a.usecase.Update(c.Request.Context(), id, update)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, toTaskResponse(t))
}

func (a *TaskAPI) Delete(c *gin.Context) {
	id, err := cast.ToUint64E(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "BAD_REQUEST", Message: "invalid task id"})
		return
	}

	if err := a.usecase.Delete(c.Request.Context(), id); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "task deleted"})
}

func (a *TaskAPI) Trigger(c *gin.Context) {
	id, err := cast.ToUint64E(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "BAD_REQUEST", Message: "invalid task id"})
		return
	}

	taskRun, err := a.scheduler.Trigger(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusAccepted, toRunResponse(taskRun))
}

func (a *TaskAPI) Pause(c *gin.Context) {
	id, err := cast.ToUint64E(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "BAD_REQUEST", Message: "invalid task id"})
		return
	}

	if err := a.usecase.Pause(c.Request.Context(), id); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "task paused"})
}

func (a *TaskAPI) Resume(c *gin.Context) {
	id, err := cast.ToUint64E(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "BAD_REQUEST", Message: "invalid task id"})
		return
	}

	if err := a.usecase.Resume(c.Request.Context(), id); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "task resumed"})
}

func (a *TaskAPI) ListRuns(c *gin.Context) {
	id, err := cast.ToUint64E(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "BAD_REQUEST", Message: "invalid task id"})
		return
	}

	limit := cast.ToInt(c.DefaultQuery("limit", "50"))
	offset := cast.ToInt(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	runs, err := a.runRepo.ListByTask(c.Request.Context(), id, limit, offset)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, lo.Map(runs, func(r *run.TaskRun, _ int) RunResponse {
		return toRunResponse(r)
	}))
}
