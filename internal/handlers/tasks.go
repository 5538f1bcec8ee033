package handlers

import (
	"errors"
	"net/http"
	"time"

	"taskboard/internal/middleware"
	"taskboard/internal/models"
	"taskboard/internal/services"
	"taskboard/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type TaskHandler struct {
	db          *gorm.DB
	taskService services.TaskService
	jobs        *worker.JobQueue
	log         *logrus.Logger
}

// NewTaskHandler wires the task endpoints. jobs may be nil when Redis is
// disabled; reminder scheduling is then skipped.
func NewTaskHandler(db *gorm.DB, taskService services.TaskService, jobs *worker.JobQueue, log *logrus.Logger) *TaskHandler {
	return &TaskHandler{db: db, taskService: taskService, jobs: jobs, log: log}
}

func currentUserID(c *gin.Context) (uuid.UUID, bool) {
	raw, exists := c.Get(middleware.ContextUserID)
	if !exists {
		return uuid.Nil, false
	}
	str, ok := raw.(string)
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.FromString(str)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func (h *TaskHandler) CreateTask(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not_authenticated", "message": "User not authenticated"})
		return
	}

	var taskInput struct {
		Title       string     `json:"title" binding:"required"`
		Description string     `json:"description"`
		DueDate     *time.Time `json:"due_date"`
		Column      string     `json:"column" binding:"required"`
	}
	if err := c.ShouldBindJSON(&taskInput); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_failed", "details": err.Error()})
		return
	}

	task := models.Task{
		ID:          uuid.Must(uuid.NewV4()),
		UserID:      userID,
		Title:       taskInput.Title,
		Description: taskInput.Description,
		DueDate:     taskInput.DueDate,
		Column:      taskInput.Column,
	}

	if err := h.taskService.CreateTask(h.db, &task); err != nil {
		h.log.WithError(err).Error("failed to create task")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error", "message": "failed to create task"})
		return
	}

	h.scheduleReminder(&task)

	c.JSON(http.StatusCreated, task)
}

func (h *TaskHandler) GetTasks(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not_authenticated", "message": "User not authenticated"})
		return
	}

	query := services.TaskQuery{
		Search: c.Query("search"),
		SortBy: c.Query("sortBy"),
		Order:  c.Query("order"),
	}

	tasks, err := h.taskService.GetTasksByUser(h.db, userID, query)
	if err != nil {
		h.handleTaskError(c, err)
		return
	}
	c.JSON(http.StatusOK, tasks)
}

func (h *TaskHandler) GetBoard(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not_authenticated", "message": "User not authenticated"})
		return
	}

	board, err := h.taskService.GetBoard(h.db, userID)
	if err != nil {
		h.handleTaskError(c, err)
		return
	}
	c.JSON(http.StatusOK, board)
}

func (h *TaskHandler) UpdateTask(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not_authenticated", "message": "User not authenticated"})
		return
	}

	id := uuid.FromStringOrNil(c.Param("id"))

	var patch services.TaskPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_failed", "details": err.Error()})
		return
	}

	task, err := h.taskService.UpdateTask(h.db, id, userID, patch)
	if err != nil {
		h.handleTaskError(c, err)
		return
	}

	// Only a due-date change warrants a new reminder; stale ones are
	// discarded at delivery time.
	if patch.DueDate != nil {
		h.scheduleReminder(&task)
	}

	c.JSON(http.StatusOK, task)
}

func (h *TaskHandler) MoveTask(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not_authenticated", "message": "User not authenticated"})
		return
	}

	id := uuid.FromStringOrNil(c.Param("id"))

	var moveInput struct {
		Column string `json:"column" binding:"required"`
		Rank   int    `json:"rank"`
	}
	if err := c.ShouldBindJSON(&moveInput); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_failed", "details": err.Error()})
		return
	}

	task, err := h.taskService.MoveTask(h.db, id, userID, moveInput.Column, moveInput.Rank)
	if err != nil {
		h.handleTaskError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *TaskHandler) DeleteTask(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not_authenticated", "message": "User not authenticated"})
		return
	}

	id := uuid.FromStringOrNil(c.Param("id"))

	if err := h.taskService.DeleteTask(h.db, id, userID); err != nil {
		h.handleTaskError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"msg": "Task removed"})
}

// scheduleReminder queues a due-date reminder an hour before the deadline.
// Past or missing due dates schedule nothing.
func (h *TaskHandler) scheduleReminder(task *models.Task) {
	if h.jobs == nil || task.DueDate == nil {
		return
	}

	remindAt := task.DueDate.Add(-time.Hour)
	if remindAt.Before(time.Now()) {
		return
	}

	err := h.jobs.EnqueueAt(worker.ReminderQueue, worker.JobTypeDueReminder, map[string]interface{}{
		"task_id":  task.ID.String(),
		"user_id":  task.UserID.String(),
		"title":    task.Title,
		"due_date": task.DueDate.Format(time.RFC3339),
	}, remindAt)
	if err != nil {
		h.log.WithError(err).WithField("task_id", task.ID).Warn("failed to schedule reminder")
	}
}

func (h *TaskHandler) handleTaskError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrTaskNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "task_not_found", "message": "Task not found"})
	case errors.Is(err, services.ErrNotOwner):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden", "message": "User not authorized"})
	default:
		h.log.WithError(err).Error("task request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error", "message": "failed to process task request"})
	}
}
