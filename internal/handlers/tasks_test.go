package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"taskboard/internal/handlers"
	"taskboard/internal/middleware"
	"taskboard/internal/models"
	"taskboard/internal/services"
	"taskboard/internal/worker"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type MockTaskService struct {
	tasks     []models.Task
	failWith  error
	lastPatch services.TaskPatch
}

func (m *MockTaskService) CreateTask(db *gorm.DB, task *models.Task) error {
	if m.failWith != nil {
		return m.failWith
	}
	m.tasks = append(m.tasks, *task)
	return nil
}

func (m *MockTaskService) GetTasksByUser(db *gorm.DB, userID uuid.UUID, query services.TaskQuery) ([]models.Task, error) {
	if m.failWith != nil {
		return nil, m.failWith
	}
	return m.tasks, nil
}

func (m *MockTaskService) GetBoard(db *gorm.DB, userID uuid.UUID) (map[string][]models.Task, error) {
	if m.failWith != nil {
		return nil, m.failWith
	}
	board := map[string][]models.Task{}
	for _, column := range models.BoardColumns() {
		board[column] = []models.Task{}
	}
	for _, task := range m.tasks {
		board[task.Column] = append(board[task.Column], task)
	}
	return board, nil
}

func (m *MockTaskService) UpdateTask(db *gorm.DB, id, requesterID uuid.UUID, patch services.TaskPatch) (models.Task, error) {
	if m.failWith != nil {
		return models.Task{}, m.failWith
	}
	m.lastPatch = patch
	return models.Task{ID: id, UserID: requesterID, Title: "updated", Column: models.ColumnTodo, DueDate: patch.DueDate}, nil
}

func (m *MockTaskService) MoveTask(db *gorm.DB, id, requesterID uuid.UUID, column string, rank int) (models.Task, error) {
	if m.failWith != nil {
		return models.Task{}, m.failWith
	}
	return models.Task{ID: id, UserID: requesterID, Title: "moved", Column: column, Rank: rank}, nil
}

func (m *MockTaskService) DeleteTask(db *gorm.DB, id, requesterID uuid.UUID) error {
	return m.failWith
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func setupTaskRouter() (*MockTaskService, *gin.Engine) {
	gin.SetMode(gin.TestMode)

	mockService := &MockTaskService{}
	handler := handlers.NewTaskHandler(nil, mockService, nil, quietLogger())

	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set(middleware.ContextUserID, uuid.Must(uuid.NewV4()).String())
		c.Next()
	})

	router.GET("/tasks", handler.GetTasks)
	router.GET("/tasks/board", handler.GetBoard)
	router.POST("/tasks", handler.CreateTask)
	router.PUT("/tasks/:id", handler.UpdateTask)
	router.PUT("/tasks/:id/move", handler.MoveTask)
	router.DELETE("/tasks/:id", handler.DeleteTask)

	return mockService, router
}

func TestCreateTask(t *testing.T) {
	_, router := setupTaskRouter()

	body, _ := json.Marshal(gin.H{"title": "Buy milk", "column": models.ColumnTodo})
	req, _ := http.NewRequest("POST", "/tasks", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)

	var created models.Task
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "Buy milk", created.Title)
	assert.Equal(t, models.ColumnTodo, created.Column)
}

func TestCreateTaskMissingTitle(t *testing.T) {
	mockService, router := setupTaskRouter()

	body, _ := json.Marshal(gin.H{"column": models.ColumnTodo})
	req, _ := http.NewRequest("POST", "/tasks", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, mockService.tasks, "no record may be created")
}

func TestCreateTaskMissingColumn(t *testing.T) {
	mockService, router := setupTaskRouter()

	body, _ := json.Marshal(gin.H{"title": "No lane"})
	req, _ := http.NewRequest("POST", "/tasks", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, mockService.tasks)
}

func TestGetTasks(t *testing.T) {
	mockService, router := setupTaskRouter()
	mockService.tasks = []models.Task{
		{Title: "one", Column: models.ColumnTodo},
		{Title: "two", Column: models.ColumnDone},
	}

	req, _ := http.NewRequest("GET", "/tasks?search=o&sortBy=title&order=asc", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var tasks []models.Task
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tasks))
	assert.Len(t, tasks, 2)
}

func TestGetBoard(t *testing.T) {
	mockService, router := setupTaskRouter()
	mockService.tasks = []models.Task{
		{Title: "doing", Column: models.ColumnInProgress},
	}

	req, _ := http.NewRequest("GET", "/tasks/board", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var board map[string][]models.Task
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &board))
	assert.Len(t, board[models.ColumnInProgress], 1)
	assert.Empty(t, board[models.ColumnTodo])
}

func TestUpdateTaskPassesPatch(t *testing.T) {
	mockService, router := setupTaskRouter()

	body, _ := json.Marshal(gin.H{"title": "renamed"})
	req, _ := http.NewRequest("PUT", "/tasks/"+uuid.Must(uuid.NewV4()).String(), bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "renamed", mockService.lastPatch.Title)
	assert.Empty(t, mockService.lastPatch.Column)
}

func TestUpdateTaskNotFound(t *testing.T) {
	mockService, router := setupTaskRouter()
	mockService.failWith = services.ErrTaskNotFound

	body, _ := json.Marshal(gin.H{"title": "renamed"})
	req, _ := http.NewRequest("PUT", "/tasks/"+uuid.Must(uuid.NewV4()).String(), bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpdateTaskForbidden(t *testing.T) {
	mockService, router := setupTaskRouter()
	mockService.failWith = services.ErrNotOwner

	body, _ := json.Marshal(gin.H{"title": "renamed"})
	req, _ := http.NewRequest("PUT", "/tasks/"+uuid.Must(uuid.NewV4()).String(), bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestUpdateTaskSchedulesReminderOnlyForDueDates(t *testing.T) {
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	jobs := worker.NewJobQueue(client)

	mockService := &MockTaskService{}
	handler := handlers.NewTaskHandler(nil, mockService, jobs, quietLogger())

	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set(middleware.ContextUserID, uuid.Must(uuid.NewV4()).String())
		c.Next()
	})
	router.PUT("/tasks/:id", handler.UpdateTask)

	put := func(payload gin.H) {
		t.Helper()
		body, _ := json.Marshal(payload)
		req, _ := http.NewRequest("PUT", "/tasks/"+uuid.Must(uuid.NewV4()).String(), bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
	}

	// A title-only edit of a due-dated task must not queue another reminder.
	put(gin.H{"title": "renamed"})

	scheduled, err := jobs.ScheduledSize()
	require.NoError(t, err)
	assert.Equal(t, int64(0), scheduled)

	put(gin.H{"due_date": time.Now().Add(48 * time.Hour).Format(time.RFC3339)})

	scheduled, err = jobs.ScheduledSize()
	require.NoError(t, err)
	assert.Equal(t, int64(1), scheduled)
}

func TestMoveTask(t *testing.T) {
	_, router := setupTaskRouter()

	body, _ := json.Marshal(gin.H{"column": models.ColumnDone, "rank": 3})
	req, _ := http.NewRequest("PUT", "/tasks/"+uuid.Must(uuid.NewV4()).String()+"/move", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var moved models.Task
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &moved))
	assert.Equal(t, models.ColumnDone, moved.Column)
	assert.Equal(t, 3, moved.Rank)
}

func TestDeleteTask(t *testing.T) {
	_, router := setupTaskRouter()

	req, _ := http.NewRequest("DELETE", "/tasks/"+uuid.Must(uuid.NewV4()).String(), nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"msg": "Task removed"}`, w.Body.String())
}

func TestDeleteTaskNotFound(t *testing.T) {
	mockService, router := setupTaskRouter()
	mockService.failWith = services.ErrTaskNotFound

	req, _ := http.NewRequest("DELETE", "/tasks/"+uuid.Must(uuid.NewV4()).String(), nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
