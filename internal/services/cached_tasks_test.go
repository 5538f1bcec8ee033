package services_test

import (
	"testing"
	"time"

	"taskboard/internal/cache"
	"taskboard/internal/models"
	"taskboard/internal/services"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofrs/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupCachedTaskService(t *testing.T) *services.CachedTaskService {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	boardCache := cache.NewMultiLevelCache(cache.NewRedisCacheFromClient(client))
	t.Cleanup(func() { boardCache.Close() })

	return services.NewCachedTaskService(services.NewTaskService(), boardCache)
}

func TestCachedTaskServiceServesAndInvalidates(t *testing.T) {
	db := setupTestDB(t)
	svc := setupCachedTaskService(t)
	owner := uuid.Must(uuid.NewV4())

	task := newTask(owner, "cached", models.ColumnTodo, time.Now())
	require.NoError(t, svc.CreateTask(db, task))

	tasks, err := svc.GetTasksByUser(db, owner, services.TaskQuery{})
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	// Second read is served from cache and must match.
	again, err := svc.GetTasksByUser(db, owner, services.TaskQuery{})
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, tasks[0].ID, again[0].ID)

	// A mutation drops the cached entries; the next read sees the change.
	_, err = svc.UpdateTask(db, task.ID, owner, services.TaskPatch{Title: "renamed"})
	require.NoError(t, err)

	fresh, err := svc.GetTasksByUser(db, owner, services.TaskQuery{})
	require.NoError(t, err)
	require.Len(t, fresh, 1)
	assert.Equal(t, "renamed", fresh[0].Title)
}

func TestCachedTaskServiceBoardInvalidatedByMove(t *testing.T) {
	db := setupTestDB(t)
	svc := setupCachedTaskService(t)
	owner := uuid.Must(uuid.NewV4())

	task := newTask(owner, "mover", models.ColumnTodo, time.Now())
	require.NoError(t, svc.CreateTask(db, task))

	board, err := svc.GetBoard(db, owner)
	require.NoError(t, err)
	require.Len(t, board[models.ColumnTodo], 1)

	_, err = svc.MoveTask(db, task.ID, owner, models.ColumnDone, 0)
	require.NoError(t, err)

	board, err = svc.GetBoard(db, owner)
	require.NoError(t, err)
	assert.Empty(t, board[models.ColumnTodo])
	require.Len(t, board[models.ColumnDone], 1)
	assert.Equal(t, "mover", board[models.ColumnDone][0].Title)
}

func TestCachedTaskServiceNilCachePassThrough(t *testing.T) {
	db := setupTestDB(t)
	svc := services.NewCachedTaskService(services.NewTaskService(), nil)
	owner := uuid.Must(uuid.NewV4())

	task := newTask(owner, "plain", models.ColumnTodo, time.Now())
	require.NoError(t, svc.CreateTask(db, task))

	tasks, err := svc.GetTasksByUser(db, owner, services.TaskQuery{})
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	require.NoError(t, svc.DeleteTask(db, task.ID, owner))
	tasks, err = svc.GetTasksByUser(db, owner, services.TaskQuery{})
	require.NoError(t, err)
	assert.Empty(t, tasks)
}
