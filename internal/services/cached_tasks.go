package services

import (
	"fmt"
	"time"

	"taskboard/internal/cache"
	"taskboard/internal/models"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

const (
	listCacheTTL  = 5 * time.Minute
	boardCacheTTL = 10 * time.Minute
)

// CachedTaskService puts the multi-level cache in front of task reads.
// Every mutation drops the owner's cached entries, so a user always sees
// their own writes; a nil cache turns the wrapper into a pass-through.
type CachedTaskService struct {
	taskService TaskService
	cache       *cache.MultiLevelCache
}

func NewCachedTaskService(taskService TaskService, cacheInstance *cache.MultiLevelCache) *CachedTaskService {
	return &CachedTaskService{
		taskService: taskService,
		cache:       cacheInstance,
	}
}

func userCachePattern(userID uuid.UUID) string {
	return fmt.Sprintf("tasks:user:%s:*", userID)
}

func listCacheKey(userID uuid.UUID, query TaskQuery) string {
	return fmt.Sprintf("tasks:user:%s:list:%s:%s:%s", userID, query.Search, query.SortBy, query.Order)
}

func boardCacheKey(userID uuid.UUID) string {
	return fmt.Sprintf("tasks:user:%s:board", userID)
}

func (s *CachedTaskService) CreateTask(db *gorm.DB, task *models.Task) error {
	if err := s.taskService.CreateTask(db, task); err != nil {
		return err
	}
	s.invalidate(task.UserID)
	return nil
}

func (s *CachedTaskService) GetTasksByUser(db *gorm.DB, userID uuid.UUID, query TaskQuery) ([]models.Task, error) {
	if s.cache == nil {
		return s.taskService.GetTasksByUser(db, userID, query)
	}

	cacheKey := listCacheKey(userID, query)

	var cachedTasks []models.Task
	if err := s.cache.Get(cacheKey, &cachedTasks); err == nil {
		return cachedTasks, nil
	}

	tasks, err := s.taskService.GetTasksByUser(db, userID, query)
	if err != nil {
		return nil, err
	}

	s.cache.Set(cacheKey, tasks, listCacheTTL)
	return tasks, nil
}

func (s *CachedTaskService) GetBoard(db *gorm.DB, userID uuid.UUID) (map[string][]models.Task, error) {
	if s.cache == nil {
		return s.taskService.GetBoard(db, userID)
	}

	cacheKey := boardCacheKey(userID)

	var cachedBoard map[string][]models.Task
	if err := s.cache.Get(cacheKey, &cachedBoard); err == nil {
		return cachedBoard, nil
	}

	board, err := s.taskService.GetBoard(db, userID)
	if err != nil {
		return nil, err
	}

	s.cache.Set(cacheKey, board, boardCacheTTL)
	return board, nil
}

func (s *CachedTaskService) UpdateTask(db *gorm.DB, id, requesterID uuid.UUID, patch TaskPatch) (models.Task, error) {
	task, err := s.taskService.UpdateTask(db, id, requesterID, patch)
	if err != nil {
		return task, err
	}
	s.invalidate(requesterID)
	return task, nil
}

func (s *CachedTaskService) MoveTask(db *gorm.DB, id, requesterID uuid.UUID, column string, rank int) (models.Task, error) {
	task, err := s.taskService.MoveTask(db, id, requesterID, column, rank)
	if err != nil {
		return task, err
	}
	s.invalidate(requesterID)
	return task, nil
}

func (s *CachedTaskService) DeleteTask(db *gorm.DB, id, requesterID uuid.UUID) error {
	if err := s.taskService.DeleteTask(db, id, requesterID); err != nil {
		return err
	}
	s.invalidate(requesterID)
	return nil
}

func (s *CachedTaskService) invalidate(userID uuid.UUID) {
	if s.cache == nil {
		return
	}
	s.cache.DeletePattern(userCachePattern(userID))
}
