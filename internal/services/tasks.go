package services

import (
	"errors"
	"strings"
	"time"

	"taskboard/internal/models"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

// TaskQuery narrows and orders a task listing. Search is a case-insensitive
// substring match over title and description. SortBy accepts "title" or
// "created_at"; anything else falls back to created_at. Order is "asc" or
// "desc" (default desc, newest first).
type TaskQuery struct {
	Search string
	SortBy string
	Order  string
}

// TaskPatch carries partial-update fields. Empty strings and nil dates mean
// "leave unchanged"; there is no way to blank a field through a patch.
type TaskPatch struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	DueDate     *time.Time `json:"due_date"`
	Column      string     `json:"column"`
}

type TaskService interface {
	CreateTask(db *gorm.DB, task *models.Task) error
	GetTasksByUser(db *gorm.DB, userID uuid.UUID, query TaskQuery) ([]models.Task, error)
	GetBoard(db *gorm.DB, userID uuid.UUID) (map[string][]models.Task, error)
	UpdateTask(db *gorm.DB, id, requesterID uuid.UUID, patch TaskPatch) (models.Task, error)
	MoveTask(db *gorm.DB, id, requesterID uuid.UUID, column string, rank int) (models.Task, error)
	DeleteTask(db *gorm.DB, id, requesterID uuid.UUID) error
}

type TaskServiceImpl struct{}

func NewTaskService() *TaskServiceImpl {
	return &TaskServiceImpl{}
}

// CreateTask persists the task at the end of its column. The rank lookup and
// insert share a transaction so two concurrent creates cannot claim the same
// slot.
func (s *TaskServiceImpl) CreateTask(db *gorm.DB, task *models.Task) error {
	return db.Transaction(func(tx *gorm.DB) error {
		var nextRank int64
		err := tx.Model(&models.Task{}).
			Where("user_id = ? AND board_column = ?", task.UserID, task.Column).
			Select("COALESCE(MAX(rank) + 1, 0)").
			Scan(&nextRank).Error
		if err != nil {
			return err
		}

		task.Rank = int(nextRank)
		return tx.Create(task).Error
	})
}

func (s *TaskServiceImpl) GetTasksByUser(db *gorm.DB, userID uuid.UUID, query TaskQuery) ([]models.Task, error) {
	q := db.Where("user_id = ?", userID)

	if search := strings.TrimSpace(query.Search); search != "" {
		pattern := "%" + strings.ToLower(search) + "%"
		q = q.Where("LOWER(title) LIKE ? OR LOWER(description) LIKE ?", pattern, pattern)
	}

	sortBy := "created_at"
	if query.SortBy == "title" {
		sortBy = "title"
	}
	order := "desc"
	if strings.EqualFold(query.Order, "asc") {
		order = "asc"
	}

	var tasks []models.Task
	if err := q.Order(sortBy + " " + order).Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

// GetBoard groups the user's tasks by column, rank-ordered within each.
// The three standard columns are always present so the board renders empty
// lanes; tasks with custom labels get their own bucket.
func (s *TaskServiceImpl) GetBoard(db *gorm.DB, userID uuid.UUID) (map[string][]models.Task, error) {
	var tasks []models.Task
	err := db.Where("user_id = ?", userID).
		Order("board_column asc, rank asc, created_at asc").
		Find(&tasks).Error
	if err != nil {
		return nil, err
	}

	board := make(map[string][]models.Task)
	for _, column := range models.BoardColumns() {
		board[column] = []models.Task{}
	}
	for _, task := range tasks {
		board[task.Column] = append(board[task.Column], task)
	}
	return board, nil
}

// UpdateTask applies a partial patch with a single owner-scoped UPDATE, so
// the ownership check and the mutation cannot race. A zero-field patch is a
// no-op that still verifies ownership.
func (s *TaskServiceImpl) UpdateTask(db *gorm.DB, id, requesterID uuid.UUID, patch TaskPatch) (models.Task, error) {
	fields := map[string]interface{}{}
	if patch.Title != "" {
		fields["title"] = patch.Title
	}
	if patch.Description != "" {
		fields["description"] = patch.Description
	}
	if patch.DueDate != nil {
		fields["due_date"] = patch.DueDate
	}
	if patch.Column != "" {
		fields["board_column"] = patch.Column
	}

	if len(fields) > 0 {
		result := db.Model(&models.Task{}).
			Where("id = ? AND user_id = ?", id, requesterID).
			Updates(fields)
		if result.Error != nil {
			return models.Task{}, result.Error
		}
		if result.RowsAffected == 0 {
			return models.Task{}, s.classifyMiss(db, id)
		}
	}

	var task models.Task
	if err := db.Where("id = ? AND user_id = ?", id, requesterID).First(&task).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Task{}, s.classifyMiss(db, id)
		}
		return models.Task{}, err
	}
	return task, nil
}

// MoveTask places the task at the given rank of the given column, shifting
// displaced siblings by one. Runs in a transaction so a reload mid-move
// never observes duplicate ranks.
func (s *TaskServiceImpl) MoveTask(db *gorm.DB, id, requesterID uuid.UUID, column string, rank int) (models.Task, error) {
	if rank < 0 {
		rank = 0
	}

	var moved models.Task
	err := db.Transaction(func(tx *gorm.DB) error {
		var task models.Task
		if err := tx.Where("id = ?", id).First(&task).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTaskNotFound
			}
			return err
		}
		if task.UserID != requesterID {
			return ErrNotOwner
		}

		var err error
		switch {
		case task.Column != column:
			// Entering a new column: open a slot at the target rank.
			err = tx.Model(&models.Task{}).
				Where("user_id = ? AND board_column = ? AND rank >= ? AND id <> ?",
					requesterID, column, rank, id).
				UpdateColumn("rank", gorm.Expr("rank + 1")).Error
		case rank < task.Rank:
			// Moving up its own column: push the displaced range down.
			err = tx.Model(&models.Task{}).
				Where("user_id = ? AND board_column = ? AND rank >= ? AND rank < ? AND id <> ?",
					requesterID, column, rank, task.Rank, id).
				UpdateColumn("rank", gorm.Expr("rank + 1")).Error
		case rank > task.Rank:
			// Moving down its own column: the passed-over range slides up
			// into the vacated slot.
			err = tx.Model(&models.Task{}).
				Where("user_id = ? AND board_column = ? AND rank > ? AND rank <= ? AND id <> ?",
					requesterID, column, task.Rank, rank, id).
				UpdateColumn("rank", gorm.Expr("rank - 1")).Error
		}
		if err != nil {
			return err
		}

		err = tx.Model(&task).Updates(map[string]interface{}{
			"board_column": column,
			"rank":         rank,
		}).Error
		if err != nil {
			return err
		}

		moved = task
		moved.Column = column
		moved.Rank = rank
		return nil
	})
	if err != nil {
		return models.Task{}, err
	}
	return moved, nil
}

// DeleteTask removes the task with a single owner-scoped DELETE.
func (s *TaskServiceImpl) DeleteTask(db *gorm.DB, id, requesterID uuid.UUID) error {
	result := db.Where("id = ? AND user_id = ?", id, requesterID).Delete(&models.Task{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return s.classifyMiss(db, id)
	}
	return nil
}

// classifyMiss tells a missing task apart from someone else's task, purely
// for the error shape. The mutation itself already ran owner-scoped.
func (s *TaskServiceImpl) classifyMiss(db *gorm.DB, id uuid.UUID) error {
	var count int64
	if err := db.Model(&models.Task{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrTaskNotFound
	}
	return ErrNotOwner
}
