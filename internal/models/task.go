package models

import (
	"time"

	"github.com/gofrs/uuid"
)

// Board columns. Column is stored as a plain string so boards can grow new
// labels without a migration; these are the labels the board ships with.
const (
	ColumnTodo       = "To Do"
	ColumnInProgress = "In Progress"
	ColumnDone       = "Done"
)

type Task struct {
	ID          uuid.UUID  `json:"id" gorm:"primaryKey;type:uuid"`
	UserID      uuid.UUID  `json:"user_id" gorm:"type:uuid;not null;index"`
	Title       string     `json:"title" gorm:"not null"`
	Description string     `json:"description"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Column      string     `json:"column" gorm:"column:board_column;not null"`

	// Rank orders tasks inside a column. Lower ranks render first.
	Rank int `json:"rank" gorm:"not null;default:0"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func BoardColumns() []string {
	return []string{ColumnTodo, ColumnInProgress, ColumnDone}
}
