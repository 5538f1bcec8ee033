package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"taskboard/internal/models"

	"github.com/gofrs/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// DueReminderHandler delivers due-date reminders. The task is re-read at
// delivery time: tasks that were deleted or already moved to Done since the
// job was queued are silently dropped.
func DueReminderHandler(db *gorm.DB, log *logrus.Logger) JobHandler {
	return func(ctx context.Context, job *Job) error {
		taskIDStr, _ := job.Payload["task_id"].(string)
		taskID, err := uuid.FromString(taskIDStr)
		if err != nil {
			return errors.New("reminder job missing task_id")
		}

		var task models.Task
		if err := db.WithContext(ctx).Where("id = ?", taskID).First(&task).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}

		if task.Column == models.ColumnDone {
			return nil
		}

		// A due date edited after this job was queued supersedes it; the
		// reschedule queued its own reminder.
		if raw, ok := job.Payload["due_date"].(string); ok {
			due, err := time.Parse(time.RFC3339, raw)
			if err == nil && (task.DueDate == nil || !task.DueDate.Equal(due)) {
				return nil
			}
		}

		log.WithFields(logrus.Fields{
			"task_id": task.ID,
			"user_id": task.UserID,
			"title":   task.Title,
			"due":     task.DueDate,
		}).Info("task due soon")
		return nil
	}
}

// CleanupHandler removes uploaded avatar files no user references anymore.
func CleanupHandler(db *gorm.DB, uploadDir string, log *logrus.Logger) JobHandler {
	return func(ctx context.Context, job *Job) error {
		entries, err := os.ReadDir(uploadDir)
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}

		var referenced []string
		err = db.WithContext(ctx).Model(&models.User{}).
			Where("avatar <> ''").
			Pluck("avatar", &referenced).Error
		if err != nil {
			return err
		}

		inUse := make(map[string]bool, len(referenced))
		for _, path := range referenced {
			inUse[filepath.Base(path)] = true
		}

		removed := 0
		for _, entry := range entries {
			if entry.IsDir() || inUse[entry.Name()] {
				continue
			}
			if err := os.Remove(filepath.Join(uploadDir, entry.Name())); err != nil {
				log.WithError(err).WithField("file", entry.Name()).Warn("failed to remove orphaned avatar")
				continue
			}
			removed++
		}

		if removed > 0 {
			log.WithField("removed", removed).Info("cleaned up orphaned avatars")
		}
		return nil
	}
}
