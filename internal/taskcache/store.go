package taskcache

import (
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"pixsync/internal/tasks"
)

// Store persists the last observed state of each task so list commands and
// the dashboard have an offline view between syncs. It records
// observations; the backend stays the source of truth.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

func NewStore(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) UpsertTask(task tasks.Task) error {
	if s == nil || s.db == nil {
		return errors.New("task cache is not initialized")
	}
	taskID := strings.TrimSpace(task.TaskID)
	if taskID == "" {
		return errors.New("task id is required")
	}
	row := TaskSnapshot{
		TaskID:       taskID,
		UserID:       strings.TrimSpace(task.UserID),
		Action:       strings.TrimSpace(task.Action),
		Status:       string(task.NormalizedStatus()),
		ResultURL:    strings.TrimSpace(task.ResultURL),
		ThumbnailURL: strings.TrimSpace(task.ThumbnailURL),
		Progress:     task.Progress,
		ErrorMessage: strings.TrimSpace(task.ErrorMessage),
		CreatedAt:    task.CreatedAt,
		UpdatedAt:    task.UpdatedAt,
		ObservedAt:   s.now().UTC().Unix(),
	}
	return s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "task_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"status", "result_url", "thumbnail_url", "progress",
			"error_message", "updated_at", "observed_at",
		}),
	}).Create(&row).Error
}

func (s *Store) GetTask(taskID string) (tasks.Task, bool, error) {
	if s == nil || s.db == nil {
		return tasks.Task{}, false, errors.New("task cache is not initialized")
	}
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return tasks.Task{}, false, errors.New("task id is required")
	}
	var row TaskSnapshot
	err := s.db.Where("task_id = ?", taskID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return tasks.Task{}, false, nil
	}
	if err != nil {
		return tasks.Task{}, false, err
	}
	return snapshotToTask(row), true, nil
}

func (s *Store) ListRecent(userID, action string, limit int) ([]tasks.Task, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("task cache is not initialized")
	}
	if limit <= 0 {
		limit = 20
	}
	q := s.db.Order("observed_at DESC").Limit(limit)
	if userID = strings.TrimSpace(userID); userID != "" {
		q = q.Where("user_id = ?", userID)
	}
	if action = strings.TrimSpace(action); action != "" {
		q = q.Where("action = ?", action)
	}
	rows := make([]TaskSnapshot, 0, limit)
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]tasks.Task, 0, len(rows))
	for _, row := range rows {
		out = append(out, snapshotToTask(row))
	}
	return out, nil
}

// PruneObservedBefore drops snapshots last observed before cutoff.
func (s *Store) PruneObservedBefore(cutoff time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("task cache is not initialized")
	}
	res := s.db.Where("observed_at < ?", cutoff.UTC().Unix()).Delete(&TaskSnapshot{})
	return res.RowsAffected, res.Error
}

func (s *Store) UpsertBalance(userID string, balance int64) error {
	if s == nil || s.db == nil {
		return errors.New("task cache is not initialized")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return errors.New("user id is required")
	}
	row := WalletSnapshot{
		UserID:     userID,
		Balance:    balance,
		ObservedAt: s.now().UTC().Unix(),
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"balance", "observed_at"}),
	}).Create(&row).Error
}

func (s *Store) GetBalance(userID string) (int64, bool, error) {
	if s == nil || s.db == nil {
		return 0, false, errors.New("task cache is not initialized")
	}
	var row WalletSnapshot
	err := s.db.Where("user_id = ?", strings.TrimSpace(userID)).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return row.Balance, true, nil
}

func snapshotToTask(row TaskSnapshot) tasks.Task {
	return tasks.Task{
		TaskID:       row.TaskID,
		UserID:       row.UserID,
		Action:       row.Action,
		Status:       row.Status,
		ResultURL:    row.ResultURL,
		ThumbnailURL: row.ThumbnailURL,
		Progress:     row.Progress,
		ErrorMessage: row.ErrorMessage,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}
}
