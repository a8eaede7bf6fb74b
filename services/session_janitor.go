package services

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/sirupsen/logrus"
	"github.com/valtrilabs/cafe-backend/models"
	"github.com/valtrilabs/cafe-backend/utils"
	"gorm.io/gorm"
)

// SessionJanitor deletes inactive sessions once they are older than the
// retention age. Active sessions are never touched.
type SessionJanitor struct {
	db        *gorm.DB
	retention time.Duration
	interval  time.Duration
	now       func() time.Time
	scheduler gocron.Scheduler
}

func NewSessionJanitor(db *gorm.DB, retention, interval time.Duration) *SessionJanitor {
	return &SessionJanitor{db: db, retention: retention, interval: interval, now: time.Now}
}

// SweepOnce runs a single retention pass and returns the number of rows removed.
func (j *SessionJanitor) SweepOnce(ctx context.Context) (int64, error) {
	cutoff := j.now().Add(-j.retention)
	res := j.db.WithContext(ctx).
		Where("is_active = ? AND updated_at < ?", false, cutoff).
		Delete(&models.Session{})
	if res.Error != nil {
		return 0, storageUnavailable("sweep sessions", res.Error)
	}
	utils.InfoLogger.WithFields(logrus.Fields{
		"deleted": res.RowsAffected,
		"cutoff":  cutoff.Format(time.RFC3339),
	}).Info("session retention sweep finished")
	return res.RowsAffected, nil
}

// Start schedules SweepOnce every interval. Overlapping runs are skipped.
func (j *SessionJanitor) Start() error {
	s, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}
	_, err = s.NewJob(
		gocron.DurationJob(j.interval),
		gocron.NewTask(func() {
			if _, err := j.SweepOnce(context.Background()); err != nil {
				utils.ErrorLogger.Printf("Session sweep failed: %v", err)
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}
	j.scheduler = s
	s.Start()
	utils.InfoLogger.Printf("Session janitor started (every %s, retention %s)", j.interval, j.retention)
	return nil
}

func (j *SessionJanitor) Stop() error {
	if j.scheduler == nil {
		return nil
	}
	return j.scheduler.Shutdown()
}
