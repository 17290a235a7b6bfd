package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"agencyops/internal/activity"
	"agencyops/internal/config"
	"agencyops/internal/domain"
	"agencyops/internal/engine/auth"
	"agencyops/internal/repo"
)

// Notifier delivers a notification. Delivery happens outside any transaction.
type Notifier interface {
	Notify(ctx context.Context, n domain.Notification) error
}

type repoNotifier struct {
	repo repo.Repo
}

func (n repoNotifier) Notify(ctx context.Context, note domain.Notification) error {
	return n.repo.InsertNotification(ctx, note)
}

type Engine struct {
	DB       *sql.DB
	Repo     repo.Repo
	Activity activity.Writer
	Auth     auth.Service
	Config   *config.Config
	Notifier Notifier
	Logger   *zap.Logger
	Now      func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	r := repo.Repo{DB: db}
	if cfg == nil {
		cfg = config.Default()
	}
	return Engine{
		DB:       db,
		Repo:     r,
		Activity: activity.Writer{},
		Auth:     auth.Service{DB: db},
		Config:   cfg,
		Notifier: repoNotifier{repo: r},
		Logger:   zap.NewNop(),
		Now:      time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) stamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) logger() *zap.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return zap.NewNop()
}

func (e Engine) cfg() *config.Config {
	if e.Config != nil {
		return e.Config
	}
	return config.Default()
}

// logActivity appends an activity row in tx using the engine clock.
func (e Engine) logActivity(ctx context.Context, tx *sql.Tx, entry activity.Entry) error {
	w := e.Activity
	if w.Now == nil {
		w.Now = e.now
	}
	return w.Log(ctx, tx, entry)
}

// RecentActivity returns the configured number of newest activity entries.
func (e Engine) RecentActivity(ctx context.Context, f repo.ActivityFilters) ([]domain.ActivityLog, error) {
	return e.Repo.RecentActivity(ctx, e.cfg().Activity.RecentLimit, f)
}

func newID() string {
	return uuid.NewString()
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func requireText(field, v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", domain.Invalidf("%s is required", field)
	}
	return v, nil
}

func oneOf(field, v string, allowed ...string) error {
	for _, a := range allowed {
		if v == a {
			return nil
		}
	}
	return domain.Invalidf("%s must be one of %s", field, strings.Join(allowed, ", "))
}

func optionalString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func optionalInt(v int) *int {
	return &v
}

func derefOr(p *string, fallback string) string {
	if p == nil {
		return fallback
	}
	return *p
}

// NotificationError reports that the transactional part of an operation committed but a
// follow-up notification could not be stored.
type NotificationError struct {
	Delivered int
	Err       error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("tasks committed but notification failed after %d delivered: %v", e.Delivered, e.Err)
}

func (e *NotificationError) Unwrap() error { return e.Err }
