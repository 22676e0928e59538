// Package store is the durable side of the bot: session records and the
// processed-event table backing the idempotency gate.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mavrk/jobvine/internal/dedup"
	"github.com/mavrk/jobvine/internal/session"
)

type Store struct {
	db *gorm.DB
}

// Open connects to the configured database and migrates the schema. driver
// is "sqlite" or "postgres".
func Open(driver, dsn string) (*Store, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported store driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	if err := s.db.AutoMigrate(&sessionRow{}, &processedEventRow{}); err != nil {
		return fmt.Errorf("migrate store: %w", err)
	}
	return nil
}

// GetSession returns the persisted session for a user, or session.ErrNotFound.
func (s *Store) GetSession(ctx context.Context, userID int64) (*session.Session, error) {
	var row sessionRow
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, session.ErrNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return row.toRecord()
}

// SaveSession upserts the session row. The write is the durable step of every
// state transition.
func (s *Store) SaveSession(ctx context.Context, rec *session.Session) error {
	row, err := sessionRowFromRecord(rec)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Save(&row).Error; err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// DeleteSession removes the session row for a user.
func (s *Store) DeleteSession(ctx context.Context, userID int64) error {
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&sessionRow{}).Error; err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// ListSessions returns all persisted sessions ordered by last update.
func (s *Store) ListSessions(ctx context.Context) ([]*session.Session, error) {
	var rows []sessionRow
	if err := s.db.WithContext(ctx).Order("updated_at desc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	out := make([]*session.Session, 0, len(rows))
	for _, row := range rows {
		rec, err := row.toRecord()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// InsertProcessedEvent is the insert-only dedupe primitive. A unique
// constraint violation maps to dedup.ErrDuplicate.
func (s *Store) InsertProcessedEvent(ctx context.Context, eventID, userID int64) error {
	row := processedEventRow{
		UpdateID:       eventID,
		TelegramUserID: userID,
		ReceivedAt:     time.Now().UTC(),
	}

	err := s.db.WithContext(ctx).Create(&row).Error
	if err == nil {
		return nil
	}

	if isDuplicateErr(err) {
		return dedup.ErrDuplicate
	}
	return fmt.Errorf("insert processed event: %w", err)
}

// isDuplicateErr also matches on message text because not every driver
// translates constraint violations to gorm.ErrDuplicatedKey.
func isDuplicateErr(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}
