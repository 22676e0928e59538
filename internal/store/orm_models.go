package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mavrk/jobvine/internal/session"
)

type sessionRow struct {
	UserID          int64  `gorm:"primaryKey"`
	State           string `gorm:"size:64;not null"`
	Role            string `gorm:"size:16;not null"`
	CurrentQuestion string
	LastBotMessage  string
	ProfileText     string
	PlanJSON        string `gorm:"column:plan_json"`
	QuestionIndex   int
	AnswersJSON     string `gorm:"column:answers_json"`
	PendingJSON     string `gorm:"column:pending_json"`
	Accepted        bool
	PeerAccepted    bool
	PeerUserID      int64
	Paused          bool
	CreatedAt       time.Time `gorm:"not null"`
	UpdatedAt       time.Time `gorm:"not null"`
}

func (sessionRow) TableName() string { return "sessions" }

type processedEventRow struct {
	UpdateID       int64     `gorm:"primaryKey;autoIncrement:false"`
	TelegramUserID int64     `gorm:"index"`
	ReceivedAt     time.Time `gorm:"not null"`
}

func (processedEventRow) TableName() string { return "processed_updates" }

func (r sessionRow) toRecord() (*session.Session, error) {
	rec := &session.Session{
		UserID:          r.UserID,
		State:           session.State(r.State),
		Role:            session.Role(r.Role),
		CurrentQuestion: r.CurrentQuestion,
		LastBotMessage:  r.LastBotMessage,
		ProfileText:     r.ProfileText,
		QuestionIndex:   r.QuestionIndex,
		Accepted:        r.Accepted,
		PeerAccepted:    r.PeerAccepted,
		PeerUserID:      r.PeerUserID,
		Paused:          r.Paused,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}

	for _, col := range []struct {
		raw    string
		target *[]string
	}{
		{r.PlanJSON, &rec.Plan},
		{r.AnswersJSON, &rec.Answers},
		{r.PendingJSON, &rec.PendingFields},
	} {
		if col.raw == "" {
			continue
		}
		if err := json.Unmarshal([]byte(col.raw), col.target); err != nil {
			return nil, fmt.Errorf("decode session payload for user %d: %w", r.UserID, err)
		}
	}

	return rec, nil
}

func sessionRowFromRecord(rec *session.Session) (sessionRow, error) {
	row := sessionRow{
		UserID:          rec.UserID,
		State:           string(rec.State),
		Role:            string(rec.Role),
		CurrentQuestion: rec.CurrentQuestion,
		LastBotMessage:  rec.LastBotMessage,
		ProfileText:     rec.ProfileText,
		QuestionIndex:   rec.QuestionIndex,
		Accepted:        rec.Accepted,
		PeerAccepted:    rec.PeerAccepted,
		PeerUserID:      rec.PeerUserID,
		Paused:          rec.Paused,
		CreatedAt:       rec.CreatedAt,
		UpdatedAt:       rec.UpdatedAt,
	}

	for _, col := range []struct {
		src    []string
		target *string
	}{
		{rec.Plan, &row.PlanJSON},
		{rec.Answers, &row.AnswersJSON},
		{rec.PendingFields, &row.PendingJSON},
	} {
		if len(col.src) == 0 {
			continue
		}
		data, err := json.Marshal(col.src)
		if err != nil {
			return sessionRow{}, fmt.Errorf("encode session payload for user %d: %w", rec.UserID, err)
		}
		*col.target = string(data)
	}

	return row, nil
}
