package storage

import (
	"time"

	"github.com/google/uuid"
)

const (
	OutcomeCompleted = "completed"
	OutcomeAbandoned = "abandoned"
)

// Match is the archived summary of one finished or abandoned session.
type Match struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	SessionID  string    `gorm:"uniqueIndex"`
	PlayerOne  string    `gorm:"index"`
	PlayerTwo  string    `gorm:"index"`
	Winner     string
	Outcome    string
	ScoreOne   int
	ScoreTwo   int
	PartsOne   int
	PartsTwo   int
	FinishedAt time.Time
	CreatedAt  time.Time
	Moves      []MatchMove `gorm:"constraint:OnDelete:CASCADE;"`
}

// MatchMove stores one line of a session's move log.
type MatchMove struct {
	ID      uuid.UUID `gorm:"type:uuid;primaryKey"`
	MatchID uuid.UUID `gorm:"type:uuid;index"`
	Number  int
	Text    string
}
