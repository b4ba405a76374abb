package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/DoyleJ11/island-duel-backend/internal/engine"
)

// Store archives match results. A nil *Store is valid and discards
// everything, so the server runs without a database.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	if db == nil {
		return nil
	}
	return &Store{db: db}
}

// MatchFromState builds the archive rows for a session's final state.
func MatchFromState(st engine.State, outcome string, finishedAt time.Time) Match {
	a, b := st.Players[0], st.Players[1]
	m := Match{
		ID:         uuid.New(),
		SessionID:  st.ID,
		PlayerOne:  a,
		PlayerTwo:  b,
		Winner:     st.Winner,
		Outcome:    outcome,
		ScoreOne:   st.Scores[a],
		ScoreTwo:   st.Scores[b],
		PartsOne:   st.Islands[a].Parts,
		PartsTwo:   st.Islands[b].Parts,
		FinishedAt: finishedAt,
	}
	for i, line := range st.Moves {
		m.Moves = append(m.Moves, MatchMove{ID: uuid.New(), MatchID: m.ID, Number: i + 1, Text: line})
	}
	return m
}

// RecordMatch inserts m with its moves. Archiving the same session twice
// keeps the first row.
func (s *Store) RecordMatch(ctx context.Context, m Match) error {
	if s == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Omit("Moves").Clauses(clause.OnConflict{DoNothing: true}).Create(&m)
		if res.Error != nil || res.RowsAffected == 0 || len(m.Moves) == 0 {
			return res.Error
		}
		return tx.Create(&m.Moves).Error
	})
}

func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
