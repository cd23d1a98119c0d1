// persistence/stats.go
package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	// PostgreSQL 驱动
	_ "github.com/lib/pq"

	"github.com/wfunc/partyserver/models"
)

// StatsStore answers the admin counters over a plain database/sql
// connection, kept separate from the gorm pool so heavy dashboard polling
// never competes with request traffic. All values are bound parameters.
type StatsStore struct {
	db *sql.DB
}

func NewStatsStore(host string, port int, user, password, dbname string) (*StatsStore, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &StatsStore{db: db}, nil
}

func (s *StatsStore) ServerStats(ctx context.Context) (*models.ServerStats, error) {
	stats := &models.ServerStats{}

	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rooms`)
	if err := row.Scan(&stats.Rooms); err != nil {
		return nil, err
	}

	row = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM room_participants WHERE is_active = $1`, true)
	if err := row.Scan(&stats.ActiveParticipants); err != nil {
		return nil, err
	}

	row = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM game_sessions WHERE status = $1`, models.SessionActive)
	if err := row.Scan(&stats.ActiveSessions); err != nil {
		return nil, err
	}

	row = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notifications`)
	if err := row.Scan(&stats.Notifications); err != nil {
		return nil, err
	}

	return stats, nil
}

// ActiveRoomCount backs the periodic gauge refresh.
func (s *StatsStore) ActiveRoomCount(ctx context.Context) (int64, error) {
	var count int64
	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT room_id) FROM room_participants WHERE is_active = $1`, true)
	err := row.Scan(&count)
	return count, err
}

func (s *StatsStore) ActiveSessionCount(ctx context.Context) (int64, error) {
	var count int64
	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM game_sessions WHERE status = $1`, models.SessionActive)
	err := row.Scan(&count)
	return count, err
}

func (s *StatsStore) Close() error {
	return s.db.Close()
}
