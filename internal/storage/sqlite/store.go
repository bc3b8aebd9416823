package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"vrfLottery/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS raffle_state (
	address            TEXT PRIMARY KEY,
	state              TEXT NOT NULL,
	round              INTEGER NOT NULL,
	players            TEXT NOT NULL,
	balance            TEXT NOT NULL,
	last_timestamp     INTEGER NOT NULL,
	pending_request_id TEXT NOT NULL DEFAULT '',
	recent_winner      TEXT NOT NULL DEFAULT '',
	updated_at         TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS raffle_winners (
	address    TEXT NOT NULL,
	round      INTEGER NOT NULL,
	winner     TEXT NOT NULL,
	prize      TEXT NOT NULL,
	request_id TEXT NOT NULL,
	picked_at  TEXT NOT NULL,
	PRIMARY KEY (address, round)
);
`

// Store provides SQLite persistence for raffle state and winners.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
// Use ":memory:" for an ephemeral store.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create sqlite dir: %w", err)
			}
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// single writer; also keeps ":memory:" on one connection
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) LoadSnapshot(ctx context.Context, address string) (model.RaffleSnapshot, bool, error) {
	if address == "" {
		return model.RaffleSnapshot{}, false, fmt.Errorf("raffle address required")
	}
	snap := model.RaffleSnapshot{Address: address}
	var players string
	var round int64
	row := s.db.QueryRowContext(ctx, `
		SELECT state, round, players, balance, last_timestamp, pending_request_id, recent_winner, updated_at
		FROM raffle_state WHERE address = ?
	`, address)
	if err := row.Scan(
		&snap.State,
		&round,
		&players,
		&snap.Balance,
		&snap.LastTimestamp,
		&snap.PendingRequestID,
		&snap.RecentWinner,
		&snap.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.RaffleSnapshot{}, false, nil
		}
		return model.RaffleSnapshot{}, false, err
	}
	if err := json.Unmarshal([]byte(players), &snap.Players); err != nil {
		return model.RaffleSnapshot{}, false, fmt.Errorf("parse players: %w", err)
	}
	if snap.Players == nil {
		snap.Players = []string{}
	}
	snap.Round = uint64(round)
	return snap, true, nil
}

func (s *Store) SaveSnapshot(ctx context.Context, snap model.RaffleSnapshot) error {
	if snap.Address == "" {
		return fmt.Errorf("raffle address required")
	}
	players := snap.Players
	if players == nil {
		players = []string{}
	}
	encoded, err := json.Marshal(players)
	if err != nil {
		return fmt.Errorf("marshal players: %w", err)
	}
	updatedAt := snap.UpdatedAt
	if updatedAt == "" {
		updatedAt = time.Now().UTC().Format(time.RFC3339Nano)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO raffle_state (
			address, state, round, players, balance, last_timestamp, pending_request_id, recent_winner, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (address) DO UPDATE SET
			state = excluded.state,
			round = excluded.round,
			players = excluded.players,
			balance = excluded.balance,
			last_timestamp = excluded.last_timestamp,
			pending_request_id = excluded.pending_request_id,
			recent_winner = excluded.recent_winner,
			updated_at = excluded.updated_at
	`,
		snap.Address,
		snap.State,
		int64(snap.Round),
		string(encoded),
		snap.Balance,
		snap.LastTimestamp,
		snap.PendingRequestID,
		snap.RecentWinner,
		updatedAt,
	)
	return err
}

// PutWinner records a paid-out round. Replays of the same round are ignored.
func (s *Store) PutWinner(ctx context.Context, rec model.WinnerRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO raffle_winners (address, round, winner, prize, request_id, picked_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (address, round) DO NOTHING
	`,
		rec.Address,
		int64(rec.Round),
		rec.Winner,
		rec.Prize,
		rec.RequestID,
		rec.PickedAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

// ListWinners returns the most recent winners first.
func (s *Store) ListWinners(ctx context.Context, address string, limit int) ([]model.WinnerRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT address, round, winner, prize, request_id, picked_at
		FROM raffle_winners WHERE address = ?
		ORDER BY round DESC LIMIT ?
	`, address, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.WinnerRecord
	for rows.Next() {
		var rec model.WinnerRecord
		var round int64
		var pickedAt string
		if err := rows.Scan(&rec.Address, &round, &rec.Winner, &rec.Prize, &rec.RequestID, &pickedAt); err != nil {
			return nil, err
		}
		ts, err := time.Parse(time.RFC3339Nano, pickedAt)
		if err != nil {
			return nil, fmt.Errorf("parse picked_at: %w", err)
		}
		rec.Round = uint64(round)
		rec.PickedAt = ts
		out = append(out, rec)
	}
	return out, rows.Err()
}
