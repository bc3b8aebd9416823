package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"vrfLottery/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS raffle_state (
	address            TEXT PRIMARY KEY,
	state              TEXT NOT NULL,
	round              BIGINT NOT NULL,
	players            JSONB NOT NULL,
	balance            NUMERIC(78, 0) NOT NULL,
	last_timestamp     BIGINT NOT NULL,
	pending_request_id TEXT NOT NULL DEFAULT '',
	recent_winner      TEXT NOT NULL DEFAULT '',
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS raffle_winners (
	address    TEXT NOT NULL,
	round      BIGINT NOT NULL,
	winner     TEXT NOT NULL,
	prize      NUMERIC(78, 0) NOT NULL,
	request_id TEXT NOT NULL,
	picked_at  TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (address, round)
);
`

// Store provides Postgres persistence for raffle state and winners.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the raffle tables when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// LoadSnapshot returns the stored snapshot for a raffle address.
func (s *Store) LoadSnapshot(ctx context.Context, address string) (model.RaffleSnapshot, bool, error) {
	if address == "" {
		return model.RaffleSnapshot{}, false, fmt.Errorf("raffle address required")
	}
	snap := model.RaffleSnapshot{Address: address}
	var players []string
	var round int64
	row := s.pool.QueryRow(ctx, `
		SELECT state, round, players, balance::TEXT, last_timestamp, pending_request_id, recent_winner
		FROM raffle_state WHERE address=$1
	`, address)
	if err := row.Scan(
		&snap.State,
		&round,
		&players,
		&snap.Balance,
		&snap.LastTimestamp,
		&snap.PendingRequestID,
		&snap.RecentWinner,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.RaffleSnapshot{}, false, nil
		}
		return model.RaffleSnapshot{}, false, err
	}
	if players == nil {
		players = []string{}
	}
	snap.Round = uint64(round)
	snap.Players = players
	return snap, true, nil
}

// SaveSnapshot upserts the snapshot for its raffle address.
func (s *Store) SaveSnapshot(ctx context.Context, snap model.RaffleSnapshot) error {
	if snap.Address == "" {
		return fmt.Errorf("raffle address required")
	}
	players := snap.Players
	if players == nil {
		players = []string{}
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO raffle_state (
			address, state, round, players, balance, last_timestamp, pending_request_id, recent_winner, updated_at
		) VALUES ($1, $2, $3, $4, $5::NUMERIC, $6, $7, $8, now())
		ON CONFLICT (address) DO UPDATE SET
			state = EXCLUDED.state,
			round = EXCLUDED.round,
			players = EXCLUDED.players,
			balance = EXCLUDED.balance,
			last_timestamp = EXCLUDED.last_timestamp,
			pending_request_id = EXCLUDED.pending_request_id,
			recent_winner = EXCLUDED.recent_winner,
			updated_at = now()
	`,
		snap.Address,
		snap.State,
		int64(snap.Round),
		players,
		snap.Balance,
		snap.LastTimestamp,
		snap.PendingRequestID,
		snap.RecentWinner,
	)
	return err
}

// PutWinner records a paid-out round. Replays of the same round are ignored.
func (s *Store) PutWinner(ctx context.Context, rec model.WinnerRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO raffle_winners (address, round, winner, prize, request_id, picked_at)
		VALUES ($1, $2, $3, $4::NUMERIC, $5, $6)
		ON CONFLICT (address, round) DO NOTHING
	`,
		rec.Address,
		int64(rec.Round),
		rec.Winner,
		rec.Prize,
		rec.RequestID,
		rec.PickedAt,
	)
	return err
}

// ListWinners returns the most recent winners first.
func (s *Store) ListWinners(ctx context.Context, address string, limit int) ([]model.WinnerRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT address, round, winner, prize::TEXT, request_id, picked_at
		FROM raffle_winners WHERE address=$1
		ORDER BY round DESC LIMIT $2
	`, address, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.WinnerRecord
	for rows.Next() {
		var rec model.WinnerRecord
		var round int64
		if err := rows.Scan(&rec.Address, &round, &rec.Winner, &rec.Prize, &rec.RequestID, &rec.PickedAt); err != nil {
			return nil, err
		}
		rec.Round = uint64(round)
		out = append(out, rec)
	}
	return out, rows.Err()
}
