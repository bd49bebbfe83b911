package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// HiddenMessageStore remembers which broadcast messages a user dismissed.
// Hiding is local to the dashboard and never reported to the API.
type HiddenMessageStore interface {
	Hidden(ctx context.Context, userID int64) (map[int64]bool, error)
	Hide(ctx context.Context, userID, messageID int64) error
}

type SQLiteHiddenMessageRepository struct {
	db *sql.DB
}

func NewSQLiteHiddenMessageRepository(db *sql.DB) (*SQLiteHiddenMessageRepository, error) {
	r := &SQLiteHiddenMessageRepository{db: db}
	if err := r.InitSchema(context.Background()); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *SQLiteHiddenMessageRepository) InitSchema(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS hidden_messages (
		user_id INTEGER NOT NULL,
		message_id INTEGER NOT NULL,
		hidden_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (user_id, message_id)
	);
	`
	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("init hidden_messages schema: %w", err)
	}
	return nil
}

func (r *SQLiteHiddenMessageRepository) Hidden(ctx context.Context, userID int64) (map[int64]bool, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT message_id FROM hidden_messages WHERE user_id = ?`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	hidden := map[int64]bool{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		hidden[id] = true
	}
	return hidden, rows.Err()
}

func (r *SQLiteHiddenMessageRepository) Hide(ctx context.Context, userID, messageID int64) error {
	query := `INSERT OR IGNORE INTO hidden_messages (user_id, message_id, hidden_at) VALUES (?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query, userID, messageID, time.Now().UTC())
	return err
}

type PostgresHiddenMessageRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresHiddenMessageRepository(ctx context.Context, pool *pgxpool.Pool) (*PostgresHiddenMessageRepository, error) {
	query := `
		CREATE TABLE IF NOT EXISTS hidden_messages (
			user_id BIGINT NOT NULL,
			message_id BIGINT NOT NULL,
			hidden_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (user_id, message_id)
		)
	`
	if _, err := pool.Exec(ctx, query); err != nil {
		return nil, fmt.Errorf("init hidden_messages schema: %w", err)
	}
	return &PostgresHiddenMessageRepository{pool: pool}, nil
}

func (r *PostgresHiddenMessageRepository) Hidden(ctx context.Context, userID int64) (map[int64]bool, error) {
	rows, err := r.pool.Query(ctx, `SELECT message_id FROM hidden_messages WHERE user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	hidden := map[int64]bool{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		hidden[id] = true
	}
	return hidden, rows.Err()
}

func (r *PostgresHiddenMessageRepository) Hide(ctx context.Context, userID, messageID int64) error {
	query := `
		INSERT INTO hidden_messages (user_id, message_id, hidden_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, message_id) DO NOTHING
	`
	_, err := r.pool.Exec(ctx, query, userID, messageID, time.Now())
	return err
}
