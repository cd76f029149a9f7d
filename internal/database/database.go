package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"voxchat/internal/models"

	_ "github.com/mattn/go-sqlite3"
)

const credentialsSchema = `
CREATE TABLE IF NOT EXISTS credentials (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	token TEXT NOT NULL,
	user_id INTEGER NOT NULL,
	username TEXT NOT NULL,
	saved_at TIMESTAMP NOT NULL
);
`

// ErrNoCredentials is returned when no login session has been saved yet.
var ErrNoCredentials = errors.New("no stored credentials")

// Database is the local credential store. It holds at most one login
// session; the bearer token is encrypted at rest when VOXCHAT_SECRET is set.
type Database struct {
	db  *sql.DB
	enc *encryptor
}

func New(dbPath string) (*Database, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open credential database: %w", err)
	}

	if _, err := db.Exec(credentialsSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize credential schema: %w", err)
	}

	enc, err := newEncryptor()
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Database{db: db, enc: enc}, nil
}

// SaveCredentials replaces the stored login session.
func (d *Database) SaveCredentials(ctx context.Context, creds *models.Credentials) error {
	token, err := d.enc.Encrypt(creds.Token)
	if err != nil {
		return fmt.Errorf("failed to encrypt token: %w", err)
	}

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO credentials (id, token, user_id, username, saved_at)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			token = excluded.token,
			user_id = excluded.user_id,
			username = excluded.username,
			saved_at = excluded.saved_at
	`, token, creds.UserID, creds.Username, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}

	return nil
}

// LoadCredentials returns the stored login session, or ErrNoCredentials.
func (d *Database) LoadCredentials(ctx context.Context) (*models.Credentials, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT token, user_id, username, saved_at FROM credentials WHERE id = 1
	`)

	var creds models.Credentials
	var token string
	if err := row.Scan(&token, &creds.UserID, &creds.Username, &creds.SavedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoCredentials
		}
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}

	decrypted, err := d.enc.Decrypt(token)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt token: %w", err)
	}
	creds.Token = decrypted

	return &creds, nil
}

// ClearCredentials removes the stored login session (logout).
func (d *Database) ClearCredentials(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM credentials WHERE id = 1`); err != nil {
		return fmt.Errorf("failed to clear credentials: %w", err)
	}
	return nil
}

func (d *Database) Close() error {
	return d.db.Close()
}
