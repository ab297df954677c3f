package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNoAuth is returned when no Strava authorization is stored
var ErrNoAuth = errors.New("no authentication stored")

// The auth table holds a single row
const authRowID = 1

// GetAuth returns the stored Strava authorization
func (db *DB) GetAuth() (*Auth, error) {
	var a Auth
	var expiresAt int64
	err := db.QueryRow(`
		SELECT athlete_id, access_token, refresh_token, expires_at, scope
		FROM auth
		WHERE id = ?
	`, authRowID).Scan(&a.AthleteID, &a.AccessToken, &a.RefreshToken, &expiresAt, &a.Scope)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoAuth
	}
	if err != nil {
		return nil, fmt.Errorf("reading auth: %w", err)
	}
	a.ExpiresAt = time.Unix(expiresAt, 0)
	return &a, nil
}

// SaveAuth replaces the stored authorization after a completed OAuth flow
func (db *DB) SaveAuth(a *Auth) error {
	_, err := db.Exec(`
		INSERT INTO auth (id, athlete_id, access_token, refresh_token, expires_at, scope, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			athlete_id = excluded.athlete_id,
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expires_at = excluded.expires_at,
			scope = excluded.scope,
			updated_at = CURRENT_TIMESTAMP
	`, authRowID, a.AthleteID, a.AccessToken, a.RefreshToken, a.ExpiresAt.Unix(), a.Scope)
	if err != nil {
		return fmt.Errorf("saving auth: %w", err)
	}
	return nil
}

// UpdateTokens records a refreshed token pair. The athlete and scope are
// left as they were.
func (db *DB) UpdateTokens(accessToken, refreshToken string, expiresAt time.Time) error {
	res, err := db.Exec(`
		UPDATE auth
		SET access_token = ?, refresh_token = ?, expires_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, accessToken, refreshToken, expiresAt.Unix(), authRowID)
	if err != nil {
		return fmt.Errorf("updating tokens: %w", err)
	}
	return requireAuthRow(res)
}

// DeleteAuth forgets the stored authorization. Returns ErrNoAuth when
// there was none.
func (db *DB) DeleteAuth() error {
	res, err := db.Exec(`DELETE FROM auth WHERE id = ?`, authRowID)
	if err != nil {
		return fmt.Errorf("deleting auth: %w", err)
	}
	return requireAuthRow(res)
}

func requireAuthRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNoAuth
	}
	return nil
}
