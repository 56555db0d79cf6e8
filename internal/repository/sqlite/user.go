package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sqlitedrv "modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"

	"github.com/avkulikov/weatherhub/internal/apperror"
	"github.com/avkulikov/weatherhub/internal/model"
	"github.com/avkulikov/weatherhub/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

// Get retrieves a user by provider subject id.
//
// Absence is NOT an error here: every first login legitimately observes "no
// such row" before creating it, so we return (nil, nil) and reserve the error
// return for real store failures.
func (db *DB) Get(ctx context.Context, id string) (*model.User, error) {
	var u model.User

	err := db.conn.QueryRowContext(ctx,
		`SELECT id, name, email, profile_pic, created_at, updated_at
		 FROM users WHERE id = ?`,
		id,
	).Scan(
		&u.ID,
		&u.Name,
		&u.Email,
		&u.ProfilePic,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}

	return &u, nil
}

// Create inserts a new user row keyed by subject id.
//
// The INSERT is a single statement against a PRIMARY KEY, so when two
// callbacks for the same subject race, exactly one INSERT wins and the other
// fails with a constraint violation — returned as apperror.ErrConflict so the
// auth flow can treat it as "created by the concurrent request" and proceed.
func (db *DB) Create(ctx context.Context, user *model.User) error {
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (id, name, email, profile_pic, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Name,
		user.Email,
		user.ProfilePic,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user", user.ID)
		}
		return fmt.Errorf("sqlite: inserting user %s: %w", user.ID, err)
	}

	return nil
}

// UpdateProfile overwrites the mutable profile fields of an existing row with
// the latest provider-supplied values. Called on every successful login after
// the first, so a changed display name or picture is persisted rather than
// only reflected in the live session.
func (db *DB) UpdateProfile(ctx context.Context, user *model.User) error {
	user.UpdatedAt = time.Now()

	res, err := db.conn.ExecContext(ctx,
		`UPDATE users SET name = ?, email = ?, profile_pic = ?, updated_at = ?
		 WHERE id = ?`,
		user.Name,
		user.Email,
		user.ProfilePic,
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating user %s: %w", user.ID, err)
	}

	// If the row vanished between Get and here the update is a silent no-op
	// as far as SQLite is concerned; surface it so the caller doesn't assume
	// the profile was persisted.
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: rows affected for user %s: %w", user.ID, err)
	}
	if affected == 0 {
		return apperror.NotFound("user", user.ID)
	}

	return nil
}

// isUniqueViolation reports whether err is a SQLite PRIMARY KEY / UNIQUE
// constraint failure. modernc.org/sqlite surfaces extended result codes, so
// we match both the UNIQUE and PRIMARY KEY variants.
func isUniqueViolation(err error) bool {
	var serr *sqlitedrv.Error
	if !errors.As(err, &serr) {
		return false
	}
	return serr.Code() == sqlitelib.SQLITE_CONSTRAINT_UNIQUE ||
		serr.Code() == sqlitelib.SQLITE_CONSTRAINT_PRIMARYKEY
}
