// Package directory is the identity lookup used when poll rows are
// decorated with their creator's name. Creators can be deleted after their
// polls; callers substitute a placeholder instead of failing.
package directory

import (
	"context"
	"database/sql"
	"errors"
	"strings"
)

var ErrUserNotFound = errors.New("user not found")

type User struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
}

func (u User) FullName() string {
	full := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if full == "" {
		return u.Username
	}
	return full
}

type Directory struct {
	db *sql.DB
}

func New(db *sql.DB) *Directory { return &Directory{db: db} }

func (d *Directory) GetUser(ctx context.Context, id int64) (User, error) {
	var u User
	err := d.db.QueryRowContext(ctx,
		`SELECT id, username, firstname, lastname FROM users WHERE id=$1 AND deleted=0`, id,
	).Scan(&u.ID, &u.Username, &u.FirstName, &u.LastName)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, err
	}
	return u, nil
}
