package rbac

import (
	"context"
	"database/sql"
	"errors"
)

// Gate answers capability questions for a caller inside a resolved Context.
// Roles come from the database: site admins always act as "admin", a module
// context prefers the caller's role in the owning course, and everything
// else falls back to the account's site role.
type Gate struct {
	db      *sql.DB
	checker *Checker
}

func NewGate(db *sql.DB) *Gate {
	return &Gate{db: db, checker: NewChecker(nil)}
}

func (g *Gate) HasCapability(ctx context.Context, c Context, capability string, userID int64) (bool, error) {
	role, err := g.roleIn(ctx, c, userID)
	if err != nil {
		return false, err
	}
	if role == "" {
		return false, nil
	}
	return g.checker.Has(role, capability), nil
}

// IsSiteAdmin reports whether the user is in the administrator registry.
func (g *Gate) IsSiteAdmin(ctx context.Context, userID int64) (bool, error) {
	var one int
	err := g.db.QueryRowContext(ctx, `SELECT 1 FROM admins WHERE user_id=$1`, userID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (g *Gate) roleIn(ctx context.Context, c Context, userID int64) (string, error) {
	admin, err := g.IsSiteAdmin(ctx, userID)
	if err != nil {
		return "", err
	}
	if admin {
		return "admin", nil
	}

	if c.Level == LevelModule {
		var role string
		err := g.db.QueryRowContext(ctx,
			`SELECT role FROM course_roles WHERE course_id=$1 AND user_id=$2`,
			c.CourseID, userID,
		).Scan(&role)
		switch {
		case err == nil && role != "":
			return role, nil
		case errors.Is(err, sql.ErrNoRows):
			// fall through to the site role
		case err != nil:
			return "", err
		}
	}

	var role string
	err = g.db.QueryRowContext(ctx,
		`SELECT role FROM users WHERE id=$1 AND deleted=0`, userID,
	).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return role, nil
}
