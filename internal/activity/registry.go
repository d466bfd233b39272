// Package activity resolves course-module identifiers to their owning
// course and activity instance, the way the host platform's module table
// does. Every web-service call starts here.
package activity

import (
	"context"
	"database/sql"
	"errors"
)

var ErrInvalidModule = errors.New("invalid course module")

type Module struct {
	ID                 int64
	CourseID           int64
	InstanceID         int64
	Name               string // "congrea" | "quiz"
	Visible            bool
	DeletionInProgress bool
}

type Registry struct {
	db *sql.DB
}

func NewRegistry(db *sql.DB) *Registry { return &Registry{db: db} }

// ModuleByID resolves a course-module id, optionally constrained to one
// module kind (empty name matches any).
func (r *Registry) ModuleByID(ctx context.Context, id int64, name string) (Module, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, course_id, module, instance_id, visible, deletion_in_progress
		   FROM course_modules WHERE id=$1`, id)
	return r.scan(row, name)
}

// ModuleByInstance resolves the module owning an activity instance inside a
// course; the reverse lookup of ModuleByID.
func (r *Registry) ModuleByInstance(ctx context.Context, name string, instanceID, courseID int64) (Module, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, course_id, module, instance_id, visible, deletion_in_progress
		   FROM course_modules WHERE module=$1 AND instance_id=$2 AND course_id=$3`,
		name, instanceID, courseID)
	return r.scan(row, "")
}

func (r *Registry) scan(row *sql.Row, wantName string) (Module, error) {
	var m Module
	var visible, deleting int
	if err := row.Scan(&m.ID, &m.CourseID, &m.Name, &m.InstanceID, &visible, &deleting); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Module{}, ErrInvalidModule
		}
		return Module{}, err
	}
	if wantName != "" && m.Name != wantName {
		return Module{}, ErrInvalidModule
	}
	m.Visible = visible != 0
	m.DeletionInProgress = deleting != 0
	return m, nil
}
