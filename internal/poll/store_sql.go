package poll

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type Store interface {
	CreateQuestion(ctx context.Context, q Question, optionTexts []string) (Question, []Option, error)
	QuestionByID(ctx context.Context, id int64) (Question, error)
	QuestionsByScope(ctx context.Context, scope Scope) ([]Question, error)
	OptionsByQuestion(ctx context.Context, questionID int64) ([]Option, error)
	HasAttempts(ctx context.Context, questionID int64) (bool, error)
	ReplaceQuestion(ctx context.Context, id int64, text string, optionTexts []string) ([]Option, error)
	InsertAttempts(ctx context.Context, questionID int64, votes []Attempt) (int, error)
	DeleteQuestion(ctx context.Context, questionID int64) error
	DeleteOption(ctx context.Context, optionID int64) error
}

type SQLStore struct {
	db     *sql.DB
	driver string // "sqlite" or "postgres"
}

func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{db: db, driver: driver}
}

// forUpdate is appended to the question re-read inside mutating
// transactions. SQLite serializes writers on its own and rejects the clause.
func (s *SQLStore) forUpdate() string {
	if s.driver == "postgres" {
		return " FOR UPDATE"
	}
	return ""
}

// scopeCourseID flattens a Scope to the stored representation: site polls
// keep course_id 0.
func scopeCourseID(sc Scope) int64 {
	if sc.Site {
		return 0
	}
	return sc.CourseID
}

func scopeFromRow(courseID, instanceID int64) Scope {
	if courseID == 0 {
		return SiteScope()
	}
	return CourseScope(courseID, instanceID)
}

func (s *SQLStore) CreateQuestion(ctx context.Context, q Question, optionTexts []string) (Question, []Option, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Question{}, nil, err
	}
	defer tx.Rollback()

	q.CreatedAt = time.Now().Unix()
	err = tx.QueryRowContext(ctx,
		`INSERT INTO poll_questions (course_id, instance_id, question, created_by, created_at)
		 VALUES ($1,$2,$3,$4,$5) RETURNING id`,
		scopeCourseID(q.Scope), q.Scope.InstanceID, q.Text, q.CreatedBy, q.CreatedAt,
	).Scan(&q.ID)
	if err != nil {
		return Question{}, nil, err
	}

	opts, err := insertOptions(ctx, tx, q.ID, optionTexts)
	if err != nil {
		return Question{}, nil, err
	}
	if err := tx.Commit(); err != nil {
		return Question{}, nil, err
	}
	return q, opts, nil
}

func insertOptions(ctx context.Context, tx *sql.Tx, questionID int64, texts []string) ([]Option, error) {
	opts := make([]Option, 0, len(texts))
	for _, text := range texts {
		var id int64
		err := tx.QueryRowContext(ctx,
			`INSERT INTO poll_options (question_id, option_text) VALUES ($1,$2) RETURNING id`,
			questionID, text,
		).Scan(&id)
		if err != nil {
			return nil, err
		}
		opts = append(opts, Option{ID: id, QuestionID: questionID, Text: text})
	}
	return opts, nil
}

func (s *SQLStore) QuestionByID(ctx context.Context, id int64) (Question, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, course_id, instance_id, question, created_by, created_at
		   FROM poll_questions WHERE id=$1`, id)
	return scanQuestion(row)
}

func scanQuestion(row *sql.Row) (Question, error) {
	var q Question
	var courseID, instanceID int64
	err := row.Scan(&q.ID, &courseID, &instanceID, &q.Text, &q.CreatedBy, &q.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Question{}, ErrQuestionNotFound
	}
	if err != nil {
		return Question{}, err
	}
	q.Scope = scopeFromRow(courseID, instanceID)
	return q, nil
}

func (s *SQLStore) QuestionsByScope(ctx context.Context, scope Scope) ([]Question, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, course_id, instance_id, question, created_by, created_at
		   FROM poll_questions WHERE course_id=$1 ORDER BY id`,
		scopeCourseID(scope))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Question
	for rows.Next() {
		var q Question
		var courseID, instanceID int64
		if err := rows.Scan(&q.ID, &courseID, &instanceID, &q.Text, &q.CreatedBy, &q.CreatedAt); err != nil {
			return nil, err
		}
		q.Scope = scopeFromRow(courseID, instanceID)
		out = append(out, q)
	}
	return out, rows.Err()
}

func (s *SQLStore) OptionsByQuestion(ctx context.Context, questionID int64) ([]Option, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, question_id, option_text FROM poll_options WHERE question_id=$1 ORDER BY id`,
		questionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Option
	for rows.Next() {
		var o Option
		if err := rows.Scan(&o.ID, &o.QuestionID, &o.Text); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// HasAttempts derives the published flag: one vote is enough.
func (s *SQLStore) HasAttempts(ctx context.Context, questionID int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM poll_attempts WHERE question_id=$1 LIMIT 1`, questionID,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ReplaceQuestion rewrites the question text and swaps the whole option set
// in one transaction, so no stale option survives a racing reader.
func (s *SQLStore) ReplaceQuestion(ctx context.Context, id int64, text string, optionTexts []string) ([]Option, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var locked int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM poll_questions WHERE id=$1`+s.forUpdate(), id,
	).Scan(&locked)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrQuestionNotFound
	}
	if err != nil {
		return nil, err
	}

	res, err := tx.ExecContext(ctx, `UPDATE poll_questions SET question=$1 WHERE id=$2`, text, id)
	if err != nil {
		return nil, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrUpdateFailed
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM poll_options WHERE question_id=$1`, id); err != nil {
		return nil, err
	}
	opts, err := insertOptions(ctx, tx, id, optionTexts)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return opts, nil
}

func (s *SQLStore) InsertAttempts(ctx context.Context, questionID int64, votes []Attempt) (int, error) {
	if len(votes) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	// The question must still exist when the batch lands; without the lock a
	// racing delete would strand attempts on a question that is gone.
	var locked int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM poll_questions WHERE id=$1`+s.forUpdate(), questionID,
	).Scan(&locked)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrQuestionNotFound
	}
	if err != nil {
		return 0, err
	}

	now := time.Now().Unix()
	for _, v := range votes {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO poll_attempts (question_id, option_id, user_id, created_at) VALUES ($1,$2,$3,$4)`,
			questionID, v.OptionID, v.UserID, now,
		); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(votes), nil
}

// DeleteQuestion removes attempts, then options, then the question row.
// A question without options still gets deleted; the store never keeps
// options or attempts pointing at a question that is gone.
func (s *SQLStore) DeleteQuestion(ctx context.Context, questionID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var locked int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM poll_questions WHERE id=$1`+s.forUpdate(), questionID,
	).Scan(&locked)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrQuestionNotFound
	}
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM poll_attempts WHERE question_id=$1`, questionID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM poll_options WHERE question_id=$1`, questionID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM poll_questions WHERE id=$1`, questionID); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteOption removes one option and every attempt referencing it, so
// dropped options never orphan votes.
func (s *SQLStore) DeleteOption(ctx context.Context, optionID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM poll_options WHERE id=$1`, optionID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrDeleteFailed
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM poll_attempts WHERE option_id=$1`, optionID); err != nil {
		return err
	}
	return tx.Commit()
}
