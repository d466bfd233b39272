package quiz

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

type Store interface {
	QuizzesByCourse(ctx context.Context, courseID int64) ([]Quiz, error)
	QuizByID(ctx context.Context, id, courseID int64) (Quiz, error)
	LinkExists(ctx context.Context, activityID, quizID int64) (bool, error)
	LinkQuiz(ctx context.Context, activityID, quizID int64) error
	LinkID(ctx context.Context, activityID, quizID int64) (int64, error)
	InsertGrade(ctx context.Context, linkID int64, r ResultRequest) error
}

type SQLStore struct {
	db     *sql.DB
	driver string // "sqlite" or "postgres"
}

func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{db: db, driver: driver}
}

func (s *SQLStore) QuizzesByCourse(ctx context.Context, courseID int64) ([]Quiz, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, course_id, name, grade, time_limit, preferred_behaviour, questions_per_page, questions_json
		   FROM quizzes WHERE course_id=$1 ORDER BY id`, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Quiz
	for rows.Next() {
		q, err := scanQuiz(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (s *SQLStore) QuizByID(ctx context.Context, id, courseID int64) (Quiz, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, course_id, name, grade, time_limit, preferred_behaviour, questions_per_page, questions_json
		   FROM quizzes WHERE id=$1 AND course_id=$2`, id, courseID)
	if err != nil {
		return Quiz{}, err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return Quiz{}, err
		}
		return Quiz{}, ErrQuizNotFound
	}
	return scanQuiz(rows)
}

func scanQuiz(rows *sql.Rows) (Quiz, error) {
	var q Quiz
	var qjson string
	if err := rows.Scan(&q.ID, &q.CourseID, &q.Name, &q.Grade, &q.TimeLimit,
		&q.PreferredBehaviour, &q.QuestionsPerPage, &qjson); err != nil {
		return Quiz{}, err
	}
	if err := json.Unmarshal([]byte(qjson), &q.Questions); err != nil {
		return Quiz{}, err
	}
	return q, nil
}

func (s *SQLStore) LinkExists(ctx context.Context, activityID, quizID int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM activity_quiz WHERE activity_id=$1 AND quiz_id=$2`, activityID, quizID,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *SQLStore) LinkQuiz(ctx context.Context, activityID, quizID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO activity_quiz (activity_id, quiz_id) VALUES ($1,$2)`, activityID, quizID)
	return err
}

func (s *SQLStore) LinkID(ctx context.Context, activityID, quizID int64) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM activity_quiz WHERE activity_id=$1 AND quiz_id=$2`, activityID, quizID,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrQuizNotLinked
	}
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (s *SQLStore) InsertGrade(ctx context.Context, linkID int64, r ResultRequest) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO quiz_grades (activity_quiz_id, user_id, grade, time_taken, questions_attempted, correct_answers, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		linkID, r.UserID, r.Grade, r.TimeTaken, r.QuestionsAttempted, r.CorrectAnswers, time.Now().Unix())
	return err
}
