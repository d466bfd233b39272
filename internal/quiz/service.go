// Package quiz surfaces the quizzes of the course an activity lives in:
// listing multichoice quizzes, attaching one to the activity, recording a
// run's result and reshaping stored questions into the simplified JSON the
// in-class player understands.
package quiz

import (
	"context"
	"errors"

	"github.com/pinky28/moodle-mod-congrea/internal/activity"
	"github.com/pinky28/moodle-mod-congrea/internal/rbac"
)

const (
	congreaModule = "congrea"
	quizModule    = "quiz"
)

// Answer fractions above this count as correct when one answer is expected.
const singleCorrectFraction = 0.9

var (
	ErrInvalidScope     = errors.New("invalid course module for quiz")
	ErrPermissionDenied = errors.New("quiz capability check failed")
	ErrNoQuizFound      = errors.New("no quizzes in course")
	ErrQuizNotFound     = errors.New("quiz not found")
	ErrQuizNotLinked    = errors.New("quiz not attached to activity")
	ErrNoQuestions      = errors.New("quiz has no questions")
)

type AuthzGate interface {
	HasCapability(ctx context.Context, c rbac.Context, capability string, userID int64) (bool, error)
}

type ModuleResolver interface {
	ModuleByID(ctx context.Context, id int64, name string) (activity.Module, error)
	ModuleByInstance(ctx context.Context, name string, instanceID, courseID int64) (activity.Module, error)
}

type Service struct {
	store   Store
	gate    AuthzGate
	modules ModuleResolver
}

func NewService(store Store, gate AuthzGate, modules ModuleResolver) *Service {
	return &Service{store: store, gate: gate, modules: modules}
}

// List returns the multichoice quizzes of the course owning the activity.
// Quizzes whose own module is hidden are skipped; a quiz mid-deletion is
// reported, not hidden, so the front-end can grey it out.
func (s *Service) List(ctx context.Context, cmid, callerID int64) ([]Summary, error) {
	m, err := s.resolveActivity(ctx, cmid, callerID)
	if err != nil {
		return nil, err
	}
	quizzes, err := s.store.QuizzesByCourse(ctx, m.CourseID)
	if err != nil {
		return nil, err
	}

	var out []Summary
	for _, q := range quizzes {
		if !isMultichoice(q) {
			continue
		}
		qm, err := s.modules.ModuleByInstance(ctx, quizModule, q.ID, q.CourseID)
		if err != nil {
			if errors.Is(err, activity.ErrInvalidModule) {
				continue
			}
			return nil, err
		}
		if !qm.Visible {
			continue
		}
		out = append(out, Summary{
			ID:                 q.ID,
			Name:               q.Name,
			TimeLimit:          q.TimeLimit,
			PreferredBehaviour: q.PreferredBehaviour,
			QuestionsPerPage:   q.QuestionsPerPage,
			Deleting:           qm.DeletionInProgress,
		})
	}
	if len(out) == 0 {
		return nil, ErrNoQuizFound
	}
	return out, nil
}

// Attach links a quiz to the activity. Attaching twice is not an error.
func (s *Service) Attach(ctx context.Context, cmid, quizID, callerID int64) (bool, error) {
	m, err := s.resolveActivity(ctx, cmid, callerID)
	if err != nil {
		return false, err
	}
	exists, err := s.store.LinkExists(ctx, m.InstanceID, quizID)
	if err != nil {
		return false, err
	}
	if exists {
		return true, nil
	}
	if err := s.store.LinkQuiz(ctx, m.InstanceID, quizID); err != nil {
		return false, err
	}
	return true, nil
}

// RecordResult persists one user's grade for a quiz attached to the
// activity named in the request.
func (s *Service) RecordResult(ctx context.Context, callerID int64, r ResultRequest) (bool, error) {
	m, err := s.resolveActivity(ctx, r.CMID, callerID)
	if err != nil {
		return false, err
	}
	linkID, err := s.store.LinkID(ctx, m.InstanceID, r.QuizID)
	if err != nil {
		return false, err
	}
	if err := s.store.InsertGrade(ctx, linkID, r); err != nil {
		return false, err
	}
	return true, nil
}

// QuizData reshapes a quiz's multichoice questions into the player's form.
// Option correctness is derived from answer fractions: a single-answer
// question marks only near-full-credit answers, a multi-answer question
// marks anything scoring above zero.
func (s *Service) QuizData(ctx context.Context, cmid, userID, quizID int64) (QuizData, error) {
	m, err := s.resolveActivity(ctx, cmid, userID)
	if err != nil {
		return QuizData{}, err
	}
	if _, err := s.modules.ModuleByInstance(ctx, quizModule, quizID, m.CourseID); err != nil {
		if errors.Is(err, activity.ErrInvalidModule) {
			return QuizData{}, ErrInvalidScope
		}
		return QuizData{}, err
	}
	q, err := s.store.QuizByID(ctx, quizID, m.CourseID)
	if err != nil {
		return QuizData{}, err
	}
	if len(q.Questions) == 0 {
		return QuizData{}, ErrNoQuestions
	}

	data := QuizData{
		Info: Info{Quiz: q.ID, Results: q.Grade, Name: q.Name, Main: ""},
	}
	for _, question := range q.Questions {
		if question.Type != "multichoice" {
			continue
		}
		data.Questions = append(data.Questions, renderQuestion(question))
	}
	if len(data.Questions) == 0 {
		return QuizData{}, ErrNoQuestions
	}
	return data, nil
}

func renderQuestion(q QuizQuestion) RenderedQuestion {
	selectAny := true
	forceCheckbox := false
	if !q.Single {
		selectAny = false
		forceCheckbox = true
	}
	opts := make([]RenderedOption, 0, len(q.Answers))
	for _, a := range q.Answers {
		correct := a.Fraction > singleCorrectFraction
		if !q.Single {
			correct = a.Fraction > 0
		}
		opts = append(opts, RenderedOption{Option: a.Text, Correct: correct})
	}
	correctMsg := q.CorrectFeedback
	if correctMsg == "" {
		correctMsg = "Your answer is correct."
	}
	incorrectMsg := q.IncorrectFeedback
	if incorrectMsg == "" {
		incorrectMsg = "Your answer is incorrect."
	}
	return RenderedQuestion{
		Q:             q.Text,
		A:             opts,
		QID:           q.ID,
		Correct:       correctMsg,
		Incorrect:     incorrectMsg,
		SelectAny:     selectAny,
		ForceCheckbox: forceCheckbox,
	}
}

func isMultichoice(q Quiz) bool {
	for _, question := range q.Questions {
		if question.Type == "multichoice" {
			return true
		}
	}
	return false
}

func (s *Service) resolveActivity(ctx context.Context, cmid, callerID int64) (activity.Module, error) {
	m, err := s.modules.ModuleByID(ctx, cmid, congreaModule)
	if err != nil {
		if errors.Is(err, activity.ErrInvalidModule) {
			return activity.Module{}, ErrInvalidScope
		}
		return activity.Module{}, err
	}
	ok, err := s.gate.HasCapability(ctx, rbac.ModuleContext(m.ID, m.CourseID, m.InstanceID), rbac.CapManageQuiz, callerID)
	if err != nil {
		return activity.Module{}, err
	}
	if !ok {
		return activity.Module{}, ErrPermissionDenied
	}
	return m, nil
}
