// Package poll owns the poll question lifecycle: creation with its option
// set, retrieval with derived publication state, whole-set option
// replacement, vote recording and cascading deletion.
package poll

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/pinky28/moodle-mod-congrea/internal/activity"
	"github.com/pinky28/moodle-mod-congrea/internal/directory"
	"github.com/pinky28/moodle-mod-congrea/internal/rbac"
)

const moduleName = "congrea"

// NoUserLabel replaces the creator's names when the account is gone.
const NoUserLabel = "nouser"

type AuthzGate interface {
	HasCapability(ctx context.Context, c rbac.Context, capability string, userID int64) (bool, error)
	IsSiteAdmin(ctx context.Context, userID int64) (bool, error)
}

type ModuleResolver interface {
	ModuleByID(ctx context.Context, id int64, name string) (activity.Module, error)
	ModuleByInstance(ctx context.Context, name string, instanceID, courseID int64) (activity.Module, error)
}

type UserDirectory interface {
	GetUser(ctx context.Context, id int64) (directory.User, error)
}

type Service struct {
	store   Store
	gate    AuthzGate
	modules ModuleResolver
	users   UserDirectory

	// strict rejects malformed vote entries instead of skipping them.
	strict bool
}

func NewService(store Store, gate AuthzGate, modules ModuleResolver, users UserDirectory, strict bool) *Service {
	return &Service{store: store, gate: gate, modules: modules, users: users, strict: strict}
}

// CreateQuestion saves a question and its options in scope of the activity
// the front-end was launched from. A zero category makes a site poll; the
// option list may be empty.
func (s *Service) CreateQuestion(ctx context.Context, cmid, callerID int64, req CreateRequest) (QuestionView, error) {
	if strings.TrimSpace(req.Question) == "" {
		return QuestionView{}, ErrEmptyQuestion
	}
	m, err := s.modules.ModuleByID(ctx, cmid, moduleName)
	if err != nil {
		if errors.Is(err, activity.ErrInvalidModule) {
			return QuestionView{}, ErrInvalidScope
		}
		return QuestionView{}, err
	}
	mctx := rbac.ModuleContext(m.ID, m.CourseID, m.InstanceID)
	if err := s.authorize(ctx, mctx, callerID); err != nil {
		return QuestionView{}, err
	}

	scope := SiteScope()
	category := int64(0)
	if req.Category != 0 {
		scope = CourseScope(m.CourseID, m.InstanceID)
		category = m.ID
	}

	q, opts, err := s.store.CreateQuestion(ctx, Question{
		Scope:     scope,
		Text:      req.Question,
		CreatedBy: callerID,
	}, req.Options)
	if err != nil {
		return QuestionView{}, err
	}
	return s.view(ctx, q, opts, category, false), nil
}

// Retrieve lists the questions of one scope: a course-module id selects
// that module's course, the zero sentinel selects site polls. An empty
// scope is reported as ErrNoPollsFound, not as an empty list; the wire
// protocol depends on that.
func (s *Service) Retrieve(ctx context.Context, scopeSelector, callerID int64) (RetrieveResult, error) {
	var (
		scope Scope
		rctx  rbac.Context
	)
	if scopeSelector > 0 {
		m, err := s.modules.ModuleByID(ctx, scopeSelector, moduleName)
		if err != nil {
			if errors.Is(err, activity.ErrInvalidModule) {
				return RetrieveResult{}, ErrInvalidScope
			}
			return RetrieveResult{}, err
		}
		scope = CourseScope(m.CourseID, m.InstanceID)
		rctx = rbac.ModuleContext(m.ID, m.CourseID, m.InstanceID)
	} else {
		scope = SiteScope()
		rctx = rbac.SystemContext()
	}
	if err := s.authorize(ctx, rctx, callerID); err != nil {
		return RetrieveResult{}, err
	}

	questions, err := s.store.QuestionsByScope(ctx, scope)
	if err != nil {
		return RetrieveResult{}, err
	}
	if len(questions) == 0 {
		return RetrieveResult{}, ErrNoPollsFound
	}

	out := RetrieveResult{Questions: make([]QuestionView, 0, len(questions))}
	for _, q := range questions {
		opts, err := s.store.OptionsByQuestion(ctx, q.ID)
		if err != nil {
			return RetrieveResult{}, err
		}
		published, err := s.store.HasAttempts(ctx, q.ID)
		if err != nil {
			return RetrieveResult{}, err
		}
		category, err := s.categoryOf(ctx, q.Scope)
		if err != nil {
			return RetrieveResult{}, err
		}
		out.Questions = append(out.Questions, s.view(ctx, q, opts, category, published))
	}

	admin, err := s.gate.IsSiteAdmin(ctx, callerID)
	if err != nil {
		return RetrieveResult{}, err
	}
	out.IsAdmin = admin
	return out, nil
}

// UpdateQuestion replaces the text and the whole option set of an existing
// question. Identity, creator and creation time stay untouched. The stored
// scope, not the caller's view, decides where the capability is checked.
func (s *Service) UpdateQuestion(ctx context.Context, callerID int64, req UpdateRequest) (QuestionView, error) {
	q, err := s.store.QuestionByID(ctx, req.QuestionID)
	if err != nil {
		return QuestionView{}, err
	}
	rctx, category, err := s.contextForScope(ctx, q.Scope)
	if err != nil {
		return QuestionView{}, err
	}
	if err := s.authorize(ctx, rctx, callerID); err != nil {
		return QuestionView{}, err
	}

	opts, err := s.store.ReplaceQuestion(ctx, q.ID, req.Question, req.Options)
	if err != nil {
		return QuestionView{}, err
	}
	q.Text = req.Question
	return s.view(ctx, q, opts, category, false), nil
}

// RecordVotes appends one attempt per well-formed (user, option) pair.
// Nothing is deduplicated: a user voting twice is recorded twice, callers
// wanting one-vote-per-user enforce that above this layer.
func (s *Service) RecordVotes(ctx context.Context, callerID int64, req VoteRequest) (VoteResult, error) {
	q, err := s.store.QuestionByID(ctx, req.QuestionID)
	if err != nil {
		return VoteResult{}, err
	}
	rctx, category, err := s.contextForScope(ctx, q.Scope)
	if err != nil {
		return VoteResult{}, err
	}
	if err := s.authorize(ctx, rctx, callerID); err != nil {
		return VoteResult{}, err
	}

	votes := make([]Attempt, 0, len(req.Votes))
	skipped := 0
	for rawUser, rawOption := range req.Votes {
		userID, uerr := strconv.ParseInt(rawUser, 10, 64)
		optionID, oerr := strconv.ParseInt(string(rawOption), 10, 64)
		if uerr != nil || oerr != nil {
			if s.strict {
				return VoteResult{}, ErrMalformedInput
			}
			skipped++
			continue
		}
		votes = append(votes, Attempt{QuestionID: q.ID, OptionID: optionID, UserID: userID})
	}

	accepted, err := s.store.InsertAttempts(ctx, q.ID, votes)
	if err != nil {
		return VoteResult{}, err
	}
	return VoteResult{Category: category, Accepted: accepted, Skipped: skipped}, nil
}

// DeleteQuestion removes a question with its options and attempts and
// returns the scope id so the caller can redraw the right view.
func (s *Service) DeleteQuestion(ctx context.Context, questionID, callerID int64) (int64, error) {
	q, err := s.store.QuestionByID(ctx, questionID)
	if err != nil {
		return 0, err
	}
	rctx, category, err := s.contextForScope(ctx, q.Scope)
	if err != nil {
		return 0, err
	}
	if err := s.authorize(ctx, rctx, callerID); err != nil {
		return 0, err
	}
	if err := s.store.DeleteQuestion(ctx, q.ID); err != nil {
		return 0, err
	}
	return category, nil
}

// DropOption deletes a single option (and its attempts). The owning
// question stays.
func (s *Service) DropOption(ctx context.Context, cmid, optionID, callerID int64) error {
	m, err := s.modules.ModuleByID(ctx, cmid, moduleName)
	if err != nil {
		if errors.Is(err, activity.ErrInvalidModule) {
			return ErrInvalidScope
		}
		return err
	}
	mctx := rbac.ModuleContext(m.ID, m.CourseID, m.InstanceID)
	if err := s.authorize(ctx, mctx, callerID); err != nil {
		return err
	}
	return s.store.DeleteOption(ctx, optionID)
}

func (s *Service) authorize(ctx context.Context, c rbac.Context, userID int64) error {
	ok, err := s.gate.HasCapability(ctx, c, rbac.CapManagePoll, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrPermissionDenied
	}
	return nil
}

// contextForScope maps a stored scope back to its authorization boundary
// and the category id the wire protocol reports (module id, 0 for site).
func (s *Service) contextForScope(ctx context.Context, scope Scope) (rbac.Context, int64, error) {
	if scope.Site {
		return rbac.SystemContext(), 0, nil
	}
	m, err := s.modules.ModuleByInstance(ctx, moduleName, scope.InstanceID, scope.CourseID)
	if err != nil {
		if errors.Is(err, activity.ErrInvalidModule) {
			return rbac.Context{}, 0, ErrInvalidScope
		}
		return rbac.Context{}, 0, err
	}
	return rbac.ModuleContext(m.ID, m.CourseID, m.InstanceID), m.ID, nil
}

func (s *Service) categoryOf(ctx context.Context, scope Scope) (int64, error) {
	_, category, err := s.contextForScope(ctx, scope)
	return category, err
}

func (s *Service) view(ctx context.Context, q Question, opts []Option, category int64, published bool) QuestionView {
	name, full := NoUserLabel, NoUserLabel
	if u, err := s.users.GetUser(ctx, q.CreatedBy); err == nil {
		name, full = u.Username, u.FullName()
	}
	if opts == nil {
		opts = []Option{}
	}
	return QuestionView{
		QuestionID:  q.ID,
		Category:    category,
		CreatedBy:   q.CreatedBy,
		Text:        q.Text,
		Options:     opts,
		CreatorName: name,
		CreatorFull: full,
		IsPublished: published,
	}
}
