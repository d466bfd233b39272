package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/pinky28/moodle-mod-congrea/internal/poll"
	"github.com/pinky28/moodle-mod-congrea/internal/quiz"
	"github.com/pinky28/moodle-mod-congrea/internal/token"
)

// Method names the dispatch endpoint accepts. Anything else is rejected
// before a token is even looked at.
const (
	MethodQuizList       = "mod_congrea_quiz_list"
	MethodAddQuiz        = "mod_congrea_add_quiz"
	MethodQuizResult     = "mod_congrea_quiz_result"
	MethodGetQuizData    = "mod_congrea_get_quizdata"
	MethodPollSave       = "mod_congrea_poll_save"
	MethodPollRetrieve   = "mod_congrea_poll_data_retrieve"
	MethodPollUpdate     = "mod_congrea_poll_update"
	MethodPollDelete     = "mod_congrea_poll_delete"
	MethodPollResult     = "mod_congrea_poll_result"
	MethodPollOptionDrop = "mod_congrea_poll_option_drop"
)

// RPC is the single web-service surface the in-class front-end talks to:
// POST /webservice/rpc?methodname=...&wstoken=... with a JSON body per
// method. It replaces the host platform's XML-RPC bridge with plain JSON.
type RPC struct {
	polls   *poll.Service
	quizzes *quiz.Service
	tokens  *token.Service
}

func NewRPC(polls *poll.Service, quizzes *quiz.Service, tokens *token.Service) *RPC {
	return &RPC{polls: polls, quizzes: quizzes, tokens: tokens}
}

func (h *RPC) Dispatch() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// CORS preflights never reach the method table.
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		method := r.URL.Query().Get("methodname")
		if method == "" {
			http.Error(w, "there is no method to execute", http.StatusBadRequest)
			return
		}

		callerID, err := h.tokens.Validate(r.Context(), r.URL.Query().Get("wstoken"))
		if err != nil {
			writeError(w, err)
			return
		}

		switch method {
		case MethodQuizList:
			h.quizList(w, r, callerID)
		case MethodAddQuiz:
			h.addQuiz(w, r, callerID)
		case MethodQuizResult:
			h.quizResult(w, r, callerID)
		case MethodGetQuizData:
			h.getQuizData(w, r, callerID)
		case MethodPollSave:
			h.pollSave(w, r, callerID)
		case MethodPollRetrieve:
			h.pollRetrieve(w, r, callerID)
		case MethodPollUpdate:
			h.pollUpdate(w, r, callerID)
		case MethodPollDelete:
			h.pollDelete(w, r, callerID)
		case MethodPollResult:
			h.pollResult(w, r, callerID)
		case MethodPollOptionDrop:
			h.pollOptionDrop(w, r, callerID)
		default:
			http.Error(w, "there is no "+method+" method to execute", http.StatusBadRequest)
		}
	}
}

func (h *RPC) quizList(w http.ResponseWriter, r *http.Request, callerID int64) {
	var req struct {
		CMID int64 `json:"cmid"`
	}
	if !decode(w, r, &req) {
		return
	}
	list, err := h.quizzes.List(r.Context(), req.CMID, callerID)
	if err != nil {
		writeError(w, err)
		return
	}
	// Keyed by quiz id, the shape the front-end indexes into.
	keyed := make(map[int64]quiz.Summary, len(list))
	for _, s := range list {
		keyed[s.ID] = s
	}
	writeJSON(w, keyed)
}

func (h *RPC) addQuiz(w http.ResponseWriter, r *http.Request, callerID int64) {
	var req struct {
		CMID   int64 `json:"cmid"`
		QuizID int64 `json:"qzid"`
	}
	if !decode(w, r, &req) {
		return
	}
	ok, err := h.quizzes.Attach(r.Context(), req.CMID, req.QuizID, callerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]bool{"status": ok})
}

func (h *RPC) quizResult(w http.ResponseWriter, r *http.Request, callerID int64) {
	var req quiz.ResultRequest
	if !decode(w, r, &req) {
		return
	}
	ok, err := h.quizzes.RecordResult(r.Context(), callerID, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]bool{"status": ok})
}

func (h *RPC) getQuizData(w http.ResponseWriter, r *http.Request, callerID int64) {
	var req struct {
		CMID   int64 `json:"cmid"`
		UserID int64 `json:"user"`
		QuizID int64 `json:"qid"`
	}
	if !decode(w, r, &req) {
		return
	}
	_ = req.UserID // the token, not the payload, names the caller
	data, err := h.quizzes.QuizData(r.Context(), req.CMID, callerID, req.QuizID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, data)
}

func (h *RPC) pollSave(w http.ResponseWriter, r *http.Request, callerID int64) {
	var req struct {
		CMID int64              `json:"cmid"`
		Data poll.CreateRequest `json:"data"`
	}
	if !decode(w, r, &req) {
		return
	}
	view, err := h.polls.CreateQuestion(r.Context(), req.CMID, callerID, req.Data)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"pollobject": view})
}

func (h *RPC) pollRetrieve(w http.ResponseWriter, r *http.Request, callerID int64) {
	var req struct {
		Category int64 `json:"category"`
	}
	if !decode(w, r, &req) {
		return
	}
	res, err := h.polls.Retrieve(r.Context(), req.Category, callerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, res)
}

func (h *RPC) pollUpdate(w http.ResponseWriter, r *http.Request, callerID int64) {
	var req struct {
		Data poll.UpdateRequest `json:"data"`
	}
	if !decode(w, r, &req) {
		return
	}
	view, err := h.polls.UpdateQuestion(r.Context(), callerID, req.Data)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"pollobject": view})
}

func (h *RPC) pollDelete(w http.ResponseWriter, r *http.Request, callerID int64) {
	var req struct {
		QID int64 `json:"qid"`
	}
	if !decode(w, r, &req) {
		return
	}
	category, err := h.polls.DeleteQuestion(r.Context(), req.QID, callerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]int64{"category": category})
}

func (h *RPC) pollResult(w http.ResponseWriter, r *http.Request, callerID int64) {
	var req struct {
		Data poll.VoteRequest `json:"data"`
	}
	if !decode(w, r, &req) {
		return
	}
	res, err := h.polls.RecordVotes(r.Context(), callerID, req.Data)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, res)
}

func (h *RPC) pollOptionDrop(w http.ResponseWriter, r *http.Request, callerID int64) {
	var req struct {
		CMID     int64 `json:"cmid"`
		OptionID int64 `json:"id"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := h.polls.DropOption(r.Context(), req.CMID, req.OptionID, callerID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]bool{"status": true})
}

func decode(w http.ResponseWriter, r *http.Request, into any) bool {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the services' sentinel errors onto HTTP statuses; the
// front-end only looks at the status class and the message.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, poll.ErrPermissionDenied),
		errors.Is(err, quiz.ErrPermissionDenied),
		errors.Is(err, token.ErrTokenNotAllowed):
		status = http.StatusForbidden
	case errors.Is(err, poll.ErrQuestionNotFound),
		errors.Is(err, poll.ErrNoPollsFound),
		errors.Is(err, quiz.ErrNoQuizFound),
		errors.Is(err, quiz.ErrQuizNotFound),
		errors.Is(err, quiz.ErrQuizNotLinked),
		errors.Is(err, quiz.ErrNoQuestions):
		status = http.StatusNotFound
	case errors.Is(err, poll.ErrInvalidScope),
		errors.Is(err, quiz.ErrInvalidScope),
		errors.Is(err, poll.ErrEmptyQuestion),
		errors.Is(err, poll.ErrMalformedInput),
		errors.Is(err, poll.ErrUpdateFailed),
		errors.Is(err, poll.ErrDeleteFailed):
		status = http.StatusBadRequest
	case errors.Is(err, token.ErrInvalidToken),
		errors.Is(err, token.ErrInactiveUser):
		status = http.StatusUnauthorized
	case errors.Is(err, token.ErrServiceDisabled):
		status = http.StatusServiceUnavailable
	}
	http.Error(w, err.Error(), status)
}
