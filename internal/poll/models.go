package poll

import (
	"strconv"
	"strings"
)

// WireID is an id the front-end sends either as a bare JSON number or as a
// quoted string, depending on which code path produced the payload.
type WireID int64

func (w *WireID) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*w = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return err
	}
	*w = WireID(n)
	return nil
}

// VoteValue preserves the wire form of a chosen option id. Quoted and bare
// numbers both decode; a malformed value survives to recording, where
// strict mode rejects it and lenient mode skips it.
type VoteValue string

func (v *VoteValue) UnmarshalJSON(b []byte) error {
	*v = VoteValue(strings.Trim(string(b), `"`))
	return nil
}

// Scope says whether a poll belongs to one activity inside a course or to
// the whole site. The zero value is the site scope; course scopes always
// carry both the owning course and the activity instance, so a course id of
// zero never leaks into validation.
type Scope struct {
	Site       bool  `json:"site"`
	CourseID   int64 `json:"course_id,omitempty"`
	InstanceID int64 `json:"instance_id,omitempty"`
}

func SiteScope() Scope { return Scope{Site: true} }

func CourseScope(courseID, instanceID int64) Scope {
	return Scope{CourseID: courseID, InstanceID: instanceID}
}

type Question struct {
	ID        int64  `json:"id"`
	Scope     Scope  `json:"scope"`
	Text      string `json:"question"`
	CreatedBy int64  `json:"created_by"`
	CreatedAt int64  `json:"created_at"`
}

type Option struct {
	ID         int64  `json:"id"`
	QuestionID int64  `json:"qid"`
	Text       string `json:"options"`
}

// Attempt is one recorded vote. Appended only, never mutated.
type Attempt struct {
	ID         int64 `json:"id"`
	QuestionID int64 `json:"qid"`
	OptionID   int64 `json:"optionid"`
	UserID     int64 `json:"userid"`
	CreatedAt  int64 `json:"created_at"`
}

// QuestionView is a question decorated for the front-end: its options, the
// creator's names and whether any vote has been recorded yet.
type QuestionView struct {
	QuestionID  int64    `json:"questionid"`
	Category    int64    `json:"category"` // course-module id, 0 for site polls
	CreatedBy   int64    `json:"createdby"`
	Text        string   `json:"questiontext"`
	Options     []Option `json:"options"`
	CreatorName string   `json:"creatorname"`
	CreatorFull string   `json:"creatorfname"`
	IsPublished bool     `json:"isPublished"`
}

// RetrieveResult carries the scope's questions plus whether the requesting
// caller is a site administrator.
type RetrieveResult struct {
	Questions []QuestionView `json:"responsearray"`
	IsAdmin   bool           `json:"admin"`
}

// CreateRequest is the decoded dataToSave payload.
type CreateRequest struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
	Category WireID   `json:"category"` // non-zero selects course scope
	Copied   bool     `json:"copied"`
}

// UpdateRequest is the decoded dataToUpdate payload. Options replace the
// stored set wholesale.
type UpdateRequest struct {
	QuestionID int64    `json:"questionid"`
	Question   string   `json:"question"`
	Options    []string `json:"options"`
}

// VoteRequest maps user ids to chosen option ids, both still in wire form:
// the front-end sends them as JSON object keys/values and malformed entries
// are filtered (or rejected, in strict mode) during recording.
type VoteRequest struct {
	QuestionID int64                `json:"qid"`
	Votes      map[string]VoteValue `json:"list"`
}

// VoteResult reports how the batch went instead of silently dropping
// malformed pairs.
type VoteResult struct {
	Category int64 `json:"category"`
	Accepted int   `json:"accepted"`
	Skipped  int   `json:"skipped"`
}
