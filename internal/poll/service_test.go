package poll_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pinky28/moodle-mod-congrea/internal/activity"
	"github.com/pinky28/moodle-mod-congrea/internal/db"
	"github.com/pinky28/moodle-mod-congrea/internal/directory"
	"github.com/pinky28/moodle-mod-congrea/internal/poll"
	"github.com/pinky28/moodle-mod-congrea/internal/rbac"

	_ "modernc.org/sqlite" // driver for "sqlite"
)

const (
	teacherID = 7
	studentID = 8
	adminID   = 9

	courseID   = 1
	instanceID = 5
	moduleID   = 10
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dbh, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	dbh.SetMaxOpenConns(1)
	t.Cleanup(func() { dbh.Close() })
	require.NoError(t, db.EnsureSchema(context.Background(), dbh, db.DriverSQLite))
	return dbh
}

func seedFixture(t *testing.T, dbh *sql.DB) {
	t.Helper()
	stmts := []string{
		`INSERT INTO users (id, username, role, firstname, lastname) VALUES
			(7, 'tmaple', 'teacher', 'Tara', 'Maple'),
			(8, 'sbirch', 'student', 'Sam', 'Birch'),
			(9, 'root', 'admin', 'Site', 'Admin'),
			(42, 'voter', 'student', 'Vik', 'Oak')`,
		`INSERT INTO admins (user_id) VALUES (9)`,
		`INSERT INTO courses (id, fullname) VALUES (1, 'Intro to Botany')`,
		`INSERT INTO course_roles (course_id, user_id, role) VALUES (1, 7, 'teacher'), (1, 8, 'student')`,
		`INSERT INTO course_modules (id, course_id, module, instance_id) VALUES (10, 1, 'congrea', 5)`,
	}
	for _, s := range stmts {
		_, err := dbh.Exec(s)
		require.NoError(t, err)
	}
}

func newService(t *testing.T, dbh *sql.DB, strict bool) *poll.Service {
	t.Helper()
	return poll.NewService(
		poll.NewSQLStore(dbh, "sqlite"),
		rbac.NewGate(dbh),
		activity.NewRegistry(dbh),
		directory.New(dbh),
		strict,
	)
}

func TestSitePollLifecycle(t *testing.T) {
	dbh := newTestDB(t)
	seedFixture(t, dbh)
	svc := newService(t, dbh, false)
	ctx := context.Background()

	created, err := svc.CreateQuestion(ctx, moduleID, teacherID, poll.CreateRequest{
		Question: "Favorite color?",
		Options:  []string{"Red", "Blue"},
	})
	require.NoError(t, err)
	require.Len(t, created.Options, 2)

	res, err := svc.Retrieve(ctx, 0, teacherID)
	require.NoError(t, err)
	require.Len(t, res.Questions, 1)
	q := res.Questions[0]
	assert.Equal(t, created.QuestionID, q.QuestionID)
	assert.Equal(t, int64(0), q.Category)
	assert.Equal(t, "Favorite color?", q.Text)
	assert.False(t, q.IsPublished)
	require.Len(t, q.Options, 2)
	assert.Equal(t, "Red", q.Options[0].Text)
	assert.Equal(t, "Blue", q.Options[1].Text)
	assert.Equal(t, "tmaple", q.CreatorName)
	assert.Equal(t, "Tara Maple", q.CreatorFull)

	blue := q.Options[1]
	vr, err := svc.RecordVotes(ctx, teacherID, poll.VoteRequest{
		QuestionID: q.QuestionID,
		Votes:      map[string]poll.VoteValue{"42": poll.VoteValue(fmt.Sprint(blue.ID))},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, vr.Accepted)
	assert.Equal(t, 0, vr.Skipped)

	res, err = svc.Retrieve(ctx, 0, teacherID)
	require.NoError(t, err)
	assert.True(t, res.Questions[0].IsPublished)

	category, err := svc.DeleteQuestion(ctx, q.QuestionID, teacherID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), category)

	_, err = svc.Retrieve(ctx, 0, teacherID)
	assert.ErrorIs(t, err, poll.ErrNoPollsFound)
}

func TestCreateCourseScope(t *testing.T) {
	dbh := newTestDB(t)
	seedFixture(t, dbh)
	svc := newService(t, dbh, false)
	ctx := context.Background()

	created, err := svc.CreateQuestion(ctx, moduleID, teacherID, poll.CreateRequest{
		Question: "Best leaf?",
		Options:  []string{"Oak", "Maple", "Birch"},
		Category: moduleID,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(moduleID), created.Category)

	// course polls are invisible from the site scope
	_, err = svc.Retrieve(ctx, 0, teacherID)
	assert.ErrorIs(t, err, poll.ErrNoPollsFound)

	res, err := svc.Retrieve(ctx, moduleID, teacherID)
	require.NoError(t, err)
	require.Len(t, res.Questions, 1)
	assert.Equal(t, int64(moduleID), res.Questions[0].Category)
}

func TestCreateValidation(t *testing.T) {
	dbh := newTestDB(t)
	seedFixture(t, dbh)
	svc := newService(t, dbh, false)
	ctx := context.Background()

	_, err := svc.CreateQuestion(ctx, moduleID, teacherID, poll.CreateRequest{Question: "   "})
	assert.ErrorIs(t, err, poll.ErrEmptyQuestion)

	_, err = svc.CreateQuestion(ctx, 999, teacherID, poll.CreateRequest{Question: "x"})
	assert.ErrorIs(t, err, poll.ErrInvalidScope)

	_, err = svc.CreateQuestion(ctx, moduleID, studentID, poll.CreateRequest{Question: "x"})
	assert.ErrorIs(t, err, poll.ErrPermissionDenied)

	// a poll with no options is accepted, just not votable
	created, err := svc.CreateQuestion(ctx, moduleID, teacherID, poll.CreateRequest{Question: "Lonely?"})
	require.NoError(t, err)
	assert.Empty(t, created.Options)
}

func TestUpdateReplacesWholeOptionSet(t *testing.T) {
	dbh := newTestDB(t)
	seedFixture(t, dbh)
	svc := newService(t, dbh, false)
	ctx := context.Background()

	created, err := svc.CreateQuestion(ctx, moduleID, teacherID, poll.CreateRequest{
		Question: "Pick one",
		Options:  []string{"A", "B", "C"},
	})
	require.NoError(t, err)

	updated, err := svc.UpdateQuestion(ctx, teacherID, poll.UpdateRequest{
		QuestionID: created.QuestionID,
		Question:   "Pick one (edited)",
		Options:    []string{"X", "Y"},
	})
	require.NoError(t, err)
	require.Len(t, updated.Options, 2)

	res, err := svc.Retrieve(ctx, 0, teacherID)
	require.NoError(t, err)
	got := res.Questions[0]
	assert.Equal(t, "Pick one (edited)", got.Text)
	require.Len(t, got.Options, 2)
	assert.Equal(t, "X", got.Options[0].Text)
	assert.Equal(t, "Y", got.Options[1].Text)
	// identity and creator survive the rewrite
	assert.Equal(t, created.QuestionID, got.QuestionID)
	assert.Equal(t, int64(teacherID), got.CreatedBy)

	var stale int
	require.NoError(t, dbh.QueryRow(
		`SELECT COUNT(*) FROM poll_options WHERE question_id=? AND option_text IN ('A','B','C')`,
		created.QuestionID).Scan(&stale))
	assert.Zero(t, stale)
}

func TestUpdateUnknownQuestion(t *testing.T) {
	dbh := newTestDB(t)
	seedFixture(t, dbh)
	svc := newService(t, dbh, false)

	_, err := svc.UpdateQuestion(context.Background(), teacherID, poll.UpdateRequest{
		QuestionID: 404, Question: "?", Options: []string{"A"},
	})
	assert.ErrorIs(t, err, poll.ErrQuestionNotFound)
}

func TestRecordVotesLenientSkipsMalformed(t *testing.T) {
	dbh := newTestDB(t)
	seedFixture(t, dbh)
	svc := newService(t, dbh, false)
	ctx := context.Background()

	created, err := svc.CreateQuestion(ctx, moduleID, teacherID, poll.CreateRequest{
		Question: "Vote", Options: []string{"Yes", "No"},
	})
	require.NoError(t, err)
	yes := created.Options[0]

	vr, err := svc.RecordVotes(ctx, teacherID, poll.VoteRequest{
		QuestionID: created.QuestionID,
		Votes: map[string]poll.VoteValue{
			"42":        poll.VoteValue(fmt.Sprint(yes.ID)),
			"not-a-uid": poll.VoteValue(fmt.Sprint(yes.ID)),
			"43":        "not-an-option",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, vr.Accepted)
	assert.Equal(t, 2, vr.Skipped)

	var n int
	require.NoError(t, dbh.QueryRow(
		`SELECT COUNT(*) FROM poll_attempts WHERE question_id=?`, created.QuestionID).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestRecordVotesStrictRejectsMalformed(t *testing.T) {
	dbh := newTestDB(t)
	seedFixture(t, dbh)
	svc := newService(t, dbh, true)
	ctx := context.Background()

	created, err := svc.CreateQuestion(ctx, moduleID, teacherID, poll.CreateRequest{
		Question: "Vote", Options: []string{"Yes"},
	})
	require.NoError(t, err)

	_, err = svc.RecordVotes(ctx, teacherID, poll.VoteRequest{
		QuestionID: created.QuestionID,
		Votes:      map[string]poll.VoteValue{"42": "garbage"},
	})
	assert.ErrorIs(t, err, poll.ErrMalformedInput)
}

func TestRecordVotesAccumulate(t *testing.T) {
	dbh := newTestDB(t)
	seedFixture(t, dbh)
	svc := newService(t, dbh, false)
	ctx := context.Background()

	created, err := svc.CreateQuestion(ctx, moduleID, teacherID, poll.CreateRequest{
		Question: "Vote", Options: []string{"Yes"},
	})
	require.NoError(t, err)
	opt := created.Options[0]

	// same user voting twice stays two attempts; dedup is the caller's job
	for i := 0; i < 2; i++ {
		_, err = svc.RecordVotes(ctx, teacherID, poll.VoteRequest{
			QuestionID: created.QuestionID,
			Votes:      map[string]poll.VoteValue{"42": poll.VoteValue(fmt.Sprint(opt.ID))},
		})
		require.NoError(t, err)
	}
	var n int
	require.NoError(t, dbh.QueryRow(
		`SELECT COUNT(*) FROM poll_attempts WHERE user_id=42`).Scan(&n))
	assert.Equal(t, 2, n)
}

func TestWirePayloadDecoding(t *testing.T) {
	// the front-end sends ids both bare and quoted
	var bare, quoted poll.CreateRequest
	require.NoError(t, json.Unmarshal(
		[]byte(`{"question":"x","options":["a"],"category":10}`), &bare))
	require.NoError(t, json.Unmarshal(
		[]byte(`{"question":"x","options":["a"],"category":"10"}`), &quoted))
	assert.Equal(t, poll.WireID(10), bare.Category)
	assert.Equal(t, poll.WireID(10), quoted.Category)

	var votes poll.VoteRequest
	require.NoError(t, json.Unmarshal(
		[]byte(`{"qid":1,"list":{"42":3,"43":"4","44":"junk"}}`), &votes))
	assert.Equal(t, poll.VoteValue("3"), votes.Votes["42"])
	assert.Equal(t, poll.VoteValue("4"), votes.Votes["43"])
	assert.Equal(t, poll.VoteValue("junk"), votes.Votes["44"])
}

func TestInsertAttemptsRequiresQuestion(t *testing.T) {
	dbh := newTestDB(t)
	seedFixture(t, dbh)
	store := poll.NewSQLStore(dbh, "sqlite")

	_, err := store.InsertAttempts(context.Background(), 12345,
		[]poll.Attempt{{QuestionID: 12345, OptionID: 1, UserID: 42}})
	require.ErrorIs(t, err, poll.ErrQuestionNotFound)

	var n int
	require.NoError(t, dbh.QueryRow(
		`SELECT COUNT(*) FROM poll_attempts WHERE question_id=12345`).Scan(&n))
	assert.Zero(t, n, "a batch against a missing question must leave nothing behind")
}

func TestRecordVotesUnknownQuestion(t *testing.T) {
	dbh := newTestDB(t)
	seedFixture(t, dbh)
	svc := newService(t, dbh, false)

	_, err := svc.RecordVotes(context.Background(), teacherID, poll.VoteRequest{QuestionID: 404})
	assert.ErrorIs(t, err, poll.ErrQuestionNotFound)
}

func TestDeleteQuestionCascades(t *testing.T) {
	dbh := newTestDB(t)
	seedFixture(t, dbh)
	svc := newService(t, dbh, false)
	ctx := context.Background()

	created, err := svc.CreateQuestion(ctx, moduleID, teacherID, poll.CreateRequest{
		Question: "Doomed", Options: []string{"A", "B"},
	})
	require.NoError(t, err)
	_, err = svc.RecordVotes(ctx, teacherID, poll.VoteRequest{
		QuestionID: created.QuestionID,
		Votes:      map[string]poll.VoteValue{"42": poll.VoteValue(fmt.Sprint(created.Options[0].ID))},
	})
	require.NoError(t, err)

	_, err = svc.DeleteQuestion(ctx, created.QuestionID, teacherID)
	require.NoError(t, err)

	for _, table := range []string{"poll_questions", "poll_options", "poll_attempts"} {
		var n int
		col := "question_id"
		if table == "poll_questions" {
			col = "id"
		}
		require.NoError(t, dbh.QueryRow(
			`SELECT COUNT(*) FROM `+table+` WHERE `+col+`=?`, created.QuestionID).Scan(&n))
		assert.Zero(t, n, table)
	}
}

func TestDeleteQuestionWithoutOptions(t *testing.T) {
	dbh := newTestDB(t)
	seedFixture(t, dbh)
	svc := newService(t, dbh, false)
	ctx := context.Background()

	created, err := svc.CreateQuestion(ctx, moduleID, teacherID, poll.CreateRequest{Question: "Bare"})
	require.NoError(t, err)

	// zero options deleted still counts as success; no orphaned question
	_, err = svc.DeleteQuestion(ctx, created.QuestionID, teacherID)
	require.NoError(t, err)

	_, err = svc.DeleteQuestion(ctx, created.QuestionID, teacherID)
	assert.ErrorIs(t, err, poll.ErrQuestionNotFound)
}

func TestDropOptionCascadesAttempts(t *testing.T) {
	dbh := newTestDB(t)
	seedFixture(t, dbh)
	svc := newService(t, dbh, false)
	ctx := context.Background()

	created, err := svc.CreateQuestion(ctx, moduleID, teacherID, poll.CreateRequest{
		Question: "Trim me", Options: []string{"Keep", "Drop"},
	})
	require.NoError(t, err)
	keep, drop := created.Options[0], created.Options[1]
	_, err = svc.RecordVotes(ctx, teacherID, poll.VoteRequest{
		QuestionID: created.QuestionID,
		Votes: map[string]poll.VoteValue{
			"42": poll.VoteValue(fmt.Sprint(drop.ID)),
			"43": poll.VoteValue(fmt.Sprint(keep.ID)),
		},
	})
	require.NoError(t, err)

	require.NoError(t, svc.DropOption(ctx, moduleID, drop.ID, teacherID))

	var n int
	require.NoError(t, dbh.QueryRow(
		`SELECT COUNT(*) FROM poll_attempts WHERE option_id=?`, drop.ID).Scan(&n))
	assert.Zero(t, n, "attempts on a dropped option must go with it")
	require.NoError(t, dbh.QueryRow(
		`SELECT COUNT(*) FROM poll_attempts WHERE option_id=?`, keep.ID).Scan(&n))
	assert.Equal(t, 1, n)

	// question survives with the remaining option
	res, err := svc.Retrieve(ctx, 0, teacherID)
	require.NoError(t, err)
	require.Len(t, res.Questions[0].Options, 1)
	assert.Equal(t, "Keep", res.Questions[0].Options[0].Text)

	assert.ErrorIs(t, svc.DropOption(ctx, moduleID, drop.ID, teacherID), poll.ErrDeleteFailed)
}

func TestRetrieveDanglingCreator(t *testing.T) {
	dbh := newTestDB(t)
	seedFixture(t, dbh)
	svc := newService(t, dbh, false)
	ctx := context.Background()

	_, err := svc.CreateQuestion(ctx, moduleID, teacherID, poll.CreateRequest{
		Question: "Orphaned", Options: []string{"A"},
	})
	require.NoError(t, err)

	// admin keeps the capability after the creator account is removed
	_, err = dbh.Exec(`UPDATE users SET deleted=1 WHERE id=?`, teacherID)
	require.NoError(t, err)

	res, err := svc.Retrieve(ctx, 0, adminID)
	require.NoError(t, err)
	assert.Equal(t, poll.NoUserLabel, res.Questions[0].CreatorName)
	assert.Equal(t, poll.NoUserLabel, res.Questions[0].CreatorFull)
}

func TestRetrieveAdminFlag(t *testing.T) {
	dbh := newTestDB(t)
	seedFixture(t, dbh)
	svc := newService(t, dbh, false)
	ctx := context.Background()

	_, err := svc.CreateQuestion(ctx, moduleID, teacherID, poll.CreateRequest{
		Question: "Who asks?", Options: []string{"A"},
	})
	require.NoError(t, err)

	res, err := svc.Retrieve(ctx, 0, teacherID)
	require.NoError(t, err)
	assert.False(t, res.IsAdmin)

	res, err = svc.Retrieve(ctx, 0, adminID)
	require.NoError(t, err)
	assert.True(t, res.IsAdmin)
}

func TestRetrievePermission(t *testing.T) {
	dbh := newTestDB(t)
	seedFixture(t, dbh)
	svc := newService(t, dbh, false)
	ctx := context.Background()

	_, err := svc.CreateQuestion(ctx, moduleID, teacherID, poll.CreateRequest{
		Question: "Secret", Options: []string{"A"},
	})
	require.NoError(t, err)

	_, err = svc.Retrieve(ctx, 0, studentID)
	assert.ErrorIs(t, err, poll.ErrPermissionDenied)

	_, err = svc.Retrieve(ctx, 999, teacherID)
	assert.ErrorIs(t, err, poll.ErrInvalidScope)
}
