package quiz

type Quiz struct {
	ID                 int64          `json:"id"`
	CourseID           int64          `json:"course"`
	Name               string         `json:"name"`
	Grade              float64        `json:"grade"`
	TimeLimit          int            `json:"timelimit"`
	PreferredBehaviour string         `json:"preferredbehaviour"`
	QuestionsPerPage   int            `json:"questionsperpage"`
	Questions          []QuizQuestion `json:"questions,omitempty"`
}

type QuizQuestion struct {
	ID   int64  `json:"id"`
	Type string `json:"type"` // only "multichoice" reaches the front-end
	Text string `json:"text"`
	// Single means exactly one answer is expected; multi-answer questions
	// force checkbox rendering.
	Single            bool         `json:"single"`
	CorrectFeedback   string       `json:"correct_feedback,omitempty"`
	IncorrectFeedback string       `json:"incorrect_feedback,omitempty"`
	Answers           []QuizAnswer `json:"answers"`
}

type QuizAnswer struct {
	ID       int64   `json:"id"`
	Text     string  `json:"text"`
	Fraction float64 `json:"fraction"` // share of the score this answer earns
}

// Summary is the quiz_list row shape.
type Summary struct {
	ID                 int64  `json:"id"`
	Name               string `json:"name"`
	TimeLimit          int    `json:"timelimit"`
	PreferredBehaviour string `json:"preferredbehaviour"`
	QuestionsPerPage   int    `json:"questionsperpage"`
	// Deleting reports a quiz whose course module is being torn down.
	Deleting bool `json:"quizstatus"`
}

// RenderedOption / RenderedQuestion are the simplified JSON the in-class
// player consumes.
type RenderedOption struct {
	Option  string `json:"option"`
	Correct bool   `json:"correct"`
}

type RenderedQuestion struct {
	Q             string           `json:"q"`
	A             []RenderedOption `json:"a"`
	QID           int64            `json:"qid"`
	Correct       string           `json:"correct"`
	Incorrect     string           `json:"incorrect"`
	SelectAny     bool             `json:"select_any"`
	ForceCheckbox bool             `json:"force_checkbox"`
}

type Info struct {
	Quiz    int64   `json:"quiz"`
	Results float64 `json:"results"`
	Name    string  `json:"name"`
	Main    string  `json:"main"`
}

type QuizData struct {
	Questions []RenderedQuestion `json:"questions"`
	Info      Info               `json:"info"`
}

// ResultRequest records one user's run through an attached quiz.
type ResultRequest struct {
	CMID               int64   `json:"cmid"`
	QuizID             int64   `json:"congreaquiz"`
	UserID             int64   `json:"userid"`
	Grade              float64 `json:"grade"`
	TimeTaken          int     `json:"timetaken"`
	QuestionsAttempted int     `json:"questionattempted"`
	CorrectAnswers     int     `json:"correctanswer"`
}
