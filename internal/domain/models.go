package domain

import "time"

// OptionKey identifies one of the four answer options of a question.
type OptionKey string

const (
	OptionA OptionKey = "A"
	OptionB OptionKey = "B"
	OptionC OptionKey = "C"
	OptionD OptionKey = "D"
)

// Valid reports whether the key is one of A-D.
func (k OptionKey) Valid() bool {
	switch k {
	case OptionA, OptionB, OptionC, OptionD:
		return true
	}
	return false
}

// OptionKeys lists the keys in display order.
var OptionKeys = []OptionKey{OptionA, OptionB, OptionC, OptionD}

// Question is one multiple-choice question. Options are keyed A-D and exactly
// one key is correct. Competition controls whether the question counts toward
// the ranking.
type Question struct {
	ID          string               `json:"id"`
	OrderIndex  int                  `json:"orderIndex"`
	Statement   string               `json:"statement"`
	Options     map[OptionKey]string `json:"options"`
	Correct     OptionKey            `json:"correct"`
	Competition bool                 `json:"competition"`
}

// Test is an immutable ordered question set. Play order is slice order and
// matches the dense OrderIndex values.
type Test struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
}

// QuestionAt returns the question at index, or false when the index is past
// the end of the list.
func (t Test) QuestionAt(index int) (Question, bool) {
	if index < 0 || index >= len(t.Questions) {
		return Question{}, false
	}
	return t.Questions[index], true
}

// Phase is the sub-state of an active session governing answer acceptance.
type Phase string

const (
	PhaseIdle           Phase = "idle"
	PhaseOpen           Phase = "open"
	PhaseShowingRanking Phase = "showing_ranking"
)

// Status is the session's lifecycle status; Ended is terminal.
type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

// Participant is a joined player. TotalScore is recomputed from recorded
// answers when a question closes.
type Participant struct {
	ID         string    `json:"id"`
	Nickname   string    `json:"nickname"`
	TotalScore int       `json:"totalScore"`
	JoinedAt   time.Time `json:"joinedAt"`
}

// Answer is one recorded submission. At most one exists per
// (participant, question) pair; Seq is the session-wide monotonic submission
// order, used for display tie-breaks only.
type Answer struct {
	ParticipantID string    `json:"participantId"`
	QuestionID    string    `json:"questionId"`
	Selected      OptionKey `json:"selected"`
	Seq           uint64    `json:"seq"`
	SubmittedAt   time.Time `json:"submittedAt"`
}

// RankingEntry is a snapshot-friendly view of a participant's standing.
type RankingEntry struct {
	Nickname   string `json:"nickname"`
	TotalScore int    `json:"totalScore"`
}

// Snapshot is an immutable point-in-time view of a session, published to
// subscribers on every committed transition. Ranking is populated only while
// it is visible to participants (showing_ranking or ended).
type Snapshot struct {
	SessionID     string         `json:"sessionId"`
	TestID        string         `json:"testId"`
	Status        Status         `json:"status"`
	Phase         Phase          `json:"phase"`
	CurrentIndex  int            `json:"currentIndex"`
	Participants  int            `json:"participants"`
	AnsweredCount int            `json:"answeredCount"`
	Ranking       []RankingEntry `json:"ranking,omitempty"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

// QuestionView is the participant-facing projection of the current question;
// the correct key and competition flag are never exposed through it.
type QuestionView struct {
	ID         string               `json:"id"`
	OrderIndex int                  `json:"orderIndex"`
	Statement  string               `json:"statement"`
	Options    map[OptionKey]string `json:"options"`
}

// View projects a question for participants.
func (q Question) View() QuestionView {
	opts := make(map[OptionKey]string, len(q.Options))
	for k, v := range q.Options {
		opts[k] = v
	}
	return QuestionView{
		ID:         q.ID,
		OrderIndex: q.OrderIndex,
		Statement:  q.Statement,
		Options:    opts,
	}
}
