package app

import (
	"sort"
	"sync"
	"time"

	"aula-quiz-service/internal/domain"
)

// Session is the serialization point for one live quiz: every host command,
// join, answer submission, score recomputation and snapshot publication for
// the session goes through its mutex, one at a time. Sessions never share
// mutable state with each other.
type Session struct {
	id      string
	test    domain.Test
	hostKey string
	points  int
	now     func() time.Time

	mu           sync.RWMutex
	status       domain.Status
	phase        domain.Phase
	currentIndex int
	seq          uint64
	participants map[string]*domain.Participant
	nicknames    map[string]string
	answers      map[answerKey]domain.Answer
	scored       map[string]struct{}
	subscribers  map[chan domain.Snapshot]struct{}
}

type answerKey struct {
	participantID string
	questionID    string
}

// NewSession creates a session over an immutable test value. points is the
// score awarded per correct answer on a competition question.
func NewSession(id string, test domain.Test, hostKey string, points int) *Session {
	return NewSessionWithClock(id, test, hostKey, points, time.Now)
}

// NewSessionWithClock is test-only for deterministic timestamps.
func NewSessionWithClock(id string, test domain.Test, hostKey string, points int, now func() time.Time) *Session {
	if points <= 0 {
		points = 1000
	}
	return &Session{
		id:           id,
		test:         test,
		hostKey:      hostKey,
		points:       points,
		now:          now,
		status:       domain.StatusActive,
		phase:        domain.PhaseIdle,
		participants: make(map[string]*domain.Participant),
		nicknames:    make(map[string]string),
		answers:      make(map[answerKey]domain.Answer),
		scored:       make(map[string]struct{}),
		subscribers:  make(map[chan domain.Snapshot]struct{}),
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// TestID returns the id of the test being played.
func (s *Session) TestID() string { return s.test.ID }

// Join registers a participant. Nicknames are unique per session,
// case-sensitive, and participants are never removed once joined.
func (s *Session) Join(participantID, nickname string) (domain.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.nicknames[nickname]; taken {
		return domain.Participant{}, domain.ErrDuplicateNickname
	}
	p := &domain.Participant{
		ID:       participantID,
		Nickname: nickname,
		JoinedAt: s.now(),
	}
	s.participants[participantID] = p
	s.nicknames[nickname] = participantID
	s.broadcastLocked()
	return *p, nil
}

// Submit records an answer for the currently open question. Exactly one
// answer is ever stored per (participant, question) pair; a duplicate fails
// with ErrAlreadyAnswered and leaves the original untouched.
func (s *Session) Submit(participantID, questionID string, selected domain.OptionKey) (domain.Answer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == domain.StatusEnded || s.phase != domain.PhaseOpen {
		return domain.Answer{}, domain.ErrInvalidTransition
	}
	if !selected.Valid() {
		return domain.Answer{}, domain.ErrInvalidOption
	}
	if _, ok := s.participants[participantID]; !ok {
		return domain.Answer{}, domain.ErrParticipantNotFound
	}
	current, ok := s.test.QuestionAt(s.currentIndex)
	if !ok || current.ID != questionID {
		return domain.Answer{}, domain.ErrQuestionNotFound
	}

	key := answerKey{participantID: participantID, questionID: questionID}
	if _, dup := s.answers[key]; dup {
		return domain.Answer{}, domain.ErrAlreadyAnswered
	}

	s.seq++
	answer := domain.Answer{
		ParticipantID: participantID,
		QuestionID:    questionID,
		Selected:      selected,
		Seq:           s.seq,
		SubmittedAt:   s.now(),
	}
	s.answers[key] = answer
	s.broadcastLocked()
	return answer, nil
}

// OpenQuestion makes the current question visible and starts accepting
// answers for it.
func (s *Session) OpenQuestion(hostKey string) (domain.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.authorizeLocked(hostKey); err != nil {
		return domain.Snapshot{}, err
	}
	if s.status == domain.StatusEnded || s.phase == domain.PhaseOpen {
		return domain.Snapshot{}, domain.ErrInvalidTransition
	}
	if _, ok := s.test.QuestionAt(s.currentIndex); !ok {
		return domain.Snapshot{}, domain.ErrNoCurrentQuestion
	}
	s.phase = domain.PhaseOpen
	return s.broadcastLocked(), nil
}

// CloseQuestion freezes the answer window and scores the question just
// closed. Answers arriving after this point are rejected until the host
// reopens the question.
func (s *Session) CloseQuestion(hostKey string) (domain.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.authorizeLocked(hostKey); err != nil {
		return domain.Snapshot{}, err
	}
	if s.status == domain.StatusEnded || s.phase != domain.PhaseOpen {
		return domain.Snapshot{}, domain.ErrInvalidTransition
	}
	s.phase = domain.PhaseShowingRanking
	if q, ok := s.test.QuestionAt(s.currentIndex); ok {
		s.scored[q.ID] = struct{}{}
		s.recomputeScoresLocked()
	}
	return s.broadcastLocked(), nil
}

// NextQuestion advances past the current question. Forbidden while the
// question is open: closing first keeps in-flight answers attached to the
// question they were submitted for.
func (s *Session) NextQuestion(hostKey string) (domain.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.authorizeLocked(hostKey); err != nil {
		return domain.Snapshot{}, err
	}
	if s.status == domain.StatusEnded || s.phase == domain.PhaseOpen {
		return domain.Snapshot{}, domain.ErrInvalidTransition
	}
	s.currentIndex++
	s.phase = domain.PhaseIdle
	return s.broadcastLocked(), nil
}

// EndSession terminates the session. Idempotent: ending an ended session is
// a no-op, not an error.
func (s *Session) EndSession(hostKey string) (domain.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.authorizeLocked(hostKey); err != nil {
		return domain.Snapshot{}, err
	}
	if s.status == domain.StatusEnded {
		return s.snapshotLocked(), nil
	}
	s.status = domain.StatusEnded
	return s.broadcastLocked(), nil
}

// Snapshot returns the current committed state. Safe to call concurrently
// with the serialized writer.
func (s *Session) Snapshot() domain.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// CurrentQuestion returns the participant view of the question at the current
// index, or ErrNoCurrentQuestion past the end of the test.
func (s *Session) CurrentQuestion() (domain.QuestionView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.test.QuestionAt(s.currentIndex)
	if !ok {
		return domain.QuestionView{}, domain.ErrNoCurrentQuestion
	}
	return q.View(), nil
}

// Ranking returns up to limit participants ordered by total score descending,
// nickname ascending on ties. It is recomputed from participant totals on
// every call, never cached.
func (s *Session) Ranking(limit int) []domain.RankingEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rankingLocked(limit)
}

// Subscribe returns a channel receiving a snapshot on every committed
// transition, primed with the current state. The caller must invoke cancel to
// avoid leaks. A full subscriber buffer drops the oldest snapshot: consumers
// treat snapshots as replacements, so only the newest matters.
func (s *Session) Subscribe() (<-chan domain.Snapshot, func()) {
	ch := make(chan domain.Snapshot, 8)

	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	initial := s.snapshotLocked()
	s.mu.Unlock()

	ch <- initial

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *Session) authorizeLocked(hostKey string) error {
	if hostKey == "" || hostKey != s.hostKey {
		return domain.ErrUnauthorized
	}
	return nil
}

// recomputeScoresLocked rebuilds every total from the recorded answers of
// all questions closed so far. Rebuilding instead of incrementing keeps a
// reopened and re-closed question from counting twice, and picks up answers
// accepted during a reopened window. Non-competition questions never touch
// totals.
func (s *Session) recomputeScoresLocked() {
	correct := make(map[string]domain.OptionKey, len(s.scored))
	for _, q := range s.test.Questions {
		if _, closed := s.scored[q.ID]; closed && q.Competition {
			correct[q.ID] = q.Correct
		}
	}
	for _, p := range s.participants {
		p.TotalScore = 0
	}
	for key, answer := range s.answers {
		want, scorable := correct[key.questionID]
		if !scorable || answer.Selected != want {
			continue
		}
		if p, ok := s.participants[key.participantID]; ok {
			p.TotalScore += s.points
		}
	}
}

func (s *Session) rankingLocked(limit int) []domain.RankingEntry {
	entries := make([]domain.RankingEntry, 0, len(s.participants))
	for _, p := range s.participants {
		entries = append(entries, domain.RankingEntry{
			Nickname:   p.Nickname,
			TotalScore: p.TotalScore,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].TotalScore != entries[j].TotalScore {
			return entries[i].TotalScore > entries[j].TotalScore
		}
		return entries[i].Nickname < entries[j].Nickname
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}

func (s *Session) snapshotLocked() domain.Snapshot {
	snap := domain.Snapshot{
		SessionID:    s.id,
		TestID:       s.test.ID,
		Status:       s.status,
		Phase:        s.phase,
		CurrentIndex: s.currentIndex,
		Participants: len(s.participants),
		UpdatedAt:    s.now(),
	}
	if q, ok := s.test.QuestionAt(s.currentIndex); ok {
		for key := range s.answers {
			if key.questionID == q.ID {
				snap.AnsweredCount++
			}
		}
	}
	if s.phase == domain.PhaseShowingRanking || s.status == domain.StatusEnded {
		snap.Ranking = s.rankingLocked(0)
	}
	return snap
}

func (s *Session) broadcastLocked() domain.Snapshot {
	snap := s.snapshotLocked()
	for ch := range s.subscribers {
		select {
		case ch <- snap:
		default:
			// Dropping the stale snapshot keeps a slow subscriber from
			// blocking the session's critical path.
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
	return snap
}
