package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"aula-quiz-service/internal/authoring"
	"aula-quiz-service/internal/domain"
)

// SessionRepository abstracts how live sessions are stored (in-memory, Redis-backed, etc).
type SessionRepository interface {
	Put(session *Session)
	Get(sessionID string) (*Session, bool)
}

// TestRepository loads test content (from cache/backing store).
type TestRepository interface {
	GetTest(ctx context.Context, testID string) (domain.Test, error)
}

// TestSaver persists newly authored tests.
type TestSaver interface {
	SaveTest(ctx context.Context, test domain.Test) error
}

// ShortLinkRepository is the immutable slug -> session mapping created at
// session creation time.
type ShortLinkRepository interface {
	Create(ctx context.Context, slug, sessionID string) error
	Resolve(ctx context.Context, slug string) (string, error)
}

// Options tune scoring and ranking reads.
type Options struct {
	// PointsPerQuestion is awarded per correct answer on a competition
	// question. Defaults to 1000.
	PointsPerQuestion int
	// RankingLimit caps ranking reads. Defaults to 50.
	RankingLimit int
	// SlugLength is the short link slug length. Defaults to 6.
	SlugLength int
}

func (o Options) withDefaults() Options {
	if o.PointsPerQuestion <= 0 {
		o.PointsPerQuestion = 1000
	}
	if o.RankingLimit <= 0 {
		o.RankingLimit = 50
	}
	if o.SlugLength <= 0 {
		o.SlugLength = 6
	}
	return o
}

// QuizService contains the host- and participant-facing use cases.
type QuizService struct {
	sessions SessionRepository
	tests    TestRepository
	catalog  TestSaver
	links    ShortLinkRepository
	opts     Options
	log      *zap.Logger
}

func NewQuizService(sessions SessionRepository, tests TestRepository, catalog TestSaver, links ShortLinkRepository, opts Options, log *zap.Logger) *QuizService {
	if log == nil {
		log = zap.NewNop()
	}
	return &QuizService{
		sessions: sessions,
		tests:    tests,
		catalog:  catalog,
		links:    links,
		opts:     opts.withDefaults(),
		log:      log,
	}
}

// CreateTest parses block text into questions and persists the test.
func (s *QuizService) CreateTest(ctx context.Context, title, blockText string) (string, error) {
	questions, err := authoring.ParseQuestions(blockText)
	if err != nil {
		return "", fmt.Errorf("parse questions: %w", err)
	}
	test := domain.Test{
		ID:        uuid.NewString(),
		Title:     title,
		Questions: questions,
	}
	for i := range test.Questions {
		test.Questions[i].ID = uuid.NewString()
	}
	if err := s.catalog.SaveTest(ctx, test); err != nil {
		return "", fmt.Errorf("save test: %w", err)
	}
	s.log.Info("test created", zap.String("testId", test.ID), zap.Int("questions", len(questions)))
	return test.ID, nil
}

// CreatedSession is the one-time response to session creation. HostKey is
// never exposed again after this.
type CreatedSession struct {
	SessionID string `json:"sessionId"`
	HostKey   string `json:"hostKey"`
	Slug      string `json:"slug"`
}

// CreateSession starts a live session over a test. The test content is
// captured at this point and stays immutable for the session's lifetime.
func (s *QuizService) CreateSession(ctx context.Context, testID string) (CreatedSession, error) {
	test, err := s.tests.GetTest(ctx, testID)
	if err != nil {
		return CreatedSession{}, err
	}

	created := CreatedSession{
		SessionID: uuid.NewString(),
		HostKey:   uuid.NewString(),
	}
	session := NewSession(created.SessionID, test, created.HostKey, s.opts.PointsPerQuestion)
	s.sessions.Put(session)

	created.Slug, err = s.createShortLink(ctx, created.SessionID)
	if err != nil {
		return CreatedSession{}, err
	}

	s.log.Info("session created",
		zap.String("sessionId", created.SessionID),
		zap.String("testId", testID),
		zap.String("slug", created.Slug))
	return created, nil
}

// slugAlphabet avoids easily confused characters (no I, O, 0, 1).
const slugAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func (s *QuizService) createShortLink(ctx context.Context, sessionID string) (string, error) {
	for attempt := 0; attempt < 5; attempt++ {
		slug := s.randomSlug()
		err := s.links.Create(ctx, slug, sessionID)
		if err == nil {
			return slug, nil
		}
		if !errors.Is(err, domain.ErrSlugTaken) {
			return "", fmt.Errorf("create short link: %w", err)
		}
	}
	return "", fmt.Errorf("create short link: %w", domain.ErrSlugTaken)
}

func (s *QuizService) randomSlug() string {
	out := make([]byte, s.opts.SlugLength)
	for i := range out {
		out[i] = slugAlphabet[rand.Intn(len(slugAlphabet))]
	}
	return string(out)
}

// Resolve maps a short link slug to its session id.
func (s *QuizService) Resolve(ctx context.Context, slug string) (string, error) {
	return s.links.Resolve(ctx, slug)
}

// Join registers a participant in a session under a unique nickname.
func (s *QuizService) Join(_ context.Context, sessionID, nickname string) (domain.Participant, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return domain.Participant{}, domain.ErrSessionNotFound
	}
	return session.Join(uuid.NewString(), nickname)
}

// SubmitAnswer records an answer for the currently open question.
func (s *QuizService) SubmitAnswer(_ context.Context, sessionID, participantID, questionID string, selected domain.OptionKey) (domain.Answer, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return domain.Answer{}, domain.ErrSessionNotFound
	}
	return session.Submit(participantID, questionID, selected)
}

// HostCommand names a host control action.
type HostCommand string

const (
	CommandOpenQuestion  HostCommand = "open_question"
	CommandCloseQuestion HostCommand = "close_question"
	CommandNextQuestion  HostCommand = "next_question"
	CommandEndSession    HostCommand = "end_session"
)

// ApplyHostCommand validates the host key and applies a control command,
// returning the committed snapshot.
func (s *QuizService) ApplyHostCommand(_ context.Context, sessionID string, cmd HostCommand, hostKey string) (domain.Snapshot, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return domain.Snapshot{}, domain.ErrSessionNotFound
	}

	var (
		snap domain.Snapshot
		err  error
	)
	switch cmd {
	case CommandOpenQuestion:
		snap, err = session.OpenQuestion(hostKey)
	case CommandCloseQuestion:
		snap, err = session.CloseQuestion(hostKey)
	case CommandNextQuestion:
		snap, err = session.NextQuestion(hostKey)
	case CommandEndSession:
		snap, err = session.EndSession(hostKey)
	default:
		return domain.Snapshot{}, fmt.Errorf("unknown host command %q", cmd)
	}
	if errors.Is(err, domain.ErrUnauthorized) {
		s.log.Warn("host command rejected: bad host key",
			zap.String("sessionId", sessionID),
			zap.String("command", string(cmd)))
	}
	return snap, err
}

// GetSnapshot returns the session's current committed state. No auth: the
// snapshot never contains the host key or correct answers.
func (s *QuizService) GetSnapshot(_ context.Context, sessionID string) (domain.Snapshot, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return domain.Snapshot{}, domain.ErrSessionNotFound
	}
	return session.Snapshot(), nil
}

// GetCurrentQuestion returns the participant view of the question at the
// session's current index.
func (s *QuizService) GetCurrentQuestion(_ context.Context, sessionID string) (domain.QuestionView, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return domain.QuestionView{}, domain.ErrSessionNotFound
	}
	return session.CurrentQuestion()
}

// GetRanking returns the top entries, capped at the configured limit.
func (s *QuizService) GetRanking(_ context.Context, sessionID string, limit int) ([]domain.RankingEntry, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	if limit <= 0 || limit > s.opts.RankingLimit {
		limit = s.opts.RankingLimit
	}
	return session.Ranking(limit), nil
}

// Subscribe returns a channel of committed snapshots for a session.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *QuizService) Subscribe(_ context.Context, sessionID string) (<-chan domain.Snapshot, func(), error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return nil, nil, domain.ErrSessionNotFound
	}
	ch, cancel := session.Subscribe()
	return ch, cancel, nil
}
