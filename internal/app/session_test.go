package app_test

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"aula-quiz-service/internal/app"
	"aula-quiz-service/internal/domain"
)

const hostKey = "host-secret"

func twoQuestionTest() domain.Test {
	return domain.Test{
		ID:    "test-1",
		Title: "Demo Test",
		Questions: []domain.Question{
			{
				ID:         "q1",
				OrderIndex: 0,
				Statement:  "¿2+2?",
				Options: map[domain.OptionKey]string{
					domain.OptionA: "3", domain.OptionB: "4", domain.OptionC: "5", domain.OptionD: "22",
				},
				Correct:     domain.OptionB,
				Competition: true,
			},
			{
				ID:         "q2",
				OrderIndex: 1,
				Statement:  "Capital de España",
				Options: map[domain.OptionKey]string{
					domain.OptionA: "Sevilla", domain.OptionB: "Madrid", domain.OptionC: "Barcelona", domain.OptionD: "Valencia",
				},
				Correct:     domain.OptionB,
				Competition: true,
			},
		},
	}
}

func newTestSession(t *testing.T) *app.Session {
	t.Helper()
	return app.NewSessionWithClock("sess-1", twoQuestionTest(), hostKey, 1000, time.Now)
}

func join(t *testing.T, s *app.Session, id, nick string) {
	t.Helper()
	if _, err := s.Join(id, nick); err != nil {
		t.Fatalf("join %s: %v", nick, err)
	}
}

func TestScenarioTwoParticipantsOneCorrect(t *testing.T) {
	s := newTestSession(t)
	join(t, s, "p-ana", "Ana")
	join(t, s, "p-bo", "Bo")

	if _, err := s.OpenQuestion(hostKey); err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := s.Submit("p-ana", "q1", domain.OptionB); err != nil {
		t.Fatalf("ana submit: %v", err)
	}
	if _, err := s.Submit("p-bo", "q1", domain.OptionA); err != nil {
		t.Fatalf("bo submit: %v", err)
	}

	snap, err := s.CloseQuestion(hostKey)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if snap.Phase != domain.PhaseShowingRanking {
		t.Fatalf("expected showing_ranking, got %s", snap.Phase)
	}
	want := []domain.RankingEntry{{Nickname: "Ana", TotalScore: 1000}, {Nickname: "Bo", TotalScore: 0}}
	if len(snap.Ranking) != 2 || snap.Ranking[0] != want[0] || snap.Ranking[1] != want[1] {
		t.Fatalf("unexpected ranking: %+v", snap.Ranking)
	}
}

func TestDuplicateSubmissionRejected(t *testing.T) {
	s := newTestSession(t)
	join(t, s, "p-bo", "Bo")
	if _, err := s.OpenQuestion(hostKey); err != nil {
		t.Fatalf("open: %v", err)
	}

	if _, err := s.Submit("p-bo", "q1", domain.OptionB); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if _, err := s.Submit("p-bo", "q1", domain.OptionA); !errors.Is(err, domain.ErrAlreadyAnswered) {
		t.Fatalf("expected ErrAlreadyAnswered, got %v", err)
	}

	// The original answer stands: Bo scores for the correct first pick.
	if _, err := s.CloseQuestion(hostKey); err != nil {
		t.Fatalf("close: %v", err)
	}
	ranking := s.Ranking(0)
	if ranking[0].Nickname != "Bo" || ranking[0].TotalScore != 1000 {
		t.Fatalf("expected Bo with 1000, got %+v", ranking[0])
	}
}

func TestConcurrentDuplicateSubmissionsAcceptExactlyOne(t *testing.T) {
	s := newTestSession(t)
	join(t, s, "p-bo", "Bo")
	if _, err := s.OpenQuestion(hostKey); err != nil {
		t.Fatalf("open: %v", err)
	}

	const attempts = 32
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Submit("p-bo", "q1", domain.OptionB)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	accepted, rejected := 0, 0
	for err := range results {
		switch {
		case err == nil:
			accepted++
		case errors.Is(err, domain.ErrAlreadyAnswered):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if accepted != 1 || rejected != attempts-1 {
		t.Fatalf("expected exactly one acceptance, got accepted=%d rejected=%d", accepted, rejected)
	}
}

func TestSubmissionAfterCloseNeverScored(t *testing.T) {
	s := newTestSession(t)
	join(t, s, "p-ana", "Ana")
	if _, err := s.OpenQuestion(hostKey); err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := s.CloseQuestion(hostKey); err != nil {
		t.Fatalf("close: %v", err)
	}

	if _, err := s.Submit("p-ana", "q1", domain.OptionB); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected late submit rejected, got %v", err)
	}
	if s.Ranking(0)[0].TotalScore != 0 {
		t.Fatalf("late submission affected the score")
	}
}

func TestReopenedQuestionScoresExactlyOnce(t *testing.T) {
	s := newTestSession(t)
	join(t, s, "p-ana", "Ana")
	join(t, s, "p-bo", "Bo")

	if _, err := s.OpenQuestion(hostKey); err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := s.Submit("p-ana", "q1", domain.OptionB); err != nil {
		t.Fatalf("ana submit: %v", err)
	}
	if _, err := s.CloseQuestion(hostKey); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Reopen the same question; Bo answers during the second window.
	if _, err := s.OpenQuestion(hostKey); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if _, err := s.Submit("p-bo", "q1", domain.OptionB); err != nil {
		t.Fatalf("bo submit: %v", err)
	}
	if _, err := s.CloseQuestion(hostKey); err != nil {
		t.Fatalf("second close: %v", err)
	}

	ranking := s.Ranking(0)
	for _, entry := range ranking {
		if entry.TotalScore != 1000 {
			t.Fatalf("expected both at 1000 after reopen cycle, got %+v", ranking)
		}
	}
}

func TestNextQuestionForbiddenWhileOpen(t *testing.T) {
	s := newTestSession(t)
	if _, err := s.OpenQuestion(hostKey); err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := s.NextQuestion(hostKey); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if snap := s.Snapshot(); snap.Phase != domain.PhaseOpen || snap.CurrentIndex != 0 {
		t.Fatalf("state changed by rejected command: %+v", snap)
	}
}

func TestAdvancingPastLastQuestion(t *testing.T) {
	s := newTestSession(t)

	for i := 0; i < 2; i++ {
		if _, err := s.OpenQuestion(hostKey); err != nil {
			t.Fatalf("open q%d: %v", i+1, err)
		}
		if _, err := s.CloseQuestion(hostKey); err != nil {
			t.Fatalf("close q%d: %v", i+1, err)
		}
		if _, err := s.NextQuestion(hostKey); err != nil {
			t.Fatalf("next after q%d: %v", i+1, err)
		}
	}

	snap := s.Snapshot()
	if snap.Phase != domain.PhaseIdle || snap.CurrentIndex != 2 {
		t.Fatalf("expected idle past the end, got %+v", snap)
	}
	if _, err := s.CurrentQuestion(); !errors.Is(err, domain.ErrNoCurrentQuestion) {
		t.Fatalf("expected ErrNoCurrentQuestion, got %v", err)
	}
	if _, err := s.OpenQuestion(hostKey); !errors.Is(err, domain.ErrNoCurrentQuestion) {
		t.Fatalf("expected open past the end rejected, got %v", err)
	}
}

func TestEndSessionIsIdempotent(t *testing.T) {
	s := newTestSession(t)
	if _, err := s.EndSession(hostKey); err != nil {
		t.Fatalf("end: %v", err)
	}
	snap, err := s.EndSession(hostKey)
	if err != nil {
		t.Fatalf("second end should be a no-op, got %v", err)
	}
	if snap.Status != domain.StatusEnded {
		t.Fatalf("expected ended, got %s", snap.Status)
	}

	// All other commands are rejected after end.
	if _, err := s.OpenQuestion(hostKey); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected open rejected after end, got %v", err)
	}
	if _, err := s.NextQuestion(hostKey); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected next rejected after end, got %v", err)
	}
}

func TestHostKeyMismatchLeavesStateUntouched(t *testing.T) {
	s := newTestSession(t)
	for _, call := range []func(string) (domain.Snapshot, error){
		s.OpenQuestion, s.CloseQuestion, s.NextQuestion, s.EndSession,
	} {
		if _, err := call("wrong-key"); !errors.Is(err, domain.ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
	}
	snap := s.Snapshot()
	if snap.Phase != domain.PhaseIdle || snap.Status != domain.StatusActive || snap.CurrentIndex != 0 {
		t.Fatalf("rejected commands mutated state: %+v", snap)
	}
}

func TestDuplicateNickname(t *testing.T) {
	s := newTestSession(t)
	join(t, s, "p1", "Ana")
	if _, err := s.Join("p2", "Ana"); !errors.Is(err, domain.ErrDuplicateNickname) {
		t.Fatalf("expected ErrDuplicateNickname, got %v", err)
	}
	// Case-sensitive: "ana" is a different nickname.
	if _, err := s.Join("p3", "ana"); err != nil {
		t.Fatalf("lowercase variant should be accepted: %v", err)
	}
}

func TestRankingTieBreaksByNickname(t *testing.T) {
	s := newTestSession(t)
	join(t, s, "p-zoe", "Zoe")
	join(t, s, "p-ana", "Ana")
	join(t, s, "p-bo", "Bo")

	if _, err := s.OpenQuestion(hostKey); err != nil {
		t.Fatalf("open: %v", err)
	}
	// Zoe answers correct in submission order before Ana; ties still sort by nickname.
	for _, c := range []struct {
		id  string
		opt domain.OptionKey
	}{{"p-zoe", domain.OptionB}, {"p-ana", domain.OptionB}, {"p-bo", domain.OptionA}} {
		if _, err := s.Submit(c.id, "q1", c.opt); err != nil {
			t.Fatalf("submit %s: %v", c.id, err)
		}
	}
	if _, err := s.CloseQuestion(hostKey); err != nil {
		t.Fatalf("close: %v", err)
	}

	ranking := s.Ranking(0)
	got := []string{ranking[0].Nickname, ranking[1].Nickname, ranking[2].Nickname}
	if got[0] != "Ana" || got[1] != "Zoe" || got[2] != "Bo" {
		t.Fatalf("unexpected order: %v", got)
	}
	if limited := s.Ranking(2); len(limited) != 2 {
		t.Fatalf("expected ranking capped at 2, got %d", len(limited))
	}
}

func TestNonCompetitionQuestionNeverScores(t *testing.T) {
	test := twoQuestionTest()
	test.Questions[0].Competition = false
	s := app.NewSession("sess-nc", test, hostKey, 1000)
	join(t, s, "p-ana", "Ana")

	if _, err := s.OpenQuestion(hostKey); err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := s.Submit("p-ana", "q1", domain.OptionB); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := s.CloseQuestion(hostKey); err != nil {
		t.Fatalf("close: %v", err)
	}
	if s.Ranking(0)[0].TotalScore != 0 {
		t.Fatalf("non-competition question affected the score")
	}
}

func TestSubmitPreconditions(t *testing.T) {
	s := newTestSession(t)
	join(t, s, "p-ana", "Ana")

	// Phase idle: no window open yet.
	if _, err := s.Submit("p-ana", "q1", domain.OptionB); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected submit rejected while idle, got %v", err)
	}

	if _, err := s.OpenQuestion(hostKey); err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := s.Submit("p-ghost", "q1", domain.OptionB); !errors.Is(err, domain.ErrParticipantNotFound) {
		t.Fatalf("expected ErrParticipantNotFound, got %v", err)
	}
	if _, err := s.Submit("p-ana", "q2", domain.OptionB); !errors.Is(err, domain.ErrQuestionNotFound) {
		t.Fatalf("expected ErrQuestionNotFound for stale question id, got %v", err)
	}
	if _, err := s.Submit("p-ana", "q1", "E"); !errors.Is(err, domain.ErrInvalidOption) {
		t.Fatalf("expected ErrInvalidOption, got %v", err)
	}
}

func TestCurrentIndexNonDecreasingUnderConcurrentReads(t *testing.T) {
	s := newTestSession(t)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	var indexes []int

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				indexes = append(indexes, s.Snapshot().CurrentIndex)
			}
		}
	}()

	for i := 0; i < 4; i++ {
		_, _ = s.OpenQuestion(hostKey)
		_, _ = s.CloseQuestion(hostKey)
		_, _ = s.NextQuestion(hostKey)
	}
	close(stop)
	wg.Wait()

	last := -1
	for _, idx := range indexes {
		if idx < last {
			t.Fatalf("current index decreased: %d after %d", idx, last)
		}
		last = idx
	}
}

func TestSubscribeReceivesCommittedSnapshots(t *testing.T) {
	s := newTestSession(t)
	ch, cancel := s.Subscribe()
	defer cancel()

	initial := <-ch
	if initial.Phase != domain.PhaseIdle || initial.Participants != 0 {
		t.Fatalf("unexpected initial snapshot: %+v", initial)
	}

	join(t, s, "p-ana", "Ana")
	snap := <-ch
	if snap.Participants != 1 {
		t.Fatalf("expected join snapshot, got %+v", snap)
	}

	if _, err := s.OpenQuestion(hostKey); err != nil {
		t.Fatalf("open: %v", err)
	}
	snap = <-ch
	if snap.Phase != domain.PhaseOpen {
		t.Fatalf("expected open snapshot, got %+v", snap)
	}
	if snap.Ranking != nil {
		t.Fatalf("ranking must be hidden while the question is open")
	}
}

func TestSlowSubscriberDropsOldestSnapshotOnly(t *testing.T) {
	s := newTestSession(t)
	ch, cancel := s.Subscribe()
	defer cancel()

	// Never read: overflow the buffer so the writer exercises drop-oldest.
	for i := 0; i < 40; i++ {
		join(t, s, fmt.Sprintf("p-%d", i), fmt.Sprintf("nick-%d", i))
	}

	var latest domain.Snapshot
	for {
		select {
		case snap := <-ch:
			latest = snap
			continue
		default:
		}
		break
	}
	if latest.Participants != 40 {
		t.Fatalf("expected newest snapshot to survive, got %+v", latest)
	}
}
