package domain

import "errors"

var (
	// ErrUnauthorized is returned when a host command carries the wrong host key.
	ErrUnauthorized = errors.New("host key mismatch")
	// ErrInvalidTransition is returned when a command is illegal for the current phase or status.
	ErrInvalidTransition = errors.New("invalid transition for current session state")
	// ErrAlreadyAnswered is returned on a duplicate submission for the same question.
	ErrAlreadyAnswered = errors.New("participant already answered this question")
	// ErrDuplicateNickname is returned when a nickname is taken within the session.
	ErrDuplicateNickname = errors.New("nickname already taken in this session")
	// ErrSessionNotFound is returned for an unknown session id.
	ErrSessionNotFound = errors.New("session not found")
	// ErrParticipantNotFound is returned when a participant tries to act before joining.
	ErrParticipantNotFound = errors.New("participant not found in session")
	// ErrQuestionNotFound is returned when a submitted question id does not match the open question.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrNoCurrentQuestion indicates the session index is past the end of the test.
	ErrNoCurrentQuestion = errors.New("no question available")
	// ErrTestNotFound indicates the test content could not be loaded.
	ErrTestNotFound = errors.New("test not found")
	// ErrInvalidOption is returned for a selection outside A-D.
	ErrInvalidOption = errors.New("selected option must be A, B, C or D")
	// ErrSlugNotFound is returned when a short link slug resolves to nothing.
	ErrSlugNotFound = errors.New("short link not found")
	// ErrSlugTaken is returned when a generated slug collides; callers retry with a fresh one.
	ErrSlugTaken = errors.New("short link slug already in use")
)
