// Package authoring turns the host-submitted block text format into question
// records. It is a pure adapter in front of the session core.
package authoring

import (
	"fmt"
	"regexp"
	"strings"

	"aula-quiz-service/internal/domain"
)

// Block format, blocks separated by blank lines:
//
//	statement
//	A) option text
//	B) option text
//	C) option text
//	D) option text
//	CORRECT=B
//	COMPETITION=true|false
//
// COMPETITION is optional and defaults to true.
var (
	optionRe      = regexp.MustCompile(`(?i)^([ABCD])\)\s*(.+)$`)
	correctRe     = regexp.MustCompile(`(?i)^CORRECT\s*=\s*([ABCD])$`)
	competitionRe = regexp.MustCompile(`(?i)^COMPETITION\s*=\s*(true|false)$`)
	blockSplitRe  = regexp.MustCompile(`\n\s*\n`)
)

// ParseQuestions parses block text into ordered questions. Question IDs are
// left empty; the caller assigns them when the test is persisted.
func ParseQuestions(text string) ([]domain.Question, error) {
	blocks := blockSplitRe.Split(text, -1)

	var questions []domain.Question
	for _, block := range blocks {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		q, err := parseBlock(block)
		if err != nil {
			return nil, fmt.Errorf("question %d: %w", len(questions)+1, err)
		}
		q.OrderIndex = len(questions)
		questions = append(questions, q)
	}
	if len(questions) == 0 {
		return nil, fmt.Errorf("no question blocks found")
	}
	return questions, nil
}

func parseBlock(block string) (domain.Question, error) {
	var lines []string
	for _, l := range strings.Split(block, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}

	q := domain.Question{
		Statement:   lines[0],
		Options:     make(map[domain.OptionKey]string, 4),
		Competition: true,
	}

	for _, line := range lines[1:] {
		if m := optionRe.FindStringSubmatch(line); m != nil {
			q.Options[domain.OptionKey(strings.ToUpper(m[1]))] = strings.TrimSpace(m[2])
			continue
		}
		if m := correctRe.FindStringSubmatch(line); m != nil {
			q.Correct = domain.OptionKey(strings.ToUpper(m[1]))
			continue
		}
		if m := competitionRe.FindStringSubmatch(line); m != nil {
			q.Competition = strings.EqualFold(m[1], "true")
			continue
		}
	}

	if q.Statement == "" {
		return domain.Question{}, fmt.Errorf("missing statement")
	}
	for _, key := range domain.OptionKeys {
		if q.Options[key] == "" {
			return domain.Question{}, fmt.Errorf("missing option %s)", key)
		}
	}
	if q.Correct == "" {
		return domain.Question{}, fmt.Errorf("missing CORRECT= directive")
	}
	return q, nil
}
