package keystore

import (
	"context"
	"sync"
)

// PasswordSource is a capability that produces the store password on demand.
// It may block, for instance while a user is typing, and should return once
// ctx is done. A source that was dismissed by the user returns
// ErrPasswordCancelled.
//
// The returned slice is handed over to the store, which zeroes it once the
// session it unlocked is released.
type PasswordSource interface {
	Password(ctx context.Context) ([]byte, error)
}

// PasswordFunc is an adapter that allows a plain function to be used as a
// PasswordSource.
type PasswordFunc func(ctx context.Context) ([]byte, error)

// Password calls f(ctx).
func (f PasswordFunc) Password(ctx context.Context) ([]byte, error) {
	return f(ctx)
}

// StaticPassword is a PasswordSource that always answers with the same
// password.
type StaticPassword []byte

// Password returns a fresh copy of the static password.
func (s StaticPassword) Password(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pw := make([]byte, len(s))
	copy(pw, s)

	return pw, nil
}

// ScriptedPasswords answers a fixed sequence of prompts. A nil entry stands
// for a cancelled prompt. Once the script is exhausted every further prompt
// is cancelled.
type ScriptedPasswords struct {
	mu      sync.Mutex
	answers [][]byte
	asked   int
}

// NewScriptedPasswords returns a source that replays answers in order.
func NewScriptedPasswords(answers ...string) *ScriptedPasswords {
	s := &ScriptedPasswords{}
	for _, answer := range answers {
		s.answers = append(s.answers, []byte(answer))
	}

	return s
}

// Cancel appends a cancelled prompt to the script.
func (s *ScriptedPasswords) Cancel() *ScriptedPasswords {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.answers = append(s.answers, nil)

	return s
}

// Asked returns how many prompts have been answered so far.
func (s *ScriptedPasswords) Asked() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.asked
}

// Password returns the next scripted answer.
func (s *ScriptedPasswords) Password(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.asked >= len(s.answers) {
		s.asked++
		return nil, ErrPasswordCancelled
	}

	answer := s.answers[s.asked]
	s.asked++

	if answer == nil {
		return nil, ErrPasswordCancelled
	}

	pw := make([]byte, len(answer))
	copy(pw, answer)

	return pw, nil
}
