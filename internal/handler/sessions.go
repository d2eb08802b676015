// Package handler provides Telegram bot message and callback handlers.
package handler

import (
	"sync"

	"promo-code-bot/internal/model"
)

// State is a participant's position in the registration flow.
type State string

const (
	StateIdle          State = ""
	StateRegisterName  State = "register_name"
	StateRegisterPhone State = "register_phone"
)

// UploadMode selects the target population of an admin upload.
type UploadMode string

const (
	UploadNone    UploadMode = ""
	UploadCodes   UploadMode = "upload_codes"
	UploadWinners UploadMode = "upload_winners"
)

// Session is the per-user transport state: the registration step for
// participants, the pending upload target for admins. It is resolved once
// per update and passed around as a value, never mutated in place.
type Session struct {
	State State
	Mode  UploadMode
	Tier  model.Tier
	Month string
}

// Sessions is a concurrency-safe session store keyed by Telegram ID.
type Sessions struct {
	mu sync.RWMutex
	m  map[int64]Session
}

// NewSessions creates an empty session store.
func NewSessions() *Sessions {
	return &Sessions{m: make(map[int64]Session)}
}

// Get returns a snapshot of the user's session.
func (s *Sessions) Get(userID int64) Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.m[userID]
}

// Set stores the user's session.
func (s *Sessions) Set(userID int64, sess Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[userID] = sess
}

// Reset clears the user's session.
func (s *Sessions) Reset(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, userID)
}
