package models

import "time"

// Conversation states. A user with no stored session is idle.
const (
	StateCollectingCriteria = "collecting_criteria"
	StateAwaitingSelection  = "awaiting_selection"
	StateAwaitingPayment    = "awaiting_payment"
	StateConfirmed          = "confirmed"
	StateCancelled          = "cancelled"
	StateTimedOut           = "timed_out"
)

// Conversation flows.
const (
	FlowFlight = "flight"
	FlowHotel  = "hotel"
	FlowTour   = "tour"
	FlowAlert  = "alert"
)

// Session is the per-user conversation context between messages.
// It lives in Redis under the user's id and every mutation happens
// under that user's lock, so one message is processed at a time.
type Session struct {
	UserID     int64             `json:"user_id"`
	Flow       string            `json:"flow"`
	State      string            `json:"state"`
	Step       string            `json:"step"` // criteria field currently being collected
	Criteria   map[string]string `json:"criteria"`
	SnapshotID string            `json:"snapshot_id,omitempty"`
	BookingID  string            `json:"booking_id,omitempty"`
	StartedAt  time.Time         `json:"started_at"`
	UpdatedAt  time.Time         `json:"updated_at"` // idle-timeout clock
}

// Terminal reports whether the session has reached an end state.
func (s *Session) Terminal() bool {
	switch s.State {
	case StateConfirmed, StateCancelled, StateTimedOut:
		return true
	}
	return false
}
