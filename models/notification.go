package models

// Notification kinds routed through the dispatcher.
const (
	NoteBookingConfirmed = "booking_confirmed"
	NotePaymentFailed    = "payment_failed"
	NotePriceAlert       = "price_alert"
	NoteTripReminder     = "trip_reminder"
	NoteSessionTimeout   = "session_timeout"
)

// Notification is a message headed for a user's chat. Delivery is
// best effort: a drop is logged and counted, never bubbled back into
// booking or alert state.
type Notification struct {
	UserID int64          `json:"user_id"`
	Kind   string         `json:"kind"`
	Title  string         `json:"title"`
	Body   string         `json:"body"`
	Data   map[string]any `json:"data,omitempty"`
}
