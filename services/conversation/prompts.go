package conversation

import "tripbot/models"

// Prompt kinds returned by the conversation service. The transport layer
// decides how each kind is rendered (text, inline keyboard, and so on).
const (
	PromptMenu         = "menu"
	PromptAsk          = "ask"
	PromptOffers       = "offers"
	PromptMethods      = "payment_methods"
	PromptInstructions = "payment_instructions"
	PromptCancelled    = "cancelled"
	PromptAlertCreated = "alert_created"
)

// Prompt is the machine's answer to a user input: what to show next.
type Prompt struct {
	Kind   string
	Flow   string
	Field  string            // criteria field being asked for, for PromptAsk
	Error  string            // validation reason when re-asking
	Args   map[string]string // kind specific extras
	Offers []models.Offer    // populated for PromptOffers
}

func askPrompt(flow, field string) *Prompt {
	return &Prompt{Kind: PromptAsk, Flow: flow, Field: field}
}

func retryPrompt(flow, field, reason string) *Prompt {
	return &Prompt{Kind: PromptAsk, Flow: flow, Field: field, Error: reason}
}
