package telegram

import (
	"fmt"
	"strings"

	"tripbot/models"
	"tripbot/services/conversation"
	"tripbot/services/currency"

	tele "gopkg.in/telebot.v4"
)

const somethingWrong = "Something went wrong on our side, please try again."

const welcomeText = `Welcome to Trip Ethiopia Bot! 🇪🇹

Book flights, hotels and tours, and track prices, right from Telegram.`

const helpText = `🧭 Trip Ethiopia Bot

Commands:
/start - Start the bot
/help - Show this help message
/language - Change language
/bookings - View your bookings
/alerts - Manage price alerts
/cancel - Cancel the current conversation
/stop - Pause your account

Questions? Write to support@tripbot.et`

const stoppedText = `Your account is paused and your history is kept.

Send /start whenever you want to come back.`

// questions maps criteria fields to the message asking for them.
var questions = map[string]string{
	"from_city":     "Which city are you flying from?",
	"to_city":       "Where are you flying to?",
	"depart_date":   "Departure date? (YYYY-MM-DD)",
	"return_date":   "Return date? (YYYY-MM-DD, or skip for one way)",
	"passengers":    "How many passengers?",
	"city":          "Which city will you stay in?",
	"checkin_date":  "Check-in date? (YYYY-MM-DD)",
	"checkout_date": "Check-out date? (YYYY-MM-DD)",
	"rooms":         "How many rooms?",
	"guests":        "How many guests?",
	"alert_type":    "Watch prices for flights or hotels?",
	"target_price":  "Tell me your target price in Birr. I will ping you when the cheapest option drops to it.",
}

func mainMenu() *tele.ReplyMarkup {
	m := &tele.ReplyMarkup{}
	m.InlineKeyboard = [][]tele.InlineButton{
		{*m.Data("✈️ Flights", cbFlow, models.FlowFlight).Inline(), *m.Data("🏨 Hotels", cbFlow, models.FlowHotel).Inline()},
		{*m.Data("🗺 Tours", cbFlow, models.FlowTour).Inline(), *m.Data("📋 My Bookings", cbMenu, "bookings").Inline()},
		{*m.Data("🔔 Price Alerts", cbMenu, "alerts").Inline(), *m.Data("🌐 Language", cbMenu, "language").Inline()},
		{*m.Data("❓ Help", cbMenu, "help").Inline()},
	}
	return m
}

func languageMenu() *tele.ReplyMarkup {
	m := &tele.ReplyMarkup{}
	m.InlineKeyboard = [][]tele.InlineButton{
		{*m.Data("🇬🇧 English", cbLang, models.LanguageEnglish).Inline()},
		{*m.Data("🇪🇹 አማርኛ (Amharic)", cbLang, models.LanguageAmharic).Inline()},
		{*m.Data("🇪🇹 Afaan Oromoo (Oromo)", cbLang, models.LanguageOromo).Inline()},
	}
	return m
}

func cancelRow(m *tele.ReplyMarkup) []tele.InlineButton {
	return []tele.InlineButton{*m.Data("❌ Cancel", cbCancel).Inline()}
}

// renderPrompt turns a conversation prompt into a message and keyboard.
func renderPrompt(p *conversation.Prompt) (string, *tele.ReplyMarkup) {
	switch p.Kind {
	case conversation.PromptAsk:
		return renderAsk(p)
	case conversation.PromptOffers:
		return renderOffers(p)
	case conversation.PromptMethods:
		return renderMethods(p)
	case conversation.PromptInstructions:
		return renderInstructions(p)
	case conversation.PromptCancelled:
		return "Cancelled. Anything else?", mainMenu()
	case conversation.PromptAlertCreated:
		text := fmt.Sprintf("🔔 Alert set! I am watching %s prices and will ping you when the cheapest option drops to %s or below.\nThe alert expires on %s.",
			p.Args["type"], p.Args["target"], p.Args["expires"])
		return text, mainMenu()
	}

	// Menu, and any kind a newer server might add.
	text := "What would you like to do?"
	if p.Error != "" {
		text = "⚠️ " + capitalize(p.Error) + "\n\n" + text
	}
	return text, mainMenu()
}

func renderAsk(p *conversation.Prompt) (string, *tele.ReplyMarkup) {
	question, ok := questions[p.Field]
	if !ok {
		question = "Please provide " + strings.ReplaceAll(p.Field, "_", " ") + "."
	}
	text := question
	if p.Error != "" {
		text = "⚠️ " + capitalize(p.Error) + "\n\n" + question
	}

	m := &tele.ReplyMarkup{}
	var rows [][]tele.InlineButton
	switch p.Field {
	case "return_date":
		rows = append(rows, []tele.InlineButton{*m.Data("One way, skip", cbAnswer, "skip").Inline()})
	case "alert_type":
		rows = append(rows, []tele.InlineButton{
			*m.Data("✈️ Flights", cbAnswer, models.KindFlight).Inline(),
			*m.Data("🏨 Hotels", cbAnswer, models.KindHotel).Inline(),
		})
	}
	rows = append(rows, cancelRow(m))
	m.InlineKeyboard = rows
	return text, m
}

func renderOffers(p *conversation.Prompt) (string, *tele.ReplyMarkup) {
	var sb strings.Builder
	if p.Error != "" {
		sb.WriteString("⚠️ " + capitalize(p.Error) + "\n\n")
	}
	sb.WriteString(offersHeader(p.Flow))
	sb.WriteString("\n")

	m := &tele.ReplyMarkup{}
	var rows [][]tele.InlineButton
	for i, offer := range p.Offers {
		sb.WriteString("\n")
		sb.WriteString(renderOffer(i+1, offer))
		label := fmt.Sprintf("%d. %s", i+1, truncate(offer.Title, 28))
		rows = append(rows, []tele.InlineButton{*m.Data(label, cbSelect, offer.ID).Inline()})
	}
	rows = append(rows, cancelRow(m))
	m.InlineKeyboard = rows
	return sb.String(), m
}

func offersHeader(flow string) string {
	switch flow {
	case models.FlowFlight:
		return "✈️ Here are the flights I found:"
	case models.FlowHotel:
		return "🏨 Here are the hotels I found:"
	case models.FlowTour:
		return "🗺 Here are our tour packages:"
	}
	return "Here is what I found:"
}

func renderOffer(n int, offer models.Offer) string {
	price := currency.FormatETB(offer.PriceETB)
	d := offer.Details

	switch offer.Kind {
	case models.KindFlight:
		stops := "nonstop"
		if d["stops"] != "" && d["stops"] != "0" {
			stops = d["stops"] + " stop(s)"
		}
		return fmt.Sprintf("%d. %s\n   %s → %s\n   departs %s, %s, %s\n   %s (%s)\n",
			n, offer.Title, d["from_city"], d["to_city"],
			clockTime(d["departure_time"]), d["duration"], stops, price, d["class"])
	case models.KindHotel:
		return fmt.Sprintf("%d. %s (★%s)\n   %s\n   %s. %s\n   %s\n",
			n, offer.Title, d["rating"], d["address"], d["room_type"], d["amenities"], price)
	case models.KindTour:
		return fmt.Sprintf("%d. %s (%s, %s days)\n   %s\n   Includes: %s\n   %s\n",
			n, offer.Title, d["category"], d["duration_days"], d["description"], d["includes"], price)
	}
	return fmt.Sprintf("%d. %s\n   %s\n", n, offer.Title, price)
}

func renderMethods(p *conversation.Prompt) (string, *tele.ReplyMarkup) {
	var sb strings.Builder
	if p.Error != "" {
		sb.WriteString("⚠️ " + capitalize(p.Error) + "\n\n")
	}
	fmt.Fprintf(&sb, "%s\nBooking reference: %s\nTotal: %s\n\nChoose a payment method:",
		p.Args["title"], p.Args["reference"], p.Args["amount"])

	m := &tele.ReplyMarkup{}
	m.InlineKeyboard = [][]tele.InlineButton{
		{*m.Data("📱 TeleBirr", cbPay, models.MethodTeleBirr).Inline()},
		{*m.Data("🏦 CBE Birr", cbPay, models.MethodCBEBirr).Inline()},
		cancelRow(m),
	}
	return sb.String(), m
}

func renderInstructions(p *conversation.Prompt) (string, *tele.ReplyMarkup) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "💳 Pay %s via %s\nTransaction ref: %s\n",
		p.Args["amount"], methodLabel(p.Args["method"]), p.Args["reference"])
	if p.Args["instructions"] != "" {
		sb.WriteString("\n" + p.Args["instructions"] + "\n")
	}
	if p.Args["payment_url"] != "" {
		sb.WriteString("\n" + p.Args["payment_url"] + "\n")
	}
	sb.WriteString("\nI will confirm here automatically once the payment lands.")

	m := &tele.ReplyMarkup{}
	m.InlineKeyboard = [][]tele.InlineButton{cancelRow(m)}
	return sb.String(), m
}

func renderBookings(bookings []models.Booking) string {
	if len(bookings) == 0 {
		return "You have no bookings yet. Start with a flight, hotel or tour search!"
	}
	var sb strings.Builder
	sb.WriteString("📋 Your bookings:\n")
	for _, bk := range bookings {
		fmt.Fprintf(&sb, "\n%s %s\n   %s\n   %s, %s\n",
			statusEmoji(bk.PaymentStatus), bk.Reference, bk.Title,
			currency.FormatETB(bk.TotalPrice), bk.PaymentStatus)
	}
	return sb.String()
}

func renderAlerts(userAlerts []models.PriceAlert) (string, *tele.ReplyMarkup) {
	m := &tele.ReplyMarkup{}
	var rows [][]tele.InlineButton

	var sb strings.Builder
	if len(userAlerts) == 0 {
		sb.WriteString("You have no price alerts.")
	} else {
		sb.WriteString("🔔 Your price alerts:\n")
		n := 0
		for _, a := range userAlerts {
			fmt.Fprintf(&sb, "\n%d. %s, target %s (%s)\n",
				n+1, describeAlert(a), currency.FormatETB(a.TargetPrice), a.Status)
			if a.Status == models.AlertActive {
				label := fmt.Sprintf("🗑 Remove %d", n+1)
				rows = append(rows, []tele.InlineButton{*m.Data(label, cbAlertDel, a.ID).Inline()})
			}
			n++
		}
	}
	rows = append(rows, []tele.InlineButton{*m.Data("➕ New alert", cbFlow, models.FlowAlert).Inline()})
	m.InlineKeyboard = rows
	return sb.String(), m
}

func describeAlert(a models.PriceAlert) string {
	switch a.Type {
	case models.KindFlight:
		return fmt.Sprintf("Flight %s → %s", a.Criteria["from_city"], a.Criteria["to_city"])
	case models.KindHotel:
		return "Hotel in " + a.Criteria["city"]
	}
	return capitalize(a.Type)
}

// renderNotification formats an out-of-band message pushed by the
// dispatcher, e.g. payment outcomes, price alerts and trip reminders.
func renderNotification(note models.Notification) string {
	prefix := map[string]string{
		models.NoteBookingConfirmed: "✅ ",
		models.NotePaymentFailed:    "❌ ",
		models.NotePriceAlert:       "🔔 ",
		models.NoteTripReminder:     "⏰ ",
		models.NoteSessionTimeout:   "💤 ",
	}[note.Kind]

	if note.Title == "" {
		return prefix + note.Body
	}
	return prefix + note.Title + "\n\n" + note.Body
}

func statusEmoji(paymentStatus string) string {
	switch paymentStatus {
	case models.PaymentCompleted:
		return "✅"
	case models.PaymentFailed:
		return "❌"
	case models.PaymentRefunded:
		return "↩️"
	}
	return "⏳"
}

func methodLabel(method string) string {
	switch method {
	case models.MethodTeleBirr:
		return "TeleBirr"
	case models.MethodCBEBirr:
		return "CBE Birr"
	}
	return method
}

// clockTime extracts HH:MM from an RFC3339 timestamp for display.
func clockTime(ts string) string {
	if len(ts) >= 16 {
		return ts[11:16]
	}
	return ts
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
