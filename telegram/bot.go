package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	alertRepo "tripbot/database/repository/alert"
	bookingRepo "tripbot/database/repository/booking"
	"tripbot/models"
	"tripbot/services/alerts"
	"tripbot/services/conversation"
	"tripbot/services/user"

	"go.uber.org/zap"
	tele "gopkg.in/telebot.v4"
)

const handlerTimeout = 30 * time.Second

// Callback button uniques. Telebot encodes them as "\f<unique>|<payload>".
const (
	cbFlow     = "flow"
	cbSelect   = "select"
	cbPay      = "pay"
	cbAnswer   = "answer"
	cbCancel   = "cancel"
	cbMenu     = "menu"
	cbLang     = "lang"
	cbAlertDel = "alert_del"
)

// Bot is the Telegram transport. It translates updates into conversation
// inputs and prompts back into messages, and holds no state of its own.
type Bot struct {
	tb           *tele.Bot
	Users        user.UserService
	Conversation conversation.ConversationService
	Alerts       alerts.AlertService
	Bookings     bookingRepo.BookingRepository
	Logger       *zap.Logger
}

// NewBot connects to the Telegram API and registers all routes.
func NewBot(token string, users user.UserService, conv conversation.ConversationService,
	alertSvc alerts.AlertService, bookings bookingRepo.BookingRepository, logger *zap.Logger) (*Bot, error) {
	tb, err := tele.NewBot(tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialise telegram bot: %w", err)
	}

	b := &Bot{
		tb:           tb,
		Users:        users,
		Conversation: conv,
		Alerts:       alertSvc,
		Bookings:     bookings,
		Logger:       logger,
	}
	b.registerRoutes()
	return b, nil
}

func (b *Bot) registerRoutes() {
	b.tb.Handle("/start", b.handleStart)
	b.tb.Handle("/help", b.handleHelp)
	b.tb.Handle("/cancel", b.handleCancel)
	b.tb.Handle("/bookings", b.handleBookings)
	b.tb.Handle("/alerts", b.handleAlerts)
	b.tb.Handle("/language", b.handleLanguage)
	b.tb.Handle("/stop", b.handleStop)
	b.tb.Handle(tele.OnText, b.handleText)
	b.tb.Handle(tele.OnCallback, b.handleCallback)
}

// Start begins long polling and blocks until Stop is called.
func (b *Bot) Start() {
	b.Logger.Info("telegram bot polling started")
	b.tb.Start()
}

func (b *Bot) Stop() {
	b.tb.Stop()
}

// Send delivers a queued notification to the user's chat. This is the
// dispatcher's transport.
func (b *Bot) Send(ctx context.Context, note models.Notification) error {
	_, err := b.tb.Send(tele.ChatID(note.UserID), renderNotification(note))
	return err
}

func (b *Bot) handleStart(c tele.Context) error {
	b.ensureUser(c)
	return c.Send(welcomeText, mainMenu())
}

func (b *Bot) handleHelp(c tele.Context) error {
	b.ensureUser(c)
	return c.Send(helpText, mainMenu())
}

func (b *Bot) handleCancel(c tele.Context) error {
	return b.cancel(c)
}

func (b *Bot) handleBookings(c tele.Context) error {
	return b.listBookings(c)
}

func (b *Bot) handleAlerts(c tele.Context) error {
	return b.listAlerts(c)
}

func (b *Bot) handleLanguage(c tele.Context) error {
	return c.Send("Choose your language:", languageMenu())
}

// handleStop pauses the account. The record and its bookings stay,
// /start brings the user back.
func (b *Bot) handleStop(c tele.Context) error {
	userID := c.Sender().ID
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	if _, err := b.Conversation.Cancel(ctx, userID); err != nil {
		b.Logger.Warn("failed to cancel conversation on stop",
			zap.Int64("user_id", userID), zap.Error(err))
	}
	if err := b.Users.Deactivate(userID); err != nil {
		b.Logger.Error("failed to deactivate user",
			zap.Int64("user_id", userID), zap.Error(err))
		return c.Send(somethingWrong, mainMenu())
	}
	return c.Send(stoppedText)
}

func (b *Bot) handleText(c tele.Context) error {
	b.ensureUser(c)
	return b.advance(c, c.Text())
}

func (b *Bot) handleCallback(c tele.Context) error {
	if err := c.Respond(); err != nil {
		b.Logger.Warn("failed to ack callback", zap.Error(err))
	}
	b.ensureUser(c)

	unique, payload := parseCallback(c.Callback())
	switch unique {
	case cbFlow:
		return b.advance(c, "flow:"+payload)
	case cbSelect:
		return b.advance(c, "select:"+payload)
	case cbPay:
		return b.advance(c, "pay:"+payload)
	case cbAnswer:
		return b.advance(c, payload)
	case cbCancel:
		return b.cancel(c)
	case cbMenu:
		return b.menuAction(c, payload)
	case cbLang:
		return b.setLanguage(c, payload)
	case cbAlertDel:
		return b.deleteAlert(c, payload)
	}
	return c.Send("I did not understand that, try /start.", mainMenu())
}

// parseCallback splits telebot's "\f<unique>|<payload>" callback data.
func parseCallback(cb *tele.Callback) (string, string) {
	if cb == nil {
		return "", ""
	}
	if cb.Unique != "" {
		return cb.Unique, cb.Data
	}
	raw := strings.TrimPrefix(cb.Data, "\f")
	parts := strings.SplitN(raw, "|", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return parts[0], ""
}

func (b *Bot) advance(c tele.Context, input string) error {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	prompt, err := b.Conversation.Advance(ctx, c.Sender().ID, input)
	if err != nil {
		b.Logger.Error("conversation advance failed",
			zap.Int64("user_id", c.Sender().ID), zap.Error(err))
		return c.Send(somethingWrong, mainMenu())
	}
	text, markup := renderPrompt(prompt)
	return c.Send(text, markup)
}

func (b *Bot) cancel(c tele.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	prompt, err := b.Conversation.Cancel(ctx, c.Sender().ID)
	if err != nil {
		b.Logger.Error("conversation cancel failed",
			zap.Int64("user_id", c.Sender().ID), zap.Error(err))
		return c.Send(somethingWrong, mainMenu())
	}
	text, markup := renderPrompt(prompt)
	return c.Send(text, markup)
}

func (b *Bot) menuAction(c tele.Context, action string) error {
	switch action {
	case "bookings":
		return b.listBookings(c)
	case "alerts":
		return b.listAlerts(c)
	case "language":
		return c.Send("Choose your language:", languageMenu())
	case "help":
		return c.Send(helpText, mainMenu())
	}
	return c.Send("I did not understand that, try /start.", mainMenu())
}

func (b *Bot) listBookings(c tele.Context) error {
	bookings, err := b.Bookings.ListByUser(c.Sender().ID, 5)
	if err != nil {
		b.Logger.Error("failed to list bookings",
			zap.Int64("user_id", c.Sender().ID), zap.Error(err))
		return c.Send(somethingWrong, mainMenu())
	}
	return c.Send(renderBookings(bookings), mainMenu())
}

func (b *Bot) listAlerts(c tele.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	userAlerts, err := b.Alerts.List(ctx, c.Sender().ID, 10)
	if err != nil {
		b.Logger.Error("failed to list alerts",
			zap.Int64("user_id", c.Sender().ID), zap.Error(err))
		return c.Send(somethingWrong, mainMenu())
	}
	text, markup := renderAlerts(userAlerts)
	return c.Send(text, markup)
}

func (b *Bot) setLanguage(c tele.Context, lang string) error {
	if err := b.Users.SetLanguage(c.Sender().ID, lang); err != nil {
		b.Logger.Warn("failed to set language",
			zap.Int64("user_id", c.Sender().ID), zap.String("lang", lang), zap.Error(err))
		return c.Send(somethingWrong, mainMenu())
	}
	return c.Send("Language updated.", mainMenu())
}

func (b *Bot) deleteAlert(c tele.Context, alertID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	err := b.Alerts.Cancel(ctx, c.Sender().ID, alertID)
	switch {
	case err == nil:
		return c.Send("Alert removed.", mainMenu())
	case errors.Is(err, alertRepo.ErrNotFound), errors.Is(err, alertRepo.ErrNotActive):
		return c.Send("That alert is already gone.", mainMenu())
	default:
		b.Logger.Error("failed to cancel alert",
			zap.Int64("user_id", c.Sender().ID), zap.String("alert_id", alertID), zap.Error(err))
		return c.Send(somethingWrong, mainMenu())
	}
}

// ensureUser bootstraps the account on first contact. Failures are logged
// and the conversation goes on; the record gets created on a later message.
func (b *Bot) ensureUser(c tele.Context) {
	sender := c.Sender()
	if sender == nil {
		return
	}
	if _, err := b.Users.Ensure(sender.ID, sender.FirstName); err != nil {
		b.Logger.Warn("failed to bootstrap user",
			zap.Int64("user_id", sender.ID), zap.Error(err))
	}
}
