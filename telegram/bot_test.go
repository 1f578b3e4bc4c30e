package telegram

import (
	"context"
	"errors"
	"testing"

	"tripbot/models"
	"tripbot/services/conversation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	tele "gopkg.in/telebot.v4"
)

// fakeTeleCtx stands in for an incoming update. Only the methods the
// handlers touch are implemented; anything else panics the test.
type fakeTeleCtx struct {
	tele.Context
	sender *tele.User
	sent   []interface{}
}

func (f *fakeTeleCtx) Sender() *tele.User { return f.sender }

func (f *fakeTeleCtx) Send(what interface{}, opts ...interface{}) error {
	f.sent = append(f.sent, what)
	return nil
}

type stubConversation struct {
	cancelled []int64
}

func (s *stubConversation) Advance(ctx context.Context, userID int64, input string) (*conversation.Prompt, error) {
	return &conversation.Prompt{Kind: conversation.PromptMenu}, nil
}

func (s *stubConversation) Cancel(ctx context.Context, userID int64) (*conversation.Prompt, error) {
	s.cancelled = append(s.cancelled, userID)
	return &conversation.Prompt{Kind: conversation.PromptCancelled}, nil
}

func (s *stubConversation) OnPaymentResolved(ctx context.Context, booking *models.Booking, succeeded bool) {
}

func (s *stubConversation) SweepIdle(ctx context.Context) int { return 0 }

type stubUsers struct {
	deactivated []int64
	err         error
}

func (s *stubUsers) Ensure(id int64, name string) (*models.User, error) { return nil, nil }
func (s *stubUsers) GetByID(id int64) (*models.User, error)             { return nil, nil }
func (s *stubUsers) SetLanguage(id int64, lang string) error            { return nil }
func (s *stubUsers) UpdateContact(id int64, email, phone string) error  { return nil }

func (s *stubUsers) Deactivate(id int64) error {
	if s.err != nil {
		return s.err
	}
	s.deactivated = append(s.deactivated, id)
	return nil
}

func TestStopDeactivatesAccount(t *testing.T) {
	users := &stubUsers{}
	conv := &stubConversation{}
	b := &Bot{Users: users, Conversation: conv, Logger: zap.NewNop()}

	c := &fakeTeleCtx{sender: &tele.User{ID: 7}}
	require.NoError(t, b.handleStop(c))

	assert.Equal(t, []int64{7}, users.deactivated)
	assert.Equal(t, []int64{7}, conv.cancelled, "an in-flight conversation is dropped first")
	require.Len(t, c.sent, 1)
	assert.Equal(t, stoppedText, c.sent[0])
}

func TestStopReportsFailure(t *testing.T) {
	users := &stubUsers{err: errors.New("mongo down")}
	b := &Bot{Users: users, Conversation: &stubConversation{}, Logger: zap.NewNop()}

	c := &fakeTeleCtx{sender: &tele.User{ID: 7}}
	require.NoError(t, b.handleStop(c))

	require.Len(t, c.sent, 1)
	assert.Equal(t, somethingWrong, c.sent[0])
}
