package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/varsilias/askdesk/internal/endpoint"
	"github.com/varsilias/askdesk/internal/format"
	"github.com/varsilias/askdesk/internal/session"
	"github.com/varsilias/askdesk/pkg/types"
)

const DefaultMaxQuestionChars = 1000

var (
	ErrEmptyQuestion   = errors.New("empty question")
	ErrQuestionTooLong = errors.New("question too long")
)

const (
	Welcome = "👋 Welcome to AI Assistant! How can I help you today?"
	Goodbye = "👋 Thank you for using our AI Assistant! Have a great day!"
	Cleared = "Chat cleared! Starting fresh..."

	msgUnavailable = "⚠️ We're experiencing technical difficulties. Please try again later."
	msgMalformed   = "⚠️ The assistant returned an unexpected response. Please try again or contact support."
	msgCanceled    = "⚠️ The request was canceled."
	msgInternal    = "⚠️ An unexpected error occurred. Please try again or contact support."
)

// Reply is what a single chat turn produces for display.
type Reply struct {
	Content string
	Latency time.Duration
	// Failed replies are not stored in the session history.
	Failed  bool
	Message types.Message
}

type Controller struct {
	log      *slog.Logger
	eng      Engine
	sessions session.Store
	fmt      *format.Formatter
	budget   *HistoryBudget
	maxChars int
}

type Option func(*Controller)

func WithFormatter(f *format.Formatter) Option {
	return func(c *Controller) { c.fmt = f }
}

func WithHistoryBudget(b *HistoryBudget) Option {
	return func(c *Controller) { c.budget = b }
}

func WithMaxQuestionChars(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.maxChars = n
		}
	}
}

func NewController(log *slog.Logger, eng Engine, store session.Store, opts ...Option) *Controller {
	c := &Controller{
		log:      log,
		eng:      eng,
		sessions: store,
		fmt:      format.New(),
		maxChars: DefaultMaxQuestionChars,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Controller) MaxQuestionChars() int { return c.maxChars }

// Validate enforces the question preconditions before anything goes upstream.
func (c *Controller) Validate(question string) error {
	if strings.TrimSpace(question) == "" {
		return ErrEmptyQuestion
	}
	if utf8.RuneCountInString(question) > c.maxChars {
		return ErrQuestionTooLong
	}
	return nil
}

// Notice turns an error returned by Chat or Clear into text for the user.
func (c *Controller) Notice(err error) string {
	switch {
	case errors.Is(err, ErrEmptyQuestion):
		return "Please enter a valid question."
	case errors.Is(err, ErrQuestionTooLong):
		return fmt.Sprintf("Please keep your questions under %d characters.", c.maxChars)
	default:
		return msgInternal
	}
}

// Chat orchestrates a single turn: load history, call engine, format, persist
// both turns. Engine failures produce a Failed reply rather than an error.
func (c *Controller) Chat(ctx context.Context, sessionID, question string) (Reply, error) {
	if err := c.Validate(question); err != nil {
		return Reply{}, err
	}

	history, err := c.sessions.Get(sessionID)
	if err != nil {
		return Reply{}, fmt.Errorf("load history: %w", err)
	}
	sent := c.budget.Trim(history)

	c.log.Info("chat", "session", sessionID, "history_turns", len(history), "sent_turns", len(sent))
	start := time.Now()
	res := c.eng.Ask(ctx, question, types.Turns(sent))
	latency := time.Since(start)

	if !res.OK() {
		c.log.Warn("engine failed", "session", sessionID, "reason", res.Reason.String(), "attempts", res.Attempts)
		return Reply{Content: failureText(res), Latency: latency, Failed: true}, nil
	}

	msg := c.fmt.Render(res.Answer, res.Citations, res.Hyperlinks)

	now := time.Now()
	user := types.Message{Role: types.RoleUser, Content: question, Timestamp: start}
	if err := c.sessions.Append(sessionID, user); err != nil {
		return Reply{}, fmt.Errorf("append user turn: %w", err)
	}
	assistant := types.Message{Role: types.RoleAssistant, Content: msg.Body, Timestamp: now, Sources: msg.Sources}
	if err := c.sessions.Append(sessionID, assistant); err != nil {
		return Reply{}, fmt.Errorf("append assistant turn: %w", err)
	}

	return Reply{Content: msg.String(), Latency: latency, Message: assistant}, nil
}

// Clear wipes the session history.
func (c *Controller) Clear(sessionID string) (string, error) {
	if err := c.sessions.Clear(sessionID); err != nil {
		return "", err
	}
	c.log.Info("chat cleared", "session", sessionID)
	return Cleared, nil
}

// Display renders a stored message the way a fresh reply is shown.
func Display(m types.Message) string {
	if m.Role != types.RoleAssistant {
		return m.Content
	}
	return format.Message{Body: m.Content, Sources: m.Sources}.String()
}

func failureText(res endpoint.Response) string {
	switch res.Reason {
	case endpoint.ReasonApplication:
		return "⚠️ " + res.Err
	case endpoint.ReasonMalformed:
		return msgMalformed
	case endpoint.ReasonCanceled:
		return msgCanceled
	default:
		return msgUnavailable
	}
}

type FeedbackKind string

const (
	FeedbackHelpful    FeedbackKind = "helpful"
	FeedbackNotHelpful FeedbackKind = "not_helpful"
)

var ErrUnknownFeedback = errors.New("unknown feedback type")

// Feedback returns the acknowledgement messages for a rating.
func (c *Controller) Feedback(sessionID string, kind FeedbackKind) ([]string, error) {
	var first string
	switch kind {
	case FeedbackHelpful:
		first = "Thank you for your positive feedback! 😊"
	case FeedbackNotHelpful:
		first = "I'm sorry the response wasn't helpful. Would you like to rephrase your question?"
	default:
		return nil, ErrUnknownFeedback
	}
	c.log.Info("feedback", "session", sessionID, "type", string(kind))
	return []string{first, "Feel free to ask another question or restart the chat."}, nil
}
