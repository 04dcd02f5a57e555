package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/user/toolchat/internal/gateway"
	"github.com/user/toolchat/internal/runtime"
	"github.com/user/toolchat/internal/types"
)

const maxTelegramMessage = 4096

const defaultGreeting = "Hello! How can I assist you today?"

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Adapter bridges Telegram to the gateway.
type Adapter struct {
	bot      *tgbotapi.BotAPI
	send     sender
	gateway  *gateway.Gateway
	runtime  *runtime.Runtime
	greeting string
}

// New creates a Telegram adapter. Sessions and tools come from rt; gw must
// be processing runs with rt.ProcessRun.
func New(token string, gw *gateway.Gateway, rt *runtime.Runtime, greeting string) (*Adapter, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	if greeting == "" {
		greeting = defaultGreeting
	}
	slog.Info("telegram bot authorized", "username", bot.Self.UserName)
	return &Adapter{
		bot:      bot,
		send:     bot,
		gateway:  gw,
		runtime:  rt,
		greeting: greeting,
	}, nil
}

// Start begins long-polling for Telegram updates. It returns when ctx is
// cancelled.
func (a *Adapter) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := a.bot.GetUpdatesChan(u)

	for {
		select {
		case update := <-updates:
			if update.Message == nil || update.Message.Text == "" {
				continue
			}
			a.handleMessage(ctx, update.Message)
		case <-ctx.Done():
			a.bot.StopReceivingUpdates()
			return
		}
	}
}

func (a *Adapter) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	// Channel posts and anonymous admins carry no sender.
	if msg.From == nil || msg.Chat == nil {
		return
	}
	chatID := msg.Chat.ID
	key := buildSessionKey(msg.From.ID, chatID)

	if msg.IsCommand() {
		a.sendResponse(chatID, a.commandReply(ctx, msg.Command(), key))
		return
	}

	event := &types.InboundEvent{
		Source:     "telegram",
		SessionKey: key,
		UserID:     strconv.FormatInt(msg.From.ID, 10),
		Text:       msg.Text,
	}

	err := a.gateway.HandleInbound(ctx, event, gateway.WithOnComplete(func(response string) {
		a.sendResponse(chatID, response)
	}))
	if err != nil {
		slog.Error("handle inbound", "session_key", string(key), "error", err)
		a.sendResponse(chatID, "Sorry, I encountered an error processing your message.")
	}
}

func (a *Adapter) commandReply(ctx context.Context, command string, key types.SessionKey) string {
	sessions := a.runtime.Sessions()

	switch command {
	case "start":
		if _, err := sessions.ResolveOrCreate(ctx, key); err != nil {
			slog.Error("start session", "session_key", string(key), "error", err)
		}
		return a.greeting

	case "new":
		sess := sessions.Reset(ctx, key)
		slog.Info("session reset", "session_key", string(key), "session_id", string(sess.ID()))
		return "Starting a new conversation."

	case "status":
		sess, err := sessions.ResolveOrCreate(ctx, key)
		if err != nil {
			return "Error fetching status."
		}
		return fmt.Sprintf("Session: %s\nMessages: %d", sess.ID(), sess.Len())

	case "tools":
		var b strings.Builder
		b.WriteString("Available tools:")
		for _, t := range a.runtime.Registry().All() {
			fmt.Fprintf(&b, "\n- %s: %s", t.Name(), t.Description())
		}
		return b.String()

	default:
		return "Unknown command. Available: /start, /new, /status, /tools"
	}
}

func (a *Adapter) sendResponse(chatID int64, text string) {
	for _, part := range splitMessage(text) {
		msg := tgbotapi.NewMessage(chatID, part)
		msg.ParseMode = "Markdown"
		if _, err := a.send.Send(msg); err != nil {
			// Retry without markdown if it fails
			msg.ParseMode = ""
			if _, err := a.send.Send(msg); err != nil {
				slog.Error("send message", "chat_id", chatID, "error", err)
			}
		}
	}
}

// splitMessage cuts text into chunks of at most maxTelegramMessage bytes
// without splitting a UTF-8 sequence.
func splitMessage(text string) []string {
	if len(text) <= maxTelegramMessage {
		return []string{text}
	}
	var parts []string
	for len(text) > 0 {
		end := maxTelegramMessage
		if end >= len(text) {
			end = len(text)
		} else {
			for end > 0 && !utf8.RuneStart(text[end]) {
				end--
			}
		}
		parts = append(parts, text[:end])
		text = text[end:]
	}
	return parts
}

func buildSessionKey(userID, chatID int64) types.SessionKey {
	return types.NewSessionKey("telegram",
		strconv.FormatInt(userID, 10),
		strconv.FormatInt(chatID, 10),
	)
}
