package telegram

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/jonboulle/clockwork"

	"github.com/holy-jesus/holynotifier/internal/domain"
	"github.com/holy-jesus/holynotifier/internal/errors"
)

// previewURLTemplate is the provider's live thumbnail endpoint. A timestamp
// query parameter is appended so Telegram does not serve a cached frame.
const previewURLTemplate = "https://static-cdn.jtvnw.net/previews-ttv/live_user_%s-1920x1080.jpg"

// sender is the subset of the bot API the notifier needs. *bot.Bot
// satisfies it.
type sender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	SendPhoto(ctx context.Context, params *bot.SendPhotoParams) (*models.Message, error)
}

// Notifier delivers channel event notifications and operator error reports
// to a single Telegram chat.
type Notifier struct {
	bot    sender
	chatID int64
	clock  clockwork.Clock
}

func NewNotifier(token string, chatID int64, clock clockwork.Clock) (*Notifier, error) {
	b, err := bot.New(token)
	if err != nil {
		return nil, errors.InternalError("failed to initialise telegram bot", err)
	}
	return &Notifier{bot: b, chatID: chatID, clock: clock}, nil
}

// Notify renders the notification as plain text and sends it. Live
// announcements go out as a photo message with the stream preview attached.
func (n *Notifier) Notify(ctx context.Context, notification domain.Notification) error {
	text := n.render(notification)

	if notification.Kind == domain.EventOnline && notification.Channel.Login != "" {
		preview := fmt.Sprintf(previewURLTemplate, notification.Channel.Login)
		preview += fmt.Sprintf("?t=%d", n.clock.Now().Unix())
		_, err := n.bot.SendPhoto(ctx, &bot.SendPhotoParams{
			ChatID:  n.chatID,
			Photo:   &models.InputFileString{Data: preview},
			Caption: text,
		})
		if err != nil {
			return errors.InternalError("failed to send live announcement", err)
		}
		return nil
	}

	_, err := n.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: n.chatID,
		Text:   text,
	})
	if err != nil {
		return errors.InternalError("failed to send notification", err)
	}
	return nil
}

// ReportError forwards an internal failure description to the operator chat
// so problems surface without log access.
func (n *Notifier) ReportError(ctx context.Context, text string) error {
	_, err := n.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: n.chatID,
		Text:   "Something went wrong:\n" + text,
	})
	if err != nil {
		return errors.InternalError("failed to report error to operator", err)
	}
	return nil
}

func (n *Notifier) render(notification domain.Notification) string {
	ch := notification.Channel
	name := ch.DisplayName
	if name == "" {
		name = ch.Login
	}
	if name == "" {
		name = ch.ChannelID
	}

	switch notification.Kind {
	case domain.EventOnline:
		var b strings.Builder
		fmt.Fprintf(&b, "%s is live!", name)
		if ch.Title != "" {
			fmt.Fprintf(&b, "\n%s", ch.Title)
		}
		if ch.Category != "" {
			fmt.Fprintf(&b, "\nPlaying: %s", ch.Category)
		}
		return b.String()

	case domain.EventOffline:
		var b strings.Builder
		fmt.Fprintf(&b, "%s went offline.", name)
		if notification.Uptime > 0 {
			fmt.Fprintf(&b, "\nStream lasted %s.", formatDuration(notification.Uptime))
		}
		if breakdown := formatCategoryTime(ch.CategoryTime); breakdown != "" {
			b.WriteString("\n\nTime per category:\n")
			b.WriteString(breakdown)
		}
		return b.String()

	case domain.EventUpdate:
		var b strings.Builder
		fmt.Fprintf(&b, "%s updated the stream.", name)
		if notification.NewTitle != nil {
			fmt.Fprintf(&b, "\nTitle: %s", *notification.NewTitle)
		}
		if notification.NewCategory != nil {
			if ch.Category != "" {
				fmt.Fprintf(&b, "\nCategory: %s (was %s)", *notification.NewCategory, ch.Category)
			} else {
				fmt.Fprintf(&b, "\nCategory: %s", *notification.NewCategory)
			}
		}
		return b.String()

	default:
		return fmt.Sprintf("%s: %s", name, notification.Kind)
	}
}

// formatCategoryTime renders the per-category accumulator, longest first.
// Zero-duration entries are skipped.
func formatCategoryTime(categoryTime map[string]time.Duration) string {
	type entry struct {
		category string
		spent    time.Duration
	}
	entries := make([]entry, 0, len(categoryTime))
	for category, spent := range categoryTime {
		if spent <= 0 || category == "" {
			continue
		}
		entries = append(entries, entry{category, spent})
	}
	if len(entries) == 0 {
		return ""
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].spent != entries[j].spent {
			return entries[i].spent > entries[j].spent
		}
		return entries[i].category < entries[j].category
	})

	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, fmt.Sprintf("%s: %s", e.category, formatDuration(e.spent)))
	}
	return strings.Join(lines, "\n")
}

// formatDuration renders a duration as whole hours and minutes, never
// seconds. Anything under a minute reads as "less than a minute".
func formatDuration(d time.Duration) string {
	d = d.Round(time.Minute)
	if d < time.Minute {
		return "less than a minute"
	}
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	switch {
	case hours > 0 && minutes > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	case hours > 0:
		return fmt.Sprintf("%dh", hours)
	default:
		return fmt.Sprintf("%dm", minutes)
	}
}
