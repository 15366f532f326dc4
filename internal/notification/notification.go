// Package notification turns voice errors and notices into desktop
// notifications.
package notification

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/rs/zerolog"

	"github.com/yok-tottii/banana4u-voice/internal/events"
	"github.com/yok-tottii/banana4u-voice/internal/i18n"
)

// NotificationType represents the type of notification
type NotificationType string

const (
	// TypeInfo is an informational notification
	TypeInfo NotificationType = "info"
	// TypeWarning is a warning notification
	TypeWarning NotificationType = "warning"
	// TypeError is an error notification
	TypeError NotificationType = "error"
)

// Notification is one desktop notification
type Notification struct {
	Title   string
	Message string
	Type    NotificationType
}

// runner executes an external command.
type runner func(name string, args ...string) error

func runCommand(name string, args ...string) error {
	return exec.Command(name, args...).Run()
}

// NotificationManager handles sending notifications to the user
type NotificationManager struct {
	appName    string
	translator *i18n.Translator
	run        runner
	log        zerolog.Logger
}

// NewNotificationManager creates a new notification manager. A nil
// translator uses the built-in strings in the system language.
func NewNotificationManager(appName string, translator *i18n.Translator, log zerolog.Logger) *NotificationManager {
	if translator == nil {
		translator = i18n.NewDefault(i18n.DetectSystemLanguage())
	}
	return &NotificationManager{
		appName:    appName,
		translator: translator,
		run:        runCommand,
		log:        log.With().Str("component", "notification").Logger(),
	}
}

// Send shows a notification through the platform notifier
func (nm *NotificationManager) Send(notification *Notification) error {
	if notification == nil {
		return fmt.Errorf("notification cannot be nil")
	}

	name, args := command(notification)
	if err := nm.run(name, args...); err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	return nil
}

// ForEvent builds the notification for a voice event, or nil when the event
// is not worth interrupting the user for.
func (nm *NotificationManager) ForEvent(e events.Event) *Notification {
	switch e.Type {
	case events.Error:
		return &Notification{
			Title:   nm.appName,
			Message: nm.message(i18n.ErrorKey(e.Code), e.Message),
			Type:    TypeError,
		}
	case events.Notice:
		if e.Code == events.NoticeSyncTimeout {
			return nil
		}
		kind := TypeInfo
		if e.Code == events.NoticeMaxDuration {
			kind = TypeWarning
		}
		return &Notification{
			Title:   nm.appName,
			Message: nm.message(i18n.NoticeKey(e.Code), e.Message),
			Type:    kind,
		}
	default:
		return nil
	}
}

func (nm *NotificationManager) message(key, fallback string) string {
	if nm.translator.HasTranslation(key) {
		return nm.translator.Translate(key)
	}
	if fallback != "" {
		return fallback
	}
	return nm.translator.Translate(i18n.ErrorKey("error"))
}

// Run notifies for each event until ctx is done or the channel closes.
func (nm *NotificationManager) Run(ctx context.Context, in <-chan events.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-in:
			if !ok {
				return
			}
			n := nm.ForEvent(e)
			if n == nil {
				continue
			}
			if err := nm.Send(n); err != nil {
				nm.log.Warn().Err(err).Str("code", e.Code).Msg("notification failed")
			}
		}
	}
}
