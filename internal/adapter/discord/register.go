package discord

import "github.com/agblogger/agblogger/internal/port/notifier"

func init() {
	notifier.Register(providerName, func(config map[string]string) (notifier.Notifier, error) {
		return NewNotifier(config["webhook_url"], nil), nil
	})
}
