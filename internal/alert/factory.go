package alert

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

type Config struct {
	Channel             string
	WebhookURL          string
	RocketMQNameServers []string
	RocketMQTopic       string
	RocketMQGroup       string
}

// NewNotifier builds the notifier for cfg.Channel ("log" when empty).
func NewNotifier(cfg Config, logger *zap.Logger) (Notifier, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Channel)) {
	case "", "log":
		return NewLogNotifier(logger), nil
	case "webhook":
		if strings.TrimSpace(cfg.WebhookURL) == "" {
			return nil, errors.New("ALERT_WEBHOOK_URL is required for the webhook channel")
		}
		return NewWebhookNotifier(cfg.WebhookURL), nil
	case "rocketmq":
		n, err := NewRocketMQNotifier(RocketMQConfig{
			NameServers: cfg.RocketMQNameServers,
			Topic:       cfg.RocketMQTopic,
			Group:       cfg.RocketMQGroup,
		})
		if err != nil {
			return nil, err
		}
		return n, nil
	default:
		return nil, fmt.Errorf("unsupported alert channel %q", cfg.Channel)
	}
}
