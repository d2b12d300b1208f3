package alert

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	rocketmq "github.com/apache/rocketmq-client-go/v2"
	"github.com/apache/rocketmq-client-go/v2/primitive"
	"github.com/apache/rocketmq-client-go/v2/producer"
)

const (
	DefaultRocketMQTopic = "solace_crisis_alerts"
	DefaultRocketMQGroup = "solace_alert_producer"
	rocketMQAlertTag     = "crisis_alert"
)

type RocketMQConfig struct {
	NameServers []string
	Topic       string
	Group       string
	Retries     int
}

type messageSender interface {
	SendSync(ctx context.Context, msgs ...*primitive.Message) (*primitive.SendResult, error)
}

// RocketMQNotifier publishes alerts to a topic consumed by the reviewer tooling.
type RocketMQNotifier struct {
	sender   messageSender
	shutdown func() error
	topic    string
	now      func() time.Time
}

type rocketMQAlert struct {
	Recipient string    `json:"recipient"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	SentAt    time.Time `json:"sent_at"`
}

func NewRocketMQNotifier(cfg RocketMQConfig) (*RocketMQNotifier, error) {
	var servers []string
	for _, s := range cfg.NameServers {
		if s = strings.TrimSpace(s); s != "" {
			servers = append(servers, s)
		}
	}
	if len(servers) == 0 {
		return nil, errors.New("rocketmq name servers not configured")
	}
	group := cfg.Group
	if group == "" {
		group = DefaultRocketMQGroup
	}
	retries := cfg.Retries
	if retries <= 0 {
		retries = 2
	}

	p, err := rocketmq.NewProducer(
		producer.WithNsResolver(primitive.NewPassthroughResolver(servers)),
		producer.WithGroupName(group),
		producer.WithRetry(retries),
	)
	if err != nil {
		return nil, fmt.Errorf("create rocketmq producer: %w", err)
	}
	if err := p.Start(); err != nil {
		return nil, fmt.Errorf("start rocketmq producer: %w", err)
	}
	n := newRocketMQNotifier(p, cfg.Topic)
	n.shutdown = p.Shutdown
	return n, nil
}

func newRocketMQNotifier(sender messageSender, topic string) *RocketMQNotifier {
	if topic == "" {
		topic = DefaultRocketMQTopic
	}
	return &RocketMQNotifier{sender: sender, topic: topic, now: time.Now}
}

func (n *RocketMQNotifier) Notify(ctx context.Context, subject, body, recipient string) (string, error) {
	data, err := json.Marshal(rocketMQAlert{
		Recipient: recipient,
		Subject:   subject,
		Body:      body,
		SentAt:    n.now().UTC(),
	})
	if err != nil {
		return "", fmt.Errorf("marshal alert: %w", err)
	}
	msg := primitive.NewMessage(n.topic, data)
	msg.WithTag(rocketMQAlertTag)

	res, err := n.sender.SendSync(ctx, msg)
	if err != nil {
		return "", fmt.Errorf("publish alert: %w", err)
	}
	if res == nil {
		return "", errors.New("publish alert: empty send result")
	}
	if res.Status != primitive.SendOK {
		return "", fmt.Errorf("publish alert: send status %d", res.Status)
	}
	return res.MsgID, nil
}

func (n *RocketMQNotifier) Close() error {
	if n.shutdown == nil {
		return nil
	}
	return n.shutdown()
}
