package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/khotaikhoan/storefront/internal/services"
)

var vietnamese = message.NewPrinter(language.Vietnamese)

// orderPlacedMessage is the wire shape read by the confirmation mailer. AmountDisplay is the
// grand total formatted for the recipient.
type orderPlacedMessage struct {
	services.OrderNotification
	AmountDisplay string `json:"amountDisplay"`
}

// PubSubOrderPublisher publishes order confirmation requests to a Pub/Sub topic.
type PubSubOrderPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubOrderPublisher constructs a Pub/Sub backed order notifier.
func NewPubSubOrderPublisher(topic *pubsub.Topic) (*PubSubOrderPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub order publisher: topic is required")
	}
	return &PubSubOrderPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// PublishOrderPlaced enqueues the confirmation message and waits for the server id.
func (p *PubSubOrderPublisher) PublishOrderPlaced(ctx context.Context, msg services.OrderNotification) (string, error) {
	if p == nil || p.topic == nil {
		return "", errors.New("pubsub order publisher: not initialised")
	}

	data, err := p.marshal(orderPlacedMessage{
		OrderNotification: msg,
		AmountDisplay:     FormatAmount(msg.Amount, msg.Currency),
	})
	if err != nil {
		return "", fmt.Errorf("marshal order notification: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "event", "order.placed")
	setAttr(attrs, "orderId", msg.OrderID)
	setAttr(attrs, "userId", msg.UserID)
	setAttr(attrs, "paymentMethod", msg.PaymentMethod)

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
		OrderingKey: orderingKey(p.topic, msg.OrderID),
	})

	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish order notification: %w", err)
	}
	return id, nil
}

// Stop flushes pending messages.
func (p *PubSubOrderPublisher) Stop() {
	if p != nil && p.topic != nil {
		p.topic.Stop()
	}
}

// FormatAmount renders a whole-unit amount the way the storefront shows prices, e.g. "1.250.000 ₫".
func FormatAmount(amount int64, currency string) string {
	switch strings.ToLower(strings.TrimSpace(currency)) {
	case "", "vnd":
		return vietnamese.Sprintf("%d ₫", amount)
	default:
		return vietnamese.Sprintf("%d %s", amount, strings.ToUpper(currency))
	}
}

func orderingKey(topic *pubsub.Topic, orderID string) string {
	if !topic.EnableMessageOrdering {
		return ""
	}
	return orderID
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
