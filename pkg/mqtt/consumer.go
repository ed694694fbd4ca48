package mqtt

import (
	"context"
	"log"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// Handler processes one inbound message. Errors are logged, never fatal to
// the subscription.
type Handler func(topic string, message paho.Message) error

// IConsumer subscribes to a topic filter and dispatches messages to a handler.
type IConsumer interface {
	Consume(ctx context.Context)
	SetHandler(h Handler)
}

type Consumer struct {
	client  paho.Client
	topic   string
	qos     byte
	handler Handler
}

func NewConsumer(client paho.Client, topic string, qos byte, handler Handler) *Consumer {
	return &Consumer{client: client, topic: topic, qos: qos, handler: handler}
}

func (c *Consumer) SetHandler(h Handler) {
	c.handler = h
}

// Consume subscribes and blocks until ctx is cancelled, then unsubscribes.
func (c *Consumer) Consume(ctx context.Context) {
	token := c.client.Subscribe(c.topic, c.qos, func(_ paho.Client, msg paho.Message) {
		if c.handler == nil {
			log.Printf("mqtt: no handler set for topic %s", c.topic)
			return
		}
		if err := c.handler(msg.Topic(), msg); err != nil {
			log.Printf("mqtt: handler error on %s: %v", msg.Topic(), err)
		}
	})
	if token.Wait() && token.Error() != nil {
		log.Printf("mqtt: subscribe to %s failed: %v", c.topic, token.Error())
		return
	}
	log.Printf("mqtt: subscribed to %s", c.topic)

	<-ctx.Done()

	unsub := c.client.Unsubscribe(c.topic)
	unsub.Wait()
}
