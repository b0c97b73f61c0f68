package queue

import (
	"encoding/json"

	"github.com/streadway/amqp"
)

const BatchQueue = "campaign_sends"

// BatchReady notifies workers that a send-queue item exists. It is a hint
// only: the durable queue row in Postgres is authoritative and the claim step
// deduplicates, so lost or duplicated messages are harmless.
type BatchReady struct {
	QueueItemID string `json:"queue_item_id"`
}

type Publisher interface {
	PublishBatchReady(itemID string) error
	Close() error
}

// AMQPPublisher pushes batch-ready events to a durable RabbitMQ queue.
type AMQPPublisher struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewAMQPPublisher(url string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	_, err = ch.QueueDeclare(
		BatchQueue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	return &AMQPPublisher{conn: conn, ch: ch}, nil
}

func (p *AMQPPublisher) PublishBatchReady(itemID string) error {
	body, _ := json.Marshal(BatchReady{QueueItemID: itemID})
	return p.ch.Publish(
		"",         // default exchange
		BatchQueue, // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}

func (p *AMQPPublisher) Close() error {
	if p.ch != nil {
		p.ch.Close()
	}
	return p.conn.Close()
}

// NopPublisher is used when AMQP is not configured; the cron drain pass
// picks every batch up on its own.
type NopPublisher struct{}

func (NopPublisher) PublishBatchReady(string) error { return nil }
func (NopPublisher) Close() error                   { return nil }
