package mq

import (
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
)

func TestDeliveryMessage(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	msg := deliveryMessage(amqp.Delivery{
		MessageId:   "m-1",
		ContentType: "application/json",
		Timestamp:   ts,
		Body:        []byte(`{}`),
		Headers: amqp.Table{
			"event-type": "user.registered",
			"raw":        []byte("bytes"),
			"n":          int32(3),
		},
	})

	assert.Equal(t, "m-1", msg.ID)
	assert.Equal(t, ts, msg.PublishedAt)
	assert.Equal(t, []byte(`{}`), msg.Data)
	assert.Equal(t, map[string]string{
		AttrContentType: "application/json",
		"event-type":    "user.registered",
		"raw":           "bytes",
		"n":             "3",
	}, msg.Attributes)
}

func TestDeliveryMessageWithoutHeaders(t *testing.T) {
	msg := deliveryMessage(amqp.Delivery{MessageId: "m-2"})
	assert.Empty(t, msg.Attributes)
}
