// Package events publishes account lifecycle notifications to the message
// queue.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/userauth/apiserver/internal/mq"
	"github.com/userauth/apiserver/types"
)

const (
	TypeUserRegistered = "user.registered"

	attrEventType = "event-type"
)

// Publisher is the subset of mq.MQ used to emit events.
type Publisher interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
}

// UserRegistered is the payload of a user.registered event. It never
// contains password material.
type UserRegistered struct {
	ID    string    `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
	Date  time.Time `json:"date"`
}

// UserEvents publishes user events on a single topic.
type UserEvents struct {
	pub   Publisher
	topic string
}

func NewUserEvents(pub Publisher, topic string) *UserEvents {
	if topic == "" {
		topic = TypeUserRegistered
	}
	return &UserEvents{pub: pub, topic: topic}
}

// UserRegistered publishes a user.registered event for user.
func (e *UserEvents) UserRegistered(ctx context.Context, user types.User) error {
	data, err := json.Marshal(UserRegistered{
		ID:    user.ID,
		Name:  user.Name,
		Email: user.Email,
		Date:  user.Date,
	})
	if err != nil {
		return err
	}

	_, err = e.pub.Publish(ctx, e.topic, data, map[string]string{
		mq.AttrContentType: "application/json",
		attrEventType:      TypeUserRegistered,
	})
	return err
}

// Decode parses a message produced by UserRegistered.
func Decode(msg mq.Message) (UserRegistered, error) {
	var ev UserRegistered
	err := json.Unmarshal(msg.Data, &ev)
	return ev, err
}
