package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"finease/internal/core"
)

var ErrInvalidMessage = errors.New("invalid activity message")

// ActivityMessage carries one confirmed mutation from the web client to the
// activity worker.
type ActivityMessage struct {
	core.Activity
	PublishedAt time.Time `json:"publishedAt"`
}

func NewActivityMessage(a core.Activity) *ActivityMessage {
	return &ActivityMessage{Activity: a, PublishedAt: time.Now().UTC()}
}

func (m *ActivityMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ActivityMessageFromJSON decodes a message body. Messages without an id or
// kind are rejected so the consumer can drop them without requeueing.
func ActivityMessageFromJSON(data []byte) (*ActivityMessage, error) {
	var msg ActivityMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.ID == "" || msg.Kind == "" {
		return nil, ErrInvalidMessage
	}
	return &msg, nil
}
