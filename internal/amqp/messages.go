package amqp

import (
	"encoding/json"
	"time"
)

// ChangeMessage announces that one owner's collection (entries or
// settings) changed. Consumers re-read the collection; the message
// carries no payload beyond the address of what to refresh.
type ChangeMessage struct {
	Owner      string    `json:"owner"`
	Collection string    `json:"collection"`
	Timestamp  time.Time `json:"timestamp"`
}

func NewChangeMessage(owner, collection string) *ChangeMessage {
	return &ChangeMessage{
		Owner:      owner,
		Collection: collection,
		Timestamp:  time.Now(),
	}
}

func (m *ChangeMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ChangeMessageFromJSON(data []byte) (*ChangeMessage, error) {
	var msg ChangeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
