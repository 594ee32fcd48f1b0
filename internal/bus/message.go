package bus

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Performative is the communicative act of a message.
type Performative string

const (
	Request Performative = "request"
	Inform  Performative = "inform"
)

// Message is a unit of transport between agents. A single message may be
// addressed to several receivers; each receives its own copy.
type Message struct {
	ID           string       `json:"id"`
	From         string       `json:"from"`
	To           []string     `json:"to"`
	Performative Performative `json:"performative"`
	Content      string       `json:"content"`
	Tag          string       `json:"tag,omitempty"`
	Timestamp    time.Time    `json:"timestamp"`
}

// Clone returns a copy that shares no mutable state with msg.
func (msg *Message) Clone() *Message {
	clone := *msg
	clone.To = slices.Clone(msg.To)
	return &clone
}

func (msg *Message) String() string {
	return fmt.Sprintf(
		"Message{ID: %s, From: %s, To: %v, Performative: %s, Tag: %s}",
		msg.ID,
		msg.From,
		msg.To,
		msg.Performative,
		msg.Tag,
	)
}

// MessageBuilder assembles a Message.
type MessageBuilder struct {
	message *Message
}

func NewMessage(from string, performative Performative) *MessageBuilder {
	return &MessageBuilder{
		message: &Message{
			ID:           generateID(),
			From:         from,
			Performative: performative,
			Timestamp:    time.Now(),
		},
	}
}

func NewRequest(from, content string, to ...string) *MessageBuilder {
	return NewMessage(from, Request).Content(content).To(to...)
}

func NewInform(from, content string, to ...string) *MessageBuilder {
	return NewMessage(from, Inform).Content(content).To(to...)
}

func (mb *MessageBuilder) To(receivers ...string) *MessageBuilder {
	mb.message.To = append(mb.message.To, receivers...)
	return mb
}

func (mb *MessageBuilder) Content(content string) *MessageBuilder {
	mb.message.Content = content
	return mb
}

func (mb *MessageBuilder) Tag(tag string) *MessageBuilder {
	mb.message.Tag = tag
	return mb
}

func (mb *MessageBuilder) Build() *Message {
	return mb.message
}

func generateID() string {
	return uuid.Must(uuid.NewV7()).String()
}
