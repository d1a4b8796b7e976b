package whatsapp

import (
	"github.com/Conversly/assistant-relay/internal/config"
	"github.com/Conversly/assistant-relay/internal/core"
)

// EventKind classifies a webhook delivery
type EventKind int

const (
	EventIgnored EventKind = iota
	EventStatus
	EventEcho
	EventMessage
	EventMalformed
)

func (k EventKind) String() string {
	switch k {
	case EventStatus:
		return "status"
	case EventEcho:
		return "echo"
	case EventMessage:
		return "message"
	case EventMalformed:
		return "malformed"
	}
	return "ignored"
}

// Adapter turns Meta webhook payloads into channel-neutral events
type Adapter struct{}

func NewAdapter() *Adapter {
	return &Adapter{}
}

func (a *Adapter) GetChannel() core.Channel {
	return core.ChannelWhatsApp
}

// Classify inspects entry[0].changes[0].value. Status updates win over
// messages; a message sent by the business number itself is an echo. A
// message without a sender or a display number is malformed. Only
// EventMessage carries a usable InboundEvent.
func (a *Adapter) Classify(payload *WebhookPayload) (EventKind, core.InboundEvent) {
	value, ok := payload.FirstValue()
	if !ok {
		return EventIgnored, core.InboundEvent{}
	}
	if len(value.Statuses) > 0 {
		return EventStatus, core.InboundEvent{}
	}
	if len(value.Messages) == 0 {
		return EventIgnored, core.InboundEvent{}
	}

	msg := value.Messages[0]
	if msg.From == "" || value.Metadata.DisplayPhoneNumber == "" {
		return EventMalformed, core.InboundEvent{}
	}

	event := core.InboundEvent{
		Channel:        a.GetChannel(),
		BusinessNumber: config.NormalizeNumber(value.Metadata.DisplayPhoneNumber),
		PhoneNumberID:  value.Metadata.PhoneNumberID,
		SenderID:       msg.From,
		SenderName:     value.ContactName(msg.From),
		MessageID:      msg.ID,
		MessageType:    core.MessageType(msg.Type),
	}
	if msg.Text != nil {
		event.Text = msg.Text.Body
	}

	if config.NormalizeNumber(msg.From) == event.BusinessNumber {
		return EventEcho, event
	}
	return EventMessage, event
}
