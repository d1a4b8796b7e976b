package core

// Channel represents the message channel type
type Channel string

const (
	ChannelWhatsApp Channel = "WHATSAPP"
)

// MessageType is the platform message type of an inbound message
type MessageType string

const (
	MessageTypeText     MessageType = "text"
	MessageTypeImage    MessageType = "image"
	MessageTypeAudio    MessageType = "audio"
	MessageTypeDocument MessageType = "document"
)

// InboundEvent is one user message extracted from a webhook delivery
type InboundEvent struct {
	Channel        Channel
	BusinessNumber string // digits only
	PhoneNumberID  string
	SenderID       string // wa_id of the end user
	SenderName     string
	MessageID      string
	MessageType    MessageType
	Text           string // set for text messages only
	RequestID      string
}

// IsText reports whether the assistant should be consulted for this event.
func (e InboundEvent) IsText() bool {
	return e.MessageType == MessageTypeText
}

// OutboundReply is the reply produced for an InboundEvent
type OutboundReply struct {
	RecipientID   string
	PhoneNumberID string
	Text          string
	ThreadID      string
	Sent          bool
}
