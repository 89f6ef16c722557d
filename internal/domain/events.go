package domain

import "fmt"

// EventKind is the closed set of EventSub subscription types this service
// tracks per channel. Every watched channel wants all three.
type EventKind int

const (
	EventOnline EventKind = iota
	EventOffline
	EventUpdate
)

// AllEventKinds lists every kind in a stable order, used by the reconciler
// to compute which subscriptions a channel is missing.
var AllEventKinds = [3]EventKind{EventOnline, EventOffline, EventUpdate}

// String returns the Twitch EventSub wire name of the kind.
func (k EventKind) String() string {
	switch k {
	case EventOnline:
		return "stream.online"
	case EventOffline:
		return "stream.offline"
	case EventUpdate:
		return "channel.update"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Version returns the EventSub subscription version for the kind.
func (k EventKind) Version() string {
	if k == EventUpdate {
		return "2"
	}
	return "1"
}

// ParseEventKind maps an EventSub wire name to its EventKind.
func ParseEventKind(s string) (EventKind, error) {
	switch s {
	case "stream.online":
		return EventOnline, nil
	case "stream.offline":
		return EventOffline, nil
	case "channel.update":
		return EventUpdate, nil
	default:
		return 0, fmt.Errorf("unknown event type %q", s)
	}
}

// MessageType classifies an inbound webhook delivery.
type MessageType int

const (
	MessageNotification MessageType = iota
	MessageHandshake
	MessageRevocation
)

func (t MessageType) String() string {
	switch t {
	case MessageNotification:
		return "notification"
	case MessageHandshake:
		return "webhook_callback_verification"
	case MessageRevocation:
		return "revocation"
	default:
		return fmt.Sprintf("MessageType(%d)", int(t))
	}
}

// ParseMessageType maps the Twitch-Eventsub-Message-Type header value to its
// MessageType.
func ParseMessageType(s string) (MessageType, error) {
	switch s {
	case "notification":
		return MessageNotification, nil
	case "webhook_callback_verification":
		return MessageHandshake, nil
	case "revocation":
		return MessageRevocation, nil
	default:
		return 0, fmt.Errorf("unknown message type %q", s)
	}
}
