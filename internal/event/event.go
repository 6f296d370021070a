package event

import (
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeUserCreated      Type = "user.created"
	TypeUserDeleted      Type = "user.deleted"
	TypePasswordChanged  Type = "password.changed"
	TypeClientCreated    Type = "client.created"
	TypeClientDeleted    Type = "client.deleted"
	TypeLoginSucceeded   Type = "login.succeeded"
	TypeLoginFailed      Type = "login.failed"
	TypeAccountLocked    Type = "account.locked"
	TypePolicyActivated  Type = "policy.activated"
	TypeTokenIssued      Type = "token.issued"
	TypeTokenRevoked     Type = "token.revoked"
	TypeNonceReplayed    Type = "nonce.replayed"
	TypeRequestThrottled Type = "request.throttled"
)

type Event struct {
	ID        string         `json:"id"`
	Type      Type           `json:"type"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp string         `json:"timestamp"`
	ActorID   string         `json:"actor_id,omitempty"` // principal the event is about
}

// New stamps an event with a fresh id and the current UTC time.
func New(t Type, actorID string, payload map[string]any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      t,
		Payload:   payload,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		ActorID:   actorID,
	}
}

type Bus interface {
	Publish(e Event)
	Subscribe() (<-chan Event, func()) // Returns channel and unsubscribe function
}

// Publisher is the narrow side of Bus that services depend on.
type Publisher interface {
	Publish(e Event)
}

type nopPublisher struct{}

func (nopPublisher) Publish(Event) {}

// Nop discards every event.
var Nop Publisher = nopPublisher{}
