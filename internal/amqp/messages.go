package amqp

import (
	"encoding/json"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxContactMessageLength bounds the body of a contact form submission.
const MaxContactMessageLength = 5000

var (
	ErrContactName    = errors.New("name is required")
	ErrContactEmail   = errors.New("a valid email address is required")
	ErrContactMessage = errors.New("message is required")
	ErrContactLength  = errors.New("message must be at most 5000 characters")
	ErrUnknownEvent   = errors.New("unknown event type")
)

// ContactMessage is a contact form submission waiting to be forwarded by email.
type ContactMessage struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Subject   string    `json:"subject,omitempty"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// NewContactMessage trims the fields and stamps a new id.
func NewContactMessage(name, email, subject, message string) *ContactMessage {
	return &ContactMessage{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(name),
		Email:     strings.TrimSpace(email),
		Subject:   strings.TrimSpace(subject),
		Message:   strings.TrimSpace(message),
		Timestamp: time.Now().UTC(),
	}
}

func (m *ContactMessage) Validate() error {
	if m.Name == "" {
		return ErrContactName
	}
	if addr, err := mail.ParseAddress(m.Email); err != nil || addr.Address != m.Email {
		return ErrContactEmail
	}
	if m.Message == "" {
		return ErrContactMessage
	}
	if len([]rune(m.Message)) > MaxContactMessageLength {
		return ErrContactLength
	}
	return nil
}

func (m *ContactMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ContactMessageFromJSON(data []byte) (*ContactMessage, error) {
	var msg ContactMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// EventType names a domain event fanned out to notifications.
type EventType string

const (
	EventInvoiceSent    EventType = "invoice.sent"
	EventInvoicePaid    EventType = "invoice.paid"
	EventExpenseCreated EventType = "expense.created"
)

func (t EventType) Valid() bool {
	switch t {
	case EventInvoiceSent, EventInvoicePaid, EventExpenseCreated:
		return true
	}
	return false
}

// EventMessage carries just enough to build a notification; consumers fetch
// anything else from the database.
type EventMessage struct {
	ID          string    `json:"id"`
	Type        EventType `json:"type"`
	CompanyID   string    `json:"company_id"`
	EntityID    string    `json:"entity_id"`
	Reference   string    `json:"reference"`
	AmountCents int64     `json:"amount_cents"`
	Currency    string    `json:"currency,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

func NewEventMessage(t EventType, companyID, entityID, reference string, amountCents int64, currency string) *EventMessage {
	return &EventMessage{
		ID:          uuid.NewString(),
		Type:        t,
		CompanyID:   companyID,
		EntityID:    entityID,
		Reference:   reference,
		AmountCents: amountCents,
		Currency:    currency,
		Timestamp:   time.Now().UTC(),
	}
}

func (m *EventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// EventMessageFromJSON decodes an event and rejects unknown types.
func EventMessageFromJSON(data []byte) (*EventMessage, error) {
	var msg EventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if !msg.Type.Valid() {
		return nil, ErrUnknownEvent
	}
	return &msg, nil
}
