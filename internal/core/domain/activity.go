package domain

import (
	"strings"
	"time"

	apperrors "github.com/lorrc/coaching-realtime/internal/core/errors"
)

// MaxMessageBodyLength caps message bodies accepted by the ingress.
const MaxMessageBodyLength = 10000

// Message is a chat message already persisted by the surrounding app.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId,omitempty"`
	SenderID       string    `json:"senderId"`
	RecipientID    string    `json:"recipientId"`
	Body           string    `json:"body"`
	SentAt         time.Time `json:"sentAt"`
}

// Validate checks the fields the realtime core routes on.
func (m *Message) Validate() error {
	errs := apperrors.NewValidationErrors()

	if strings.TrimSpace(m.ID) == "" {
		errs.Add("id", apperrors.ErrMessageIDRequired.Error())
	}
	if strings.TrimSpace(m.SenderID) == "" {
		errs.Add("senderId", apperrors.ErrSenderRequired.Error())
	}
	if strings.TrimSpace(m.RecipientID) == "" {
		errs.Add("recipientId", apperrors.ErrRecipientRequired.Error())
	}
	if len(m.Body) > MaxMessageBodyLength {
		errs.Add("body", "Must be at most 10000 characters")
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// AppointmentStatus is the scheduling state of an appointment.
type AppointmentStatus string

const (
	AppointmentScheduled AppointmentStatus = "SCHEDULED"
	AppointmentConfirmed AppointmentStatus = "CONFIRMED"
	AppointmentCancelled AppointmentStatus = "CANCELLED"
	AppointmentCompleted AppointmentStatus = "COMPLETED"
)

// Appointment is a coaching session between a client and a coach.
type Appointment struct {
	ID       string            `json:"id"`
	ClientID string            `json:"clientId"`
	CoachID  string            `json:"coachId"`
	Title    string            `json:"title,omitempty"`
	Status   AppointmentStatus `json:"status"`
	StartsAt time.Time         `json:"startsAt"`
	EndsAt   time.Time         `json:"endsAt"`
	Notes    string            `json:"notes,omitempty"`
}

// Validate checks the fields the realtime core routes on.
func (a *Appointment) Validate() error {
	errs := apperrors.NewValidationErrors()

	if strings.TrimSpace(a.ID) == "" {
		errs.Add("id", apperrors.ErrAppointmentIDRequired.Error())
	}
	if strings.TrimSpace(a.ClientID) == "" || strings.TrimSpace(a.CoachID) == "" {
		errs.Add("participants", apperrors.ErrParticipantsRequired.Error())
	}
	if !a.EndsAt.IsZero() && a.EndsAt.Before(a.StartsAt) {
		errs.Add("endsAt", "Must not be before startsAt")
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// Participants returns the distinct users involved in the appointment.
func (a *Appointment) Participants() []string {
	if a.ClientID == a.CoachID {
		return []string{a.ClientID}
	}
	return []string{a.ClientID, a.CoachID}
}
