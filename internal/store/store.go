package store

import (
	"context"
	"encoding/json"
	"time"

	"qline/queue-service/internal/models"
)

type IssueTicketInput struct {
	RequestID string
	ServiceID string
	CreatedAt time.Time
}

type CallNextInput struct {
	RequestID  string
	OperatorID string
	CalledAt   time.Time
}

type TicketActionInput struct {
	RequestID  string
	TicketID   string
	OperatorID string
	OccurredAt time.Time
}

type TicketStore interface {
	IssueTicket(ctx context.Context, input IssueTicketInput) (models.Ticket, bool, error)
	GetTicket(ctx context.Context, ticketID string) (models.Ticket, bool, error)
	CallNext(ctx context.Context, input CallNextInput) (models.Ticket, bool, error)
	StartAttention(ctx context.Context, input TicketActionInput) (models.Ticket, bool, error)
	Complete(ctx context.Context, input TicketActionInput) (models.Ticket, bool, error)
	MarkAbsent(ctx context.Context, input TicketActionInput) (models.Ticket, bool, error)
	Requeue(ctx context.Context, input TicketActionInput) (models.Ticket, bool, error)
	Cancel(ctx context.Context, input TicketActionInput) (models.Ticket, bool, error)
	SnapshotTickets(ctx context.Context, serviceID string) ([]models.Ticket, error)
	GetActiveTicket(ctx context.Context, operatorID string) (models.Ticket, bool, error)
	ListServices(ctx context.Context) ([]models.Service, error)
	ListOutboxEvents(ctx context.Context, after time.Time, limit int) ([]OutboxEvent, error)
}

type OutboxEvent struct {
	EventID   string          `json:"event_id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}
