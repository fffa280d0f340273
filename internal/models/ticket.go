package models

import "time"

type Ticket struct {
	TicketID         string     `json:"ticket_id"`
	Number           string     `json:"number"`
	ServiceID        string     `json:"service_id"`
	PriorityLevel    int        `json:"priority_level"`
	Status           string     `json:"status"`
	IssuedForDate    string     `json:"issued_for_date"`
	CreatedAt        time.Time  `json:"created_at"`
	RequestID        string     `json:"request_id"`
	CalledAt         *time.Time `json:"called_at,omitempty"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	AbsentAt         *time.Time `json:"absent_at,omitempty"`
	RequeuedAt       *time.Time `json:"requeued_at,omitempty"`
	CancelledAt      *time.Time `json:"cancelled_at,omitempty"`
	AttentionSeconds *int64     `json:"attention_seconds,omitempty"`
	OperatorID       *string    `json:"operator_id,omitempty"`
}

const (
	StatusWaiting    = "waiting"
	StatusCalled     = "called"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusAbsent     = "absent"
	StatusCancelled  = "cancelled"
)
