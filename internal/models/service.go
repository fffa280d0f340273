package models

type Service struct {
	ServiceID        string `json:"service_id"`
	Name             string `json:"name"`
	Prefix           string `json:"prefix"`
	PriorityLevel    int    `json:"priority_level"`
	Active           bool   `json:"active"`
	SystemLocked     bool   `json:"system_locked"`
	NextTicketNumber int64  `json:"next_ticket_number"`
}

type Operator struct {
	OperatorID string `json:"operator_id"`
	Name       string `json:"name"`
	Active     bool   `json:"active"`
}
