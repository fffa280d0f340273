package store

import "errors"

var (
	ErrServiceNotFound   = errors.New("service not found")
	ErrOperatorNotFound  = errors.New("operator not found")
	ErrTicketNotFound    = errors.New("ticket not found")
	ErrNoTicket          = errors.New("no ticket available")
	ErrInvalidTransition = errors.New("invalid ticket transition")
	ErrTicketClaimed     = errors.New("ticket already claimed")
	ErrSequenceConflict  = errors.New("sequence conflict")
	ErrIssuanceFailed    = errors.New("ticket issuance failed")
)
