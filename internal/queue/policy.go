package queue

import "time"

// ExpressPriority is the highest urgency level. Express tickets are subject
// to alternation rather than strict preemption so regular lanes cannot be
// starved under sustained express load.
const ExpressPriority = 6

// Candidate is a waiting ticket as seen by the selection policy.
type Candidate struct {
	TicketID      string
	PriorityLevel int
	CreatedAt     time.Time
	RequeuedAt    *time.Time
}

// queuedAt is the ordering key: a requeued ticket re-enters the line behind
// tickets created before its requeue, not at its original position.
func (c Candidate) queuedAt() time.Time {
	if c.RequeuedAt != nil {
		return *c.RequeuedAt
	}
	return c.CreatedAt
}

// NextTicket picks the ticket to call from the waiting set. streak counts
// consecutive non-express dispatches; alternateEvery is the threshold K at
// which a due express ticket is forced to the front. Returns the pick, the
// updated streak, and false when the waiting set is empty.
//
// An express ticket is taken when the streak has reached K, or when no
// regular ticket is waiting at all; taking one resets the streak. Otherwise
// the highest-priority regular ticket wins, oldest first, and the streak
// advances.
func NextTicket(waiting []Candidate, streak, alternateEvery int) (Candidate, int, bool) {
	if alternateEvery <= 0 {
		alternateEvery = 3
	}

	var express, regular *Candidate
	for i := range waiting {
		c := &waiting[i]
		if c.PriorityLevel >= ExpressPriority {
			if express == nil || c.queuedAt().Before(express.queuedAt()) {
				express = c
			}
			continue
		}
		if regular == nil {
			regular = c
			continue
		}
		if c.PriorityLevel > regular.PriorityLevel ||
			(c.PriorityLevel == regular.PriorityLevel && c.queuedAt().Before(regular.queuedAt())) {
			regular = c
		}
	}

	switch {
	case express != nil && (streak >= alternateEvery || regular == nil):
		return *express, 0, true
	case regular != nil:
		return *regular, streak + 1, true
	default:
		return Candidate{}, streak, false
	}
}
