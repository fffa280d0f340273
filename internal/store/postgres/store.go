package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"qline/queue-service/internal/models"
	"qline/queue-service/internal/queue"
	"qline/queue-service/internal/store"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const ticketColumns = `ticket_id, number, service_id, priority_level, status, issued_for_date,
	created_at, called_at, started_at, completed_at, absent_at, requeued_at, cancelled_at, attention_seconds, operator_id`

type Store struct {
	pool           *pgxpool.Pool
	alternateEvery int
	issueRetries   int
	claimRetries   int
	now            queue.Clock
	location       *time.Location
}

type Options struct {
	// AlternateEvery is the K threshold: consecutive regular dispatches
	// before a waiting express ticket is forced to the front.
	AlternateEvery int
	IssueRetries   int
	ClaimRetries   int
	// Now and Location control what "today" means for numbering; tests
	// inject both to cross day boundaries deterministically.
	Now      queue.Clock
	Location *time.Location
}

func NewStore(pool *pgxpool.Pool, options Options) *Store {
	alternate := options.AlternateEvery
	if alternate < 1 || alternate > 6 {
		alternate = 3
	}
	issueRetries := options.IssueRetries
	if issueRetries <= 0 {
		issueRetries = 5
	}
	claimRetries := options.ClaimRetries
	if claimRetries <= 0 {
		claimRetries = 5
	}
	now := options.Now
	if now == nil {
		now = time.Now
	}
	location := options.Location
	if location == nil {
		location = time.Local
	}
	return &Store{
		pool:           pool,
		alternateEvery: alternate,
		issueRetries:   issueRetries,
		claimRetries:   claimRetries,
		now:            now,
		location:       location,
	}
}

// IssueTicket hands out the next sequence number for the service and persists
// the ticket in one transaction. Serialization conflicts retry the whole
// transaction so the formatted number always matches the committed sequence.
func (s *Store) IssueTicket(ctx context.Context, input store.IssueTicketInput) (models.Ticket, bool, error) {
	type issueResult struct {
		ticket  models.Ticket
		created bool
	}

	operation := func() (issueResult, error) {
		ticket, created, err := s.issueTicketOnce(ctx, input)
		if err != nil {
			if isSerializationError(err) {
				return issueResult{}, store.ErrSequenceConflict
			}
			return issueResult{}, backoff.Permanent(err)
		}
		return issueResult{ticket: ticket, created: created}, nil
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = 10 * time.Millisecond
	expo.MaxInterval = 250 * time.Millisecond

	result, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(expo),
		backoff.WithMaxTries(uint(s.issueRetries)))
	if err != nil {
		if errors.Is(err, store.ErrSequenceConflict) {
			return models.Ticket{}, false, store.ErrIssuanceFailed
		}
		return models.Ticket{}, false, err
	}
	return result.ticket, result.created, nil
}

func (s *Store) issueTicketOnce(ctx context.Context, input store.IssueTicketInput) (models.Ticket, bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	existing, found, err := findTicketByRequestID(ctx, tx, input.RequestID)
	if err != nil {
		return models.Ticket{}, false, err
	}
	if found {
		if err = tx.Commit(ctx); err != nil {
			return models.Ticket{}, false, err
		}
		return existing, false, nil
	}

	var prefix string
	var priorityLevel int
	row := tx.QueryRow(ctx, `
		SELECT prefix, priority_level
		FROM services
		WHERE service_id = $1 AND active = TRUE
	`, input.ServiceID)
	if err = row.Scan(&prefix, &priorityLevel); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = store.ErrServiceNotFound
		}
		return models.Ticket{}, false, err
	}

	today := queue.DayOf(s.now(), s.location)
	seq, err := nextSequence(ctx, tx, input.ServiceID, today)
	if err != nil {
		return models.Ticket{}, false, err
	}
	number := queue.FormatTicketNumber(prefix, seq)

	createdAt := input.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now().UTC()
	}

	row = tx.QueryRow(ctx, `
		INSERT INTO tickets (
			ticket_id, request_id, number, service_id, priority_level, status, issued_for_date, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING `+ticketColumns, uuid.NewString(), input.RequestID, number, input.ServiceID, priorityLevel,
		models.StatusWaiting, today, createdAt)
	ticket, err := scanTicket(row)
	if err != nil {
		return models.Ticket{}, false, err
	}
	ticket.RequestID = input.RequestID

	// Advisory mirror of the live counter; the service_counters row stays
	// authoritative.
	if _, err = tx.Exec(ctx, `
		UPDATE services SET next_ticket_number = $1 WHERE service_id = $2
	`, seq+1, input.ServiceID); err != nil {
		return models.Ticket{}, false, err
	}

	if err = insertOutboxEvent(ctx, tx, "ticket.created", ticket); err != nil {
		return models.Ticket{}, false, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, false, err
	}
	return ticket, true, nil
}

// nextSequence serializes on the service_counters row. A strictly newer day
// archives the finished day into service_counter_history and resets the live
// row before incrementing; a backward clock step counts as the same day so
// sequence continuity is never lost.
func nextSequence(ctx context.Context, tx pgx.Tx, serviceID string, today time.Time) (int64, error) {
	if _, err := tx.Exec(ctx, `
		INSERT INTO service_counters (service_id, counter_date, last_seq)
		VALUES ($1, $2, 0)
		ON CONFLICT (service_id) DO NOTHING
	`, serviceID, today); err != nil {
		return 0, err
	}

	var counterDate time.Time
	var lastSeq int64
	row := tx.QueryRow(ctx, `
		SELECT counter_date, last_seq
		FROM service_counters
		WHERE service_id = $1
		FOR UPDATE
	`, serviceID)
	if err := row.Scan(&counterDate, &lastSeq); err != nil {
		return 0, err
	}

	if counterDate.Before(today) {
		if lastSeq > 0 {
			// GREATEST keeps the upsert idempotent under retry; a day is
			// archived at most once and never double counted.
			if _, err := tx.Exec(ctx, `
				INSERT INTO service_counter_history (service_id, counter_date, total_issued)
				VALUES ($1, $2, $3)
				ON CONFLICT (service_id, counter_date)
				DO UPDATE SET total_issued = GREATEST(service_counter_history.total_issued, EXCLUDED.total_issued)
			`, serviceID, counterDate, lastSeq); err != nil {
				return 0, err
			}
		}
		if _, err := tx.Exec(ctx, `
			UPDATE service_counters SET counter_date = $1, last_seq = 0 WHERE service_id = $2
		`, today, serviceID); err != nil {
			return 0, err
		}
	}

	var seq int64
	row = tx.QueryRow(ctx, `
		UPDATE service_counters SET last_seq = last_seq + 1 WHERE service_id = $1 RETURNING last_seq
	`, serviceID)
	if err := row.Scan(&seq); err != nil {
		return 0, err
	}
	return seq, nil
}

// CallNext selects and claims the operator's next ticket. Losing the
// optimistic claim race re-runs selection instead of surfacing an error.
func (s *Store) CallNext(ctx context.Context, input store.CallNextInput) (models.Ticket, bool, error) {
	var lastErr error
	for attempt := 0; attempt < s.claimRetries; attempt++ {
		ticket, created, err := s.callNextOnce(ctx, input)
		if err == nil || !errors.Is(err, store.ErrTicketClaimed) {
			return ticket, created, err
		}
		lastErr = err
	}
	return models.Ticket{}, false, lastErr
}

func (s *Store) callNextOnce(ctx context.Context, input store.CallNextInput) (models.Ticket, bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	existing, found, empty, err := findActionRequest(ctx, tx, "call_next", input.RequestID)
	if err != nil {
		return models.Ticket{}, false, err
	}
	if found {
		if err = tx.Commit(ctx); err != nil {
			return models.Ticket{}, false, err
		}
		if empty {
			return models.Ticket{}, false, store.ErrNoTicket
		}
		return existing, false, nil
	}

	var operatorID string
	row := tx.QueryRow(ctx, `
		SELECT operator_id FROM operators WHERE operator_id = $1 AND active = TRUE
	`, input.OperatorID)
	if err = row.Scan(&operatorID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = store.ErrOperatorNotFound
		}
		return models.Ticket{}, false, err
	}

	streak, err := lockDispatchCounter(ctx, tx, input.OperatorID)
	if err != nil {
		return models.Ticket{}, false, err
	}

	candidates, err := loadWaitingCandidates(ctx, tx, input.OperatorID)
	if err != nil {
		return models.Ticket{}, false, err
	}

	pick, newStreak, ok := queue.NextTicket(candidates, streak, s.alternateEvery)
	if !ok {
		if err = insertActionRequest(ctx, tx, "call_next", input.RequestID, ""); err != nil {
			return models.Ticket{}, false, err
		}
		if err = tx.Commit(ctx); err != nil {
			return models.Ticket{}, false, err
		}
		return models.Ticket{}, false, store.ErrNoTicket
	}

	calledAt := input.CalledAt
	if calledAt.IsZero() {
		calledAt = s.now().UTC()
	}

	row = tx.QueryRow(ctx, `
		UPDATE tickets
		SET status = 'called',
			called_at = $2,
			operator_id = $3
		WHERE ticket_id = $1 AND status = 'waiting'
		RETURNING `+ticketColumns, pick.TicketID, calledAt, input.OperatorID)
	ticket, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = store.ErrTicketClaimed
		}
		return models.Ticket{}, false, err
	}
	ticket.RequestID = input.RequestID

	if _, err = tx.Exec(ctx, `
		UPDATE dispatch_counters SET streak = $1 WHERE operator_id = $2
	`, newStreak, input.OperatorID); err != nil {
		return models.Ticket{}, false, err
	}

	if err = insertActionRequest(ctx, tx, "call_next", input.RequestID, ticket.TicketID); err != nil {
		return models.Ticket{}, false, err
	}
	if err = insertOutboxEvent(ctx, tx, "ticket.called", ticket); err != nil {
		return models.Ticket{}, false, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, false, err
	}
	return ticket, true, nil
}

func lockDispatchCounter(ctx context.Context, tx pgx.Tx, operatorID string) (int, error) {
	if _, err := tx.Exec(ctx, `
		INSERT INTO dispatch_counters (operator_id, streak)
		VALUES ($1, 0)
		ON CONFLICT (operator_id) DO NOTHING
	`, operatorID); err != nil {
		return 0, err
	}

	var streak int
	row := tx.QueryRow(ctx, `
		SELECT streak FROM dispatch_counters WHERE operator_id = $1 FOR UPDATE
	`, operatorID)
	if err := row.Scan(&streak); err != nil {
		return 0, err
	}
	return streak, nil
}

func loadWaitingCandidates(ctx context.Context, tx pgx.Tx, operatorID string) ([]queue.Candidate, error) {
	rows, err := tx.Query(ctx, `
		SELECT t.ticket_id, t.priority_level, t.created_at, t.requeued_at
		FROM tickets t
		JOIN operator_services os ON os.service_id = t.service_id
		JOIN services s ON s.service_id = t.service_id
		WHERE os.operator_id = $1 AND s.active = TRUE AND t.status = 'waiting'
	`, operatorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candidates []queue.Candidate
	for rows.Next() {
		var candidate queue.Candidate
		var requeuedAtNull sql.NullTime
		if err := rows.Scan(&candidate.TicketID, &candidate.PriorityLevel, &candidate.CreatedAt, &requeuedAtNull); err != nil {
			return nil, err
		}
		candidate.RequeuedAt = nullTimePtr(requeuedAtNull)
		candidates = append(candidates, candidate)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return candidates, nil
}

func (s *Store) StartAttention(ctx context.Context, input store.TicketActionInput) (models.Ticket, bool, error) {
	return s.applyTransition(ctx, input, "start", "ticket.in_progress", `
		UPDATE tickets
		SET status = 'in_progress',
			started_at = $2
		WHERE ticket_id = $1 AND status = 'called'
		RETURNING `+ticketColumns)
}

func (s *Store) Complete(ctx context.Context, input store.TicketActionInput) (models.Ticket, bool, error) {
	return s.applyTransition(ctx, input, "complete", "ticket.completed", `
		UPDATE tickets
		SET status = 'completed',
			completed_at = $2,
			attention_seconds = EXTRACT(EPOCH FROM ($2::timestamptz - started_at))::bigint
		WHERE ticket_id = $1 AND status = 'in_progress'
		RETURNING `+ticketColumns)
}

func (s *Store) MarkAbsent(ctx context.Context, input store.TicketActionInput) (models.Ticket, bool, error) {
	return s.applyTransition(ctx, input, "absent", "ticket.absent", `
		UPDATE tickets
		SET status = 'absent',
			absent_at = $2
		WHERE ticket_id = $1 AND status = 'called'
		RETURNING `+ticketColumns)
}

// Requeue puts an absent ticket back in line. The requeued_at stamp becomes
// its ordering key, so the ticket waits behind everything created before the
// requeue rather than resuming its original position.
func (s *Store) Requeue(ctx context.Context, input store.TicketActionInput) (models.Ticket, bool, error) {
	return s.applyTransition(ctx, input, "requeue", "ticket.requeued", `
		UPDATE tickets
		SET status = 'waiting',
			requeued_at = $2,
			called_at = NULL,
			operator_id = NULL
		WHERE ticket_id = $1 AND status = 'absent'
		RETURNING `+ticketColumns)
}

func (s *Store) Cancel(ctx context.Context, input store.TicketActionInput) (models.Ticket, bool, error) {
	return s.applyTransition(ctx, input, "cancel", "ticket.cancelled", `
		UPDATE tickets
		SET status = 'cancelled',
			cancelled_at = $2
		WHERE ticket_id = $1 AND status IN ('waiting', 'called')
		RETURNING `+ticketColumns)
}

func (s *Store) applyTransition(ctx context.Context, input store.TicketActionInput, action, eventType, query string) (models.Ticket, bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	existing, found, empty, err := findActionRequest(ctx, tx, action, input.RequestID)
	if err != nil {
		return models.Ticket{}, false, err
	}
	if found {
		if err = tx.Commit(ctx); err != nil {
			return models.Ticket{}, false, err
		}
		if empty {
			return models.Ticket{}, false, store.ErrInvalidTransition
		}
		return existing, false, nil
	}

	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = s.now().UTC()
	}

	row := tx.QueryRow(ctx, query, input.TicketID, occurredAt)
	ticket, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			status, exists, stateErr := loadTicketStatus(ctx, tx, input.TicketID)
			if stateErr != nil {
				err = stateErr
				return models.Ticket{}, false, err
			}
			if !exists {
				err = store.ErrTicketNotFound
				return models.Ticket{}, false, err
			}
			if store.ValidTransition(action, status) {
				// table says the move is legal but the guarded update
				// missed, so another writer got there first
				err = store.ErrTicketClaimed
			} else {
				err = store.ErrInvalidTransition
			}
		}
		return models.Ticket{}, false, err
	}
	ticket.RequestID = input.RequestID

	if err = insertActionRequest(ctx, tx, action, input.RequestID, ticket.TicketID); err != nil {
		return models.Ticket{}, false, err
	}
	if err = insertOutboxEvent(ctx, tx, eventType, ticket); err != nil {
		return models.Ticket{}, false, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, false, err
	}
	return ticket, true, nil
}

// AutoAbsent marks called tickets absent once the grace window has passed
// without the operator starting attention. Run periodically from main.
func (s *Store) AutoAbsent(ctx context.Context, grace time.Duration, batchSize int) (int, error) {
	if grace <= 0 {
		return 0, nil
	}
	if batchSize <= 0 {
		batchSize = 100
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	now := s.now().UTC()
	cutoff := now.Add(-grace)
	rows, err := tx.Query(ctx, `
		SELECT ticket_id
		FROM tickets
		WHERE status = 'called' AND called_at <= $1
		ORDER BY called_at ASC
		FOR UPDATE SKIP LOCKED
		LIMIT $2
	`, cutoff, batchSize)
	if err != nil {
		return 0, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return 0, err
	}

	processed := 0
	for _, id := range ids {
		row := tx.QueryRow(ctx, `
			UPDATE tickets
			SET status = 'absent',
				absent_at = $2
			WHERE ticket_id = $1 AND status = 'called'
			RETURNING `+ticketColumns, id, now)
		ticket, scanErr := scanTicket(row)
		if scanErr != nil {
			if errors.Is(scanErr, pgx.ErrNoRows) {
				continue
			}
			err = scanErr
			return 0, err
		}
		if err = insertOutboxEvent(ctx, tx, "ticket.absent", ticket); err != nil {
			return 0, err
		}
		processed++
	}

	if err = tx.Commit(ctx); err != nil {
		return 0, err
	}
	return processed, nil
}

func (s *Store) GetTicket(ctx context.Context, ticketID string) (models.Ticket, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+ticketColumns+`
		FROM tickets
		WHERE ticket_id = $1
	`, ticketID)
	ticket, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Ticket{}, false, store.ErrTicketNotFound
		}
		return models.Ticket{}, false, err
	}
	return ticket, true, nil
}

func (s *Store) SnapshotTickets(ctx context.Context, serviceID string) ([]models.Ticket, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+ticketColumns+`
		FROM tickets
		WHERE service_id = $1 AND status IN ('waiting', 'called', 'in_progress')
		ORDER BY COALESCE(requeued_at, created_at) ASC
	`, serviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tickets []models.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, ticket)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tickets, nil
}

func (s *Store) GetActiveTicket(ctx context.Context, operatorID string) (models.Ticket, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+ticketColumns+`
		FROM tickets
		WHERE operator_id = $1 AND status IN ('called', 'in_progress')
		ORDER BY called_at DESC
		LIMIT 1
	`, operatorID)
	ticket, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Ticket{}, false, nil
		}
		return models.Ticket{}, false, err
	}
	return ticket, true, nil
}

func (s *Store) ListServices(ctx context.Context) ([]models.Service, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT service_id, name, prefix, priority_level, active, system_locked, next_ticket_number
		FROM services
		WHERE active = TRUE
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var services []models.Service
	for rows.Next() {
		var svc models.Service
		if err := rows.Scan(&svc.ServiceID, &svc.Name, &svc.Prefix, &svc.PriorityLevel, &svc.Active, &svc.SystemLocked, &svc.NextTicketNumber); err != nil {
			return nil, err
		}
		services = append(services, svc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return services, nil
}

func (s *Store) ListOutboxEvents(ctx context.Context, after time.Time, limit int) ([]store.OutboxEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT event_id, type, payload_json, created_at
		FROM outbox_events
	`
	args := []interface{}{}
	if !after.IsZero() {
		query += " WHERE created_at > $1 ORDER BY created_at ASC LIMIT $2"
		args = append(args, after, limit)
	} else {
		query += " ORDER BY created_at ASC LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []store.OutboxEvent
	for rows.Next() {
		var event store.OutboxEvent
		if err := rows.Scan(&event.EventID, &event.Type, &event.Payload, &event.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

func findTicketByRequestID(ctx context.Context, tx pgx.Tx, requestID string) (models.Ticket, bool, error) {
	row := tx.QueryRow(ctx, `
		SELECT `+ticketColumns+`
		FROM tickets
		WHERE request_id = $1
	`, requestID)
	ticket, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Ticket{}, false, nil
		}
		return models.Ticket{}, false, err
	}
	ticket.RequestID = requestID
	return ticket, true, nil
}

func findActionRequest(ctx context.Context, tx pgx.Tx, action, requestID string) (models.Ticket, bool, bool, error) {
	var ticketIDNull sql.NullString
	row := tx.QueryRow(ctx, `
		SELECT ticket_id FROM action_requests WHERE action = $1 AND request_id = $2
	`, action, requestID)
	if err := row.Scan(&ticketIDNull); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Ticket{}, false, false, nil
		}
		return models.Ticket{}, false, false, err
	}
	if !ticketIDNull.Valid || ticketIDNull.String == "" {
		return models.Ticket{}, true, true, nil
	}

	row = tx.QueryRow(ctx, `
		SELECT `+ticketColumns+`
		FROM tickets
		WHERE ticket_id = $1
	`, ticketIDNull.String)
	ticket, err := scanTicket(row)
	if err != nil {
		return models.Ticket{}, false, false, err
	}
	ticket.RequestID = requestID
	return ticket, true, false, nil
}

func insertActionRequest(ctx context.Context, tx pgx.Tx, action, requestID, ticketID string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO action_requests (action, request_id, ticket_id, created_at)
		VALUES ($1, $2, NULLIF($3, ''), $4)
	`, action, requestID, ticketID, time.Now().UTC())
	return err
}

func insertOutboxEvent(ctx context.Context, tx pgx.Tx, eventType string, ticket models.Ticket) error {
	payload, err := json.Marshal(ticket)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO outbox_events (event_id, type, payload_json, created_at)
		VALUES ($1, $2, $3, $4)
	`, uuid.NewString(), eventType, payload, time.Now().UTC())
	return err
}

func loadTicketStatus(ctx context.Context, tx pgx.Tx, ticketID string) (string, bool, error) {
	var status string
	row := tx.QueryRow(ctx, `
		SELECT status FROM tickets WHERE ticket_id = $1
	`, ticketID)
	if err := row.Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return status, true, nil
}

func isSerializationError(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	// serialization_failure, deadlock_detected, unique_violation: all mean
	// the increment lost a race and the whole issuance must rerun.
	switch pgErr.Code {
	case "40001", "40P01", "23505":
		return true
	default:
		return false
	}
}

func scanTicket(row pgx.Row) (models.Ticket, error) {
	var ticket models.Ticket
	var issuedForDate time.Time
	var calledAtNull, startedAtNull, completedAtNull, absentAtNull, requeuedAtNull, cancelledAtNull sql.NullTime
	var attentionNull sql.NullInt64
	var operatorIDNull sql.NullString
	if err := row.Scan(&ticket.TicketID, &ticket.Number, &ticket.ServiceID, &ticket.PriorityLevel,
		&ticket.Status, &issuedForDate, &ticket.CreatedAt, &calledAtNull, &startedAtNull,
		&completedAtNull, &absentAtNull, &requeuedAtNull, &cancelledAtNull, &attentionNull, &operatorIDNull); err != nil {
		return models.Ticket{}, err
	}
	ticket.IssuedForDate = issuedForDate.Format("2006-01-02")
	ticket.CalledAt = nullTimePtr(calledAtNull)
	ticket.StartedAt = nullTimePtr(startedAtNull)
	ticket.CompletedAt = nullTimePtr(completedAtNull)
	ticket.AbsentAt = nullTimePtr(absentAtNull)
	ticket.RequeuedAt = nullTimePtr(requeuedAtNull)
	ticket.CancelledAt = nullTimePtr(cancelledAtNull)
	if attentionNull.Valid {
		ticket.AttentionSeconds = &attentionNull.Int64
	}
	if operatorIDNull.Valid {
		ticket.OperatorID = &operatorIDNull.String
	}
	return ticket, nil
}

func nullTimePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	t := value.Time
	return &t
}
