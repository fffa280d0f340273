package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"qline/queue-service/internal/models"
	"qline/queue-service/internal/store"
)

type fakeStore struct {
	issueFn    func(ctx context.Context, input store.IssueTicketInput) (models.Ticket, bool, error)
	getFn      func(ctx context.Context, ticketID string) (models.Ticket, bool, error)
	callFn     func(ctx context.Context, input store.CallNextInput) (models.Ticket, bool, error)
	startFn    func(ctx context.Context, input store.TicketActionInput) (models.Ticket, bool, error)
	completeFn func(ctx context.Context, input store.TicketActionInput) (models.Ticket, bool, error)
	absentFn   func(ctx context.Context, input store.TicketActionInput) (models.Ticket, bool, error)
	requeueFn  func(ctx context.Context, input store.TicketActionInput) (models.Ticket, bool, error)
	cancelFn   func(ctx context.Context, input store.TicketActionInput) (models.Ticket, bool, error)
	snapshotFn func(ctx context.Context, serviceID string) ([]models.Ticket, error)
	activeFn   func(ctx context.Context, operatorID string) (models.Ticket, bool, error)
	servicesFn func(ctx context.Context) ([]models.Service, error)
	eventsFn   func(ctx context.Context, after time.Time, limit int) ([]store.OutboxEvent, error)
}

func (f fakeStore) IssueTicket(ctx context.Context, input store.IssueTicketInput) (models.Ticket, bool, error) {
	if f.issueFn == nil {
		return models.Ticket{}, false, nil
	}
	return f.issueFn(ctx, input)
}

func (f fakeStore) GetTicket(ctx context.Context, ticketID string) (models.Ticket, bool, error) {
	if f.getFn == nil {
		return models.Ticket{}, false, nil
	}
	return f.getFn(ctx, ticketID)
}

func (f fakeStore) CallNext(ctx context.Context, input store.CallNextInput) (models.Ticket, bool, error) {
	if f.callFn == nil {
		return models.Ticket{}, false, nil
	}
	return f.callFn(ctx, input)
}

func (f fakeStore) StartAttention(ctx context.Context, input store.TicketActionInput) (models.Ticket, bool, error) {
	if f.startFn == nil {
		return models.Ticket{}, false, nil
	}
	return f.startFn(ctx, input)
}

func (f fakeStore) Complete(ctx context.Context, input store.TicketActionInput) (models.Ticket, bool, error) {
	if f.completeFn == nil {
		return models.Ticket{}, false, nil
	}
	return f.completeFn(ctx, input)
}

func (f fakeStore) MarkAbsent(ctx context.Context, input store.TicketActionInput) (models.Ticket, bool, error) {
	if f.absentFn == nil {
		return models.Ticket{}, false, nil
	}
	return f.absentFn(ctx, input)
}

func (f fakeStore) Requeue(ctx context.Context, input store.TicketActionInput) (models.Ticket, bool, error) {
	if f.requeueFn == nil {
		return models.Ticket{}, false, nil
	}
	return f.requeueFn(ctx, input)
}

func (f fakeStore) Cancel(ctx context.Context, input store.TicketActionInput) (models.Ticket, bool, error) {
	if f.cancelFn == nil {
		return models.Ticket{}, false, nil
	}
	return f.cancelFn(ctx, input)
}

func (f fakeStore) SnapshotTickets(ctx context.Context, serviceID string) ([]models.Ticket, error) {
	if f.snapshotFn == nil {
		return nil, nil
	}
	return f.snapshotFn(ctx, serviceID)
}

func (f fakeStore) GetActiveTicket(ctx context.Context, operatorID string) (models.Ticket, bool, error) {
	if f.activeFn == nil {
		return models.Ticket{}, false, nil
	}
	return f.activeFn(ctx, operatorID)
}

func (f fakeStore) ListServices(ctx context.Context) ([]models.Service, error) {
	if f.servicesFn == nil {
		return nil, nil
	}
	return f.servicesFn(ctx)
}

func (f fakeStore) ListOutboxEvents(ctx context.Context, after time.Time, limit int) ([]store.OutboxEvent, error) {
	if f.eventsFn == nil {
		return nil, nil
	}
	return f.eventsFn(ctx, after, limit)
}

const (
	testRequestID  = "11111111-1111-1111-1111-111111111111"
	testServiceID  = "22222222-2222-2222-2222-222222222222"
	testOperatorID = "33333333-3333-3333-3333-333333333333"
	testTicketID   = "44444444-4444-4444-4444-444444444444"
)

func postJSON(t *testing.T, h *Handler, path string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	resp := httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)
	return resp
}

func TestIssueTicketSuccess(t *testing.T) {
	st := fakeStore{
		issueFn: func(ctx context.Context, input store.IssueTicketInput) (models.Ticket, bool, error) {
			return models.Ticket{
				TicketID:      testTicketID,
				Number:        "HD001",
				ServiceID:     input.ServiceID,
				PriorityLevel: 1,
				Status:        models.StatusWaiting,
				RequestID:     input.RequestID,
			}, true, nil
		},
	}
	h := NewHandler(st)

	resp := postJSON(t, h, "/api/tickets", map[string]string{
		"request_id": testRequestID,
		"service_id": testServiceID,
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}

	var ticket models.Ticket
	if err := json.NewDecoder(resp.Body).Decode(&ticket); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if ticket.Number != "HD001" {
		t.Fatalf("expected number HD001, got %s", ticket.Number)
	}
}

func TestIssueTicketMissingFields(t *testing.T) {
	h := NewHandler(fakeStore{})

	resp := postJSON(t, h, "/api/tickets", map[string]string{
		"request_id": testRequestID,
	})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestIssueTicketServiceNotFound(t *testing.T) {
	st := fakeStore{
		issueFn: func(ctx context.Context, input store.IssueTicketInput) (models.Ticket, bool, error) {
			return models.Ticket{}, false, store.ErrServiceNotFound
		},
	}
	h := NewHandler(st)

	resp := postJSON(t, h, "/api/tickets", map[string]string{
		"request_id": testRequestID,
		"service_id": testServiceID,
	})
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", resp.Code)
	}

	var errResp errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if errResp.Error.Code != "service_not_found" {
		t.Fatalf("expected error code service_not_found, got %s", errResp.Error.Code)
	}
}

func TestIssueTicketIssuanceFailed(t *testing.T) {
	st := fakeStore{
		issueFn: func(ctx context.Context, input store.IssueTicketInput) (models.Ticket, bool, error) {
			return models.Ticket{}, false, store.ErrIssuanceFailed
		},
	}
	h := NewHandler(st)

	resp := postJSON(t, h, "/api/tickets", map[string]string{
		"request_id": testRequestID,
		"service_id": testServiceID,
	})
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", resp.Code)
	}
}

func TestCallNextSuccess(t *testing.T) {
	calledAt := time.Date(2026, 1, 12, 8, 1, 0, 0, time.UTC)
	operatorID := testOperatorID
	st := fakeStore{
		callFn: func(ctx context.Context, input store.CallNextInput) (models.Ticket, bool, error) {
			return models.Ticket{
				TicketID:      testTicketID,
				Number:        "HD002",
				Status:        models.StatusCalled,
				PriorityLevel: 6,
				RequestID:     input.RequestID,
				CalledAt:      &calledAt,
				OperatorID:    &operatorID,
			}, true, nil
		},
	}
	h := NewHandler(st)

	resp := postJSON(t, h, "/api/tickets/actions/call-next", map[string]string{
		"request_id":  testRequestID,
		"operator_id": testOperatorID,
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}

	var ticket models.Ticket
	if err := json.NewDecoder(resp.Body).Decode(&ticket); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if ticket.Status != models.StatusCalled {
		t.Fatalf("expected status called, got %s", ticket.Status)
	}
}

func TestCallNextQueueEmpty(t *testing.T) {
	st := fakeStore{
		callFn: func(ctx context.Context, input store.CallNextInput) (models.Ticket, bool, error) {
			return models.Ticket{}, false, store.ErrNoTicket
		},
	}
	h := NewHandler(st)

	resp := postJSON(t, h, "/api/tickets/actions/call-next", map[string]string{
		"request_id":  testRequestID,
		"operator_id": testOperatorID,
	})
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", resp.Code)
	}

	var errResp errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if errResp.Error.Code != "queue_empty" {
		t.Fatalf("expected error code queue_empty, got %s", errResp.Error.Code)
	}
}

func TestCompleteInvalidTransition(t *testing.T) {
	st := fakeStore{
		completeFn: func(ctx context.Context, input store.TicketActionInput) (models.Ticket, bool, error) {
			return models.Ticket{}, false, store.ErrInvalidTransition
		},
	}
	h := NewHandler(st)

	resp := postJSON(t, h, "/api/tickets/"+testTicketID+"/actions/complete", map[string]string{
		"request_id": testRequestID,
	})
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", resp.Code)
	}

	var errResp errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if errResp.Error.Code != "invalid_transition" {
		t.Fatalf("expected error code invalid_transition, got %s", errResp.Error.Code)
	}
}

func TestRequeueRoutesToStore(t *testing.T) {
	var gotTicketID string
	st := fakeStore{
		requeueFn: func(ctx context.Context, input store.TicketActionInput) (models.Ticket, bool, error) {
			gotTicketID = input.TicketID
			return models.Ticket{TicketID: input.TicketID, Status: models.StatusWaiting}, true, nil
		},
	}
	h := NewHandler(st)

	resp := postJSON(t, h, "/api/tickets/"+testTicketID+"/actions/requeue", map[string]string{
		"request_id": testRequestID,
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	if gotTicketID != testTicketID {
		t.Fatalf("expected ticket id %s, got %s", testTicketID, gotTicketID)
	}
}

func TestUnknownActionNotFound(t *testing.T) {
	h := NewHandler(fakeStore{})

	resp := postJSON(t, h, "/api/tickets/"+testTicketID+"/actions/hold", map[string]string{
		"request_id": testRequestID,
	})
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", resp.Code)
	}
}

func TestSnapshotRequiresServiceID(t *testing.T) {
	h := NewHandler(fakeStore{})

	req := httptest.NewRequest(http.MethodGet, "/api/tickets/snapshot", nil)
	resp := httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestSnapshotSuccess(t *testing.T) {
	st := fakeStore{
		snapshotFn: func(ctx context.Context, serviceID string) ([]models.Ticket, error) {
			return []models.Ticket{{TicketID: testTicketID, Number: "HD005"}}, nil
		},
	}
	h := NewHandler(st)

	req := httptest.NewRequest(http.MethodGet, "/api/tickets/snapshot?service_id="+testServiceID, nil)
	resp := httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
}

func TestActiveTicketNoContent(t *testing.T) {
	h := NewHandler(fakeStore{})

	req := httptest.NewRequest(http.MethodGet, "/api/tickets/active?operator_id="+testOperatorID, nil)
	resp := httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)
	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", resp.Code)
	}
}

func TestGetTicketNotFound(t *testing.T) {
	st := fakeStore{
		getFn: func(ctx context.Context, ticketID string) (models.Ticket, bool, error) {
			return models.Ticket{}, false, store.ErrTicketNotFound
		},
	}
	h := NewHandler(st)

	req := httptest.NewRequest(http.MethodGet, "/api/tickets/"+testTicketID, nil)
	resp := httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", resp.Code)
	}
}

func TestServicesList(t *testing.T) {
	st := fakeStore{
		servicesFn: func(ctx context.Context) ([]models.Service, error) {
			return []models.Service{{ServiceID: testServiceID, Prefix: "HD", NextTicketNumber: 7}}, nil
		},
	}
	h := NewHandler(st)

	req := httptest.NewRequest(http.MethodGet, "/api/services", nil)
	resp := httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}

	var services []models.Service
	if err := json.NewDecoder(resp.Body).Decode(&services); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(services) != 1 || services[0].NextTicketNumber != 7 {
		t.Fatalf("unexpected services payload: %+v", services)
	}
}

func TestEventsBadAfterParam(t *testing.T) {
	h := NewHandler(fakeStore{})

	req := httptest.NewRequest(http.MethodGet, "/api/events?after=yesterday", nil)
	resp := httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}
