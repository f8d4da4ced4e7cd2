package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voucher-pos/config"
	"voucher-pos/internal/ledger"
	"voucher-pos/internal/status"
	"voucher-pos/internal/voucher"
	"voucher-pos/models"
)

// fakeLedger is an in-memory Ledger with the same transition semantics
// as the real store: unique codes, atomic ticket+sale, forward-only
// payment status.
type fakeLedger struct {
	mu      sync.Mutex
	plans   map[string]*models.Plan
	pos     map[string]*models.PointOfSale
	tickets map[string]*models.Ticket
	codes   map[string]string // code -> ticket id
	sales   map[string]*models.Sale
	nextID  int

	createErr error // forced persistence failure
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		plans:   map[string]*models.Plan{},
		pos:     map[string]*models.PointOfSale{},
		tickets: map[string]*models.Ticket{},
		codes:   map[string]string{},
		sales:   map[string]*models.Sale{},
	}
}

func (f *fakeLedger) id(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

func (f *fakeLedger) GetPlan(id string) (*models.Plan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.plans[id]; ok {
		return p, nil
	}
	return nil, status.ErrPlanNotFound
}

func (f *fakeLedger) GetPointOfSale(id string) (*models.PointOfSale, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.pos[id]; ok {
		return p, nil
	}
	return nil, status.ErrPointOfSaleNotFound
}

func (f *fakeLedger) GetTicket(id string) (*models.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t, ok := f.tickets[id]; ok {
		copied := *t
		return &copied, nil
	}
	return nil, status.ErrTicketNotFound
}

func (f *fakeLedger) GetSale(id string) (*models.Sale, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sales[id]; ok {
		copied := *s
		return &copied, nil
	}
	return nil, status.ErrSaleNotFound
}

func (f *fakeLedger) FindTicketByCode(code string) (*models.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id, ok := f.codes[code]; ok {
		copied := *f.tickets[id]
		return &copied, nil
	}
	return nil, status.ErrTicketNotFound
}

func (f *fakeLedger) CreateTicketAndSale(p ledger.CreateParams) (*models.Ticket, *models.Sale, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.createErr != nil {
		return nil, nil, f.createErr
	}
	if _, dup := f.codes[p.Code]; dup {
		return nil, nil, status.ErrCodeConflict
	}

	ticket := &models.Ticket{
		ID:            f.id("ticket"),
		Code:          p.Code,
		PlanID:        p.Plan.ID,
		PointOfSaleID: p.PointOfSaleID,
		Status:        models.TicketStatusAvailable,
		CreatedAt:     time.Now(),
	}
	sale := &models.Sale{
		ID:            f.id("sale"),
		TicketID:      ticket.ID,
		PlanID:        p.Plan.ID,
		PointOfSaleID: p.PointOfSaleID,
		CashierID:     p.CashierID,
		PaymentMethod: p.PaymentMethod,
		Amount:        p.Plan.Price,
		PaymentStatus: models.PaymentStatusPending,
		CreatedAt:     time.Now(),
	}

	f.tickets[ticket.ID] = ticket
	f.codes[ticket.Code] = ticket.ID
	f.sales[sale.ID] = sale

	t, s := *ticket, *sale
	return &t, &s, nil
}

func (f *fakeLedger) CreateTicket(p ledger.CreateParams) (*models.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, dup := f.codes[p.Code]; dup {
		return nil, status.ErrCodeConflict
	}

	ticket := &models.Ticket{
		ID:            f.id("ticket"),
		Code:          p.Code,
		PlanID:        p.Plan.ID,
		PointOfSaleID: p.PointOfSaleID,
		Status:        models.TicketStatusAvailable,
		CreatedAt:     time.Now(),
	}
	f.tickets[ticket.ID] = ticket
	f.codes[ticket.Code] = ticket.ID

	t := *ticket
	return &t, nil
}

func (f *fakeLedger) settle(saleID, transactionID, to string) error {
	sale, ok := f.sales[saleID]
	if !ok {
		return status.ErrSaleNotFound
	}
	switch {
	case sale.PaymentStatus == to:
		// idempotent
	case models.CanTransitionPayment(sale.PaymentStatus, to):
		sale.PaymentStatus = to
		if transactionID != "" {
			sale.TransactionID = transactionID
		}
	default:
		return status.ErrPaymentFinalized
	}
	if to == models.PaymentStatusCompleted {
		if t, ok := f.tickets[sale.TicketID]; ok && t.Status == models.TicketStatusAvailable {
			t.Status = models.TicketStatusSold
		}
	}
	return nil
}

func (f *fakeLedger) MarkCashCompleted(ticketID, saleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.settle(saleID, "", models.PaymentStatusCompleted)
}

func (f *fakeLedger) CompleteSale(saleID, transactionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.settle(saleID, transactionID, models.PaymentStatusCompleted)
}

func (f *fakeLedger) FailSale(saleID, transactionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.settle(saleID, transactionID, models.PaymentStatusFailed)
}

func (f *fakeLedger) MarkProvisioned(ticketID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tickets[ticketID]
	if !ok {
		return status.ErrTicketNotFound
	}
	now := time.Now()
	t.Provisioned = true
	t.ProvisionedAt = &now
	return nil
}

func (f *fakeLedger) ListUnprovisioned(limit int) ([]*models.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*models.Ticket{}
	for _, t := range f.tickets {
		if t.Status == models.TicketStatusSold && !t.Provisioned {
			copied := *t
			out = append(out, &copied)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

type provisionCall struct {
	code  string
	hours int
}

type fakeProvisioner struct {
	mu         sync.Mutex
	failCreate bool
	created    []provisionCall
}

func (p *fakeProvisioner) CreateAccessCode(ctx context.Context, code string, durationHours int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failCreate {
		return errors.New("mikrotik create: connection refused")
	}
	p.created = append(p.created, provisionCall{code: code, hours: durationHours})
	return nil
}

func (p *fakeProvisioner) Exists(ctx context.Context, code string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.created {
		if c.code == code {
			return true, nil
		}
	}
	return false, nil
}

func (p *fakeProvisioner) Delete(ctx context.Context, code string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	kept := p.created[:0]
	for _, c := range p.created {
		if c.code != code {
			kept = append(kept, c)
		}
	}
	p.created = kept
	return nil
}

type fakeQueue struct {
	mu       sync.Mutex
	enqueued []string
}

func (q *fakeQueue) Enqueue(ctx context.Context, ticketID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.enqueued = append(q.enqueued, ticketID)
	return nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	alerts []string
}

func (n *fakeNotifier) ProvisioningFailed(ticketID, code, pointOfSaleID string, cause error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, ticketID)
}

func testConfig() *config.Config {
	return &config.Config{
		CodeInsertRetries: 3,
		BulkBatchLimit:    500,
		DeviceTimeout:     time.Second,
	}
}

func setupIssueService(t *testing.T) (*IssueService, *fakeLedger, *fakeProvisioner, *fakeQueue, *fakeNotifier) {
	t.Helper()

	fl := newFakeLedger()
	fl.plans["plan-1"] = &models.Plan{
		ID:            "plan-1",
		Name:          "2h Access",
		DurationHours: 2,
		Price:         decimal.NewFromInt(1000),
		IsActive:      true,
	}
	fl.pos["pos-1"] = &models.PointOfSale{
		ID:         "pos-1",
		Name:       "Kiosk Centre",
		DeviceHost: "192.168.88.1",
	}

	prov := &fakeProvisioner{}
	queue := &fakeQueue{}
	notifier := &fakeNotifier{}

	svc := NewIssueService(fl, queue, notifier, testConfig())
	svc.newProvisioner = func(pos *models.PointOfSale) Provisioner { return prov }

	return svc, fl, prov, queue, notifier
}

func cashRequest() *models.PurchaseRequest {
	return &models.PurchaseRequest{
		PlanID:        "plan-1",
		PaymentMethod: models.PaymentMethodCash,
		CashierID:     "cashier-1",
		PointOfSaleID: "pos-1",
	}
}

func TestIssue_CashPurchase(t *testing.T) {
	svc, fl, prov, _, _ := setupIssueService(t)

	result, err := svc.Issue(context.Background(), cashRequest())
	require.NoError(t, err)

	assert.True(t, voucher.IsValidFormat(result.Code))
	assert.Equal(t, "2h Access", result.PlanName)
	assert.Equal(t, 2, result.DurationHours)
	assert.True(t, decimal.NewFromInt(1000).Equal(result.Price))
	assert.Equal(t, models.PaymentStatusCompleted, result.PaymentStatus)
	assert.Equal(t, models.TicketStatusSold, result.TicketStatus)
	assert.True(t, result.Provisioned)

	// Ledger state settled synchronously for cash.
	sale, err := fl.GetSale(result.SaleID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCompleted, sale.PaymentStatus)
	assert.True(t, decimal.NewFromInt(1000).Equal(sale.Amount))

	ticket, err := fl.GetTicket(result.TicketID)
	require.NoError(t, err)
	assert.Equal(t, models.TicketStatusSold, ticket.Status)
	assert.True(t, ticket.Provisioned)

	// The device got the credential with the plan's duration.
	require.Len(t, prov.created, 1)
	assert.Equal(t, result.Code, prov.created[0].code)
	assert.Equal(t, 2, prov.created[0].hours)
}

func TestIssue_MobileMoneyStaysPending(t *testing.T) {
	svc, fl, _, _, _ := setupIssueService(t)

	req := cashRequest()
	req.PaymentMethod = models.PaymentMethodMvola
	req.CustomerPhone = "0321234567"

	result, err := svc.Issue(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, models.PaymentStatusPending, result.PaymentStatus)
	assert.Equal(t, models.TicketStatusAvailable, result.TicketStatus)

	sale, err := fl.GetSale(result.SaleID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, sale.PaymentStatus)

	ticket, err := fl.GetTicket(result.TicketID)
	require.NoError(t, err)
	assert.Equal(t, models.TicketStatusAvailable, ticket.Status)
}

func TestIssue_ProvisioningFailureDoesNotVoidSale(t *testing.T) {
	svc, fl, prov, queue, notifier := setupIssueService(t)
	prov.failCreate = true

	result, err := svc.Issue(context.Background(), cashRequest())
	require.NoError(t, err, "a dead router must not abort a recorded purchase")

	assert.NotEmpty(t, result.Code)
	assert.False(t, result.Provisioned)
	// Cash finalization still happens.
	assert.Equal(t, models.PaymentStatusCompleted, result.PaymentStatus)
	assert.Equal(t, models.TicketStatusSold, result.TicketStatus)

	ticket, err := fl.GetTicket(result.TicketID)
	require.NoError(t, err)
	assert.False(t, ticket.Provisioned)

	// Divergence is surfaced: retry queue and operator alert.
	assert.Equal(t, []string{result.TicketID}, queue.enqueued)
	assert.Equal(t, []string{result.TicketID}, notifier.alerts)

	unprovisioned, err := svc.Unprovisioned(10)
	require.NoError(t, err)
	require.Len(t, unprovisioned, 1)
	assert.Equal(t, result.TicketID, unprovisioned[0].ID)
}

func TestIssue_Validation(t *testing.T) {
	svc, _, _, _, _ := setupIssueService(t)

	tests := []struct {
		name   string
		mutate func(*models.PurchaseRequest)
	}{
		{"missing plan", func(r *models.PurchaseRequest) { r.PlanID = "" }},
		{"missing payment method", func(r *models.PurchaseRequest) { r.PaymentMethod = "" }},
		{"missing point of sale", func(r *models.PurchaseRequest) { r.PointOfSaleID = "" }},
		{"missing cashier", func(r *models.PurchaseRequest) { r.CashierID = "" }},
		{"unknown payment method", func(r *models.PurchaseRequest) { r.PaymentMethod = "cheque" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := cashRequest()
			tt.mutate(req)

			_, err := svc.Issue(context.Background(), req)
			assert.ErrorIs(t, err, status.ErrInvalidRequest)
		})
	}
}

func TestIssue_PlanNotFound(t *testing.T) {
	svc, _, _, _, _ := setupIssueService(t)

	req := cashRequest()
	req.PlanID = "missing"

	_, err := svc.Issue(context.Background(), req)
	assert.ErrorIs(t, err, status.ErrPlanNotFound)
}

func TestIssue_PointOfSaleNotFound(t *testing.T) {
	svc, _, _, _, _ := setupIssueService(t)

	req := cashRequest()
	req.PointOfSaleID = "missing"

	_, err := svc.Issue(context.Background(), req)
	assert.ErrorIs(t, err, status.ErrPointOfSaleNotFound)
}

func TestIssue_RegeneratesOnCodeConflict(t *testing.T) {
	svc, fl, _, _, _ := setupIssueService(t)

	// Occupy the code the generator will produce first.
	fl.plans["plan-1"].ID = "plan-1"
	_, err := fl.CreateTicket(ledger.CreateParams{Code: "AAAA-AAAA-AAAA", Plan: fl.plans["plan-1"], PointOfSaleID: "pos-1"})
	require.NoError(t, err)

	calls := 0
	svc.newCode = func() (string, error) {
		calls++
		if calls == 1 {
			return "AAAA-AAAA-AAAA", nil
		}
		return "BBBB-BBBB-BBBB", nil
	}

	result, err := svc.Issue(context.Background(), cashRequest())
	require.NoError(t, err)
	assert.Equal(t, "BBBB-BBBB-BBBB", result.Code)
	assert.Equal(t, 2, calls)
}

func TestIssue_ConflictBoundExhausted(t *testing.T) {
	svc, fl, _, _, _ := setupIssueService(t)

	_, err := fl.CreateTicket(ledger.CreateParams{Code: "AAAA-AAAA-AAAA", Plan: fl.plans["plan-1"], PointOfSaleID: "pos-1"})
	require.NoError(t, err)

	calls := 0
	svc.newCode = func() (string, error) {
		calls++
		return "AAAA-AAAA-AAAA", nil
	}

	_, err = svc.Issue(context.Background(), cashRequest())
	assert.ErrorIs(t, err, status.ErrCodeExhausted)
	assert.Equal(t, 3, calls)
}

func TestIssue_PersistenceFailureIsFatal(t *testing.T) {
	svc, fl, prov, _, _ := setupIssueService(t)
	fl.createErr = errors.New("ledger: save ticket: disk I/O error")

	_, err := svc.Issue(context.Background(), cashRequest())
	require.Error(t, err)
	assert.NotErrorIs(t, err, status.ErrCodeExhausted)

	// Nothing was provisioned for a purchase that never persisted.
	assert.Empty(t, prov.created)
}

func TestIssue_ConcurrentSameFirstCode(t *testing.T) {
	svc, fl, _, _, _ := setupIssueService(t)

	// Both goroutines draw the same code first; later draws are unique.
	var mu sync.Mutex
	calls := 0
	svc.newCode = func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls <= 2 {
			return "SAME-SAME-SAME", nil
		}
		return fmt.Sprintf("RETR-Y%03d-CODE", calls), nil
	}

	var wg sync.WaitGroup
	results := make([]*models.IssuanceResult, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.Issue(context.Background(), cashRequest())
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.NotEqual(t, results[0].Code, results[1].Code)

	// Exactly one ticket per code in the store.
	fl.mu.Lock()
	defer fl.mu.Unlock()
	assert.Len(t, fl.codes, 2)
}

func TestReprovision(t *testing.T) {
	svc, fl, prov, _, _ := setupIssueService(t)
	prov.failCreate = true

	result, err := svc.Issue(context.Background(), cashRequest())
	require.NoError(t, err)
	require.False(t, result.Provisioned)

	// Device is back.
	prov.failCreate = false

	ticket, err := svc.Reprovision(context.Background(), result.TicketID)
	require.NoError(t, err)
	assert.True(t, ticket.Provisioned)

	stored, err := fl.GetTicket(result.TicketID)
	require.NoError(t, err)
	assert.True(t, stored.Provisioned)

	require.Len(t, prov.created, 1)
	assert.Equal(t, result.Code, prov.created[0].code)
}

func TestReprovision_AlreadyProvisionedIsNoop(t *testing.T) {
	svc, _, prov, _, _ := setupIssueService(t)

	result, err := svc.Issue(context.Background(), cashRequest())
	require.NoError(t, err)
	require.True(t, result.Provisioned)
	require.Len(t, prov.created, 1)

	_, err = svc.Reprovision(context.Background(), result.TicketID)
	require.NoError(t, err)
	assert.Len(t, prov.created, 1, "no second device write for a provisioned ticket")
}

func TestReprovision_DeviceFailureSurfaces(t *testing.T) {
	svc, _, prov, _, _ := setupIssueService(t)
	prov.failCreate = true

	result, err := svc.Issue(context.Background(), cashRequest())
	require.NoError(t, err)

	_, err = svc.Reprovision(context.Background(), result.TicketID)
	assert.Error(t, err, "operator-driven retries report device failures")
}

func TestBulkGenerate(t *testing.T) {
	svc, fl, prov, _, _ := setupIssueService(t)

	codes, err := svc.BulkGenerate(context.Background(), "plan-1", "pos-1", 5)
	require.NoError(t, err)
	require.Len(t, codes, 5)

	seen := map[string]struct{}{}
	for _, code := range codes {
		assert.True(t, voucher.IsValidFormat(code))
		_, dup := seen[code]
		assert.False(t, dup)
		seen[code] = struct{}{}

		ticket, err := fl.FindTicketByCode(code)
		require.NoError(t, err)
		assert.Equal(t, models.TicketStatusAvailable, ticket.Status)
	}

	assert.Len(t, prov.created, 5)
}

func TestBulkGenerate_RejectsBadInput(t *testing.T) {
	svc, _, _, _, _ := setupIssueService(t)

	_, err := svc.BulkGenerate(context.Background(), "", "pos-1", 5)
	assert.ErrorIs(t, err, status.ErrInvalidRequest)

	_, err = svc.BulkGenerate(context.Background(), "plan-1", "pos-1", 0)
	assert.ErrorIs(t, err, status.ErrInvalidRequest)

	_, err = svc.BulkGenerate(context.Background(), "plan-1", "pos-1", 100000)
	assert.ErrorIs(t, err, status.ErrInvalidRequest)
}
