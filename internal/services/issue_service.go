package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"voucher-pos/config"
	"voucher-pos/internal/device"
	"voucher-pos/internal/ledger"
	"voucher-pos/internal/status"
	"voucher-pos/internal/voucher"
	"voucher-pos/models"
	"voucher-pos/monitoring"
	"voucher-pos/utils"
)

// Ledger is the persistence boundary of the issuance flow. The concrete
// implementation lives in internal/ledger; tests substitute an in-memory
// one.
type Ledger interface {
	GetPlan(id string) (*models.Plan, error)
	GetPointOfSale(id string) (*models.PointOfSale, error)
	GetTicket(id string) (*models.Ticket, error)
	GetSale(id string) (*models.Sale, error)
	FindTicketByCode(code string) (*models.Ticket, error)
	CreateTicketAndSale(p ledger.CreateParams) (*models.Ticket, *models.Sale, error)
	CreateTicket(p ledger.CreateParams) (*models.Ticket, error)
	MarkCashCompleted(ticketID, saleID string) error
	CompleteSale(saleID, transactionID string) error
	FailSale(saleID, transactionID string) error
	MarkProvisioned(ticketID string) error
	ListUnprovisioned(limit int) ([]*models.Ticket, error)
}

// Provisioner is one access controller, one operation per call.
type Provisioner interface {
	CreateAccessCode(ctx context.Context, code string, durationHours int) error
	Exists(ctx context.Context, code string) (bool, error)
	Delete(ctx context.Context, code string) error
}

// Enqueuer hands a sold-but-unprovisioned ticket to an out-of-band retry
// worker. Only enqueueing is in scope here; the consumer is external.
type Enqueuer interface {
	Enqueue(ctx context.Context, ticketID string) error
}

// Notifier surfaces ledger/device divergence to operators in realtime.
type Notifier interface {
	ProvisioningFailed(ticketID, code, pointOfSaleID string, cause error)
}

// IssueService runs one purchase end to end: validate, generate a code,
// persist ticket+sale, push the credential to the access controller,
// finalize by payment method. Persisting and provisioning are two
// different failure domains: a dead router must never void a recorded
// sale.
type IssueService struct {
	ledger   Ledger
	queue    Enqueuer
	notifier Notifier
	cfg      *config.Config
	breaker  *utils.CircuitBreaker

	// injection points for tests
	newCode        func() (string, error)
	newProvisioner func(pos *models.PointOfSale) Provisioner
}

func NewIssueService(lg Ledger, queue Enqueuer, notifier Notifier, cfg *config.Config) *IssueService {
	s := &IssueService{
		ledger:   lg,
		queue:    queue,
		notifier: notifier,
		cfg:      cfg,
		breaker:  utils.NewCircuitBreaker("mikrotik"),
		newCode:  voucher.NewVoucherCode,
	}
	s.newProvisioner = func(pos *models.PointOfSale) Provisioner {
		return device.New(s.deviceConfig(pos))
	}
	return s
}

// deviceConfig builds the device coordinates for a point of sale,
// falling back to the process-wide defaults for fields the POS record
// leaves empty.
func (s *IssueService) deviceConfig(pos *models.PointOfSale) device.Config {
	cfg := device.Config{
		Host:     pos.DeviceHost,
		Port:     pos.DevicePort,
		User:     pos.DeviceUser,
		Password: pos.DevicePassword,
		Timeout:  s.cfg.DeviceTimeout,
		Profile:  s.cfg.DeviceProfile,
	}
	if cfg.Host == "" {
		cfg.Host = s.cfg.DeviceHost
		cfg.Port = s.cfg.DevicePort
		cfg.User = s.cfg.DeviceUser
		cfg.Password = s.cfg.DevicePassword
	}
	return cfg
}

// Issue sells one voucher. Once the ticket and sale are persisted the
// purchase cannot fail anymore: provisioning problems are reported in
// the result, not as an error.
func (s *IssueService) Issue(ctx context.Context, req *models.PurchaseRequest) (*models.IssuanceResult, error) {
	if req.PlanID == "" || req.PaymentMethod == "" || req.PointOfSaleID == "" || req.CashierID == "" {
		return nil, status.ErrInvalidRequest
	}
	if !models.ValidPaymentMethod(req.PaymentMethod) {
		return nil, status.ErrInvalidRequest
	}

	plan, err := s.ledger.GetPlan(req.PlanID)
	if err != nil {
		return nil, err
	}
	pos, err := s.ledger.GetPointOfSale(req.PointOfSaleID)
	if err != nil {
		return nil, err
	}

	ticket, sale, err := s.persistWithRetry(plan, pos, req)
	if err != nil {
		return nil, err
	}

	provisioned := s.provision(ctx, pos, ticket.Code, plan.DurationHours, ticket.ID)

	if req.PaymentMethod == models.PaymentMethodCash {
		if err := s.ledger.MarkCashCompleted(ticket.ID, sale.ID); err != nil {
			return nil, fmt.Errorf("issue: finalize cash sale: %w", err)
		}
		sale.PaymentStatus = models.PaymentStatusCompleted
		ticket.Status = models.TicketStatusSold
	}

	monitoring.TrackIssuance(pos.ID, req.PaymentMethod)

	return &models.IssuanceResult{
		TicketID:      ticket.ID,
		SaleID:        sale.ID,
		Code:          ticket.Code,
		PlanName:      plan.Name,
		DurationHours: plan.DurationHours,
		Price:         plan.Price,
		PaymentMethod: req.PaymentMethod,
		PaymentStatus: sale.PaymentStatus,
		TicketStatus:  ticket.Status,
		Provisioned:   provisioned,
	}, nil
}

// persistWithRetry is the optimistic-concurrency loop around the unique
// code index: generate, insert, and on a duplicate start over with a
// fresh code, up to the configured bound.
func (s *IssueService) persistWithRetry(plan *models.Plan, pos *models.PointOfSale, req *models.PurchaseRequest) (*models.Ticket, *models.Sale, error) {
	retries := s.cfg.CodeInsertRetries
	if retries <= 0 {
		retries = 3
	}

	for attempt := 0; attempt < retries; attempt++ {
		code, err := s.newCode()
		if err != nil {
			return nil, nil, fmt.Errorf("issue: generate code: %w", err)
		}

		ticket, sale, err := s.ledger.CreateTicketAndSale(ledger.CreateParams{
			Code:          code,
			Plan:          plan,
			PointOfSaleID: pos.ID,
			CashierID:     req.CashierID,
			PaymentMethod: req.PaymentMethod,
			CustomerEmail: req.CustomerEmail,
			CustomerPhone: req.CustomerPhone,
		})
		if errors.Is(err, status.ErrCodeConflict) {
			monitoring.TrackCodeConflict()
			slog.Warn("voucher code collision, regenerating", "attempt", attempt+1)
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		return ticket, sale, nil
	}

	return nil, nil, status.ErrCodeExhausted
}

// provision pushes the credential to the point of sale's access
// controller. Always best effort: on failure the ticket is queued for
// out-of-band retry and operators are notified, but the sale stands.
func (s *IssueService) provision(ctx context.Context, pos *models.PointOfSale, code string, durationHours int, ticketID string) bool {
	prov := s.newProvisioner(pos)

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.DeviceTimeout)
	defer cancel()

	start := time.Now()
	err := s.breaker.Execute(callCtx, func() error {
		return prov.CreateAccessCode(callCtx, code, durationHours)
	})
	monitoring.ObserveDeviceOp("create", time.Since(start))

	if err != nil {
		monitoring.TrackProvisioning("create", "error")
		slog.Error("voucher provisioning failed, sale stands",
			"ticket_id", ticketID,
			"point_of_sale", pos.ID,
			"error", err,
		)
		if s.queue != nil {
			if qerr := s.queue.Enqueue(ctx, ticketID); qerr != nil {
				slog.Error("enqueue provisioning retry failed", "ticket_id", ticketID, "error", qerr)
			}
		}
		if s.notifier != nil {
			s.notifier.ProvisioningFailed(ticketID, code, pos.ID, err)
		}
		return false
	}

	monitoring.TrackProvisioning("create", "ok")
	if err := s.ledger.MarkProvisioned(ticketID); err != nil {
		slog.Error("mark provisioned failed", "ticket_id", ticketID, "error", err)
	}
	return true
}

// Reprovision re-attempts the device write for a single ticket, used by
// operators reconciling the unprovisioned backlog. Unlike the purchase
// path, a device failure here is returned to the caller.
func (s *IssueService) Reprovision(ctx context.Context, ticketID string) (*models.Ticket, error) {
	ticket, err := s.ledger.GetTicket(ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Provisioned {
		return ticket, nil
	}

	plan, err := s.ledger.GetPlan(ticket.PlanID)
	if err != nil {
		return nil, err
	}
	pos, err := s.ledger.GetPointOfSale(ticket.PointOfSaleID)
	if err != nil {
		return nil, err
	}

	prov := s.newProvisioner(pos)
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.DeviceTimeout)
	defer cancel()

	start := time.Now()
	err = prov.CreateAccessCode(callCtx, ticket.Code, plan.DurationHours)
	monitoring.ObserveDeviceOp("create", time.Since(start))
	if err != nil {
		monitoring.TrackProvisioning("create", "error")
		return nil, err
	}

	monitoring.TrackProvisioning("create", "ok")
	if err := s.ledger.MarkProvisioned(ticket.ID); err != nil {
		return nil, err
	}
	ticket.Provisioned = true
	return ticket, nil
}

// Unprovisioned lists sold tickets the device never acknowledged.
func (s *IssueService) Unprovisioned(limit int) ([]*models.Ticket, error) {
	return s.ledger.ListUnprovisioned(limit)
}

// BulkGenerate pre-creates count available tickets for a plan and
// provisions each best effort. Returns the codes that were persisted.
func (s *IssueService) BulkGenerate(ctx context.Context, planID, pointOfSaleID string, count int) ([]string, error) {
	if planID == "" || pointOfSaleID == "" || count <= 0 {
		return nil, status.ErrInvalidRequest
	}
	if limit := s.cfg.BulkBatchLimit; limit > 0 && count > limit {
		return nil, status.ErrInvalidRequest
	}

	plan, err := s.ledger.GetPlan(planID)
	if err != nil {
		return nil, err
	}
	pos, err := s.ledger.GetPointOfSale(pointOfSaleID)
	if err != nil {
		return nil, err
	}

	codes := make([]string, 0, count)
	for len(codes) < count {
		code, err := s.newCode()
		if err != nil {
			return codes, fmt.Errorf("issue: generate code: %w", err)
		}

		ticket, err := s.ledger.CreateTicket(ledger.CreateParams{
			Code:          code,
			Plan:          plan,
			PointOfSaleID: pos.ID,
		})
		if errors.Is(err, status.ErrCodeConflict) {
			monitoring.TrackCodeConflict()
			continue
		}
		if err != nil {
			return codes, err
		}

		s.provision(ctx, pos, ticket.Code, plan.DurationHours, ticket.ID)
		codes = append(codes, ticket.Code)
	}

	return codes, nil
}
