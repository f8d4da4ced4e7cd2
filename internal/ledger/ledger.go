package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"

	"voucher-pos/internal/status"
	"voucher-pos/models"
)

// Store is the voucher ledger: the source of truth for which codes were
// sold and whether they are valid. It owns the tickets and sales
// collections; device state is deliberately not modelled here.
type Store struct {
	app core.App
}

func New(app core.App) *Store {
	return &Store{app: app}
}

// CreateParams is one issuance write: the generated code plus the
// commercial context it was sold in.
type CreateParams struct {
	Code          string
	Plan          *models.Plan
	PointOfSaleID string
	CashierID     string
	PaymentMethod string
	CustomerEmail string
	CustomerPhone string
}

func (s *Store) GetPlan(id string) (*models.Plan, error) {
	record, err := s.app.FindRecordById("plans", id)
	if err != nil {
		return nil, status.ErrPlanNotFound
	}
	return planFromRecord(record), nil
}

func (s *Store) GetPointOfSale(id string) (*models.PointOfSale, error) {
	record, err := s.app.FindRecordById("points_of_sale", id)
	if err != nil {
		return nil, status.ErrPointOfSaleNotFound
	}
	return posFromRecord(record), nil
}

func (s *Store) GetTicket(id string) (*models.Ticket, error) {
	record, err := s.app.FindRecordById("tickets", id)
	if err != nil {
		return nil, status.ErrTicketNotFound
	}
	return ticketFromRecord(record), nil
}

func (s *Store) GetSale(id string) (*models.Sale, error) {
	record, err := s.app.FindRecordById("sales", id)
	if err != nil {
		return nil, status.ErrSaleNotFound
	}
	return saleFromRecord(record), nil
}

func (s *Store) FindTicketByCode(code string) (*models.Ticket, error) {
	record, err := s.app.FindFirstRecordByFilter(
		"tickets",
		"code = {:code}",
		dbx.Params{"code": code},
	)
	if err != nil {
		return nil, status.ErrTicketNotFound
	}
	return ticketFromRecord(record), nil
}

// CreateTicketAndSale persists the ticket and its sale as one logical
// unit: both rows become visible together or not at all. A duplicate
// code is reported as status.ErrCodeConflict so the caller can
// regenerate and retry.
func (s *Store) CreateTicketAndSale(p CreateParams) (*models.Ticket, *models.Sale, error) {
	var ticket *models.Ticket
	var sale *models.Sale

	err := s.app.RunInTransaction(func(tx core.App) error {
		ticketRecord, err := s.insertTicket(tx, p)
		if err != nil {
			return err
		}

		sales, err := tx.FindCollectionByNameOrId("sales")
		if err != nil {
			return fmt.Errorf("ledger: sales collection: %w", err)
		}

		saleRecord := core.NewRecord(sales)
		saleRecord.Set("ticket_id", ticketRecord.Id)
		saleRecord.Set("plan_id", p.Plan.ID)
		saleRecord.Set("point_of_sale_id", p.PointOfSaleID)
		saleRecord.Set("cashier_id", p.CashierID)
		saleRecord.Set("payment_method", p.PaymentMethod)
		saleRecord.Set("amount", p.Plan.Price.InexactFloat64())
		saleRecord.Set("payment_status", models.PaymentStatusPending)
		saleRecord.Set("customer_email", p.CustomerEmail)
		saleRecord.Set("customer_phone", p.CustomerPhone)

		if err := tx.Save(saleRecord); err != nil {
			return fmt.Errorf("ledger: save sale: %w", err)
		}

		ticket = ticketFromRecord(ticketRecord)
		sale = saleFromRecord(saleRecord)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	return ticket, sale, nil
}

// CreateTicket persists a ticket with no sale attached, for batches
// pre-generated ahead of selling.
func (s *Store) CreateTicket(p CreateParams) (*models.Ticket, error) {
	var ticket *models.Ticket

	err := s.app.RunInTransaction(func(tx core.App) error {
		record, err := s.insertTicket(tx, p)
		if err != nil {
			return err
		}
		ticket = ticketFromRecord(record)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return ticket, nil
}

func (s *Store) insertTicket(tx core.App, p CreateParams) (*core.Record, error) {
	tickets, err := tx.FindCollectionByNameOrId("tickets")
	if err != nil {
		return nil, fmt.Errorf("ledger: tickets collection: %w", err)
	}

	record := core.NewRecord(tickets)
	record.Set("code", p.Code)
	record.Set("plan_id", p.Plan.ID)
	record.Set("point_of_sale_id", p.PointOfSaleID)
	record.Set("status", models.TicketStatusAvailable)
	record.Set("provisioned", false)

	if err := tx.Save(record); err != nil {
		if isUniqueViolation(err) {
			return nil, status.ErrCodeConflict
		}
		return nil, fmt.Errorf("ledger: save ticket: %w", err)
	}
	return record, nil
}

// MarkCashCompleted settles a cash sale synchronously: the sale becomes
// completed and the ticket sold. Re-applying to an already settled cash
// sale is a no-op, not an error.
func (s *Store) MarkCashCompleted(ticketID, saleID string) error {
	return s.settleSale(saleID, "", models.PaymentStatusCompleted, ticketID)
}

// CompleteSale settles a pending sale confirmed by the payment provider
// callback, also marking the ticket sold.
func (s *Store) CompleteSale(saleID, transactionID string) error {
	return s.settleSale(saleID, transactionID, models.PaymentStatusCompleted, "")
}

// FailSale records a payment rejection. The ticket stays available in
// the store but is never handed out, since no receipt was produced.
func (s *Store) FailSale(saleID, transactionID string) error {
	return s.settleSale(saleID, transactionID, models.PaymentStatusFailed, "")
}

// settleSale applies a forward-only payment transition. expectTicketID,
// when set, guards against settling a sale against the wrong ticket.
func (s *Store) settleSale(saleID, transactionID, to, expectTicketID string) error {
	return s.app.RunInTransaction(func(tx core.App) error {
		saleRecord, err := tx.FindRecordById("sales", saleID)
		if err != nil {
			return status.ErrSaleNotFound
		}

		if expectTicketID != "" && saleRecord.GetString("ticket_id") != expectTicketID {
			return status.ErrSaleNotFound
		}

		from := saleRecord.GetString("payment_status")
		switch {
		case from == to:
			// idempotent re-apply; fall through to ticket sync
		case models.CanTransitionPayment(from, to):
			saleRecord.Set("payment_status", to)
			if transactionID != "" {
				saleRecord.Set("transaction_id", transactionID)
			}
			if err := tx.Save(saleRecord); err != nil {
				return fmt.Errorf("ledger: save sale: %w", err)
			}
		default:
			return status.ErrPaymentFinalized
		}

		if to != models.PaymentStatusCompleted {
			return nil
		}

		ticketRecord, err := tx.FindRecordById("tickets", saleRecord.GetString("ticket_id"))
		if err != nil {
			return status.ErrTicketNotFound
		}
		if ticketRecord.GetString("status") == models.TicketStatusAvailable {
			ticketRecord.Set("status", models.TicketStatusSold)
			if err := tx.Save(ticketRecord); err != nil {
				return fmt.Errorf("ledger: save ticket: %w", err)
			}
		}
		return nil
	})
}

// MarkProvisioned records that the device acknowledged the credential
// for this ticket.
func (s *Store) MarkProvisioned(ticketID string) error {
	record, err := s.app.FindRecordById("tickets", ticketID)
	if err != nil {
		return status.ErrTicketNotFound
	}
	if record.GetBool("provisioned") {
		return nil
	}

	record.Set("provisioned", true)
	record.Set("provisioned_at", time.Now().UTC())

	if err := s.app.Save(record); err != nil {
		return fmt.Errorf("ledger: mark provisioned: %w", err)
	}
	return nil
}

// ListUnprovisioned returns sold tickets whose device write never got
// acknowledged, oldest first. This is the reconciliation surface for
// sold-but-unusable vouchers.
func (s *Store) ListUnprovisioned(limit int) ([]*models.Ticket, error) {
	records := []*core.Record{}

	query := s.app.RecordQuery("tickets").
		AndWhere(dbx.HashExp{"provisioned": false, "status": models.TicketStatusSold}).
		OrderBy("created ASC")
	if limit > 0 {
		query.Limit(int64(limit))
	}

	if err := query.All(&records); err != nil {
		return nil, fmt.Errorf("ledger: list unprovisioned: %w", err)
	}

	tickets := make([]*models.Ticket, 0, len(records))
	for _, record := range records {
		tickets = append(tickets, ticketFromRecord(record))
	}
	return tickets, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "validation_not_unique")
}

func ticketFromRecord(r *core.Record) *models.Ticket {
	t := &models.Ticket{
		ID:            r.Id,
		Code:          r.GetString("code"),
		PlanID:        r.GetString("plan_id"),
		PointOfSaleID: r.GetString("point_of_sale_id"),
		Status:        r.GetString("status"),
		Provisioned:   r.GetBool("provisioned"),
		CreatedAt:     r.GetDateTime("created").Time(),
	}
	if dt := r.GetDateTime("provisioned_at"); !dt.IsZero() {
		tm := dt.Time()
		t.ProvisionedAt = &tm
	}
	if dt := r.GetDateTime("used_at"); !dt.IsZero() {
		tm := dt.Time()
		t.UsedAt = &tm
	}
	if dt := r.GetDateTime("expires_at"); !dt.IsZero() {
		tm := dt.Time()
		t.ExpiresAt = &tm
	}
	return t
}

func saleFromRecord(r *core.Record) *models.Sale {
	return &models.Sale{
		ID:            r.Id,
		TicketID:      r.GetString("ticket_id"),
		PlanID:        r.GetString("plan_id"),
		PointOfSaleID: r.GetString("point_of_sale_id"),
		CashierID:     r.GetString("cashier_id"),
		PaymentMethod: r.GetString("payment_method"),
		Amount:        decimal.NewFromFloat(r.GetFloat("amount")),
		PaymentStatus: r.GetString("payment_status"),
		TransactionID: r.GetString("transaction_id"),
		CustomerEmail: r.GetString("customer_email"),
		CustomerPhone: r.GetString("customer_phone"),
		CreatedAt:     r.GetDateTime("created").Time(),
	}
}

func planFromRecord(r *core.Record) *models.Plan {
	return &models.Plan{
		ID:            r.Id,
		Name:          r.GetString("name"),
		DurationHours: r.GetInt("duration_hours"),
		Price:         decimal.NewFromFloat(r.GetFloat("price")),
		Description:   r.GetString("description"),
		IsActive:      r.GetBool("is_active"),
		CreatedAt:     r.GetDateTime("created").Time(),
	}
}

func posFromRecord(r *core.Record) *models.PointOfSale {
	return &models.PointOfSale{
		ID:             r.Id,
		Name:           r.GetString("name"),
		Location:       r.GetString("location"),
		IsActive:       r.GetBool("is_active"),
		DeviceHost:     r.GetString("device_host"),
		DevicePort:     r.GetInt("device_port"),
		DeviceUser:     r.GetString("device_user"),
		DevicePassword: r.GetString("device_password"),
		CreatedAt:      r.GetDateTime("created").Time(),
	}
}
