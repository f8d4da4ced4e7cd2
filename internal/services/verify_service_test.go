package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voucher-pos/internal/status"
	"voucher-pos/models"
)

func TestVerify_SoldTicket(t *testing.T) {
	issue, fl, _, _, _ := setupIssueService(t)
	svc := NewVerifyService(fl)

	issued, err := issue.Issue(context.Background(), cashRequest())
	require.NoError(t, err)

	result, err := svc.Verify(issued.Code)
	require.NoError(t, err)

	assert.Equal(t, issued.Code, result.Code)
	assert.Equal(t, models.TicketStatusSold, result.Status)
	assert.Equal(t, "2h Access", result.PlanName)
	assert.Equal(t, 2, result.DurationHours)
	assert.Equal(t, "Kiosk Centre", result.PointOfSaleName)
}

func TestVerify_PendingTicketIsNotSold(t *testing.T) {
	issue, fl, _, _, _ := setupIssueService(t)
	svc := NewVerifyService(fl)

	req := cashRequest()
	req.PaymentMethod = models.PaymentMethodOrangeMoney
	issued, err := issue.Issue(context.Background(), req)
	require.NoError(t, err)

	result, err := svc.Verify(issued.Code)
	require.NoError(t, err)
	assert.Equal(t, models.TicketStatusAvailable, result.Status)
}

func TestVerify_UnknownCode(t *testing.T) {
	fl := newFakeLedger()
	svc := NewVerifyService(fl)

	_, err := svc.Verify("ZZZZ-ZZZZ-ZZZZ")
	assert.ErrorIs(t, err, status.ErrTicketNotFound)
}

func TestVerify_MissingPointOfSaleIsNotFatal(t *testing.T) {
	issue, fl, _, _, _ := setupIssueService(t)
	svc := NewVerifyService(fl)

	issued, err := issue.Issue(context.Background(), cashRequest())
	require.NoError(t, err)

	fl.mu.Lock()
	delete(fl.pos, "pos-1")
	fl.mu.Unlock()

	result, err := svc.Verify(issued.Code)
	require.NoError(t, err)
	assert.Empty(t, result.PointOfSaleName)
	assert.Equal(t, models.TicketStatusSold, result.Status)
}
