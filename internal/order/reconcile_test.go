package order_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"ms-tickets/internal/models"
	"ms-tickets/internal/order"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestResolveStatus(t *testing.T) {
	tests := map[models.ResultCode]models.PaymentStatus{
		"0":            models.PaymentPaid,
		" 0 ":          models.PaymentPaid,
		"1":            models.PaymentFailed,
		"1032":         models.PaymentFailed,
		"1037":         models.PaymentFailed,
		"2001":         models.PaymentFailed,
		"":             models.PaymentPending,
		"500.001.1001": models.PaymentPending,
		"4999":         models.PaymentPending,
	}
	for code, want := range tests {
		assert.Equal(t, want, order.ResolveStatus(code), "code %q", code)
	}
}

// ---------------- POLL ----------------

func TestCheckPaymentStatus_PendingWithoutCheckoutSkipsGateway(t *testing.T) {
	env := setupService(t)
	env.seedPending(t, "NOCHK001", "")

	resp, err := env.svc.CheckPaymentStatus(context.Background(), models.StatusQuery{TicketID: "nochk001"})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, resp.PaymentStatus)
	assert.Equal(t, "NOCHK001", resp.TicketID)
	env.gateway.AssertNotCalled(t, "CheckStatus", mock.Anything, mock.Anything)
}

func TestCheckPaymentStatus_SuccessSettlesOnce(t *testing.T) {
	env := setupService(t)
	o := env.seedPending(t, "PAID0001", "ws_CO_1")
	env.gateway.On("CheckStatus", mock.Anything, "ws_CO_1").
		Return(&models.TransactionStatus{ResultCode: "0", ResultDesc: "ok", TransactionID: "QGH7XYZ"}, nil).Once()
	ctx := context.Background()

	resp, err := env.svc.CheckPaymentStatus(ctx, models.StatusQuery{TicketID: "PAID0001"})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPaid, resp.PaymentStatus)
	assert.Equal(t, models.EmailSent, resp.EmailStatus)
	assert.Equal(t, "Jane Wanjiku", resp.FullName)

	stored := env.reload(t, o.ID)
	assert.Equal(t, models.PaymentPaid, stored.PaymentStatus)
	assert.Equal(t, "QGH7XYZ", stored.TransactionID)

	// terminal: no second gateway call, no second email
	resp, err = env.svc.CheckPaymentStatus(ctx, models.StatusQuery{CheckoutID: "ws_CO_1"})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPaid, resp.PaymentStatus)
	assert.Empty(t, resp.EmailStatus)

	assert.Equal(t, 1, env.issuer.sentCount())
	assert.Equal(t, 1, env.kafka.paid)
	require.Len(t, env.notifier.events, 1)
	assert.Equal(t, "PAID0001", env.notifier.events[0].TicketID)
	env.gateway.AssertExpectations(t)
}

func TestCheckPaymentStatus_ExplicitFailure(t *testing.T) {
	for _, code := range []models.ResultCode{"1032", "1037", "2001", "1"} {
		t.Run(string(code), func(t *testing.T) {
			env := setupService(t)
			o := env.seedPending(t, "FAIL0001", "ws_CO_2")
			env.gateway.On("CheckStatus", mock.Anything, "ws_CO_2").
				Return(&models.TransactionStatus{ResultCode: code, TransactionID: "SHOULD_NOT_STORE"}, nil)

			resp, err := env.svc.CheckPaymentStatus(context.Background(), models.StatusQuery{TicketID: "FAIL0001"})
			require.NoError(t, err)
			assert.Equal(t, models.PaymentFailed, resp.PaymentStatus)
			assert.Empty(t, resp.EmailStatus)

			stored := env.reload(t, o.ID)
			assert.Equal(t, models.PaymentFailed, stored.PaymentStatus)
			assert.Empty(t, stored.TransactionID)
			assert.Zero(t, env.issuer.sentCount())
			assert.Equal(t, 1, env.kafka.failed)
		})
	}
}

func TestCheckPaymentStatus_UnknownCodeStaysPending(t *testing.T) {
	env := setupService(t)
	o := env.seedPending(t, "UNKN0001", "ws_CO_3")
	env.gateway.On("CheckStatus", mock.Anything, "ws_CO_3").
		Return(&models.TransactionStatus{ResultCode: "500.001.1001", ResultDesc: "still processing"}, nil)

	resp, err := env.svc.CheckPaymentStatus(context.Background(), models.StatusQuery{TicketID: "UNKN0001"})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, resp.PaymentStatus)
	assert.Equal(t, models.PaymentPending, env.reload(t, o.ID).PaymentStatus)
	assert.Empty(t, env.notifier.events)
}

func TestCheckPaymentStatus_GatewayErrorIsSoft(t *testing.T) {
	env := setupService(t)
	env.seedPending(t, "GERR0001", "ws_CO_4")
	env.gateway.On("CheckStatus", mock.Anything, "ws_CO_4").Return(nil, errors.New("timeout"))

	resp, err := env.svc.CheckPaymentStatus(context.Background(), models.StatusQuery{TicketID: "GERR0001"})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, resp.PaymentStatus)
	assert.Equal(t, "unavailable", resp.GatewayStatus)
}

func TestCheckPaymentStatus_LockHeldSkipsGateway(t *testing.T) {
	env := setupService(t)
	env.seedPending(t, "LOCK0001", "ws_CO_5")
	env.svc.Lock = &fakeLock{held: true}

	resp, err := env.svc.CheckPaymentStatus(context.Background(), models.StatusQuery{TicketID: "LOCK0001"})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, resp.PaymentStatus)
	env.gateway.AssertNotCalled(t, "CheckStatus", mock.Anything, mock.Anything)
}

func TestCheckPaymentStatus_LockErrorFallsThrough(t *testing.T) {
	env := setupService(t)
	env.seedPending(t, "LOCK0002", "ws_CO_6")
	env.svc.Lock = &fakeLock{err: errors.New("redis down")}
	env.gateway.On("CheckStatus", mock.Anything, "ws_CO_6").
		Return(&models.TransactionStatus{ResultCode: "0", TransactionID: "TX6"}, nil).Once()

	resp, err := env.svc.CheckPaymentStatus(context.Background(), models.StatusQuery{TicketID: "LOCK0002"})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPaid, resp.PaymentStatus)
}

func TestCheckPaymentStatus_Errors(t *testing.T) {
	env := setupService(t)

	_, err := env.svc.CheckPaymentStatus(context.Background(), models.StatusQuery{})
	assert.ErrorIs(t, err, order.ErrMissingIdentifier)

	_, err = env.svc.CheckPaymentStatus(context.Background(), models.StatusQuery{TicketID: "NOPE0000"})
	assert.ErrorIs(t, err, models.ErrOrderNotFound)
}

func TestCheckPaymentStatus_EmailFailureIsSoft(t *testing.T) {
	env := setupService(t)
	o := env.seedPending(t, "MAIL0001", "ws_CO_7")
	env.issuer.err = errors.New("provider down")
	env.gateway.On("CheckStatus", mock.Anything, "ws_CO_7").
		Return(&models.TransactionStatus{ResultCode: "0", TransactionID: "TX7"}, nil)

	resp, err := env.svc.CheckPaymentStatus(context.Background(), models.StatusQuery{TicketID: "MAIL0001"})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPaid, resp.PaymentStatus)
	assert.Equal(t, models.EmailFailed, resp.EmailStatus)
	assert.Equal(t, models.PaymentPaid, env.reload(t, o.ID).PaymentStatus)
}

// ---------------- WEBHOOK ----------------

func TestHandleCallback_PaidIsIdempotent(t *testing.T) {
	env := setupService(t)
	o := env.seedPending(t, "HOOK0001", "ws_CO_8")
	ctx := context.Background()
	payload := models.WebhookPayload{
		ResponseCode:       "0",
		CheckoutRequestID:  "ws_CO_8",
		TransactionReceipt: "RCPT123",
	}

	resp, err := env.svc.HandleCallback(ctx, payload)
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, models.PaymentPaid, resp.Status)
	assert.Equal(t, "email_sent", resp.Message)

	stored := env.reload(t, o.ID)
	assert.Equal(t, models.PaymentPaid, stored.PaymentStatus)
	assert.Equal(t, "RCPT123", stored.TransactionID)

	resp, err = env.svc.HandleCallback(ctx, payload)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPaid, resp.Status)
	assert.Equal(t, "already_processed", resp.Message)

	assert.Equal(t, 1, env.issuer.sentCount())
	env.gateway.AssertNotCalled(t, "CheckStatus", mock.Anything, mock.Anything)
}

func TestHandleCallback_PrefersTransactionID(t *testing.T) {
	env := setupService(t)
	o := env.seedPending(t, "HOOK0002", "ws_CO_9")

	_, err := env.svc.HandleCallback(context.Background(), models.WebhookPayload{
		ResultCode:         "0",
		CheckoutRequestID:  "ws_CO_9",
		TransactionID:      "TXID999",
		TransactionReceipt: "RCPT999",
	})
	require.NoError(t, err)
	assert.Equal(t, "TXID999", env.reload(t, o.ID).TransactionID)
}

func TestHandleCallback_FailureThenLateSuccess(t *testing.T) {
	env := setupService(t)
	o := env.seedPending(t, "HOOK0003", "ws_CO_10")
	ctx := context.Background()

	resp, err := env.svc.HandleCallback(ctx, models.WebhookPayload{ResponseCode: "1032", CheckoutRequestID: "ws_CO_10"})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentFailed, resp.Status)

	// failed is absorbing
	resp, err = env.svc.HandleCallback(ctx, models.WebhookPayload{ResponseCode: "0", CheckoutRequestID: "ws_CO_10"})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentFailed, resp.Status)
	assert.Equal(t, "already_processed", resp.Message)
	assert.Equal(t, models.PaymentFailed, env.reload(t, o.ID).PaymentStatus)
	assert.Zero(t, env.issuer.sentCount())
}

func TestHandleCallback_UnknownCodeNoTransition(t *testing.T) {
	env := setupService(t)
	env.seedPending(t, "HOOK0004", "ws_CO_11")

	resp, err := env.svc.HandleCallback(context.Background(), models.WebhookPayload{ResponseCode: "17", CheckoutRequestID: "ws_CO_11"})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, resp.Status)
	assert.Equal(t, "no_transition", resp.Message)
}

func TestHandleCallback_InvalidPayloads(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	_, err := env.svc.HandleCallback(ctx, models.WebhookPayload{ResponseCode: "0"})
	assert.ErrorIs(t, err, order.ErrInvalidWebhook)

	_, err = env.svc.HandleCallback(ctx, models.WebhookPayload{CheckoutRequestID: "ws_CO_X"})
	assert.ErrorIs(t, err, order.ErrInvalidWebhook)

	_, err = env.svc.HandleCallback(ctx, models.WebhookPayload{ResponseCode: "0", CheckoutRequestID: "unknown"})
	assert.ErrorIs(t, err, models.ErrOrderNotFound)
}

func TestConcurrentWebhookAndPollSendOneEmail(t *testing.T) {
	env := setupService(t)
	o := env.seedPending(t, "RACE0001", "ws_CO_12")
	env.gateway.On("CheckStatus", mock.Anything, "ws_CO_12").
		Return(&models.TransactionStatus{ResultCode: "0", TransactionID: "TX12"}, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := env.svc.HandleCallback(ctx, models.WebhookPayload{ResponseCode: "0", CheckoutRequestID: "ws_CO_12", TransactionID: "TX12"})
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := env.svc.CheckPaymentStatus(ctx, models.StatusQuery{TicketID: "RACE0001"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, env.issuer.sentCount())
	assert.Equal(t, 1, env.kafka.paid)
	assert.Equal(t, models.PaymentPaid, env.reload(t, o.ID).PaymentStatus)
}

// ---------------- MANUAL CONFIRMATION ----------------

func TestConfirmPayment_PendingSettlesOnce(t *testing.T) {
	env := setupService(t)
	o := env.seedPending(t, "MANL0001", "ws_CO_20")
	ctx := context.Background()

	resp, err := env.svc.ConfirmPayment(ctx, " manl0001 ", "MPESA-REF-1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPaid, resp.PaymentStatus)
	assert.Equal(t, models.EmailSent, resp.EmailStatus)
	assert.Equal(t, "confirmed", resp.Message)

	stored := env.reload(t, o.ID)
	assert.Equal(t, models.PaymentPaid, stored.PaymentStatus)
	assert.Equal(t, "MPESA-REF-1", stored.TransactionID)

	// a second click, or the lost callback turning up late, changes nothing
	resp, err = env.svc.ConfirmPayment(ctx, "MANL0001", "MPESA-REF-2")
	require.NoError(t, err)
	assert.Equal(t, "already_paid", resp.Message)
	assert.Empty(t, resp.EmailStatus)

	hook, err := env.svc.HandleCallback(ctx, models.WebhookPayload{ResponseCode: "0", CheckoutRequestID: "ws_CO_20"})
	require.NoError(t, err)
	assert.Equal(t, "already_processed", hook.Message)

	assert.Equal(t, "MPESA-REF-1", env.reload(t, o.ID).TransactionID)
	assert.Equal(t, 1, env.issuer.sentCount())
	assert.Equal(t, 1, env.kafka.paid)
	require.Len(t, env.notifier.events, 1)
	env.gateway.AssertNotCalled(t, "CheckStatus", mock.Anything, mock.Anything)
}

func TestConfirmPayment_DefaultsManualReference(t *testing.T) {
	env := setupService(t)
	o := env.seedPending(t, "MANL0002", "")

	_, err := env.svc.ConfirmPayment(context.Background(), "MANL0002", "  ")
	require.NoError(t, err)
	assert.Regexp(t, `^MANUAL_\d+$`, env.reload(t, o.ID).TransactionID)
}

func TestConfirmPayment_FailedIsAbsorbing(t *testing.T) {
	env := setupService(t)
	o := env.seedPending(t, "MANL0003", "ws_CO_21")
	ctx := context.Background()
	_, err := env.svc.HandleCallback(ctx, models.WebhookPayload{ResponseCode: "1032", CheckoutRequestID: "ws_CO_21"})
	require.NoError(t, err)

	_, err = env.svc.ConfirmPayment(ctx, "MANL0003", "")
	assert.ErrorIs(t, err, order.ErrPaymentFailed)

	stored := env.reload(t, o.ID)
	assert.Equal(t, models.PaymentFailed, stored.PaymentStatus)
	assert.Empty(t, stored.TransactionID)
	assert.Zero(t, env.issuer.sentCount())
}

func TestConfirmPayment_Errors(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	_, err := env.svc.ConfirmPayment(ctx, "", "")
	assert.ErrorIs(t, err, order.ErrMissingIdentifier)

	_, err = env.svc.ConfirmPayment(ctx, "NOPE0000", "")
	assert.ErrorIs(t, err, models.ErrOrderNotFound)
}
