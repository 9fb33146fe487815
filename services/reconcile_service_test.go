package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/AHasenkampfHeista/ShopifyPaymentFix-Plugin/models"
	"github.com/AHasenkampfHeista/ShopifyPaymentFix-Plugin/services"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

// ---- mock collaborators ----

type mockShopify struct {
	order *models.ShopifyOrder
	err   error
	calls int
}

func (m *mockShopify) FetchOrderByExternalID(_ context.Context, _ string) (*models.ShopifyOrder, error) {
	m.calls++
	return m.order, m.err
}

type mockOMS struct {
	order       *models.Order
	orderErr    error
	payments    []models.Payment
	paymentsErr error
	created     *models.Payment
	createErr   error
	linkErr     error

	getOrderCalls int
	listCalls     int
	createdDraft  *models.PaymentDraft
	linkedPayment int64
	linkedOrder   int64
	linkedPrimary bool
	linkCalls     int
}

func (m *mockOMS) GetOrder(_ context.Context, _ int64) (*models.Order, error) {
	m.getOrderCalls++
	return m.order, m.orderErr
}

func (m *mockOMS) ListPaymentsByOrder(_ context.Context, _ int64) ([]models.Payment, error) {
	m.listCalls++
	return m.payments, m.paymentsErr
}

func (m *mockOMS) CreatePayment(_ context.Context, _ services.WriteGrant, draft *models.PaymentDraft) (*models.Payment, error) {
	m.createdDraft = draft
	if m.createErr != nil {
		return nil, m.createErr
	}
	return m.created, nil
}

func (m *mockOMS) LinkPaymentToOrder(_ context.Context, _ services.WriteGrant, paymentID, orderID int64, primary bool) error {
	m.linkCalls++
	m.linkedPayment = paymentID
	m.linkedOrder = orderID
	m.linkedPrimary = primary
	return m.linkErr
}

type mockAttempts struct {
	recorded []*models.ReconciliationAttempt
	err      error
}

func (m *mockAttempts) Create(_ context.Context, attempt *models.ReconciliationAttempt) error {
	m.recorded = append(m.recorded, attempt)
	return m.err
}

func (m *mockAttempts) FindByOrderID(_ context.Context, _ int64, _ int) ([]models.ReconciliationAttempt, error) {
	return nil, nil
}

type mockEvents struct {
	events []models.ReconcileEvent
	err    error
}

func (m *mockEvents) SendReconcileEvent(event models.ReconcileEvent) error {
	m.events = append(m.events, event)
	return m.err
}

// ---- helpers ----

func f64(v float64) *float64 { return &v }
func str(v string) *string   { return &v }

func splitOrder(txs ...models.ShopifyTransaction) *models.ShopifyOrder {
	return &models.ShopifyOrder{
		ID:                  "gid://shopify/Order/1001",
		Name:                "#1001",
		PaymentGatewayNames: []string{"shopify_payments", "paypal"},
		Transactions:        txs,
	}
}

func omsOrder(orderID int64) *models.Order {
	return &models.Order{
		ID: orderID,
		Properties: []models.OrderProperty{
			{TypeID: models.PropertyTypeExternalOrderID, Value: "1001"},
		},
	}
}

func paypalTx(id string, amount float64, currency string) models.ShopifyTransaction {
	return models.ShopifyTransaction{
		ID:       id,
		Gateway:  "paypal",
		Kind:     "sale",
		Status:   "success",
		Amount:   f64(amount),
		Currency: str(currency),
	}
}

func newService(shopify *mockShopify, oms *mockOMS, attempts *mockAttempts, events *mockEvents, mopID int) *services.ReconcileService {
	return services.NewReconcileService(
		shopify, oms, attempts, events, nil, "", nil, mopID, false, zap.NewNop(),
	)
}

// ---- classifier ----

func TestIsPaypalSplit(t *testing.T) {
	assert.True(t, services.IsPaypalSplit([]string{"shopify_payments", "paypal"}))
	assert.True(t, services.IsPaypalSplit([]string{"PayPal", "Shopify_Payments"}))
	assert.False(t, services.IsPaypalSplit([]string{"shopify_payments"}))
	assert.False(t, services.IsPaypalSplit([]string{"paypal"}))
	assert.False(t, services.IsPaypalSplit(nil))
	// exact matches only, no fuzzy tags
	assert.False(t, services.IsPaypalSplit([]string{"shopify_payments", "paypal_express"}))
}

// ---- transaction selector ----

func TestSelectPaypalTransaction_NoQualifyingEntry(t *testing.T) {
	assert.Nil(t, services.SelectPaypalTransaction(nil))
	assert.Nil(t, services.SelectPaypalTransaction([]models.ShopifyTransaction{
		{ID: "t1", Gateway: "shopify_payments", Amount: f64(10), Currency: str("EUR")},
	}))
	// paypal gateway but no settlement amount
	assert.Nil(t, services.SelectPaypalTransaction([]models.ShopifyTransaction{
		{ID: "t2", Gateway: "paypal", Amount: nil, Currency: str("EUR")},
		{ID: "t3", Gateway: "paypal", Amount: f64(5), Currency: nil},
	}))
}

func TestSelectPaypalTransaction_FirstMatchWins(t *testing.T) {
	txs := []models.ShopifyTransaction{
		{ID: "t1", Gateway: "shopify_payments", Amount: f64(50), Currency: str("EUR")},
		{ID: "t2", Gateway: "paypal_express", Amount: f64(12.34), Currency: str("EUR")},
		{ID: "t3", Gateway: "paypal", Amount: f64(99), Currency: str("EUR")},
	}

	got := services.SelectPaypalTransaction(txs)
	assert.NotNil(t, got)
	assert.Equal(t, "t2", got.ID)
}

func TestSelectPaypalTransaction_SkipsEntriesWithoutMoney(t *testing.T) {
	txs := []models.ShopifyTransaction{
		{ID: "refund", Gateway: "paypal", Amount: nil, Currency: nil},
		paypalTx("sale", 20, "USD"),
	}

	got := services.SelectPaypalTransaction(txs)
	assert.NotNil(t, got)
	assert.Equal(t, "sale", got.ID)
}

// ---- duplicate guard ----

func TestHasMatchingPayment(t *testing.T) {
	payments := []models.Payment{
		{ID: 1, MopID: 3, Properties: []models.PaymentProperty{
			{TypeID: models.PropertyTypeTransactionID, Value: "txn_1"},
		}},
		{ID: 2, MopID: 5, Properties: []models.PaymentProperty{
			{TypeID: models.PropertyTypePaymentNote, Value: "txn_1"},
			{TypeID: models.PropertyTypeTransactionID, Value: "txn_1"},
		}},
	}

	assert.True(t, services.HasMatchingPayment(payments, "txn_1", 5))
	// one character off must not match
	assert.False(t, services.HasMatchingPayment(payments, "txn_2", 5))
	// mopId must match, a note property with the same value is not enough
	assert.False(t, services.HasMatchingPayment(payments[:1], "txn_1", 5))
	assert.False(t, services.HasMatchingPayment(nil, "txn_1", 5))
}

// ---- exchange rate resolver ----

func TestDetermineExchangeRate_SameCurrencyWins(t *testing.T) {
	amounts := []models.OrderAmount{
		{Currency: "USD", ExchangeRate: f64(1.08)},
		{Currency: "EUR", ExchangeRate: f64(0.93)},
	}
	// the EUR entry decides 1.0 even though a differing rate appears earlier
	assert.Equal(t, 1.0, services.DetermineExchangeRate(amounts, "EUR"))
}

func TestDetermineExchangeRate_FirstStoredRate(t *testing.T) {
	amounts := []models.OrderAmount{
		{Currency: "USD", ExchangeRate: nil},
		{Currency: "GBP", ExchangeRate: f64(0.85)},
	}
	assert.Equal(t, 0.85, services.DetermineExchangeRate(amounts, "EUR"))
}

func TestDetermineExchangeRate_Defaults(t *testing.T) {
	assert.Equal(t, 1.0, services.DetermineExchangeRate(nil, "EUR"))
	assert.Equal(t, 1.0, services.DetermineExchangeRate([]models.OrderAmount{
		{Currency: "USD"},
	}, "EUR"))
	// a non-positive stored rate never wins
	assert.Equal(t, 1.0, services.DetermineExchangeRate([]models.OrderAmount{
		{Currency: "USD", ExchangeRate: f64(0)},
	}, "EUR"))
}

// ---- end-to-end scenarios ----

func TestReconcileOrder_CreatesPaymentAndRelation(t *testing.T) {
	processedAt := time.Date(2024, 5, 2, 10, 30, 0, 0, time.UTC)
	tx := paypalTx("txn_1", 42.50, "EUR")
	tx.ProcessedAt = &processedAt

	shopify := &mockShopify{order: splitOrder(tx)}
	oms := &mockOMS{
		order:   omsOrder(77),
		created: &models.Payment{ID: 900, MopID: 5},
	}
	attempts := &mockAttempts{}
	events := &mockEvents{}
	svc := newService(shopify, oms, attempts, events, 5)

	outcome := svc.ReconcileOrder(context.Background(), services.WriteGrant{Reason: "test"}, 77)

	assert.Equal(t, models.OutcomeCreated, outcome.Status)
	assert.Equal(t, int64(900), outcome.PaymentID)
	assert.Equal(t, "txn_1", outcome.TransactionID)

	draft := oms.createdDraft
	assert.NotNil(t, draft)
	assert.Equal(t, 5, draft.MopID)
	assert.Equal(t, models.PaymentTypeBooked, draft.Type)
	assert.Equal(t, models.PaymentStatusApproved, draft.Status)
	assert.Equal(t, 42.50, draft.Amount)
	assert.Equal(t, "EUR", draft.Currency)
	assert.Equal(t, 1.0, draft.ExchangeRate)
	assert.False(t, draft.IsSystemPayment)
	assert.True(t, draft.RegenerateHash)
	assert.Equal(t, "2024-05-02 10:30:00", draft.ReceivedAt)
	assert.Equal(t, []models.PaymentProperty{
		{TypeID: models.PropertyTypeTransactionID, Value: "txn_1"},
		{TypeID: models.PropertyTypePaymentNote, Value: "Shopify split payment fix"},
		{TypeID: models.PropertyTypePaymentOrigin, Value: "shopify_paypal_split"},
	}, draft.Properties)

	// relation follows payment creation and is marked primary
	assert.Equal(t, 1, oms.linkCalls)
	assert.Equal(t, int64(900), oms.linkedPayment)
	assert.Equal(t, int64(77), oms.linkedOrder)
	assert.True(t, oms.linkedPrimary)

	assert.Len(t, attempts.recorded, 1)
	assert.Equal(t, models.OutcomeCreated, attempts.recorded[0].Status)

	assert.Len(t, events.events, 1)
	assert.Equal(t, "payment_reconciled", events.events[0].Type)
	assert.Equal(t, 42.50, events.events[0].Amount)
}

func TestReconcileOrder_SkipsWhenPaymentAlreadyExists(t *testing.T) {
	shopify := &mockShopify{order: splitOrder(paypalTx("txn_1", 42.50, "EUR"))}
	oms := &mockOMS{
		order: omsOrder(77),
		payments: []models.Payment{
			{ID: 800, MopID: 5, Properties: []models.PaymentProperty{
				{TypeID: models.PropertyTypeTransactionID, Value: "txn_1"},
			}},
		},
	}
	events := &mockEvents{}
	svc := newService(shopify, oms, &mockAttempts{}, events, 5)

	outcome := svc.ReconcileOrder(context.Background(), services.WriteGrant{Reason: "test"}, 77)

	assert.Equal(t, models.OutcomeSkipped, outcome.Status)
	assert.Equal(t, models.SkipAlreadyExists, outcome.Reason)
	assert.Nil(t, oms.createdDraft)
	assert.Equal(t, 0, oms.linkCalls)
	assert.Equal(t, "reconcile_skipped", events.events[0].Type)
}

func TestReconcileOrder_SkipsWhenNoPaypalSplit(t *testing.T) {
	shopify := &mockShopify{order: &models.ShopifyOrder{
		PaymentGatewayNames: []string{"shopify_payments"},
	}}
	oms := &mockOMS{order: omsOrder(77)}
	svc := newService(shopify, oms, &mockAttempts{}, &mockEvents{}, 5)

	outcome := svc.ReconcileOrder(context.Background(), services.WriteGrant{Reason: "test"}, 77)

	assert.Equal(t, models.OutcomeSkipped, outcome.Status)
	assert.Equal(t, models.SkipNoPaypalSplit, outcome.Reason)
	// the duplicate guard is never consulted
	assert.Equal(t, 0, oms.listCalls)
}

func TestReconcileOrder_FailsWithoutConfiguredMopID(t *testing.T) {
	shopify := &mockShopify{}
	oms := &mockOMS{}
	attempts := &mockAttempts{}
	svc := newService(shopify, oms, attempts, &mockEvents{}, 0)

	outcome := svc.ReconcileOrder(context.Background(), services.WriteGrant{Reason: "test"}, 77)

	assert.Equal(t, models.OutcomeFailed, outcome.Status)
	// nothing is fetched, neither orders nor existing payments
	assert.Equal(t, 0, shopify.calls)
	assert.Equal(t, 0, oms.getOrderCalls)
	assert.Equal(t, 0, oms.listCalls)
	assert.Len(t, attempts.recorded, 1)
	assert.Equal(t, models.OutcomeFailed, attempts.recorded[0].Status)
}

func TestReconcileOrder_SkipsWhenNoPaypalTransaction(t *testing.T) {
	shopify := &mockShopify{order: splitOrder(models.ShopifyTransaction{
		ID: "t1", Gateway: "paypal", Amount: nil, Currency: nil,
	})}
	oms := &mockOMS{order: omsOrder(77)}
	svc := newService(shopify, oms, &mockAttempts{}, &mockEvents{}, 5)

	outcome := svc.ReconcileOrder(context.Background(), services.WriteGrant{Reason: "test"}, 77)

	assert.Equal(t, models.OutcomeSkipped, outcome.Status)
	assert.Equal(t, models.SkipNoPaypalAmount, outcome.Reason)
	assert.Equal(t, 0, oms.listCalls)
}

func TestReconcileOrder_SkipsWhenOrderHasNoExternalID(t *testing.T) {
	shopify := &mockShopify{}
	oms := &mockOMS{order: &models.Order{ID: 77}}
	svc := newService(shopify, oms, &mockAttempts{}, &mockEvents{}, 5)

	outcome := svc.ReconcileOrder(context.Background(), services.WriteGrant{Reason: "test"}, 77)

	assert.Equal(t, models.OutcomeSkipped, outcome.Status)
	assert.Equal(t, models.SkipNoExternalOrderID, outcome.Reason)
	assert.Equal(t, 0, shopify.calls)
}

func TestReconcileOrder_NotFoundIsNothingToDo(t *testing.T) {
	shopify := &mockShopify{err: services.ErrOrderNotFound}
	oms := &mockOMS{order: omsOrder(77)}
	svc := newService(shopify, oms, &mockAttempts{}, &mockEvents{}, 5)

	outcome := svc.ReconcileOrder(context.Background(), services.WriteGrant{Reason: "test"}, 77)

	assert.Equal(t, models.OutcomeSkipped, outcome.Status)
	assert.Equal(t, models.SkipOrderNotFound, outcome.Reason)
}

func TestReconcileOrder_FetchErrorIsTerminal(t *testing.T) {
	shopify := &mockShopify{err: errors.New("shopify responded with status 500")}
	oms := &mockOMS{order: omsOrder(77)}
	events := &mockEvents{}
	svc := newService(shopify, oms, &mockAttempts{}, events, 5)

	outcome := svc.ReconcileOrder(context.Background(), services.WriteGrant{Reason: "test"}, 77)

	assert.Equal(t, models.OutcomeFailed, outcome.Status)
	assert.Contains(t, outcome.Message, "status 500")
	assert.Equal(t, "reconcile_failed", events.events[0].Type)
}

func TestReconcileOrder_RelationFailureLeavesPaymentRecorded(t *testing.T) {
	shopify := &mockShopify{order: splitOrder(paypalTx("txn_1", 42.50, "EUR"))}
	oms := &mockOMS{
		order:   omsOrder(77),
		created: &models.Payment{ID: 900, MopID: 5},
		linkErr: errors.New("oms returned 503"),
	}
	svc := newService(shopify, oms, &mockAttempts{}, &mockEvents{}, 5)

	outcome := svc.ReconcileOrder(context.Background(), services.WriteGrant{Reason: "test"}, 77)

	assert.Equal(t, models.OutcomeFailed, outcome.Status)
	assert.Equal(t, int64(900), outcome.PaymentID)
	assert.Contains(t, outcome.Message, "relation failed")
}

func TestReconcileOrder_UsesStoredExchangeRate(t *testing.T) {
	shopify := &mockShopify{order: splitOrder(paypalTx("txn_1", 42.50, "USD"))}
	order := omsOrder(77)
	order.Amounts = []models.OrderAmount{
		{Currency: "EUR", ExchangeRate: f64(1.07)},
	}
	oms := &mockOMS{
		order:   order,
		created: &models.Payment{ID: 901, MopID: 5},
	}
	svc := newService(shopify, oms, &mockAttempts{}, &mockEvents{}, 5)

	outcome := svc.ReconcileOrder(context.Background(), services.WriteGrant{Reason: "test"}, 77)

	assert.Equal(t, models.OutcomeCreated, outcome.Status)
	assert.Equal(t, 1.07, oms.createdDraft.ExchangeRate)
}
