package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/medicart/medicart-api/pkg/auth"
	"github.com/medicart/medicart-api/pkg/config"
	"github.com/medicart/medicart-api/pkg/db"
	"github.com/medicart/medicart-api/pkg/db/dbtest"
	"github.com/medicart/medicart-api/pkg/db/models"
	"github.com/medicart/medicart-api/pkg/enums"
	pkgerrors "github.com/medicart/medicart-api/pkg/errors"
	"github.com/medicart/medicart-api/pkg/outbox"
	"github.com/medicart/medicart-api/pkg/pagination"
	"github.com/medicart/medicart-api/pkg/types"
)

type stubCart struct {
	items   []models.CartItem
	cleared bool
}

func (c *stubCart) ListForCheckout(context.Context, *gorm.DB, uuid.UUID) ([]models.CartItem, error) {
	return c.items, nil
}

func (c *stubCart) ClearTx(context.Context, *gorm.DB, uuid.UUID) error {
	c.cleared = true
	return nil
}

type stubInventory struct {
	stock map[uuid.UUID]int
}

func (s *stubInventory) Reserve(_ context.Context, _ *gorm.DB, id uuid.UUID, qty int) error {
	if s.stock[id] < qty {
		return pkgerrors.New(pkgerrors.CodeValidation, "insufficient stock")
	}
	s.stock[id] -= qty
	return nil
}

func (s *stubInventory) Release(_ context.Context, _ *gorm.DB, id uuid.UUID, qty int) error {
	s.stock[id] += qty
	return nil
}

type stubAddresses struct {
	def *models.UserAddress
}

func (s *stubAddresses) FindForUser(context.Context, uuid.UUID, uuid.UUID) (*models.UserAddress, error) {
	if s.def == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return s.def, nil
}

func (s *stubAddresses) DefaultForUser(context.Context, uuid.UUID) (*models.UserAddress, error) {
	if s.def == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return s.def, nil
}

type stubAgents struct {
	busy      []uuid.UUID
	released  []uuid.UUID
	delivered bool
}

func (s *stubAgents) MarkBusy(_ context.Context, _ *gorm.DB, agentID, _ uuid.UUID) error {
	s.busy = append(s.busy, agentID)
	return nil
}

func (s *stubAgents) Release(_ context.Context, _ *gorm.DB, agentID, _ uuid.UUID, delivered bool) error {
	s.released = append(s.released, agentID)
	s.delivered = delivered
	return nil
}

type stubPrescriptions struct {
	err error
}

func (s *stubPrescriptions) RequireApproved(context.Context, *gorm.DB, uuid.UUID, uuid.UUID) error {
	return s.err
}

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

type fixture struct {
	conn      *gorm.DB
	svc       Service
	cart      *stubCart
	inventory *stubInventory
	agents    *stubAgents
	rx        *stubPrescriptions
	clock     *testClock
	customer  auth.Actor
	staff     auth.Actor
	medA      models.Medicine
	medB      models.Medicine
}

func newFixture(t *testing.T, mutate func(p *ServiceParams)) *fixture {
	t.Helper()
	conn := dbtest.Open(t)

	pricer, err := NewPricer(config.PricingConfig{TaxRate: "0.18", ShippingFeeCents: 5000})
	require.NoError(t, err)

	f := &fixture{
		conn:     conn,
		agents:   &stubAgents{},
		rx:       &stubPrescriptions{},
		clock:    &testClock{now: time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)},
		customer: auth.Actor{UserID: uuid.New(), Role: enums.UserRoleCustomer},
		staff:    auth.Actor{UserID: uuid.New(), Role: enums.UserRolePharmacist},
		medA:     models.Medicine{ID: uuid.New(), Name: "Amoxicillin", PriceCents: 1000, StockQuantity: 10, IsActive: true},
		medB:     models.Medicine{ID: uuid.New(), Name: "Benadryl", PriceCents: 2000, StockQuantity: 5, IsActive: true},
	}
	f.cart = &stubCart{items: []models.CartItem{
		{MedicineID: f.medA.ID, Quantity: 2, Medicine: &f.medA},
		{MedicineID: f.medB.ID, Quantity: 1, Medicine: &f.medB},
	}}
	f.inventory = &stubInventory{stock: map[uuid.UUID]int{f.medA.ID: 10, f.medB.ID: 5}}

	lat, lng := 12.97, 77.59
	params := ServiceParams{
		Repo:      NewRepository(conn),
		Tx:        db.NewFromGorm(conn),
		Outbox:    outbox.NewService(outbox.NewRepository(conn), nil),
		Cart:      f.cart,
		Inventory: f.inventory,
		Addresses: &stubAddresses{def: &models.UserAddress{
			ID: uuid.New(), UserID: f.customer.UserID, FullName: "Asha Rao", Phone: "9999999999",
			Line1: "1 MG Road", City: "Bengaluru", State: "KA", PostalCode: "560001", Country: "IN",
		}},
		Prescriptions:        f.rx,
		Agents:               f.agents,
		Pricer:               pricer,
		Pharmacy:             config.PharmacyConfig{Name: "MediCart Central", Lat: &lat, Lng: &lng},
		DeliveryWindow:       72 * time.Hour,
		EnforcePrescriptions: true,
		Now:                  f.clock.Now,
	}
	if mutate != nil {
		mutate(&params)
	}
	svc, err := NewService(params)
	require.NoError(t, err)
	f.svc = svc
	return f
}

func (f *fixture) checkout(t *testing.T) *models.Order {
	t.Helper()
	order, err := f.svc.Checkout(context.Background(), CheckoutInput{Actor: f.customer})
	require.NoError(t, err)
	return order
}

func (f *fixture) outboxTypes(t *testing.T) []enums.OutboxEventType {
	t.Helper()
	var rows []models.OutboxEvent
	require.NoError(t, f.conn.Order("created_at ASC").Find(&rows).Error)
	out := make([]enums.OutboxEventType, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.EventType)
	}
	return out
}

func requireCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed, "expected typed error, got %v", err)
	require.Equal(t, code, typed.Code(), err.Error())
}

func TestCheckoutPricesAndSnapshotsCart(t *testing.T) {
	f := newFixture(t, nil)

	order := f.checkout(t)

	assert.Equal(t, 4000, order.SubtotalCents)
	assert.Equal(t, 720, order.TaxCents)
	assert.Equal(t, 5000, order.ShippingFeeCents)
	assert.Equal(t, 9720, order.TotalCents)
	assert.Equal(t, enums.OrderStatusPlaced, order.Status)
	assert.Equal(t, enums.PaymentMethodCOD, order.PaymentMethod)
	assert.Equal(t, enums.PaymentStatusPending, order.PaymentStatus)
	assert.Equal(t, "MediCart Central", order.PharmacyName)
	require.NotNil(t, order.EstimatedDeliveryAt)
	assert.Equal(t, f.clock.now.Add(72*time.Hour), *order.EstimatedDeliveryAt)
	require.Len(t, order.TrackingUpdates, 1)
	assert.Equal(t, "Order Placed", order.TrackingUpdates[0].Message)

	assert.True(t, f.cart.cleared)
	assert.Equal(t, 8, f.inventory.stock[f.medA.ID])
	assert.Equal(t, 4, f.inventory.stock[f.medB.ID])
	assert.Equal(t, []enums.OutboxEventType{enums.EventOrderPlaced}, f.outboxTypes(t))

	stored, err := f.svc.Get(context.Background(), f.customer, order.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Items, 2)
	assert.Equal(t, "Bengaluru", stored.ShippingAddress.City)
}

func TestCheckoutValidation(t *testing.T) {
	ctx := context.Background()

	t.Run("empty cart", func(t *testing.T) {
		f := newFixture(t, nil)
		f.cart.items = nil
		_, err := f.svc.Checkout(ctx, CheckoutInput{Actor: f.customer})
		requireCode(t, err, pkgerrors.CodeValidation)
	})

	t.Run("insufficient stock", func(t *testing.T) {
		f := newFixture(t, nil)
		f.cart.items[1].Quantity = 6
		_, err := f.svc.Checkout(ctx, CheckoutInput{Actor: f.customer})
		requireCode(t, err, pkgerrors.CodeValidation)
		assert.Equal(t, 10, f.inventory.stock[f.medA.ID], "no stock may move on failure")
	})

	t.Run("prescription required", func(t *testing.T) {
		f := newFixture(t, nil)
		f.medA.RequiresPrescription = true
		_, err := f.svc.Checkout(ctx, CheckoutInput{Actor: f.customer})
		requireCode(t, err, pkgerrors.CodeValidation)

		f.rx.err = pkgerrors.New(pkgerrors.CodePreconditionFailed, "prescription not approved")
		rxID := uuid.New()
		_, err = f.svc.Checkout(ctx, CheckoutInput{Actor: f.customer, PrescriptionID: &rxID})
		requireCode(t, err, pkgerrors.CodePreconditionFailed)

		f.rx.err = nil
		order, err := f.svc.Checkout(ctx, CheckoutInput{Actor: f.customer, PrescriptionID: &rxID})
		require.NoError(t, err)
		assert.Equal(t, rxID, *order.PrescriptionID)
	})

	t.Run("inline address incomplete", func(t *testing.T) {
		f := newFixture(t, nil)
		_, err := f.svc.Checkout(ctx, CheckoutInput{Actor: f.customer, Address: &types.Address{FullName: "A"}})
		requireCode(t, err, pkgerrors.CodeValidation)
	})

	t.Run("no address", func(t *testing.T) {
		f := newFixture(t, func(p *ServiceParams) { p.Addresses = &stubAddresses{} })
		_, err := f.svc.Checkout(ctx, CheckoutInput{Actor: f.customer})
		requireCode(t, err, pkgerrors.CodeValidation)
	})
}

func TestCheckoutOnlinePaymentGetsReference(t *testing.T) {
	f := newFixture(t, nil)
	order, err := f.svc.Checkout(context.Background(), CheckoutInput{Actor: f.customer, PaymentMethod: enums.PaymentMethodOnline})
	require.NoError(t, err)
	require.NotNil(t, order.PaymentReference)
	assert.Contains(t, *order.PaymentReference, "pi_")
}

func TestCheckoutRetriesOrderNumberCollision(t *testing.T) {
	numbers := []string{"MC20261019-AAAAAA", "MC20261019-AAAAAA", "MC20261019-BBBBBB"}
	f := newFixture(t, func(p *ServiceParams) {
		p.NewNumber = func(time.Time) string {
			n := numbers[0]
			numbers = numbers[1:]
			return n
		}
	})

	first := f.checkout(t)
	second := f.checkout(t)
	assert.Equal(t, "MC20261019-AAAAAA", first.OrderNumber)
	assert.Equal(t, "MC20261019-BBBBBB", second.OrderNumber)
}

func TestOrderLifecycleThroughDelivery(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	order := f.checkout(t)

	agent := models.DeliveryAgent{ID: uuid.New(), Name: "Ravi", Phone: "111", VehicleType: enums.VehicleBike, VehicleNumber: "KA01"}
	f.clock.now = f.clock.now.Add(time.Minute)
	attached, err := f.svc.AttachAgentTx(ctx, f.conn, AttachInput{OrderID: order.ID, Agent: agent, Actor: f.staff})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusConfirmed, attached.Status)

	_, err = f.svc.AttachAgentTx(ctx, f.conn, AttachInput{OrderID: order.ID, Agent: agent, Actor: f.staff})
	requireCode(t, err, pkgerrors.CodeConflict)

	for _, status := range []enums.OrderStatus{enums.OrderStatusProcessing, enums.OrderStatusPacked, enums.OrderStatusOutForDelivery} {
		f.clock.now = f.clock.now.Add(time.Minute)
		_, err := f.svc.Transition(ctx, TransitionInput{OrderID: order.ID, Status: status, Actor: f.staff})
		require.NoError(t, err, status)
	}
	assert.Equal(t, []uuid.UUID{agent.ID}, f.agents.busy)

	_, err = f.svc.Cancel(ctx, CancelInput{OrderID: order.ID, Actor: f.customer})
	requireCode(t, err, pkgerrors.CodePreconditionFailed)

	done, err := f.svc.CompleteDelivery(ctx, CompleteInput{OrderID: order.ID, Actor: f.staff})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusDelivered, done.Status)
	assert.Equal(t, enums.PaymentStatusPaid, done.PaymentStatus)
	assert.True(t, f.agents.delivered)

	stored, err := f.svc.Get(ctx, f.customer, order.ID)
	require.NoError(t, err)
	require.Len(t, stored.TrackingUpdates, 6)
	for i := 1; i < len(stored.TrackingUpdates); i++ {
		assert.False(t, stored.TrackingUpdates[i].RecordedAt.Before(stored.TrackingUpdates[i-1].RecordedAt))
	}
	latest, ok := stored.LatestUpdate()
	require.True(t, ok)
	assert.Equal(t, stored.Status, latest.Status)
	require.NotNil(t, stored.DeliveredAt)

	_, err = f.svc.Transition(ctx, TransitionInput{OrderID: order.ID, Status: enums.OrderStatusPacked, Actor: f.staff})
	requireCode(t, err, pkgerrors.CodePreconditionFailed)
}

func TestTransitionRules(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	order := f.checkout(t)

	_, err := f.svc.Transition(ctx, TransitionInput{OrderID: order.ID, Status: enums.OrderStatusProcessing, Actor: f.customer})
	requireCode(t, err, pkgerrors.CodeForbidden)

	_, err = f.svc.Transition(ctx, TransitionInput{OrderID: order.ID, Status: enums.OrderStatusOutForDelivery, Actor: f.staff})
	requireCode(t, err, pkgerrors.CodePreconditionFailed)

	_, err = f.svc.Transition(ctx, TransitionInput{OrderID: order.ID, Status: enums.OrderStatusProcessing, Actor: f.staff})
	requireCode(t, err, pkgerrors.CodePreconditionFailed)

	_, err = f.svc.Transition(ctx, TransitionInput{OrderID: order.ID, Status: enums.OrderStatusConfirmed, Actor: f.staff})
	require.NoError(t, err)

	_, err = f.svc.Transition(ctx, TransitionInput{OrderID: order.ID, Status: enums.OrderStatusPacked, Actor: f.staff})
	requireCode(t, err, pkgerrors.CodePreconditionFailed)

	_, err = f.svc.Transition(ctx, TransitionInput{OrderID: order.ID, Status: enums.OrderStatusProcessing, Actor: f.staff})
	require.NoError(t, err)

	_, err = f.svc.Transition(ctx, TransitionInput{OrderID: order.ID, Status: enums.OrderStatusConfirmed, Actor: f.staff})
	requireCode(t, err, pkgerrors.CodePreconditionFailed)

	stored, err := f.svc.Get(ctx, f.staff, order.ID)
	require.NoError(t, err)
	assert.Len(t, stored.TrackingUpdates, 3)

	_, err = f.svc.Transition(ctx, TransitionInput{OrderID: order.ID, Status: enums.OrderStatus("lost"), Actor: f.staff})
	requireCode(t, err, pkgerrors.CodeValidation)

	_, err = f.svc.Transition(ctx, TransitionInput{OrderID: uuid.New(), Status: enums.OrderStatusPacked, Actor: f.staff})
	requireCode(t, err, pkgerrors.CodeNotFound)
}

func TestCancelRestoresStockAndReleasesAgent(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	order := f.checkout(t)

	agent := models.DeliveryAgent{ID: uuid.New(), Name: "Ravi", Phone: "111", VehicleType: enums.VehicleBike, VehicleNumber: "KA01"}
	_, err := f.svc.AttachAgentTx(ctx, f.conn, AttachInput{OrderID: order.ID, Agent: agent, Actor: f.staff})
	require.NoError(t, err)

	stranger := auth.Actor{UserID: uuid.New(), Role: enums.UserRoleCustomer}
	_, err = f.svc.Cancel(ctx, CancelInput{OrderID: order.ID, Actor: stranger})
	requireCode(t, err, pkgerrors.CodeForbidden)

	cancelled, err := f.svc.Cancel(ctx, CancelInput{OrderID: order.ID, Reason: "ordered twice", Actor: f.customer})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelReason)
	assert.Equal(t, "ordered twice", *cancelled.CancelReason)
	assert.Equal(t, 10, f.inventory.stock[f.medA.ID])
	assert.Equal(t, 5, f.inventory.stock[f.medB.ID])
	assert.Equal(t, []uuid.UUID{agent.ID}, f.agents.released)
	assert.False(t, f.agents.delivered)

	_, err = f.svc.Cancel(ctx, CancelInput{OrderID: order.ID, Actor: f.customer})
	requireCode(t, err, pkgerrors.CodePreconditionFailed)

	assert.Contains(t, f.outboxTypes(t), enums.EventOrderCancelled)
}

// bindingRepo binds an agent to the order right after the service has read
// it, the way a concurrent assignment committing in between would.
type bindingRepo struct {
	Repository
	tx    *gorm.DB
	state *bindingState
}

type bindingState struct {
	armed   bool
	agentID uuid.UUID
}

func (r *bindingRepo) WithTx(tx *gorm.DB) Repository {
	return &bindingRepo{Repository: r.Repository.WithTx(tx), tx: tx, state: r.state}
}

func (r *bindingRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	order, err := r.Repository.FindByID(ctx, id)
	if err != nil || !r.state.armed || r.tx == nil {
		return order, err
	}
	r.state.armed = false
	bindErr := r.tx.Model(&models.Order{}).Where("id = ?", id).Update("delivery_agent_id", r.state.agentID).Error
	return order, bindErr
}

func TestCancelConflictsWhenAgentBoundConcurrently(t *testing.T) {
	state := &bindingState{agentID: uuid.New()}
	f := newFixture(t, func(p *ServiceParams) {
		p.Repo = &bindingRepo{Repository: p.Repo, state: state}
	})
	ctx := context.Background()
	order := f.checkout(t)
	for _, status := range []enums.OrderStatus{enums.OrderStatusConfirmed, enums.OrderStatusProcessing} {
		_, err := f.svc.Transition(ctx, TransitionInput{OrderID: order.ID, Status: status, Actor: f.staff})
		require.NoError(t, err, status)
	}

	state.armed = true
	_, err := f.svc.Cancel(ctx, CancelInput{OrderID: order.ID, Actor: f.customer})
	requireCode(t, err, pkgerrors.CodeConflict)
	assert.Empty(t, f.agents.released)

	require.NoError(t, f.conn.Model(&models.Order{}).Where("id = ?", order.ID).
		Update("delivery_agent_id", state.agentID).Error)
	var stored models.Order
	require.NoError(t, f.conn.First(&stored, "id = ?", order.ID).Error)
	assert.Equal(t, enums.OrderStatusProcessing, stored.Status)

	cancelled, err := f.svc.Cancel(ctx, CancelInput{OrderID: order.ID, Actor: f.customer})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCancelled, cancelled.Status)
	assert.Equal(t, []uuid.UUID{state.agentID}, f.agents.released)
}

func TestGetListAndTrack(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	first := f.checkout(t)
	f.clock.now = f.clock.now.Add(time.Second)
	second := f.checkout(t)

	stranger := auth.Actor{UserID: uuid.New(), Role: enums.UserRoleCustomer}
	_, err := f.svc.Get(ctx, stranger, first.ID)
	requireCode(t, err, pkgerrors.CodeForbidden)

	page, err := f.svc.List(ctx, f.customer, ListFilters{}, pagination.Params{Limit: 1})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, second.ID, page.Items[0].ID)
	assert.Equal(t, 3, page.Items[0].ItemCount)
	require.NotEmpty(t, page.NextCursor)

	empty, err := f.svc.List(ctx, stranger, ListFilters{}, pagination.Params{})
	require.NoError(t, err)
	assert.Empty(t, empty.Items)

	all, err := f.svc.List(ctx, f.staff, ListFilters{}, pagination.Params{})
	require.NoError(t, err)
	assert.Len(t, all.Items, 2)

	view, err := f.svc.Track(ctx, first.OrderNumber)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPlaced, view.Status)
	assert.Len(t, view.TrackingUpdates, 1)

	_, err = f.svc.Track(ctx, "MC00000000-NOPE00")
	requireCode(t, err, pkgerrors.CodeNotFound)
}

func TestRecordAgentLocationAppendsTracking(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	order := f.checkout(t)

	agentID := uuid.New()
	none, err := f.svc.RecordAgentLocationTx(ctx, f.conn, agentID, types.GeoPoint{Lat: 1, Lng: 2}, "")
	require.NoError(t, err)
	assert.Nil(t, none)

	agent := models.DeliveryAgent{ID: agentID, Name: "Ravi", Phone: "111", VehicleType: enums.VehicleBike, VehicleNumber: "KA01"}
	_, err = f.svc.AttachAgentTx(ctx, f.conn, AttachInput{OrderID: order.ID, Agent: agent, Actor: f.staff})
	require.NoError(t, err)

	updated, err := f.svc.RecordAgentLocationTx(ctx, f.conn, agentID, types.GeoPoint{Lat: 12.9, Lng: 77.6}, "Indiranagar")
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, enums.OrderStatusConfirmed, updated.Status)

	latest, ok := updated.LatestUpdate()
	require.True(t, ok)
	assert.Equal(t, enums.OrderStatusConfirmed, latest.Status)
	require.NotNil(t, latest.Location)
	assert.Equal(t, "Indiranagar", *latest.Location)
	assert.Equal(t, 3, latest.Seq)
}

type recordingListener struct {
	calls []uuid.UUID
}

func (r *recordingListener) OnPacked(_ context.Context, orderID uuid.UUID) {
	r.calls = append(r.calls, orderID)
}

func TestPackedListenerFiresWhenEnabled(t *testing.T) {
	f := newFixture(t, func(p *ServiceParams) { p.AutoAssignOnPacked = true })
	listener := &recordingListener{}
	f.svc.SetPackedListener(listener)
	ctx := context.Background()
	order := f.checkout(t)

	for _, status := range []enums.OrderStatus{enums.OrderStatusConfirmed, enums.OrderStatusProcessing} {
		_, err := f.svc.Transition(ctx, TransitionInput{OrderID: order.ID, Status: status, Actor: f.staff})
		require.NoError(t, err, status)
	}
	assert.Empty(t, listener.calls)

	_, err := f.svc.Transition(ctx, TransitionInput{OrderID: order.ID, Status: enums.OrderStatusPacked, Actor: f.staff})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{order.ID}, listener.calls)
}
