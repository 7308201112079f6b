// Package app assembles the domain services shared by the API and the
// background workers.
package app

import (
	"fmt"

	"github.com/medicart/medicart-api/internal/cart"
	"github.com/medicart/medicart-api/internal/delivery"
	"github.com/medicart/medicart-api/internal/medicines"
	"github.com/medicart/medicart-api/internal/orders"
	"github.com/medicart/medicart-api/internal/prescriptions"
	"github.com/medicart/medicart-api/internal/users"
	"github.com/medicart/medicart-api/pkg/config"
	"github.com/medicart/medicart-api/pkg/db"
	"github.com/medicart/medicart-api/pkg/logger"
	"github.com/medicart/medicart-api/pkg/metrics"
	"github.com/medicart/medicart-api/pkg/outbox"
	"github.com/medicart/medicart-api/pkg/storage"
)

type Params struct {
	Config  *config.Config
	Logger  *logger.Logger
	DB      *db.Client
	Images  storage.ImageStore
	Metrics *metrics.DomainMetrics
}

type Services struct {
	Users         users.Service
	Medicines     medicines.Service
	Cart          cart.Service
	Orders        orders.Service
	Prescriptions prescriptions.Service
	Delivery      delivery.Service
	Outbox        *outbox.Service
}

// NewServices wires every domain service. Orders is built before delivery
// because delivery drives orders through its gateway; delivery is then
// registered back as the packed-order listener.
func NewServices(p Params) (*Services, error) {
	if p.Config == nil || p.DB == nil {
		return nil, fmt.Errorf("config and db required")
	}
	if p.Logger == nil {
		p.Logger = logger.Nop()
	}
	if p.Images == nil {
		p.Images = storage.Disabled{}
	}
	cfg, logg, conn := p.Config, p.Logger, p.DB.DB()

	outboxSvc := outbox.NewService(outbox.NewRepository(conn), logg)

	medicineRepo := medicines.NewRepository(conn)
	medicineSvc, err := medicines.NewService(medicineRepo, p.Images, logg)
	if err != nil {
		return nil, fmt.Errorf("medicines service: %w", err)
	}

	addressRepo := users.NewAddressRepository(conn)
	userSvc, err := users.NewService(users.ServiceParams{
		Users:     users.NewRepository(conn),
		Addresses: addressRepo,
		Wishlist:  users.NewWishlistRepository(conn),
		Medicines: medicineRepo,
		Tx:        p.DB,
		Logger:    logg,
	})
	if err != nil {
		return nil, fmt.Errorf("users service: %w", err)
	}

	pricer, err := orders.NewPricer(cfg.Pricing)
	if err != nil {
		return nil, fmt.Errorf("pricer: %w", err)
	}

	cartRepo := cart.NewRepository(conn)
	cartSvc, err := cart.NewService(cartRepo, p.DB, medicineRepo, pricer)
	if err != nil {
		return nil, fmt.Errorf("cart service: %w", err)
	}

	prescriptionSvc, err := prescriptions.NewService(prescriptions.ServiceParams{
		Repo:      prescriptions.NewRepository(conn),
		Tx:        p.DB,
		Outbox:    outboxSvc,
		Images:    p.Images,
		MaxImages: cfg.Media.MaxPrescriptionImg,
		Metrics:   p.Metrics,
		Logger:    logg,
	})
	if err != nil {
		return nil, fmt.Errorf("prescriptions service: %w", err)
	}

	agentRepo := delivery.NewRepository(conn)
	orderSvc, err := orders.NewService(orders.ServiceParams{
		Repo:                 orders.NewRepository(conn),
		Tx:                   p.DB,
		Outbox:               outboxSvc,
		Cart:                 cart.NewCheckoutStore(cartRepo),
		Inventory:            medicines.NewInventory(),
		Addresses:            addressRepo,
		Prescriptions:        prescriptionSvc,
		Agents:               delivery.NewCoordinator(agentRepo, logg),
		Pricer:               pricer,
		Pharmacy:             cfg.Pharmacy,
		DeliveryWindow:       cfg.Delivery.EstimatedWindow,
		EnforcePrescriptions: cfg.Flags.EnforcePrescriptions,
		AutoAssignOnPacked:   cfg.Flags.AutoAssignOnPacked,
		Metrics:              p.Metrics,
		Logger:               logg,
	})
	if err != nil {
		return nil, fmt.Errorf("orders service: %w", err)
	}

	deliverySvc, err := delivery.NewService(agentRepo, p.DB, outboxSvc, orderSvc, nil, p.Metrics, logg)
	if err != nil {
		return nil, fmt.Errorf("delivery service: %w", err)
	}
	orderSvc.SetPackedListener(deliverySvc)

	return &Services{
		Users:         userSvc,
		Medicines:     medicineSvc,
		Cart:          cartSvc,
		Orders:        orderSvc,
		Prescriptions: prescriptionSvc,
		Delivery:      deliverySvc,
		Outbox:        outboxSvc,
	}, nil
}
