package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/medicart/medicart-api/api/controllers"
	"github.com/medicart/medicart-api/api/middleware"
	"github.com/medicart/medicart-api/internal/cart"
	"github.com/medicart/medicart-api/internal/delivery"
	"github.com/medicart/medicart-api/internal/medicines"
	"github.com/medicart/medicart-api/internal/orders"
	"github.com/medicart/medicart-api/internal/prescriptions"
	"github.com/medicart/medicart-api/internal/users"
	"github.com/medicart/medicart-api/pkg/config"
	"github.com/medicart/medicart-api/pkg/enums"
	"github.com/medicart/medicart-api/pkg/logger"
	"github.com/medicart/medicart-api/pkg/metrics"
	pkgredis "github.com/medicart/medicart-api/pkg/redis"
)

// Store is the redis surface the HTTP layer needs for idempotency and
// public rate limiting.
type Store interface {
	pkgredis.IdempotencyStore
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// Deps wires the router. Pingers are reported by /health/ready; a nil entry
// shows up as disabled.
type Deps struct {
	Config        *config.Config
	Logger        *logger.Logger
	Store         Store
	Pingers       map[string]controllers.Pinger
	HTTPMetrics   *metrics.HTTPMetrics
	Gatherer      prometheus.Gatherer
	Users         users.Service
	Medicines     medicines.Service
	Cart          cart.Service
	Orders        orders.Service
	Prescriptions prescriptions.Service
	Delivery      delivery.Service
}

func NewRouter(d Deps) http.Handler {
	cfg, logg := d.Config, d.Logger
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.Metrics(d.HTTPMetrics),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	trackingPolicy := middleware.NewRateLimitPolicy("tracking", cfg.RateLimit.TrackingWindow, cfg.RateLimit.TrackingLimit)
	uploadBytes := cfg.Media.MaxUploadBytes()

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, d.Pingers))
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler(d.Gatherer))

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
		r.With(middleware.IPRateLimit(trackingPolicy, d.Store, logg)).
			Get("/track/{orderNumber}", controllers.OrderTrack(d.Orders, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		// Catalog reads are open to anonymous callers.
		r.Group(func(r chi.Router) {
			r.Get("/medicines", controllers.MedicineList(d.Medicines, logg))
			r.Get("/medicines/categories", controllers.MedicineCategories(d.Medicines, logg))
			r.Get("/medicines/{medicineId}", controllers.MedicineDetail(d.Medicines, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, d.Users, logg))
			r.Use(middleware.Idempotency(d.Store, logg))

			r.Get("/ping", controllers.PrivatePing())

			r.Get("/me", controllers.ProfileFetch(d.Users, logg))
			r.Patch("/me", controllers.ProfileUpdate(d.Users, logg))

			r.Route("/addresses", func(r chi.Router) {
				r.Get("/", controllers.AddressList(d.Users, logg))
				r.Post("/", controllers.AddressCreate(d.Users, logg))
				r.Put("/{addressId}", controllers.AddressUpdate(d.Users, logg))
				r.Post("/{addressId}/default", controllers.AddressSetDefault(d.Users, logg))
				r.Delete("/{addressId}", controllers.AddressDelete(d.Users, logg))
			})

			r.Route("/wishlist", func(r chi.Router) {
				r.Get("/", controllers.WishlistList(d.Users, logg))
				r.Put("/{medicineId}", controllers.WishlistAdd(d.Users, logg))
				r.Delete("/{medicineId}", controllers.WishlistRemove(d.Users, logg))
			})

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", controllers.CartFetch(d.Cart, logg))
				r.Delete("/", controllers.CartClear(d.Cart, logg))
				r.Post("/items", controllers.CartAddItem(d.Cart, logg))
				r.Patch("/items/{medicineId}", controllers.CartSetQuantity(d.Cart, logg))
				r.Delete("/items/{medicineId}", controllers.CartRemoveItem(d.Cart, logg))
			})

			r.Route("/orders", func(r chi.Router) {
				r.Post("/", controllers.OrderCheckout(d.Orders, logg))
				r.Get("/", controllers.OrderList(d.Orders, logg))
				r.Get("/{orderId}", controllers.OrderDetail(d.Orders, logg))
				r.Post("/{orderId}/cancel", controllers.OrderCancel(d.Orders, logg))
			})

			r.Route("/prescriptions", func(r chi.Router) {
				r.Post("/", controllers.PrescriptionUpload(d.Prescriptions, uploadBytes, cfg.Media.MaxPrescriptionImg, logg))
				r.Get("/", controllers.PrescriptionList(d.Prescriptions, logg))
				r.Get("/{prescriptionId}", controllers.PrescriptionDetail(d.Prescriptions, logg))
				r.Delete("/{prescriptionId}", controllers.PrescriptionDelete(d.Prescriptions, logg))
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.RequireStaff(logg))

				r.Route("/medicines", func(r chi.Router) {
					r.Use(middleware.RequireRole(logg, enums.UserRoleAdmin))
					r.Post("/", controllers.AdminMedicineCreate(d.Medicines, logg))
					r.Patch("/{medicineId}", controllers.AdminMedicineUpdate(d.Medicines, logg))
					r.Delete("/{medicineId}", controllers.AdminMedicineDeactivate(d.Medicines, logg))
					r.Post("/{medicineId}/image", controllers.AdminMedicineImage(d.Medicines, uploadBytes, logg))
				})

				r.Route("/orders", func(r chi.Router) {
					r.Get("/", controllers.OrderList(d.Orders, logg))
					r.Get("/{orderId}", controllers.OrderDetail(d.Orders, logg))
					r.Post("/{orderId}/status", controllers.AdminOrderTransition(d.Orders, logg))
					r.Post("/{orderId}/cancel", controllers.OrderCancel(d.Orders, logg))
					r.Post("/{orderId}/assign", controllers.AdminOrderAssign(d.Delivery, logg))
					r.Post("/{orderId}/auto-assign", controllers.AdminOrderAutoAssign(d.Delivery, logg))
					r.Post("/{orderId}/complete", controllers.AdminOrderComplete(d.Delivery, logg))
				})

				r.Route("/agents", func(r chi.Router) {
					r.Get("/", controllers.AdminAgentList(d.Delivery, logg))
					r.Post("/", controllers.AdminAgentCreate(d.Delivery, logg))
					r.Get("/available", controllers.AdminAgentsAvailable(d.Delivery, logg))
					r.Get("/{agentId}", controllers.AdminAgentDetail(d.Delivery, logg))
					r.Patch("/{agentId}", controllers.AdminAgentUpdate(d.Delivery, logg))
					r.Post("/{agentId}/availability", controllers.AdminAgentAvailability(d.Delivery, logg))
					r.Post("/{agentId}/location", controllers.AdminAgentLocation(d.Delivery, logg))
				})

				r.Route("/prescriptions", func(r chi.Router) {
					r.Get("/", controllers.PrescriptionList(d.Prescriptions, logg))
					r.Get("/{prescriptionId}", controllers.PrescriptionDetail(d.Prescriptions, logg))
					r.Post("/{prescriptionId}/start-review", controllers.AdminPrescriptionStartReview(d.Prescriptions, logg))
					r.Post("/{prescriptionId}/review", controllers.AdminPrescriptionReview(d.Prescriptions, logg))
				})
			})
		})
	})

	return r
}
