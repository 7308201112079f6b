package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/medicart/medicart-api/api/middleware"
	"github.com/medicart/medicart-api/api/responses"
	"github.com/medicart/medicart-api/api/validators"
	"github.com/medicart/medicart-api/internal/orders"
	"github.com/medicart/medicart-api/pkg/enums"
	pkgerrors "github.com/medicart/medicart-api/pkg/errors"
	"github.com/medicart/medicart-api/pkg/logger"
	"github.com/medicart/medicart-api/pkg/types"
)

type checkoutAddressRequest struct {
	FullName   string   `json:"full_name" validate:"required,max=120"`
	Phone      string   `json:"phone" validate:"required,max=32"`
	Line1      string   `json:"line1" validate:"required,max=200"`
	Line2      *string  `json:"line2" validate:"omitempty,max=200"`
	City       string   `json:"city" validate:"required,max=100"`
	State      string   `json:"state" validate:"required,max=100"`
	PostalCode string   `json:"postal_code" validate:"required,max=20"`
	Country    string   `json:"country" validate:"omitempty,len=2"`
	Lat        *float64 `json:"lat" validate:"omitempty,latitude"`
	Lng        *float64 `json:"lng" validate:"omitempty,longitude"`
}

type checkoutRequest struct {
	AddressID      *uuid.UUID              `json:"address_id"`
	Address        *checkoutAddressRequest `json:"address"`
	PaymentMethod  string                  `json:"payment_method" validate:"required,oneof=cod online"`
	PrescriptionID *uuid.UUID              `json:"prescription_id"`
	Notes          *string                 `json:"notes" validate:"omitempty,max=500"`
}

type cancelOrderRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

type locationRequest struct {
	Label string   `json:"label" validate:"max=200"`
	Lat   *float64 `json:"lat" validate:"omitempty,latitude"`
	Lng   *float64 `json:"lng" validate:"omitempty,longitude"`
}

func (l *locationRequest) toLocation() (*orders.Location, error) {
	if l == nil {
		return nil, nil
	}
	if (l.Lat == nil) != (l.Lng == nil) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "lat and lng must be provided together")
	}
	loc := &orders.Location{Label: strings.TrimSpace(l.Label)}
	if l.Lat != nil {
		loc.Point = &types.GeoPoint{Lat: *l.Lat, Lng: *l.Lng}
	}
	return loc, nil
}

type transitionRequest struct {
	Status   string           `json:"status" validate:"required"`
	Message  string           `json:"message" validate:"max=500"`
	Location *locationRequest `json:"location"`
}

// OrderCheckout converts the caller's cart into an order.
func OrderCheckout(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := middleware.RequireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input := orders.CheckoutInput{
			Actor:          actor,
			AddressID:      payload.AddressID,
			PaymentMethod:  enums.PaymentMethod(payload.PaymentMethod),
			PrescriptionID: payload.PrescriptionID,
			Notes:          payload.Notes,
		}
		if a := payload.Address; a != nil {
			input.Address = &types.Address{
				FullName:   a.FullName,
				Phone:      a.Phone,
				Line1:      a.Line1,
				Line2:      a.Line2,
				City:       a.City,
				State:      a.State,
				PostalCode: a.PostalCode,
				Country:    a.Country,
				Lat:        a.Lat,
				Lng:        a.Lng,
			}
		}
		order, err := svc.Checkout(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteCreated(w, orders.NewOrderView(*order))
	}
}

// OrderList returns the caller's orders. Staff see every order and may
// filter by user_id, agent_id and status.
func OrderList(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := middleware.RequireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := validators.ParsePageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filters, err := orderFilters(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := svc.List(r.Context(), actor, filters, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

func orderFilters(r *http.Request) (orders.ListFilters, error) {
	var filters orders.ListFilters
	userID, err := validators.ParseQueryUUID(r, "user_id")
	if err != nil {
		return filters, err
	}
	agentID, err := validators.ParseQueryUUID(r, "agent_id")
	if err != nil {
		return filters, err
	}
	filters.UserID = userID
	filters.AgentID = agentID
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status, err := enums.ParseOrderStatus(raw)
		if err != nil {
			return filters, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status")
		}
		filters.Status = &status
	}
	return filters, nil
}

func OrderDetail(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, id, ok := actorAndID(w, r, logg, "orderId")
		if !ok {
			return
		}
		order, err := svc.Get(r.Context(), actor, id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, orders.NewOrderView(*order))
	}
}

func OrderCancel(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, id, ok := actorAndID(w, r, logg, "orderId")
		if !ok {
			return
		}
		var payload cancelOrderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.Cancel(r.Context(), orders.CancelInput{
			OrderID: id,
			Reason:  strings.TrimSpace(payload.Reason),
			Actor:   actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, orders.NewOrderView(*order))
	}
}

// AdminOrderTransition moves an order forward one lifecycle step.
func AdminOrderTransition(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, id, ok := actorAndID(w, r, logg, "orderId")
		if !ok {
			return
		}
		var payload transitionRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := enums.ParseOrderStatus(payload.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
			return
		}
		location, err := payload.Location.toLocation()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.Transition(r.Context(), orders.TransitionInput{
			OrderID:  id,
			Status:   status,
			Message:  strings.TrimSpace(payload.Message),
			Location: location,
			Actor:    actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, orders.NewOrderView(*order))
	}
}

// OrderTrack is the public tracking lookup by order number.
func OrderTrack(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		number := strings.TrimSpace(chi.URLParam(r, "orderNumber"))
		if number == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "order number is required"))
			return
		}
		view, err := svc.Track(r.Context(), number)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}
