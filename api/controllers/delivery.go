package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/medicart/medicart-api/api/middleware"
	"github.com/medicart/medicart-api/api/responses"
	"github.com/medicart/medicart-api/api/validators"
	"github.com/medicart/medicart-api/internal/delivery"
	"github.com/medicart/medicart-api/internal/orders"
	"github.com/medicart/medicart-api/pkg/enums"
	pkgerrors "github.com/medicart/medicart-api/pkg/errors"
	"github.com/medicart/medicart-api/pkg/logger"
)

type createAgentRequest struct {
	Name          string  `json:"name" validate:"required,max=120"`
	Phone         string  `json:"phone" validate:"required,max=32"`
	Email         *string `json:"email" validate:"omitempty,email"`
	VehicleType   string  `json:"vehicle_type" validate:"required,oneof=bike scooter car van"`
	VehicleNumber string  `json:"vehicle_number" validate:"required,max=32"`
	VehicleModel  *string `json:"vehicle_model" validate:"omitempty,max=100"`
	Rating        float64 `json:"rating" validate:"gte=0,lte=5"`
	Available     *bool   `json:"available"`
}

type updateAgentRequest struct {
	Name          *string  `json:"name" validate:"omitempty,min=1,max=120"`
	Phone         *string  `json:"phone" validate:"omitempty,min=1,max=32"`
	Email         *string  `json:"email" validate:"omitempty,email"`
	VehicleType   *string  `json:"vehicle_type" validate:"omitempty,oneof=bike scooter car van"`
	VehicleNumber *string  `json:"vehicle_number" validate:"omitempty,min=1,max=32"`
	VehicleModel  *string  `json:"vehicle_model" validate:"omitempty,max=100"`
	Rating        *float64 `json:"rating" validate:"omitempty,gte=0,lte=5"`
}

type availabilityRequest struct {
	Status string `json:"status" validate:"required,oneof=available offline"`
}

type agentLocationRequest struct {
	Lat     *float64 `json:"lat" validate:"required,latitude"`
	Lng     *float64 `json:"lng" validate:"required,longitude"`
	Address string   `json:"address" validate:"max=200"`
}

type assignAgentRequest struct {
	AgentID uuid.UUID `json:"agent_id" validate:"required"`
}

func AdminAgentCreate(svc delivery.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := middleware.RequireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload createAgentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		available := payload.Available == nil || *payload.Available
		agent, err := svc.Create(r.Context(), actor, delivery.CreateAgentInput{
			Name:          strings.TrimSpace(payload.Name),
			Phone:         strings.TrimSpace(payload.Phone),
			Email:         payload.Email,
			VehicleType:   enums.VehicleType(payload.VehicleType),
			VehicleNumber: strings.TrimSpace(payload.VehicleNumber),
			VehicleModel:  payload.VehicleModel,
			Rating:        payload.Rating,
			Available:     available,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteCreated(w, delivery.NewAgentView(*agent))
	}
}

func AdminAgentUpdate(svc delivery.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, id, ok := actorAndID(w, r, logg, "agentId")
		if !ok {
			return
		}
		var payload updateAgentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input := delivery.UpdateAgentInput{
			Name:          payload.Name,
			Phone:         payload.Phone,
			Email:         payload.Email,
			VehicleNumber: payload.VehicleNumber,
			VehicleModel:  payload.VehicleModel,
			Rating:        payload.Rating,
		}
		if payload.VehicleType != nil {
			vt := enums.VehicleType(*payload.VehicleType)
			input.VehicleType = &vt
		}
		agent, err := svc.Update(r.Context(), actor, id, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, delivery.NewAgentView(*agent))
	}
}

// AdminAgentAvailability toggles an idle agent between available and offline.
func AdminAgentAvailability(svc delivery.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, id, ok := actorAndID(w, r, logg, "agentId")
		if !ok {
			return
		}
		var payload availabilityRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		agent, err := svc.SetAvailability(r.Context(), actor, id, enums.AgentStatus(payload.Status))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, delivery.NewAgentView(*agent))
	}
}

func AdminAgentDetail(svc delivery.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, id, ok := actorAndID(w, r, logg, "agentId")
		if !ok {
			return
		}
		agent, err := svc.Get(r.Context(), actor, id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, delivery.NewAgentView(*agent))
	}
}

func AdminAgentList(svc delivery.Service, logg *logger.Logger) http.HandlerFunc {
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
		var filters delivery.AgentFilters
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParseAgentStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
				return
			}
			filters.Status = &status
		}
		page, err := svc.List(r.Context(), actor, filters, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

// AdminAgentsAvailable lists available agents, ranked by distance to the
// delivery address when order_id is given.
func AdminAgentsAvailable(svc delivery.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := middleware.RequireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.ParseQueryUUID(r, "order_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		agents, err := svc.ListAvailable(r.Context(), actor, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"items": agents})
	}
}

func AdminAgentLocation(svc delivery.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, id, ok := actorAndID(w, r, logg, "agentId")
		if !ok {
			return
		}
		var payload agentLocationRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		agent, err := svc.UpdateLocation(r.Context(), actor, id, delivery.LocationInput{
			Lat:     *payload.Lat,
			Lng:     *payload.Lng,
			Address: strings.TrimSpace(payload.Address),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, delivery.NewAgentView(*agent))
	}
}

func AdminOrderAssign(svc delivery.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, orderID, ok := actorAndID(w, r, logg, "orderId")
		if !ok {
			return
		}
		var payload assignAgentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.Assign(r.Context(), actor, orderID, payload.AgentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, orders.NewOrderView(*order))
	}
}

func AdminOrderAutoAssign(svc delivery.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, orderID, ok := actorAndID(w, r, logg, "orderId")
		if !ok {
			return
		}
		order, err := svc.AutoAssign(r.Context(), actor, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, orders.NewOrderView(*order))
	}
}

// AdminOrderComplete marks an out-for-delivery order delivered and frees its
// agent.
func AdminOrderComplete(svc delivery.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, orderID, ok := actorAndID(w, r, logg, "orderId")
		if !ok {
			return
		}
		order, err := svc.Complete(r.Context(), actor, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, orders.NewOrderView(*order))
	}
}
