package delivery

import (
	"time"

	"github.com/google/uuid"

	"github.com/medicart/medicart-api/pkg/db/models"
	"github.com/medicart/medicart-api/pkg/enums"
	"github.com/medicart/medicart-api/pkg/types"
)

type AgentView struct {
	ID              uuid.UUID         `json:"id"`
	Name            string            `json:"name"`
	Phone           string            `json:"phone"`
	Email           *string           `json:"email,omitempty"`
	VehicleType     enums.VehicleType `json:"vehicle_type"`
	VehicleNumber   string            `json:"vehicle_number"`
	VehicleModel    *string           `json:"vehicle_model,omitempty"`
	Location        *LocationView     `json:"location,omitempty"`
	Status          enums.AgentStatus `json:"status"`
	Rating          float64           `json:"rating"`
	TotalDeliveries int               `json:"total_deliveries"`
	CurrentOrderID  *uuid.UUID        `json:"current_order_id,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

type LocationView struct {
	types.GeoPoint
	Address   *string    `json:"address,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// AvailableAgent is an agent ranked for a specific order.
type AvailableAgent struct {
	AgentView
	DistanceKM *float64 `json:"distance_km,omitempty"`
}

func NewAgentView(a models.DeliveryAgent) AgentView {
	view := AgentView{
		ID:              a.ID,
		Name:            a.Name,
		Phone:           a.Phone,
		Email:           a.Email,
		VehicleType:     a.VehicleType,
		VehicleNumber:   a.VehicleNumber,
		VehicleModel:    a.VehicleModel,
		Status:          a.Status,
		Rating:          a.Rating,
		TotalDeliveries: a.TotalDeliveries,
		CurrentOrderID:  a.CurrentOrderID,
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
	if point, ok := types.PointFrom(a.Lat, a.Lng); ok {
		view.Location = &LocationView{GeoPoint: point, Address: a.LocationAddress, UpdatedAt: a.LocationUpdatedAt}
	}
	return view
}
