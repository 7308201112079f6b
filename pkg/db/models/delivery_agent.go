package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/medicart/medicart-api/pkg/enums"
	"github.com/medicart/medicart-api/pkg/types"
)

// DeliveryAgent is a courier that can be bound to one order at a time.
type DeliveryAgent struct {
	ID                uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name              string            `gorm:"column:name;not null"`
	Phone             string            `gorm:"column:phone;not null;uniqueIndex:delivery_agents_phone_key"`
	Email             *string           `gorm:"column:email"`
	VehicleType       enums.VehicleType `gorm:"column:vehicle_type;type:text;not null"`
	VehicleNumber     string            `gorm:"column:vehicle_number;not null"`
	VehicleModel      *string           `gorm:"column:vehicle_model"`
	Lat               *float64          `gorm:"column:lat"`
	Lng               *float64          `gorm:"column:lng"`
	LocationAddress   *string           `gorm:"column:location_address"`
	LocationUpdatedAt *time.Time        `gorm:"column:location_updated_at"`
	Status            enums.AgentStatus `gorm:"column:status;type:text;not null;default:'offline'"`
	Rating            float64           `gorm:"column:rating;not null;default:0"`
	TotalDeliveries   int               `gorm:"column:total_deliveries;not null;default:0"`
	CurrentOrderID    *uuid.UUID        `gorm:"column:current_order_id;type:uuid"`
	CreatedAt         time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

// Snapshot copies the display fields frozen onto an order.
func (a DeliveryAgent) Snapshot() types.AgentSnapshot {
	snap := types.AgentSnapshot{
		Name:          a.Name,
		Phone:         a.Phone,
		VehicleType:   string(a.VehicleType),
		VehicleNumber: a.VehicleNumber,
	}
	if a.VehicleModel != nil {
		snap.VehicleModel = *a.VehicleModel
	}
	return snap
}
