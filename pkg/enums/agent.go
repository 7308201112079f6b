package enums

import "fmt"

// AgentStatus is the availability flag of a delivery agent.
type AgentStatus string

const (
	AgentStatusAvailable AgentStatus = "available"
	AgentStatusAssigned  AgentStatus = "assigned"
	AgentStatusBusy      AgentStatus = "busy"
	AgentStatusOffline   AgentStatus = "offline"
)

var validAgentStatuses = []AgentStatus{
	AgentStatusAvailable,
	AgentStatusAssigned,
	AgentStatusBusy,
	AgentStatusOffline,
}

// String implements fmt.Stringer.
func (s AgentStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known AgentStatus.
func (s AgentStatus) IsValid() bool {
	for _, candidate := range validAgentStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsEngaged reports whether the agent is bound to an order.
func (s AgentStatus) IsEngaged() bool {
	return s == AgentStatusAssigned || s == AgentStatusBusy
}

// ParseAgentStatus converts raw input into an AgentStatus.
func ParseAgentStatus(value string) (AgentStatus, error) {
	for _, candidate := range validAgentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid agent status %q", value)
}

// VehicleType describes how an agent travels.
type VehicleType string

const (
	VehicleBike    VehicleType = "bike"
	VehicleScooter VehicleType = "scooter"
	VehicleCar     VehicleType = "car"
	VehicleVan     VehicleType = "van"
)

var validVehicleTypes = []VehicleType{
	VehicleBike,
	VehicleScooter,
	VehicleCar,
	VehicleVan,
}

// IsValid reports whether the value is a known VehicleType.
func (v VehicleType) IsValid() bool {
	for _, candidate := range validVehicleTypes {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseVehicleType converts raw input into a VehicleType.
func ParseVehicleType(value string) (VehicleType, error) {
	for _, candidate := range validVehicleTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid vehicle type %q", value)
}
