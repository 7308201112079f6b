package types

import (
	"database/sql/driver"
	"encoding/json"
)

// AgentSnapshot freezes the delivery agent details shown on an order.
type AgentSnapshot struct {
	Name          string `json:"name"`
	Phone         string `json:"phone"`
	VehicleType   string `json:"vehicle_type"`
	VehicleNumber string `json:"vehicle_number"`
	VehicleModel  string `json:"vehicle_model,omitempty"`
}

// StoredImage references an object in image storage.
type StoredImage struct {
	URL       string `json:"url"`
	StorageID string `json:"storage_id"`
}

type StoredImages []StoredImage

// StorageIDs returns the opaque ids, in order.
func (s StoredImages) StorageIDs() []string {
	out := make([]string, 0, len(s))
	for _, img := range s {
		out = append(out, img.StorageID)
	}
	return out
}

// Value lets conditional map updates write the snapshot as JSON.
func (a AgentSnapshot) Value() (driver.Value, error) {
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
