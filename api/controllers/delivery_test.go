package controllers

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/medicart/medicart-api/internal/delivery"
	"github.com/medicart/medicart-api/pkg/auth"
	"github.com/medicart/medicart-api/pkg/db/models"
	"github.com/medicart/medicart-api/pkg/enums"
)

type stubDeliveryService struct {
	delivery.Service
	created  delivery.CreateAgentInput
	location delivery.LocationInput
	assigned [2]uuid.UUID
	ranked   *uuid.UUID
}

func (s *stubDeliveryService) Create(_ context.Context, _ auth.Actor, input delivery.CreateAgentInput) (*models.DeliveryAgent, error) {
	s.created = input
	return &models.DeliveryAgent{ID: uuid.New(), Name: input.Name, Status: enums.AgentStatusAvailable}, nil
}

func (s *stubDeliveryService) UpdateLocation(_ context.Context, _ auth.Actor, agentID uuid.UUID, input delivery.LocationInput) (*models.DeliveryAgent, error) {
	s.location = input
	return &models.DeliveryAgent{ID: agentID, Lat: &input.Lat, Lng: &input.Lng}, nil
}

func (s *stubDeliveryService) Assign(_ context.Context, _ auth.Actor, orderID, agentID uuid.UUID) (*models.Order, error) {
	s.assigned = [2]uuid.UUID{orderID, agentID}
	return &models.Order{ID: orderID, DeliveryAgentID: &agentID, Status: enums.OrderStatusOutForDelivery}, nil
}

func (s *stubDeliveryService) ListAvailable(_ context.Context, _ auth.Actor, orderID *uuid.UUID) ([]delivery.AvailableAgent, error) {
	s.ranked = orderID
	return []delivery.AvailableAgent{}, nil
}

func TestAdminAgentCreateDefaultsToAvailable(t *testing.T) {
	svc := &stubDeliveryService{}
	body := `{"name":"Sam","phone":"555-0110","vehicle_type":"scooter","vehicle_number":"KA-01-1234","rating":4.5}`
	req := asActor(httptest.NewRequest(http.MethodPost, "/api/v1/admin/agents", bytes.NewBufferString(body)), pharmacist())
	rec := httptest.NewRecorder()

	AdminAgentCreate(svc, testLogger)(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", rec.Code, rec.Body.String())
	}
	if !svc.created.Available {
		t.Fatal("agents should default to available")
	}
	if svc.created.VehicleType != enums.VehicleScooter || svc.created.Rating != 4.5 {
		t.Fatalf("unexpected input %+v", svc.created)
	}
}

func TestAdminAgentCreateRejectsUnknownVehicle(t *testing.T) {
	body := `{"name":"Sam","phone":"555","vehicle_type":"rocket","vehicle_number":"X"}`
	req := asActor(httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(body)), pharmacist())
	rec := httptest.NewRecorder()

	AdminAgentCreate(&stubDeliveryService{}, testLogger)(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestAdminAgentLocationRequiresCoordinates(t *testing.T) {
	agentID := uuid.NewString()
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"lat":12.9}`))
	req = withParams(asActor(req, pharmacist()), "agentId", agentID)
	rec := httptest.NewRecorder()

	AdminAgentLocation(&stubDeliveryService{}, testLogger)(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestAdminAgentLocation(t *testing.T) {
	svc := &stubDeliveryService{}
	agentID := uuid.New()
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"lat":12.9,"lng":77.6,"address":" MG Road "}`))
	req = withParams(asActor(req, pharmacist()), "agentId", agentID.String())
	rec := httptest.NewRecorder()

	AdminAgentLocation(svc, testLogger)(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.location.Lat != 12.9 || svc.location.Address != "MG Road" {
		t.Fatalf("unexpected location %+v", svc.location)
	}
}

func TestAdminOrderAssign(t *testing.T) {
	svc := &stubDeliveryService{}
	orderID, agentID := uuid.New(), uuid.New()
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"agent_id":"`+agentID.String()+`"}`))
	req = withParams(asActor(req, pharmacist()), "orderId", orderID.String())
	rec := httptest.NewRecorder()

	AdminOrderAssign(svc, testLogger)(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.assigned != [2]uuid.UUID{orderID, agentID} {
		t.Fatalf("unexpected assignment %v", svc.assigned)
	}
}

func TestAdminAgentsAvailablePassesOrder(t *testing.T) {
	svc := &stubDeliveryService{}
	orderID := uuid.New()
	req := asActor(httptest.NewRequest(http.MethodGet, "/?order_id="+orderID.String(), nil), pharmacist())
	rec := httptest.NewRecorder()

	AdminAgentsAvailable(svc, testLogger)(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if svc.ranked == nil || *svc.ranked != orderID {
		t.Fatalf("order id not forwarded")
	}
}
