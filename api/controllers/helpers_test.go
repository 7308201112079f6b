package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/medicart/medicart-api/api/middleware"
	"github.com/medicart/medicart-api/pkg/auth"
	"github.com/medicart/medicart-api/pkg/enums"
	"github.com/medicart/medicart-api/pkg/logger"
)

var testLogger = logger.Nop()

func customer() auth.Actor {
	return auth.Actor{UserID: uuid.New(), Role: enums.UserRoleCustomer}
}

func pharmacist() auth.Actor {
	return auth.Actor{UserID: uuid.New(), Role: enums.UserRolePharmacist}
}

func asActor(r *http.Request, actor auth.Actor) *http.Request {
	return r.WithContext(middleware.WithActor(r.Context(), actor))
}

func withParams(r *http.Request, kv ...string) *http.Request {
	rctx := chi.NewRouteContext()
	for i := 0; i+1 < len(kv); i += 2 {
		rctx.URLParams.Add(kv[i], kv[i+1])
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	envelope := struct {
		Data any `json:"data"`
	}{Data: dest}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	return envelope.Error.Code
}
