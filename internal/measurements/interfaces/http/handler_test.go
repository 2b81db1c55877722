package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	measurementapp "gasmonitor-cloud/internal/measurements/application"
	measurements "gasmonitor-cloud/internal/measurements/domain"
)

type stubService struct {
	batchResult measurementapp.BatchResult
	batchErr    error
	readings    []measurementapp.Reading
	storeAll    bool
	deleteErr   error
	deletedID   int64
	list        []measurements.Measurement
	filter      measurements.Filter
}

func (s *stubService) RegisterBatch(_ context.Context, readings []measurementapp.Reading, storeAll bool) (measurementapp.BatchResult, error) {
	s.readings = readings
	s.storeAll = storeAll
	return s.batchResult, s.batchErr
}

func (s *stubService) DeleteMeasurement(_ context.Context, id int64) error {
	s.deletedID = id
	return s.deleteErr
}

func (s *stubService) ListMeasurements(_ context.Context, filter measurements.Filter) ([]measurements.Measurement, error) {
	s.filter = filter
	return s.list, nil
}

func TestBatchEndpoint(t *testing.T) {
	stub := &stubService{batchResult: measurementapp.BatchResult{Inserted: 1, AlarmsTriggered: 1}}
	handler, err := NewHandler(stub)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}

	body := `[{"id_type_gas":4,"valor":512.5,"fecha":"2026-01-26T10:15:30.500Z","umbral":400}]`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/measurements/batch", strings.NewReader(body))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	var payload struct {
		Message string                     `json:"message"`
		Data    measurementapp.BatchResult `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Data.Inserted != 1 || payload.Data.AlarmsTriggered != 1 {
		t.Fatalf("unexpected data: %+v", payload.Data)
	}
	if len(stub.readings) != 1 {
		t.Fatalf("expected 1 reading passed through, got %d", len(stub.readings))
	}
	reading := stub.readings[0]
	if reading.GasTypeID != 4 || reading.Value != 512.5 || reading.Threshold != 400 {
		t.Fatalf("unexpected reading: %+v", reading)
	}
	if reading.MeasuredAt.UTC().Format("2006-01-02T15:04:05.000Z07:00") != "2026-01-26T10:15:30.500Z" {
		t.Fatalf("unexpected measured at: %v", reading.MeasuredAt)
	}
}

func TestBatchEndpointStoreAllFlag(t *testing.T) {
	stub := &stubService{}
	handler, _ := NewHandler(stub)

	body := `[{"id_type_gas":1,"valor":10,"umbral":50}]`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/measurements/batch?storeAll=true", strings.NewReader(body))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.Code)
	}
	if !stub.storeAll {
		t.Fatal("storeAll query flag was not forwarded")
	}
}

func TestBatchEndpointRejectsEmptyBatch(t *testing.T) {
	handler, _ := NewHandler(&stubService{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/measurements/batch", strings.NewReader(`[]`))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "EMPTY_BATCH") {
		t.Fatalf("expected EMPTY_BATCH code, got %s", resp.Body.String())
	}
}

func TestBatchEndpointRejectsBadGasID(t *testing.T) {
	handler, _ := NewHandler(&stubService{})

	body := `[{"id_type_gas":0,"valor":10,"umbral":50}]`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/measurements/batch", strings.NewReader(body))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "INVALID_GAS_ID") {
		t.Fatalf("expected INVALID_GAS_ID code, got %s", resp.Body.String())
	}
}

func TestListEndpointAliases(t *testing.T) {
	stub := &stubService{}
	handler, _ := NewHandler(stub)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/measurements?idTipoGas=3&startDate=2026-01-01&endDate=2026-01-31", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if stub.filter.GasTypeID == nil || *stub.filter.GasTypeID != 3 {
		t.Fatalf("gas filter not applied: %+v", stub.filter)
	}
	if stub.filter.Start == nil || stub.filter.End == nil {
		t.Fatalf("date filters not applied: %+v", stub.filter)
	}
}

func TestDeleteEndpoint(t *testing.T) {
	stub := &stubService{}
	handler, _ := NewHandler(stub)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/measurements/42", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.Code)
	}
	if stub.deletedID != 42 {
		t.Fatalf("expected delete of 42, got %d", stub.deletedID)
	}
}

func TestDeleteEndpointRejectsMalformedID(t *testing.T) {
	handler, _ := NewHandler(&stubService{})

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/measurements/abc", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "INVALID_MEASUREMENT_ID") {
		t.Fatalf("expected INVALID_MEASUREMENT_ID code, got %s", resp.Body.String())
	}
}

func TestDeleteEndpointNotFound(t *testing.T) {
	stub := &stubService{deleteErr: measurements.ErrNotFound}
	handler, _ := NewHandler(stub)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/measurements/42", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "MEASUREMENT_NOT_FOUND") {
		t.Fatalf("expected MEASUREMENT_NOT_FOUND code, got %s", resp.Body.String())
	}
}
