package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"gasmonitor-cloud/internal/api/httperr"
	"gasmonitor-cloud/internal/api/params"
	"gasmonitor-cloud/internal/audit"
	"gasmonitor-cloud/internal/jsontime"
	measurementapp "gasmonitor-cloud/internal/measurements/application"
	measurements "gasmonitor-cloud/internal/measurements/domain"
)

// MeasurementService is the application surface this handler needs.
type MeasurementService interface {
	RegisterBatch(ctx context.Context, readings []measurementapp.Reading, storeAll bool) (measurementapp.BatchResult, error)
	DeleteMeasurement(ctx context.Context, id int64) error
	ListMeasurements(ctx context.Context, filter measurements.Filter) ([]measurements.Measurement, error)
}

// Handler provides measurement HTTP endpoints.
type Handler struct {
	service MeasurementService
	audits  audit.Logger
}

// HandlerOption customizes the handler.
type HandlerOption func(*Handler)

// WithAuditLogger records destructive operations.
func WithAuditLogger(logger audit.Logger) HandlerOption {
	return func(h *Handler) {
		h.audits = logger
	}
}

// NewHandler constructs a handler.
func NewHandler(service MeasurementService, opts ...HandlerOption) (*Handler, error) {
	if service == nil {
		return nil, errors.New("measurements handler: nil service")
	}
	h := &Handler{service: service}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// ServeHTTP handles /api/v1/measurements and subroutes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/api/v1/measurements/batch":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleBatch(w, r)
	case r.URL.Path == "/api/v1/measurements":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleList(w, r)
	case strings.HasPrefix(r.URL.Path, "/api/v1/measurements/"):
		if r.Method != http.MethodDelete {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleDelete(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

type batchItem struct {
	GasTypeID  *int64         `json:"id_type_gas"`
	Value      *float64       `json:"valor"`
	MeasuredAt *jsontime.Time `json:"fecha"`
	Threshold  *float64       `json:"umbral"`
}

func (h *Handler) handleBatch(w http.ResponseWriter, r *http.Request) {
	var items []batchItem
	if err := json.NewDecoder(r.Body).Decode(&items); err != nil {
		httperr.Respond(w, httperr.BadRequest("INVALID_PAYLOAD", "body must be a JSON array of readings"))
		return
	}
	if len(items) == 0 {
		httperr.Respond(w, httperr.BadRequest("EMPTY_BATCH", "batch must contain at least one reading"))
		return
	}

	readings := make([]measurementapp.Reading, 0, len(items))
	for i, item := range items {
		if item.GasTypeID == nil || *item.GasTypeID <= 0 {
			httperr.Respond(w, httperr.BadRequest("INVALID_GAS_ID", "reading "+strconv.Itoa(i)+": id_type_gas must be a positive integer"))
			return
		}
		if item.Value == nil || item.Threshold == nil {
			httperr.Respond(w, httperr.BadRequest("INVALID_PAYLOAD", "reading "+strconv.Itoa(i)+": valor and umbral are required"))
			return
		}
		reading := measurementapp.Reading{
			GasTypeID: *item.GasTypeID,
			Value:     *item.Value,
			Threshold: *item.Threshold,
		}
		if item.MeasuredAt != nil {
			reading.MeasuredAt = item.MeasuredAt.Time
		}
		readings = append(readings, reading)
	}

	storeAll := params.Bool(r.URL.Query().Get("storeAll"))
	result, err := h.service.RegisterBatch(r.Context(), readings, storeAll)
	if err != nil {
		httperr.Respond(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"message": "batch processed",
		"data":    result,
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter measurements.Filter

	if raw := params.First(q, "gasId", "idTipoGas"); raw != "" {
		id, err := params.ID(raw)
		if err != nil {
			httperr.Respond(w, httperr.BadRequest("INVALID_GAS_ID", "gasId "+err.Error()))
			return
		}
		filter.GasTypeID = &id
	}
	if raw := params.First(q, "start", "startDate"); raw != "" {
		t, err := params.Time(raw)
		if err != nil {
			httperr.Respond(w, httperr.BadRequest("INVALID_START_DATE", "start "+err.Error()))
			return
		}
		filter.Start = &t
	}
	if raw := params.First(q, "end", "endDate"); raw != "" {
		t, err := params.Time(raw)
		if err != nil {
			httperr.Respond(w, httperr.BadRequest("INVALID_END_DATE", "end "+err.Error()))
			return
		}
		filter.End = &t
	}
	if raw := q.Get("threshold"); raw != "" {
		value, err := params.Float(raw)
		if err != nil {
			httperr.Respond(w, httperr.BadRequest("INVALID_PAYLOAD", "threshold "+err.Error()))
			return
		}
		filter.Threshold = &value
		filter.ThresholdOp = comparisonOp(q.Get("thresholdOp"))
	}
	if raw := q.Get("value"); raw != "" {
		value, err := params.Float(raw)
		if err != nil {
			httperr.Respond(w, httperr.BadRequest("INVALID_PAYLOAD", "value "+err.Error()))
			return
		}
		filter.Value = &value
		filter.ValueOp = comparisonOp(q.Get("valueOp"))
	}

	list, err := h.service.ListMeasurements(r.Context(), filter)
	if err != nil {
		httperr.Respond(w, err)
		return
	}
	if list == nil {
		list = []measurements.Measurement{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"data": list})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimPrefix(r.URL.Path, "/api/v1/measurements/")
	id, err := params.ID(raw)
	if err != nil {
		httperr.Respond(w, httperr.BadRequest("INVALID_MEASUREMENT_ID", "measurement id "+err.Error()))
		return
	}
	if err := h.service.DeleteMeasurement(r.Context(), id); err != nil {
		if errors.Is(err, measurements.ErrNotFound) {
			httperr.Respond(w, httperr.NotFound("MEASUREMENT_NOT_FOUND", "measurement not found"))
			return
		}
		httperr.Respond(w, err)
		return
	}
	audit.Record(r.Context(), h.audits, r, "measurement.delete", "measurement", id, nil)
	w.WriteHeader(http.StatusNoContent)
}

func comparisonOp(raw string) measurements.Op {
	op := measurements.Op(strings.ToLower(strings.TrimSpace(raw)))
	if op.Valid() {
		return op
	}
	return measurements.OpGTE
}
