package apihttp

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	alarms "gasmonitor-cloud/internal/alarms/domain"
	"gasmonitor-cloud/internal/api/httperr"
	"gasmonitor-cloud/internal/api/params"
	"gasmonitor-cloud/internal/exports"
	"gasmonitor-cloud/internal/jsontime"
	measurements "gasmonitor-cloud/internal/measurements/domain"
	"gasmonitor-cloud/internal/observability/metrics"
	snapshots "gasmonitor-cloud/internal/snapshots/domain"
)

// MeasurementLister supplies the rows an export renders.
type MeasurementLister interface {
	ListMeasurements(ctx context.Context, filter measurements.Filter) ([]measurements.Measurement, error)
}

// SnapshotFinder locates the persisted snapshot for a day, generating
// it on demand when missing.
type SnapshotFinder interface {
	FindByDay(ctx context.Context, day time.Time) (*snapshots.DailySnapshot, error)
	Generate(ctx context.Context, referenceDate time.Time, includeList bool, base alarms.Filter) (*snapshots.DailySnapshot, error)
}

// ExportMeasurementsHandler serves measurement exports as CSV or XLSX.
type ExportMeasurementsHandler struct {
	lister MeasurementLister
	format string
}

// NewExportMeasurementsHandler constructs an export handler for the
// given format ("csv" or "xlsx").
func NewExportMeasurementsHandler(lister MeasurementLister, format string) *ExportMeasurementsHandler {
	return &ExportMeasurementsHandler{lister: lister, format: format}
}

// ServeHTTP handles GET /api/v1/exports/measurements.{csv,xlsx}.
func (h *ExportMeasurementsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.lister == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}

	filter, herr := measurementFilterFromQuery(r)
	if herr != nil {
		metrics.IncExport(h.format, "error")
		httperr.Respond(w, herr)
		return
	}

	list, err := h.lister.ListMeasurements(r.Context(), filter)
	if err != nil {
		metrics.IncExport(h.format, "error")
		httperr.Respond(w, err)
		return
	}

	var payload []byte
	switch h.format {
	case "xlsx":
		payload, err = exports.BuildMeasurementsXLSX(list)
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", `attachment; filename="measurements.xlsx"`)
	default:
		payload, err = exports.BuildMeasurementsCSV(list)
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="measurements.csv"`)
	}
	if err != nil {
		metrics.IncExport(h.format, "error")
		httperr.Respond(w, err)
		return
	}
	metrics.IncExport(h.format, "success")
	_, _ = w.Write(payload)
}

// ExportSnapshotPDFHandler serves the daily snapshot as a PDF.
type ExportSnapshotPDFHandler struct {
	finder SnapshotFinder
}

// NewExportSnapshotPDFHandler constructs a snapshot PDF handler.
func NewExportSnapshotPDFHandler(finder SnapshotFinder) *ExportSnapshotPDFHandler {
	return &ExportSnapshotPDFHandler{finder: finder}
}

// ServeHTTP handles GET /api/v1/exports/snapshot.pdf. The date query
// parameter selects the reference day, defaulting to today. A day with
// no persisted snapshot gets one generated on the fly.
func (h *ExportSnapshotPDFHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.finder == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}

	day := time.Now().UTC()
	if raw := params.First(r.URL.Query(), "date", "referenceDate"); raw != "" {
		parsed, err := params.Time(raw)
		if err != nil {
			metrics.IncExport("pdf", "error")
			httperr.Respond(w, httperr.BadRequest("INVALID_START_DATE", "date "+err.Error()))
			return
		}
		day = parsed
	}

	snap, err := h.finder.FindByDay(r.Context(), day)
	if err != nil {
		metrics.IncExport("pdf", "error")
		httperr.Respond(w, err)
		return
	}
	if snap == nil {
		snap, err = h.finder.Generate(r.Context(), day, true, alarms.Filter{})
		if err != nil {
			metrics.IncExport("pdf", "error")
			httperr.Respond(w, err)
			return
		}
	}

	payload, err := exports.BuildSnapshotPDF(snap)
	if err != nil {
		metrics.IncExport("pdf", "error")
		httperr.Respond(w, err)
		return
	}
	metrics.IncExport("pdf", "success")
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="snapshot.pdf"`)
	_, _ = w.Write(payload)
}

// HealthHandler reports service and database health.
type HealthHandler struct {
	db          *sql.DB
	environment string
}

// NewHealthHandler constructs a HealthHandler.
func NewHealthHandler(db *sql.DB, environment string) *HealthHandler {
	return &HealthHandler{db: db, environment: environment}
}

// ServeHTTP handles GET /health.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	status := "ok"
	code := http.StatusOK
	if h != nil && h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":      status,
		"timestamp":   time.Now().UTC().Format(jsontime.Layout),
		"environment": h.environment,
	})
}

func measurementFilterFromQuery(r *http.Request) (measurements.Filter, *httperr.Error) {
	q := r.URL.Query()
	var filter measurements.Filter

	if raw := params.First(q, "gasId", "idTipoGas"); raw != "" {
		id, err := params.ID(raw)
		if err != nil {
			return filter, httperr.BadRequest("INVALID_GAS_ID", "gasId "+err.Error())
		}
		filter.GasTypeID = &id
	}
	if raw := params.First(q, "start", "startDate"); raw != "" {
		t, err := params.Time(raw)
		if err != nil {
			return filter, httperr.BadRequest("INVALID_START_DATE", "start "+err.Error())
		}
		filter.Start = &t
	}
	if raw := params.First(q, "end", "endDate"); raw != "" {
		t, err := params.Time(raw)
		if err != nil {
			return filter, httperr.BadRequest("INVALID_END_DATE", "end "+err.Error())
		}
		filter.End = &t
	}
	return filter, nil
}
