package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	alarms "gasmonitor-cloud/internal/alarms/domain"
	"gasmonitor-cloud/internal/api/httperr"
	"gasmonitor-cloud/internal/api/params"
	"gasmonitor-cloud/internal/audit"
	"gasmonitor-cloud/internal/jsontime"
	snapshots "gasmonitor-cloud/internal/snapshots/domain"
)

// AlarmService is the application surface this handler needs.
type AlarmService interface {
	ListAlarms(ctx context.Context, filter alarms.Filter) ([]alarms.Alarm, error)
	DeleteAlarm(ctx context.Context, id int64) error
}

// SnapshotGenerator persists the daily snapshot alongside an alarm query.
type SnapshotGenerator interface {
	Generate(ctx context.Context, referenceDate time.Time, includeList bool, base alarms.Filter) (*snapshots.DailySnapshot, error)
}

// Handler provides alarm HTTP endpoints.
type Handler struct {
	service   AlarmService
	snapshots SnapshotGenerator
	audits    audit.Logger
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
func NewHandler(service AlarmService, snapshotSvc SnapshotGenerator, opts ...HandlerOption) (*Handler, error) {
	if service == nil {
		return nil, errors.New("alarms handler: nil service")
	}
	if snapshotSvc == nil {
		return nil, errors.New("alarms handler: nil snapshot service")
	}
	h := &Handler{service: service, snapshots: snapshotSvc}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// ServeHTTP handles /api/v1/alarms and subroutes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/api/v1/alarms":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleList(w, r)
	case strings.HasPrefix(r.URL.Path, "/api/v1/alarms/"):
		if r.Method != http.MethodDelete {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleDelete(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter alarms.Filter

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
	if raw := params.First(q, "states", "state", "estado"); raw != "" {
		for _, state := range params.CSV(raw) {
			filter.States = append(filter.States, alarms.NormalizeStatus(state))
		}
	}

	registerGenerate := params.Bool(params.First(q, "registerGenerate", "registergenerate", "generateRegisterToday"))
	includeList := params.Bool(params.First(q, "includeAlarmList", "includeList"))
	if registerGenerate {
		includeList = true
	}

	list, err := h.service.ListAlarms(r.Context(), filter)
	if err != nil {
		httperr.Respond(w, err)
		return
	}
	if list == nil {
		list = []alarms.Alarm{}
	}

	var gestion *snapshotView
	if registerGenerate {
		referenceDate := time.Now().UTC()
		if filter.Start != nil {
			referenceDate = *filter.Start
		}
		snapshot, err := h.snapshots.Generate(r.Context(), referenceDate, includeList, alarms.Filter{GasTypeID: filter.GasTypeID, States: filter.States})
		if err != nil {
			httperr.Respond(w, err)
			return
		}
		gestion = &snapshotView{
			ReferenceDate: referenceDate.UTC().Format(jsontime.Layout),
			DailySnapshot: snapshot,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"data":            list,
		"gestionSnapshot": gestion,
	})
}

// snapshotView is the gestionSnapshot wire shape: the stored snapshot
// plus the reference date repeated under its own key.
type snapshotView struct {
	ReferenceDate string `json:"referenceDate"`
	*snapshots.DailySnapshot
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimPrefix(r.URL.Path, "/api/v1/alarms/")
	id, err := params.ID(raw)
	if err != nil {
		httperr.Respond(w, httperr.BadRequest("INVALID_ALARM_ID", "alarm id "+err.Error()))
		return
	}
	if err := h.service.DeleteAlarm(r.Context(), id); err != nil {
		if errors.Is(err, alarms.ErrNotFound) {
			httperr.Respond(w, httperr.NotFound("ALARM_NOT_FOUND", "alarm not found"))
			return
		}
		httperr.Respond(w, err)
		return
	}
	audit.Record(r.Context(), h.audits, r, "alarm.delete", "alarm", id, nil)
	w.WriteHeader(http.StatusNoContent)
}
