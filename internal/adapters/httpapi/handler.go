package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	santhosh "github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/silvernonstop/auditapi/internal/core/domain"
	"github.com/silvernonstop/auditapi/internal/core/usecase"
)

type ctxKey string

const (
	timeFormat             = "2006-01-02T15:04:05.999999999Z07:00"
	apiActorCtxKey  ctxKey = "api_actor"
	maxJSONBodySize        = 1 << 20
)

type Handler struct {
	ingestService *usecase.IngestService
	auditService  *usecase.AuditService
	authService   *usecase.AuthService
	submitSchema  *santhosh.Schema
}

func NewHandler(ingestService *usecase.IngestService, auditService *usecase.AuditService, authService *usecase.AuthService) (*Handler, error) {
	schema, err := compileSubmitEventSchema()
	if err != nil {
		return nil, fmt.Errorf("compile submit event schema: %w", err)
	}
	return &Handler{
		ingestService: ingestService,
		auditService:  auditService,
		authService:   authService,
		submitSchema:  schema,
	}, nil
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", h.healthz)
	r.Get("/openapi.json", h.openapi)

	r.Group(func(pr chi.Router) {
		pr.Use(h.requireAPIKey)
		pr.Post("/v1/events", h.submitEvent)
		pr.Get("/v1/events", h.listEvents)
		pr.Post("/v1/events/{id}/resolve", h.resolveEvent)
		pr.Get("/v1/diagnostics", h.diagnostics)
		pr.Post("/v1/validate/group", h.validateGroup)
	})

	return r
}

type submitEventRequest struct {
	OriginTable     string         `json:"originTable"`
	EventType       string         `json:"eventType"`
	Severity        string         `json:"severity"`
	Description     string         `json:"description"`
	AffectedField   string         `json:"affectedField"`
	RecordID        string         `json:"recordId"`
	ContextData     map[string]any `json:"contextData"`
	Category        string         `json:"category"`
	NarrativeImpact string         `json:"narrativeImpact"`
	RequiredAction  string         `json:"requiredAction"`
}

type eventResponse struct {
	ID              string         `json:"id"`
	OriginTable     string         `json:"originTable"`
	EventType       string         `json:"eventType"`
	Severity        string         `json:"severity"`
	Description     string         `json:"description"`
	AffectedField   string         `json:"affectedField,omitempty"`
	RecordID        string         `json:"recordId,omitempty"`
	ContextData     map[string]any `json:"contextData,omitempty"`
	Category        string         `json:"category"`
	NarrativeImpact string         `json:"narrativeImpact"`
	RequiredAction  string         `json:"requiredAction,omitempty"`
	ResolutionState string         `json:"resolutionState"`
	Fingerprint     string         `json:"fingerprint"`
	IsRecurring     bool           `json:"isRecurring"`
	OccurrenceCount int            `json:"occurrenceCount"`
	CreatedAt       string         `json:"createdAt"`
	UpdatedAt       string         `json:"updatedAt"`
}

type validateGroupRequest struct {
	Records []domain.Interval `json:"records"`
}

func (h *Handler) submitEvent(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodySize)
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validateSubmitBody(h.submitSchema, raw); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req submitEventRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	result, err := h.ingestService.Ingest(r.Context(), domain.IncomingEvent{
		OriginTable:     req.OriginTable,
		EventType:       req.EventType,
		Severity:        req.Severity,
		Description:     req.Description,
		AffectedField:   req.AffectedField,
		RecordID:        req.RecordID,
		ContextData:     req.ContextData,
		Category:        req.Category,
		NarrativeImpact: req.NarrativeImpact,
		RequiredAction:  req.RequiredAction,
	})
	if err != nil {
		handleDomainError(w, err)
		return
	}

	switch result.Status {
	case usecase.IngestCreated:
		writeJSON(w, http.StatusCreated, map[string]any{
			"status":   result.Status,
			"id":       result.ID,
			"category": result.Category,
		})
	default:
		writeJSON(w, http.StatusOK, map[string]any{
			"status":          result.Status,
			"id":              result.ID,
			"occurrenceCount": result.OccurrenceCount,
		})
	}
}

func (h *Handler) resolveEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.auditService.Resolve(r.Context(), id); err != nil {
		handleDomainError(w, err)
		return
	}
	log.Printf("event resolved id=%s actor=%s", id, actorFromContext(r.Context()))
	writeJSON(w, http.StatusOK, map[string]string{"status": "resolved", "id": id})
}

func (h *Handler) listEvents(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	events, err := h.auditService.ListRecent(r.Context(), domain.EventFilter{
		Severity:        r.URL.Query().Get("severity"),
		OriginTable:     r.URL.Query().Get("originTable"),
		ResolutionState: r.URL.Query().Get("state"),
		Limit:           limit,
	})
	if err != nil {
		handleDomainError(w, err)
		return
	}

	result := make([]eventResponse, 0, len(events))
	for _, ev := range events {
		result = append(result, toEventResponse(ev))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": result})
}

func (h *Handler) diagnostics(w http.ResponseWriter, r *http.Request) {
	diag, err := h.auditService.Summarize(r.Context())
	if err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, diag)
}

func (h *Handler) validateGroup(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodySize)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	var req validateGroupRequest
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if err := ensureEOF(decoder); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	overlaps := domain.DetectOverlaps(req.Records)
	writeJSON(w, http.StatusOK, map[string]any{
		"valid":  len(overlaps) == 0,
		"errors": overlaps,
	})
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) openapi(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, openapiSpec())
}

func (h *Handler) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimSpace(r.Header.Get("X-API-Key"))
		if token == "" {
			auth := strings.TrimSpace(r.Header.Get("Authorization"))
			if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
				token = strings.TrimSpace(auth[7:])
			}
		}

		apiKey, err := h.authService.Authenticate(r.Context(), token)
		if err != nil {
			if errors.Is(err, usecase.ErrUnauthorized) {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}

		ctx := context.WithValue(r.Context(), apiActorCtxKey, apiKey.Name)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func toEventResponse(ev domain.AuditEvent) eventResponse {
	return eventResponse{
		ID:              ev.ID,
		OriginTable:     ev.OriginTable,
		EventType:       ev.EventType,
		Severity:        ev.Severity,
		Description:     ev.Description,
		AffectedField:   ev.AffectedField,
		RecordID:        ev.RecordID,
		ContextData:     ev.ContextData,
		Category:        ev.Category,
		NarrativeImpact: ev.NarrativeImpact,
		RequiredAction:  ev.RequiredAction,
		ResolutionState: ev.ResolutionState,
		Fingerprint:     ev.Fingerprint,
		IsRecurring:     ev.IsRecurring,
		OccurrenceCount: ev.OccurrenceCount,
		CreatedAt:       ev.CreatedAt.UTC().Format(timeFormat),
		UpdatedAt:       ev.UpdatedAt.UTC().Format(timeFormat),
	}
}

func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be integer")
			return 0, false
		}
		limit = parsed
	}
	return limit, true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		log.Printf("encode json response: %v", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(append(data, '\n')); err != nil {
		log.Printf("write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}

func handleDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func ensureEOF(decoder *json.Decoder) error {
	var extra json.RawMessage
	if err := decoder.Decode(&extra); err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}
	return errors.New("extra json tokens")
}

func actorFromContext(ctx context.Context) string {
	actor, _ := ctx.Value(apiActorCtxKey).(string)
	if actor == "" {
		return "api"
	}
	return actor
}

func openapiSpec() map[string]any {
	return map[string]any{
		"openapi": "3.0.3",
		"info": map[string]any{
			"title":   "silvernonstop-audit",
			"version": "1.0.0",
		},
		"paths": map[string]any{
			"/v1/events": map[string]any{
				"post": map[string]any{"summary": "Submit audit event"},
				"get":  map[string]any{"summary": "List recent events"},
			},
			"/v1/events/{id}/resolve": map[string]any{
				"post": map[string]any{"summary": "Resolve event"},
			},
			"/v1/diagnostics": map[string]any{
				"get": map[string]any{"summary": "System diagnostics"},
			},
			"/v1/validate/group": map[string]any{
				"post": map[string]any{"summary": "Validate interval group for overlaps"},
			},
		},
	}
}
