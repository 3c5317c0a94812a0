// Package api exposes the HTTP surface of WorkLens. Handlers stay thin:
// identity comes from verified claims and every call forwards into the
// domain services.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/worklens/worklens/internal/auth"
	"github.com/worklens/worklens/internal/domain"
	"github.com/worklens/worklens/internal/observability"
	"github.com/worklens/worklens/internal/persistence"
)

// Enqueuer is the slice of the ingestion producer the API needs.
type Enqueuer interface {
	Enqueue(ctx context.Context, job domain.IngestJob) (string, error)
}

// Handler coordinates HTTP requests with the domain services.
type Handler struct {
	activities *domain.ActivityService
	worksheets *domain.WorksheetService
	queue      Enqueuer
}

// NewHandler builds a Handler.
func NewHandler(activities *domain.ActivityService, worksheets *domain.WorksheetService, queue Enqueuer) *Handler {
	return &Handler{activities: activities, worksheets: worksheets, queue: queue}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/activity-logs", h.ingestLogs)
	mux.HandleFunc("/v1/activities", h.activitiesRoot)
	mux.HandleFunc("/v1/activities/", h.activityByID)
	mux.HandleFunc("/v1/activities/unreported", h.listUnreported)
	mux.HandleFunc("/v1/worksheets", h.listWorksheets)
	mux.HandleFunc("/v1/worksheets/assign", h.assign)
	mux.HandleFunc("/v1/worksheets/names", h.listWorksheetNames)
	mux.HandleFunc("/v1/worksheets/", h.worksheetActivities)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// IngestRequest is the payload for POST /v1/activity-logs.
type IngestRequest struct {
	Logs []domain.RawEvent `json:"logs"`
}

// Validate rejects malformed batches before they reach the queue.
func (r IngestRequest) Validate() error {
	if len(r.Logs) == 0 {
		return errors.New("logs must not be empty")
	}
	for i, event := range r.Logs {
		if strings.TrimSpace(event.AppName) == "" {
			return errors.New("logs[" + strconv.Itoa(i) + "].app_name is required")
		}
		if event.Timestamp.IsZero() {
			return errors.New("logs[" + strconv.Itoa(i) + "].timestamp is required")
		}
	}
	return nil
}

// IngestResponse acknowledges an enqueued batch.
type IngestResponse struct {
	JobID string `json:"job_id"`
}

func (h *Handler) ingestLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := requireScope(w, r, auth.ScopeActivitiesWrite)
	if !ok {
		return
	}

	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	jobID, err := h.queue.Enqueue(r.Context(), domain.IngestJob{
		OrganizationID: claims.OrganizationID,
		UserID:         claims.UserID,
		Logs:           req.Logs,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, IngestResponse{JobID: jobID})
}

func (h *Handler) activitiesRoot(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createManual(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) activityByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/activities/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, "not_found", "unknown resource")
		return
	}
	switch r.Method {
	case http.MethodPut:
		h.editManual(w, r, id)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

// ManualActivityRequest is the payload for manual create and edit.
type ManualActivityRequest struct {
	Name      string    `json:"name"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
}

func (h *Handler) createManual(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeActivitiesWrite)
	if !ok {
		return
	}

	var req ManualActivityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	activity, err := h.activities.CreateManual(r.Context(), domain.ManualActivityInput{
		OrganizationID: claims.OrganizationID,
		UserID:         claims.UserID,
		Name:           req.Name,
		StartedAt:      req.StartedAt,
		EndedAt:        req.EndedAt,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toActivityView(*activity, ""))
}

func (h *Handler) editManual(w http.ResponseWriter, r *http.Request, id string) {
	claims, ok := requireScope(w, r, auth.ScopeActivitiesWrite)
	if !ok {
		return
	}

	var req ManualActivityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	activity, err := h.activities.EditManual(r.Context(), id, domain.ManualActivityInput{
		OrganizationID: claims.OrganizationID,
		UserID:         claims.UserID,
		Name:           req.Name,
		StartedAt:      req.StartedAt,
		EndedAt:        req.EndedAt,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toActivityView(*activity, ""))
}

func (h *Handler) listUnreported(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := requireScope(w, r, auth.ScopeActivitiesRead, auth.ScopeActivitiesWrite)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	cursor, err := persistence.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	items, next, err := h.activities.ListUnreported(r.Context(), domain.UnreportedInput{
		OrganizationID: claims.OrganizationID,
		UserID:         claims.UserID,
		Date:           r.URL.Query().Get("date"),
		Timezone:       r.URL.Query().Get("timezone"),
		Descending:     r.URL.Query().Get("order") == "desc",
		Limit:          limit,
		Cursor:         cursor,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	views := make([]ActivityView, 0, len(items))
	for _, item := range items {
		view := toActivityView(item.Activity, item.Icon)
		view.TimeSpent = item.TimeSpent
		views = append(views, view)
	}
	writeJSON(w, http.StatusOK, ListActivitiesResponse{
		Items:      views,
		NextCursor: persistence.EncodeCursor(next),
	})
}

// AssignRequest is the payload for POST /v1/worksheets/assign.
type AssignRequest struct {
	ProjectID     string   `json:"project_id"`
	WorksheetName string   `json:"worksheet_name"`
	Date          string   `json:"date"`
	ActivityIDs   []string `json:"activity_ids"`
}

func (h *Handler) assign(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := requireScope(w, r, auth.ScopeWorksheetsWrite)
	if !ok {
		return
	}

	var req AssignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	result, err := h.worksheets.Assign(r.Context(), domain.AssignmentInput{
		OrganizationID: claims.OrganizationID,
		UserID:         claims.UserID,
		ProjectID:      req.ProjectID,
		WorksheetName:  req.WorksheetName,
		Date:           req.Date,
		ActivityIDs:    req.ActivityIDs,
	})
	if err != nil {
		switch domain.CodeOf(err) {
		case domain.ErrConflict:
			observability.RecordAssignment("conflict")
		case domain.ErrValidation:
			observability.RecordAssignment("rejected")
		default:
			observability.RecordAssignment("error")
		}
		writeDomainError(w, err)
		return
	}
	observability.RecordAssignment("ok")
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) listWorksheetNames(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := requireScope(w, r, auth.ScopeWorksheetsRead, auth.ScopeWorksheetsWrite)
	if !ok {
		return
	}

	projectID := r.URL.Query().Get("project_id")
	date := r.URL.Query().Get("date")
	if projectID == "" || date == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "project_id and date are required")
		return
	}

	names, err := h.worksheets.ListNames(r.Context(), claims.OrganizationID, claims.UserID, projectID, date)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"names": names})
}

func (h *Handler) listWorksheets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := requireScope(w, r, auth.ScopeWorksheetsRead, auth.ScopeWorksheetsWrite)
	if !ok {
		return
	}

	summaries, err := h.worksheets.ListSummaries(r.Context(), claims.OrganizationID, claims.UserID, r.URL.Query().Get("date"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	views := make([]WorksheetView, 0, len(summaries))
	for _, s := range summaries {
		views = append(views, WorksheetView{
			WorksheetID:    s.ID,
			Name:           s.Name,
			ProjectID:      s.ProjectID,
			Date:           s.Date,
			LastReportedOn: s.LastReportedOn,
			ActivityCount:  s.ActivityCount,
			TimeSpent:      s.TimeSpent,
		})
	}
	writeJSON(w, http.StatusOK, map[string][]WorksheetView{"worksheets": views})
}

func (h *Handler) worksheetActivities(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/worksheets/")
	id, tail, found := strings.Cut(rest, "/")
	if !found || tail != "activities" || id == "" {
		writeError(w, http.StatusNotFound, "not_found", "unknown resource")
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := requireScope(w, r, auth.ScopeWorksheetsRead, auth.ScopeWorksheetsWrite)
	if !ok {
		return
	}

	items, err := h.worksheets.ListActivities(r.Context(), claims.OrganizationID, claims.UserID, id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	views := make([]ActivityView, 0, len(items))
	for _, item := range items {
		view := toActivityView(item.Activity, item.Icon)
		view.TimeSpent = item.TimeSpent
		views = append(views, view)
	}
	writeJSON(w, http.StatusOK, ListActivitiesResponse{Items: views})
}

func requireScope(w http.ResponseWriter, r *http.Request, scopes ...string) (*auth.Claims, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil, false
	}
	for _, scope := range scopes {
		if claims.HasScope(scope) {
			return claims, true
		}
	}
	writeError(w, http.StatusForbidden, "forbidden", "scope "+scopes[0]+" required")
	return nil, false
}

// ActivityView exposes activity details.
type ActivityView struct {
	ActivityID    string           `json:"activity_id"`
	Name          string           `json:"name"`
	Kind          string           `json:"kind"`
	ApplicationID string           `json:"application_id,omitempty"`
	ProcessID     int              `json:"process_id,omitempty"`
	BrowserURL    string           `json:"browser_url,omitempty"`
	Icon          string           `json:"icon,omitempty"`
	StartedAt     time.Time        `json:"started_at"`
	EndedAt       time.Time        `json:"ended_at"`
	TimeSpent     domain.TimeSpent `json:"time_spent"`
}

// ListActivitiesResponse packages activity listings.
type ListActivitiesResponse struct {
	Items      []ActivityView `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// WorksheetView exposes a worksheet with aggregated totals.
type WorksheetView struct {
	WorksheetID    string           `json:"worksheet_id"`
	Name           string           `json:"name"`
	ProjectID      string           `json:"project_id"`
	Date           string           `json:"date"`
	LastReportedOn time.Time        `json:"last_reported_on"`
	ActivityCount  int              `json:"activity_count"`
	TimeSpent      domain.TimeSpent `json:"time_spent"`
}

func toActivityView(a domain.Activity, icon string) ActivityView {
	if icon == "" {
		icon = a.FaviconURL
	}
	return ActivityView{
		ActivityID:    a.ID,
		Name:          a.Name,
		Kind:          string(a.Kind),
		ApplicationID: a.ApplicationID,
		ProcessID:     a.ProcessID,
		BrowserURL:    a.BrowserURL,
		Icon:          icon,
		StartedAt:     a.StartedAt,
		EndedAt:       a.EndedAt,
		TimeSpent:     domain.TimeSpentBetween(a.StartedAt, a.EndedAt),
	}
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch domain.CodeOf(err) {
	case domain.ErrValidation:
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case domain.ErrAuthorization:
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
	case domain.ErrNotFound:
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case domain.ErrConflict:
		writeError(w, http.StatusConflict, "conflict", err.Error())
	default:
		// Internal causes are logged upstream; never expose them verbatim.
		writeError(w, http.StatusInternalServerError, "server_error", "internal failure")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
