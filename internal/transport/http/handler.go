package httptransport

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"fingov/internal/audit"
	"fingov/internal/governance"
	"fingov/internal/platform/middleware"
	"fingov/internal/rules"
	slaservice "fingov/internal/sla/service"
	wfservice "fingov/internal/workflow/service"
	domainerrors "fingov/pkg/domain-errors"
)

// Handler is the thin HTTP layer over the governance engine.
type Handler struct {
	orch     *governance.Orchestrator
	workflow *wfservice.Service
	sla      *slaservice.Service
	ledger   *audit.Ledger
	logger   *slog.Logger
}

// NewHandler constructs the HTTP handler set.
func NewHandler(orch *governance.Orchestrator, workflow *wfservice.Service, sla *slaservice.Service, ledger *audit.Ledger, logger *slog.Logger) *Handler {
	return &Handler{
		orch:     orch,
		workflow: workflow,
		sla:      sla,
		ledger:   ledger,
		logger:   logger,
	}
}

type actionRequest struct {
	EntityType string                `json:"entity_type"`
	EntityID   string                `json:"entity_id"`
	ActionType string                `json:"action_type"`
	Edit       *editPayload          `json:"edit,omitempty"`
	Submission *versionStatusPayload `json:"submission,omitempty"`
	Approval   *versionStatusPayload `json:"approval,omitempty"`
	Context    map[string]any        `json:"context,omitempty"`
}

type editPayload struct {
	CostCenterID  string          `json:"cost_center_id"`
	OldValue      decimal.Decimal `json:"old_value"`
	NewValue      decimal.Decimal `json:"new_value"`
	VersionStatus string          `json:"version_status"`
	VersionLocked bool            `json:"version_locked"`
	PeriodLocked  bool            `json:"period_locked"`
}

type versionStatusPayload struct {
	VersionStatus string `json:"version_status"`
}

func (h *Handler) handleExecuteAction(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetActor(r.Context())
	if !ok {
		writeError(w, domainerrors.New(domainerrors.CodeUnauthorized, "no actor context"))
		return
	}

	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domainerrors.Wrap(err, domainerrors.CodeInvalidInput, "decode request body"))
		return
	}
	if req.EntityType == "" || req.EntityID == "" {
		writeError(w, domainerrors.New(domainerrors.CodeInvalidInput, "entity_type and entity_id are required"))
		return
	}

	greq := governance.Request{
		TenantID:      user.TenantID,
		EntityType:    req.EntityType,
		EntityID:      req.EntityID,
		ActionType:    governance.ActionType(req.ActionType),
		EntityContext: req.Context,
	}
	if req.Edit != nil {
		greq.Edit = &rules.EditRequest{
			CostCenterID:  req.Edit.CostCenterID,
			OldValue:      req.Edit.OldValue,
			NewValue:      req.Edit.NewValue,
			VersionStatus: req.Edit.VersionStatus,
			VersionLocked: req.Edit.VersionLocked,
			PeriodLocked:  req.Edit.PeriodLocked,
		}
	}
	if req.Submission != nil {
		greq.Submission = &rules.SubmissionRequest{VersionStatus: req.Submission.VersionStatus}
	}
	if req.Approval != nil {
		greq.Approval = &rules.ApprovalRequest{VersionStatus: req.Approval.VersionStatus}
	}

	result, err := h.orch.Execute(r.Context(), greq, user)
	if err != nil {
		writeError(w, err)
		return
	}

	status := http.StatusOK
	if result.Status != governance.StatusSuccess {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, executeResponse(result))
}

func executeResponse(result *governance.Result) map[string]any {
	resp := map[string]any{
		"status": string(result.Status),
		"state":  string(result.State),
	}
	if result.Validation != nil {
		resp["validation"] = map[string]any{
			"passed":          result.Validation.Passed,
			"severity":        string(result.Validation.Severity),
			"action_required": string(result.Validation.ActionRequired),
			"violations":      result.Validation.ViolationMaps(),
		}
	}
	return resp
}

func (h *Handler) handleWorkflowMetadata(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetActor(r.Context())
	if !ok {
		writeError(w, domainerrors.New(domainerrors.CodeUnauthorized, "no actor context"))
		return
	}

	ref := wfservice.EntityRef{
		TenantID:   user.TenantID,
		EntityType: chi.URLParam(r, "entityType"),
		EntityID:   chi.URLParam(r, "entityID"),
	}
	instance, err := h.workflow.Metadata(r.Context(), ref)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entity_type":    instance.EntityType,
		"entity_id":      instance.EntityID,
		"state":          string(instance.State),
		"approval_level": instance.ApprovalLevel,
		"approval_chain": instance.ApprovalChain,
		"created_at":     instance.CreatedAt,
		"updated_at":     instance.UpdatedAt,
	})
}

func (h *Handler) handleSLASweep(w http.ResponseWriter, r *http.Request) {
	report, err := h.sla.ProcessBreaches(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"candidates": report.Candidates,
		"breached":   report.Breached,
		"skipped":    report.Skipped,
		"failed":     report.Failed,
	})
}

func (h *Handler) handleAuditIntegrity(w http.ResponseWriter, r *http.Request) {
	report, err := h.ledger.VerifyIntegrity()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) handleAuditTrail(w http.ResponseWriter, r *http.Request) {
	trail, err := h.ledger.EntityTrail(chi.URLParam(r, "entityType"), chi.URLParam(r, "entityID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trail)
}

func (h *Handler) handleAuditReport(w http.ResponseWriter, r *http.Request) {
	from, err := parseDateParam(r, "from", time.Time{})
	if err != nil {
		writeError(w, err)
		return
	}
	to, err := parseDateParam(r, "to", time.Now().UTC())
	if err != nil {
		writeError(w, err)
		return
	}
	kind := audit.ReportKind(r.URL.Query().Get("kind"))
	if kind == "" {
		kind = audit.ReportFull
	}

	report, err := h.ledger.GenerateReport(from, to, kind)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func parseDateParam(r *http.Request, name string, fallback time.Time) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, domainerrors.New(domainerrors.CodeInvalidInput, name+" must be an ISO date")
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError centralizes domain error translation so every handler returns
// the same JSON error envelope.
func writeError(w http.ResponseWriter, err error) {
	code := domainerrors.CodeInternal
	var derr *domainerrors.Error
	if errors.As(err, &derr) {
		code = derr.Code
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusFor(code))
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":             string(code),
		"error_description": err.Error(),
	})
}

func statusFor(code domainerrors.Code) int {
	switch code {
	case domainerrors.CodeNotFound:
		return http.StatusNotFound
	case domainerrors.CodeInvalidInput:
		return http.StatusBadRequest
	case domainerrors.CodeConflict:
		return http.StatusConflict
	case domainerrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case domainerrors.CodePolicyViolation, domainerrors.CodeInvalidState:
		return http.StatusUnprocessableEntity
	case domainerrors.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
