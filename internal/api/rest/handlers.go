package rest

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/juicedmedia/lead-compliance-backend/internal/domain/job"
	"github.com/juicedmedia/lead-compliance-backend/internal/domain/lead"
	"github.com/juicedmedia/lead-compliance-backend/internal/domain/routing"
	"github.com/juicedmedia/lead-compliance-backend/internal/domain/values"
	"github.com/juicedmedia/lead-compliance-backend/internal/service/compliance"
	"github.com/juicedmedia/lead-compliance-backend/internal/service/dncexport"
	"github.com/juicedmedia/lead-compliance-backend/internal/service/leadintake"
	"github.com/juicedmedia/lead-compliance-backend/internal/service/repair"
)

// Handler exposes the pipeline over HTTP
type Handler struct {
	compliance *compliance.Engine
	intake     *leadintake.Service
	repair     *repair.Engine
	exporter   *dncexport.Exporter
	jobs       job.Store
	validate   *validator.Validate
	logger     *zap.Logger
}

func NewHandler(
	complianceEngine *compliance.Engine,
	intake *leadintake.Service,
	repairEngine *repair.Engine,
	exporter *dncexport.Exporter,
	jobs job.Store,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		compliance: complianceEngine,
		intake:     intake,
		repair:     repairEngine,
		exporter:   exporter,
		jobs:       jobs,
		validate:   validator.New(),
		logger:     logger,
	}
}

// decodeAndValidate parses the JSON body into dst and runs struct validation
func (h *Handler) decodeAndValidate(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	if err := h.validate.Struct(dst); err != nil {
		return err
	}
	return nil
}

type complianceCheckRequest struct {
	Phone       string   `json:"phone" validate:"required_without=Phones"`
	Phones      []string `json:"phones" validate:"omitempty,min=1,max=1000,dive,required"`
	ContactName string   `json:"contact_name"`
}

// CheckCompliance runs the checker suite over one phone or a batch.
// POST /api/v1/compliance/check
func (h *Handler) CheckCompliance(w http.ResponseWriter, r *http.Request) {
	var req complianceCheckRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		writeValidationError(w, err.Error())
		return
	}

	opts := compliance.Options{ContactName: req.ContactName}

	if len(req.Phones) > 0 {
		summaries, err := h.compliance.CheckBatch(r.Context(), req.Phones, opts)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"results": summaries})
		return
	}

	summary := h.compliance.CheckCompliance(r.Context(), req.Phone, opts)
	writeJSON(w, http.StatusOK, summary)
}

type leadRequest struct {
	Phone              string                 `json:"phone" validate:"required"`
	FirstName          string                 `json:"first_name" validate:"required"`
	LastName           string                 `json:"last_name" validate:"required"`
	Email              string                 `json:"email" validate:"omitempty,email"`
	Address            string                 `json:"address"`
	City               string                 `json:"city"`
	State              string                 `json:"state"`
	ZipCode            string                 `json:"zip_code"`
	Source             string                 `json:"source"`
	ListID             string                 `json:"list_id" validate:"required"`
	TrustedFormCertURL string                 `json:"trusted_form_cert_url" validate:"omitempty,url"`
	CustomFields       map[string]interface{} `json:"custom_fields"`
}

func (req *leadRequest) toDomain() (*lead.Lead, error) {
	phone, err := values.NewPhoneNumber(req.Phone)
	if err != nil {
		return nil, err
	}
	l, err := lead.NewLead(phone, req.FirstName, req.LastName, req.Email, req.ListID)
	if err != nil {
		return nil, err
	}
	l.Address = req.Address
	l.City = req.City
	l.State = req.State
	l.ZipCode = req.ZipCode
	l.Source = req.Source
	l.TrustedFormCertURL = req.TrustedFormCertURL
	l.CustomFields = req.CustomFields
	return l, nil
}

// SubmitLead runs one lead through the full intake pipeline.
// POST /api/v1/leads
func (h *Handler) SubmitLead(w http.ResponseWriter, r *http.Request) {
	var req leadRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		writeValidationError(w, err.Error())
		return
	}

	l, err := req.toDomain()
	if err != nil {
		writeValidationError(w, err.Error())
		return
	}

	result, err := h.intake.Submit(r.Context(), l)
	if err != nil {
		// Rejections carry the screening detail alongside the error
		if result != nil {
			writeJSON(w, http.StatusUnprocessableEntity, result)
			return
		}
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

type allocationRequest struct {
	RoutingID   string          `json:"routing_id" validate:"required,uuid"`
	ListID      string          `json:"list_id" validate:"required"`
	CostPerLead decimal.Decimal `json:"cost_per_lead"`
	LeadCount   int             `json:"lead_count" validate:"required,gt=0"`
}

type batchLeadRequest struct {
	Leads       []leadRequest       `json:"leads" validate:"required,min=1,max=10000,dive"`
	Allocations []allocationRequest `json:"allocations" validate:"required,min=1,dive"`
}

// SubmitLeadBatch screens, allocates, persists and posts a batch.
// POST /api/v1/leads/batch
func (h *Handler) SubmitLeadBatch(w http.ResponseWriter, r *http.Request) {
	var req batchLeadRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		writeValidationError(w, err.Error())
		return
	}

	leads := make([]*lead.Lead, 0, len(req.Leads))
	for i, lr := range req.Leads {
		l, err := lr.toDomain()
		if err != nil {
			writeValidationError(w, fmt.Sprintf("lead %d: %v", i, err))
			return
		}
		leads = append(leads, l)
	}

	allocations := make([]routing.Allocation, 0, len(req.Allocations))
	for _, ar := range req.Allocations {
		routingID, err := uuid.Parse(ar.RoutingID)
		if err != nil {
			writeValidationError(w, fmt.Sprintf("invalid routing_id %q", ar.RoutingID))
			return
		}
		allocations = append(allocations, routing.Allocation{
			RoutingID:   routingID,
			ListID:      ar.ListID,
			CostPerLead: ar.CostPerLead,
			LeadCount:   ar.LeadCount,
		})
	}

	result, err := h.intake.SubmitBatch(r.Context(), leads, allocations)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// RepostLeads starts a repair run for one list, or with action=list_all
// returns the detection-only scan across every internal-dialer list.
// GET|POST /api/v1/repost-leads?list_id=...  |  ?action=list_all
func (h *Handler) RepostLeads(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("action") == "list_all" {
		reports, err := h.repair.ListAll(r.Context())
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"lists": reports})
		return
	}

	listID := r.URL.Query().Get("list_id")
	j, err := h.repair.StartRepair(r.Context(), listID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusAccepted, j)
}

type dncExportRequest struct {
	Year    int      `json:"year" validate:"required,min=2000,max=2100"`
	Month   int      `json:"month" validate:"required,min=1,max=12"`
	ListIDs []string `json:"list_ids" validate:"omitempty,dive,required"`
}

// StartDNCExport launches the monthly scrub-and-export job.
// POST /api/v1/dnc-exports
func (h *Handler) StartDNCExport(w http.ResponseWriter, r *http.Request) {
	var req dncExportRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		writeValidationError(w, err.Error())
		return
	}

	j, err := h.exporter.StartExport(r.Context(), req.Year, req.Month, req.ListIDs)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusAccepted, j)
}

// GetJob returns a background job's current state.
// GET /api/v1/jobs/{id}
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeValidationError(w, "invalid job id")
		return
	}

	j, err := h.jobs.Get(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}
