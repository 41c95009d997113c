package executions

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"github.com/tri-scoring/backend/internal/calibration"
	"github.com/tri-scoring/backend/internal/equating"
	"github.com/tri-scoring/backend/internal/irt"
	"github.com/tri-scoring/backend/internal/logger"
	"github.com/tri-scoring/backend/internal/models"
	"github.com/tri-scoring/backend/internal/scoring"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
	maxBodyBytes     = 64 << 20
)

type Handler struct {
	service  *Service
	validate *validator.Validate
	log      *logger.Logger
}

func NewHandler(service *Service, log *logger.Logger) *Handler {
	return &Handler{
		service:  service,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      logger.OrNop(log).With("component", "http"),
	}
}

// Register mounts every route under r, which is expected to be the /api/v1 subrouter.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/score", h.Score).Methods("POST")
	r.HandleFunc("/calibrate", h.Calibrate).Methods("POST")
	r.HandleFunc("/equate", h.Equate).Methods("POST")
	r.HandleFunc("/equate/multiple", h.EquateMultiple).Methods("POST")
	r.HandleFunc("/anchors/recommend", h.RecommendAnchors).Methods("POST")
	r.HandleFunc("/parameters/validate", h.ValidateParameters).Methods("POST")
	r.HandleFunc("/executions", h.ListExecutions).Methods("GET")
	r.HandleFunc("/executions/{id}", h.GetExecution).Methods("GET")
	r.HandleFunc("/executions/{id}/results", h.GetResults).Methods("GET")
	r.HandleFunc("/parameter-sets/{id}", h.GetParameterSet).Methods("GET")
}

// ── Engine ──────────────────────────────────────────────

func (h *Handler) Score(w http.ResponseWriter, r *http.Request) {
	var req models.ScoreRequest
	if !h.decode(w, r, &req) {
		return
	}
	resp, err := h.service.Score(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *Handler) Calibrate(w http.ResponseWriter, r *http.Request) {
	var req models.CalibrateRequest
	if !h.decode(w, r, &req) {
		return
	}
	resp, err := h.service.Calibrate(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if !resp.Validation.Valid {
		writeJSON(w, http.StatusBadRequest, resp)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *Handler) Equate(w http.ResponseWriter, r *http.Request) {
	var req models.EquateRequest
	if !h.decode(w, r, &req) {
		return
	}
	resp, err := h.service.Equate(req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type equateMultipleRequest struct {
	Applications []equating.Application `json:"applications" validate:"required,min=2,dive"`
}

func (h *Handler) EquateMultiple(w http.ResponseWriter, r *http.Request) {
	var req equateMultipleRequest
	if !h.decode(w, r, &req) {
		return
	}
	resp, err := h.service.EquateMultiple(req.Applications)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) RecommendAnchors(w http.ResponseWriter, r *http.Request) {
	var req models.RecommendRequest
	if !h.decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, h.service.RecommendAnchors(req))
}

func (h *Handler) ValidateParameters(w http.ResponseWriter, r *http.Request) {
	var req models.ValidateParametersRequest
	if !h.decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, h.service.ValidateParameters(req.Parameters))
}

// ── History ─────────────────────────────────────────────

func (h *Handler) ListExecutions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit := intQueryParam(query, "limit", defaultListLimit)
	if limit == 0 || limit > maxListLimit {
		limit = maxListLimit
	}
	offset := intQueryParam(query, "offset", 0)

	list, err := h.service.ListExecutions(r.Context(), limit, offset)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) GetExecution(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	exec, err := h.service.GetExecution(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exec)
}

func (h *Handler) GetResults(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	results, err := h.service.GetResults(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (h *Handler) GetParameterSet(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	ps, err := h.service.GetParameterSet(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

// ── Helpers ─────────────────────────────────────────────

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var details []string
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				details = append(details, fe.Namespace()+" failed '"+fe.Tag()+"'")
			}
		}
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request", Details: details})
		return false
	}
	return true
}

// writeError maps failed validations and structural input errors to 400, missing rows to 404 and
// everything else to 500.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: err.Error(), Validation: &verr.Result})
	case errors.Is(err, ErrNotFound):
		writeJSON(w, http.StatusNotFound, models.ErrorResponse{Error: "Not found"})
	case isInputError(err):
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
	default:
		h.log.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Internal server error"})
	}
}

func isInputError(err error) bool {
	for _, target := range []error{
		irt.ErrDuplicateResponse,
		irt.ErrInvalidResponse,
		irt.ErrEmptyResponses,
		irt.ErrLengthMismatch,
		scoring.ErrItemCountMismatch,
		calibration.ErrUnknownMethod,
		equating.ErrInsufficientAnchors,
		equating.ErrDegenerateAnchors,
		equating.ErrTooFewApplications,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid id"})
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func intQueryParam(query url.Values, key string, defaultVal int) int {
	s := query.Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	return v
}
