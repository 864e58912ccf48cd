package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"universed/internal/commissioner"
	apierrors "universed/internal/errors"
	"universed/internal/universe"
)

var validate = validator.New()

// OperationsHandler exposes operation submission and tracking
type OperationsHandler struct {
	engine *commissioner.Commissioner
	logger *slog.Logger
}

// NewOperationsHandler creates the handler
func NewOperationsHandler(engine *commissioner.Commissioner, logger *slog.Logger) *OperationsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &OperationsHandler{
		engine: engine,
		logger: logger.With(slog.String("handler", "operations")),
	}
}

// Routes mounts the operation endpoints
func (h *OperationsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Submit)
	r.Get("/", h.List)
	r.Get("/{taskID}", h.Status)
	return r
}

// OperationRequest is the submission payload
type OperationRequest struct {
	Type            string `json:"type" validate:"required"`
	UniverseUUID    string `json:"universe_uuid" validate:"required,uuid"`
	CustomerUUID    string `json:"customer_uuid,omitempty" validate:"omitempty,uuid"`
	ExpectedVersion *int64 `json:"expected_version,omitempty"`
	Force           bool   `json:"force,omitempty"`
	NodeName        string `json:"node_name,omitempty"`
	Keyspace        string `json:"keyspace,omitempty"`
	TableName       string `json:"table_name,omitempty"`
}

// Bind implements render.Binder
func (r *OperationRequest) Bind(req *http.Request) error {
	return validate.Struct(r)
}

// OperationResponse acknowledges an accepted submission
type OperationResponse struct {
	TaskUUID     string `json:"task_uuid"`
	Type         string `json:"type"`
	UniverseUUID string `json:"universe_uuid"`
	State        string `json:"state"`
}

// Render implements render.Renderer
func (r *OperationResponse) Render(w http.ResponseWriter, req *http.Request) error {
	render.Status(req, http.StatusAccepted)
	return nil
}

// Submit accepts an operation and returns 202 with the tracking UUID
func (h *OperationsHandler) Submit(w http.ResponseWriter, r *http.Request) {
	req := &OperationRequest{}
	if err := render.Bind(r, req); err != nil {
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.InvalidRequestWithError(err)))
		return
	}

	params := commissioner.TaskParams{
		ExpectedVersion: universe.VersionAny,
		Force:           req.Force,
		NodeName:        req.NodeName,
		Keyspace:        req.Keyspace,
		TableName:       req.TableName,
	}
	params.UniverseUUID, _ = uuid.Parse(req.UniverseUUID)
	if req.CustomerUUID != "" {
		params.CustomerUUID, _ = uuid.Parse(req.CustomerUUID)
	}
	if req.ExpectedVersion != nil {
		params.ExpectedVersion = *req.ExpectedVersion
	}

	taskID, err := h.engine.Submit(r.Context(), commissioner.TaskType(req.Type), params)
	if err != nil {
		h.logger.WarnContext(r.Context(), "submission rejected",
			slog.String("type", req.Type),
			slog.String("universe_uuid", req.UniverseUUID),
			slog.String("error", err.Error()))
		render.Render(w, r, apierrors.NewErrorResponse(mapEngineError(err)))
		return
	}

	h.logger.InfoContext(r.Context(), "operation accepted",
		slog.String("type", req.Type),
		slog.String("task_uuid", taskID.String()))
	render.Render(w, r, &OperationResponse{
		TaskUUID:     taskID.String(),
		Type:         req.Type,
		UniverseUUID: req.UniverseUUID,
		State:        string(commissioner.TaskCreated),
	})
}

// Status returns the tracking record for one task
func (h *OperationsHandler) Status(w http.ResponseWriter, r *http.Request) {
	taskID, err := uuid.Parse(chi.URLParam(r, "taskID"))
	if err != nil {
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.ErrValidation("taskID", "must be a UUID")))
		return
	}
	status, err := h.engine.Status(r.Context(), taskID)
	if err != nil {
		render.Render(w, r, apierrors.NewErrorResponse(mapEngineError(err)))
		return
	}
	render.JSON(w, r, status)
}

// List returns stored tracking records, filterable by state and universe
func (h *OperationsHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := commissioner.TaskFilter{
		State: commissioner.TaskState(r.URL.Query().Get("state")),
	}
	if v := r.URL.Query().Get("universe_uuid"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			render.Render(w, r, apierrors.NewErrorResponse(apierrors.ErrValidation("universe_uuid", "must be a UUID")))
			return
		}
		filter.UniverseUUID = id
	}
	if v := r.URL.Query().Get("customer_uuid"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			render.Render(w, r, apierrors.NewErrorResponse(apierrors.ErrValidation("customer_uuid", "must be a UUID")))
			return
		}
		filter.CustomerUUID = id
	}

	statuses, err := h.engine.List(r.Context(), filter)
	if err != nil {
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.ErrInternalServer))
		return
	}
	render.JSON(w, r, map[string]interface{}{
		"tasks": statuses,
		"count": len(statuses),
	})
}

// mapEngineError translates engine error codes into API errors
func mapEngineError(err error) *apierrors.APIError {
	var taskErr *commissioner.TaskError
	if !errors.As(err, &taskErr) {
		return apierrors.ErrInternalServer
	}
	switch taskErr.Code {
	case commissioner.CodeUnknownOperation:
		return apierrors.ErrUnknownOperation
	case commissioner.CodeQueueSaturated:
		return apierrors.ErrQueueSaturated
	case commissioner.CodeStaleVersion:
		return apierrors.ErrStaleVersion
	case commissioner.CodeAlreadyLocked:
		return apierrors.ErrAlreadyLocked
	case commissioner.CodeNotFound:
		return apierrors.New(http.StatusNotFound, "NOT_FOUND", taskErr.Message)
	case commissioner.CodePreconditionFailed:
		return apierrors.NewWithDetails(http.StatusBadRequest, "PRECONDITION_FAILED", taskErr.Message, nil)
	default:
		return apierrors.ErrInternalServer
	}
}
