package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	apierrors "universed/internal/errors"
	"universed/internal/universe"
)

// UniverseHandler exposes CRUD over universe records. Mutation of live
// cluster state goes through the operations endpoint; this handler only
// creates the declarative record and reads it back.
type UniverseHandler struct {
	store  universe.Store
	logger *slog.Logger
}

// NewUniverseHandler creates the handler
func NewUniverseHandler(store universe.Store, logger *slog.Logger) *UniverseHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &UniverseHandler{
		store:  store,
		logger: logger.With(slog.String("handler", "universes")),
	}
}

// Routes mounts the universe endpoints
func (h *UniverseHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Get("/{universeID}", h.Get)
	return r
}

// NodeRequest declares one node of a new universe
type NodeRequest struct {
	NodeName     string `json:"node_name" validate:"required"`
	Cloud        string `json:"cloud" validate:"required"`
	Region       string `json:"region" validate:"required"`
	Zone         string `json:"zone" validate:"required"`
	InstanceType string `json:"instance_type" validate:"required"`
	PrivateIP    string `json:"private_ip,omitempty"`
}

// UniverseRequest declares a new universe
type UniverseRequest struct {
	Name              string        `json:"name" validate:"required,min=1,max=64"`
	CustomerUUID      string        `json:"customer_uuid,omitempty" validate:"omitempty,uuid"`
	ReplicationFactor int           `json:"replication_factor" validate:"required,min=1"`
	SoftwareVersion   string        `json:"software_version" validate:"required"`
	Nodes             []NodeRequest `json:"nodes" validate:"required,min=1,dive"`
}

// Bind implements render.Binder
func (r *UniverseRequest) Bind(req *http.Request) error {
	if err := validate.Struct(r); err != nil {
		return err
	}
	seen := make(map[string]bool, len(r.Nodes))
	for _, n := range r.Nodes {
		if seen[n.NodeName] {
			return errors.New("duplicate node name: " + n.NodeName)
		}
		seen[n.NodeName] = true
	}
	if r.ReplicationFactor > len(r.Nodes) {
		return errors.New("replication factor exceeds node count")
	}
	return nil
}

// Create records a declared universe. The record starts with every node
// ToBeAdded; a CreateUniverse operation makes it real.
func (h *UniverseHandler) Create(w http.ResponseWriter, r *http.Request) {
	req := &UniverseRequest{}
	if err := render.Bind(r, req); err != nil {
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.InvalidRequestWithError(err)))
		return
	}

	u := &universe.Universe{
		UUID:              uuid.New(),
		Name:              req.Name,
		ReplicationFactor: req.ReplicationFactor,
		SoftwareVersion:   req.SoftwareVersion,
		Nodes:             make(map[string]*universe.NodeDetails, len(req.Nodes)),
		Placements:        make(map[string]*universe.Placement),
	}
	if req.CustomerUUID != "" {
		u.CustomerUUID, _ = uuid.Parse(req.CustomerUUID)
	}
	for _, n := range req.Nodes {
		u.Nodes[n.NodeName] = &universe.NodeDetails{
			NodeName: n.NodeName,
			NodeUUID: uuid.New(),
			State:    universe.NodeToBeAdded,
			CloudInfo: universe.CloudInfo{
				Cloud:        n.Cloud,
				Region:       n.Region,
				Zone:         n.Zone,
				InstanceType: n.InstanceType,
				PrivateIP:    n.PrivateIP,
			},
		}
	}

	if err := h.store.Create(r.Context(), u); err != nil {
		if errors.Is(err, universe.ErrAlreadyExists) {
			render.Render(w, r, apierrors.NewErrorResponse(apierrors.ErrConflict))
			return
		}
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.ErrInternalServer))
		return
	}

	h.logger.InfoContext(r.Context(), "universe recorded",
		slog.String("universe_uuid", u.UUID.String()),
		slog.String("name", u.Name),
		slog.Int("nodes", len(u.Nodes)))
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, u)
}

// Get returns one universe record
func (h *UniverseHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "universeID"))
	if err != nil {
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.ErrValidation("universeID", "must be a UUID")))
		return
	}
	u, err := h.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, universe.ErrNotFound) {
			render.Render(w, r, apierrors.NewErrorResponse(apierrors.ErrUniverseNotFound))
			return
		}
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.ErrInternalServer))
		return
	}
	render.JSON(w, r, u)
}

// List returns all universe records
func (h *UniverseHandler) List(w http.ResponseWriter, r *http.Request) {
	universes, err := h.store.List(r.Context())
	if err != nil {
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.ErrInternalServer))
		return
	}
	render.JSON(w, r, map[string]interface{}{
		"universes": universes,
		"count":     len(universes),
	})
}
