package pd

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kuberdock/kuberdock/internal/apierr"
	"github.com/kuberdock/kuberdock/internal/httpserver"
	"github.com/kuberdock/kuberdock/internal/principal"
)

// Handler exposes the PD Manager's public operations over HTTP.
type Handler struct {
	svc           *Service
	logger        *slog.Logger
	defaultBackend string
}

// NewHandler creates a PD HTTP handler.
func NewHandler(svc *Service, logger *slog.Logger, defaultBackend string) *Handler {
	return &Handler{svc: svc, logger: logger, defaultBackend: defaultBackend}
}

// Mount registers PD routes on r.
func (h *Handler) Mount(r chi.Router) {
	r.Route("/pstorage", func(r chi.Router) {
		r.Post("/", h.handleCreate)
		r.Get("/{id}", h.handleGet)
		r.Delete("/{id}", h.handleMarkToDelete)
	})
}

type createRequest struct {
	Name string `json:"name" validate:"required"`
	Size int    `json:"size" validate:"required,min=1"`
}

type diskResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	DriveName string `json:"drive_name"`
	Size      int    `json:"size"`
	Pod       string `json:"pod,omitempty"`
	InUse     bool   `json:"in_use"`
}

func toDiskResponse(d Disk) diskResponse {
	resp := diskResponse{ID: d.ID, Name: d.Name, DriveName: d.DriveName, Size: d.Size, InUse: d.InUse()}
	if d.PodID != nil {
		resp.Pod = *d.PodID
	}
	return resp
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	p := principal.FromContext(r.Context())
	ownerID, err := strconv.Atoi(p.UserID)
	if err != nil {
		httpserver.RespondError(w, r, http.StatusBadRequest, "missing or invalid owner id")
		return
	}

	disk, err := h.svc.Create(r.Context(), h.defaultBackend, req.Name, ownerID, req.Size)
	if err != nil {
		httpserver.RespondAPIError(w, r, h.logger, err)
		return
	}
	httpserver.RespondOK(w, r, http.StatusCreated, toDiskResponse(disk))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	disk, err := h.svc.store.GetByID(r.Context(), id)
	if err != nil {
		httpserver.RespondAPIError(w, r, h.logger, err)
		return
	}

	p := principal.FromContext(r.Context())
	if !p.Owns(strconv.Itoa(disk.OwnerID)) {
		httpserver.RespondAPIError(w, r, h.logger, apierr.New(apierr.KindPermissionDenied, "not your persistent disk"))
		return
	}
	httpserver.RespondOK(w, r, http.StatusOK, toDiskResponse(disk))
}

func (h *Handler) handleMarkToDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	disk, err := h.svc.store.GetByID(r.Context(), id)
	if err != nil {
		httpserver.RespondAPIError(w, r, h.logger, err)
		return
	}
	p := principal.FromContext(r.Context())
	if !p.Owns(strconv.Itoa(disk.OwnerID)) {
		httpserver.RespondAPIError(w, r, h.logger, apierr.New(apierr.KindPermissionDenied, "not your persistent disk"))
		return
	}

	if _, err := h.svc.MarkToDelete(r.Context(), id); err != nil {
		httpserver.RespondAPIError(w, r, h.logger, err)
		return
	}
	httpserver.RespondOK(w, r, http.StatusOK, map[string]string{"status": "deleting"})
}
