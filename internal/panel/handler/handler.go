package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"panelmerge/internal/panel"
	"panelmerge/pkg/platform/httputil"
)

// maxUploadBytes bounds how much of an uploaded gene list we read.
const maxUploadBytes = 5 << 20

// Handler exposes the panel REST surface.
type Handler struct {
	service *panel.Service
	logger  *slog.Logger
}

// New constructs the panel handler.
func New(service *panel.Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Register mounts the panel routes. The caller is expected to wrap them
// with authentication.
func (h *Handler) Register(r chi.Router) {
	r.Route("/panels", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Post("/", h.handleCreate)
		r.Get("/search", h.handleSearch)
		r.Post("/merge", h.handleMerge)
		r.Post("/upload", h.handleUpload)

		r.Route("/{panelID}", func(r chi.Router) {
			r.Get("/", h.handleGet)
			r.Put("/", h.handleUpdate)
			r.Delete("/", h.handleDelete)
			r.Get("/download", h.handleDownload)
			r.Post("/genes", h.handleAddGene)
			r.Delete("/genes/{symbol}", h.handleRemoveGene)
		})
	})
}

type geneBody struct {
	Symbol     string `json:"symbol"`
	Confidence string `json:"confidence"`
}

type panelBody struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Genes       []geneBody `json:"genes"`
}

type panelResponse struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Version     int        `json:"version"`
	Genes       []geneBody `json:"genes"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func toResponse(p *panel.Panel) panelResponse {
	genes := make([]geneBody, 0, len(p.Genes))
	for _, g := range p.Genes {
		genes = append(genes, geneBody{Symbol: g.Symbol, Confidence: g.Confidence})
	}
	return panelResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Version:     p.Version,
		Genes:       genes,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func toGenes(bodies []geneBody) []panel.Gene {
	genes := make([]panel.Gene, 0, len(bodies))
	for _, g := range bodies {
		genes = append(genes, panel.Gene{Symbol: g.Symbol, Confidence: g.Confidence})
	}
	return genes
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	panels, err := h.service.List(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out := make([]panelResponse, 0, len(panels))
	for _, p := range panels {
		out = append(out, toResponse(p))
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.Get(r.Context(), chi.URLParam(r, "panelID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(p))
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var body panelBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httputil.WriteMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Name == "" {
		httputil.WriteMessage(w, http.StatusBadRequest, "panel name is required")
		return
	}

	p, err := h.service.Create(r.Context(), body.Name, body.Description, toGenes(body.Genes))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toResponse(p))
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var body panelBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httputil.WriteMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	p, err := h.service.Update(r.Context(), chi.URLParam(r, "panelID"), body.Name, body.Description, toGenes(body.Genes))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(p))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "panelID")); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type mergeRequest struct {
	SourceIDs []string `json:"source_ids"`
	Name      string   `json:"name"`
}

func (h *Handler) handleMerge(w http.ResponseWriter, r *http.Request) {
	var req mergeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		httputil.WriteMessage(w, http.StatusBadRequest, "merged panel name is required")
		return
	}

	p, err := h.service.Merge(r.Context(), req.SourceIDs, req.Name)
	if err != nil {
		if errors.Is(err, panel.ErrMergeSourceCount) {
			httputil.WriteMessage(w, http.StatusBadRequest, err.Error())
			return
		}
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toResponse(p))
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		httputil.WriteMessage(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		httputil.WriteMessage(w, http.StatusBadRequest, "failed to read upload")
		return
	}

	name := r.FormValue("name")
	if name == "" {
		name = header.Filename
	}

	p, err := h.service.Upload(r.Context(), header.Filename, content, name)
	if err != nil {
		if errors.Is(err, panel.ErrUploadRejected) {
			httputil.WriteMessage(w, http.StatusBadRequest, "file rejected by security policy")
			return
		}
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toResponse(p))
}

func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "panelID")
	data, err := h.service.Download(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="panel-`+id+`.csv"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		h.logger.ErrorContext(r.Context(), "write download response", "error", err)
	}
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		httputil.WriteMessage(w, http.StatusBadRequest, "query parameter q is required")
		return
	}

	panels, err := h.service.Search(r.Context(), query)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out := make([]panelResponse, 0, len(panels))
	for _, p := range panels {
		out = append(out, toResponse(p))
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) handleAddGene(w http.ResponseWriter, r *http.Request) {
	var body geneBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httputil.WriteMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Symbol == "" {
		httputil.WriteMessage(w, http.StatusBadRequest, "gene symbol is required")
		return
	}
	if body.Confidence == "" {
		body.Confidence = "green"
	}

	p, err := h.service.AddGene(r.Context(), chi.URLParam(r, "panelID"), panel.Gene{
		Symbol:     body.Symbol,
		Confidence: body.Confidence,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(p))
}

func (h *Handler) handleRemoveGene(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.RemoveGene(r.Context(), chi.URLParam(r, "panelID"), chi.URLParam(r, "symbol"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(p))
}
