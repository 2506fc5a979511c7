package catalog_api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-docservices/internal/catalog"
	"ms-docservices/internal/logger"
)

type Handler struct {
	Catalog *catalog.DB
	Logger  *logger.Logger
}

func NewHandler(db *catalog.DB, log *logger.Logger) *Handler {
	return &Handler{Catalog: db, Logger: log}
}

// ListServices returns the catalog, optionally filtered by category (path
// param or ?category= query).
func (h *Handler) ListServices(w http.ResponseWriter, r *http.Request) {
	category := chi.URLParam(r, "category")
	if category == "" {
		category = r.URL.Query().Get("category")
	}

	var services interface{}
	var err error
	if category != "" {
		services, err = h.Catalog.ListByCategory(r.Context(), category)
	} else {
		services, err = h.Catalog.ListAll(r.Context())
	}
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ListServices: %v", err))
		http.Error(w, "Failed to load services", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(services); err != nil {
		h.Logger.Error("API", fmt.Sprintf("ListServices: failed to encode response: %v", err))
	}
}

func (h *Handler) GetService(w http.ResponseWriter, r *http.Request) {
	serviceID := chi.URLParam(r, "serviceId")

	svc, err := h.Catalog.GetByID(r.Context(), serviceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "Service not found", http.StatusNotFound)
			return
		}
		h.Logger.Error("API", fmt.Sprintf("GetService: %v", err))
		http.Error(w, "Failed to load service", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(svc); err != nil {
		h.Logger.Error("API", fmt.Sprintf("GetService: failed to encode response: %v", err))
	}
}
