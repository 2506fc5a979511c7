package order_api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"

	"ms-docservices/internal/auth"
	"ms-docservices/internal/docstore"
	"ms-docservices/internal/logger"
	"ms-docservices/internal/models"
	"ms-docservices/internal/order"
	"ms-docservices/internal/order/receipt"
)

// maxUploadMemory bounds the in-memory portion of multipart parsing; larger
// parts spill to temp files.
const maxUploadMemory = 32 << 20

type Handler struct {
	OrderService *order.OrderService
	Docs         *docstore.Store
	Receipts     *receipt.Generator
	Logger       *logger.Logger
}

func NewHandler(orderService *order.OrderService, docs *docstore.Store, receipts *receipt.Generator, log *logger.Logger) *Handler {
	return &Handler{
		OrderService: orderService,
		Docs:         docs,
		Receipts:     receipts,
		Logger:       log,
	}
}

// writeError maps the order error taxonomy onto HTTP statuses.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var validationErr *order.ValidationError
	var notFoundErr *order.NotFoundError
	var forbiddenErr *order.ForbiddenError
	var transitionErr *order.InvalidTransitionError
	var cancelledErr *order.OrderCancelledError
	var paidErr *order.AlreadyPaidError
	var gatewayErr *order.GatewayError
	var tooLargeErr *docstore.FileTooLargeError
	var badTypeErr *docstore.UnsupportedTypeError

	switch {
	case errors.As(err, &validationErr):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.As(err, &tooLargeErr), errors.As(err, &badTypeErr):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.As(err, &notFoundErr):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.As(err, &forbiddenErr):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.As(err, &transitionErr), errors.As(err, &cancelledErr), errors.As(err, &paidErr):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, order.ErrOrderBusy):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.As(err, &gatewayErr):
		if gatewayErr.Declined {
			http.Error(w, "Payment was declined", http.StatusPaymentRequired)
		} else {
			http.Error(w, "Payment gateway unavailable", http.StatusBadGateway)
		}
	default:
		h.Logger.Error("API", fmt.Sprintf("internal error: %v", err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.Logger.Error("API", fmt.Sprintf("failed to encode response: %v", err))
	}
}

// CreateOrder accepts a multipart request: an "orderData" JSON field plus one
// to five "documents" files. Files are stored before the order row is
// written; if the order fails, stored files are removed again.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		http.Error(w, "Invalid multipart request: "+err.Error(), http.StatusBadRequest)
		return
	}

	var req models.OrderRequest
	orderData := r.FormValue("orderData")
	if orderData == "" {
		http.Error(w, "orderData field is required", http.StatusBadRequest)
		return
	}
	if err := json.Unmarshal([]byte(orderData), &req); err != nil {
		http.Error(w, "Invalid orderData JSON: "+err.Error(), http.StatusBadRequest)
		return
	}

	files := r.MultipartForm.File["documents"]
	if len(files) == 0 {
		http.Error(w, "at least one document is required", http.StatusBadRequest)
		return
	}
	if len(files) > order.MaxDocumentsPerOrder {
		http.Error(w, fmt.Sprintf("at most %d documents per order", order.MaxDocumentsPerOrder), http.StatusBadRequest)
		return
	}

	var docs []models.Document
	cleanup := func() {
		for _, d := range docs {
			if err := h.Docs.Delete(d.Filename); err != nil {
				h.Logger.Warn("UPLOAD", fmt.Sprintf("cleanup of %s failed: %v", d.Filename, err))
			}
		}
	}

	for _, fh := range files {
		src, err := fh.Open()
		if err != nil {
			cleanup()
			http.Error(w, "Failed to read uploaded file: "+err.Error(), http.StatusBadRequest)
			return
		}
		doc, err := h.Docs.Save(fh.Filename, fh.Header.Get("Content-Type"), fh.Size, src)
		src.Close()
		if err != nil {
			cleanup()
			h.writeError(w, err)
			return
		}
		h.Logger.LogUpload(doc.Filename, fmt.Sprintf("stored original=%s size=%d", doc.OriginalName, doc.Size))
		docs = append(docs, *doc)
	}

	created, err := h.OrderService.CreateOrder(r.Context(), principal, req, docs)
	if err != nil {
		cleanup()
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	orderID := chi.URLParam(r, "orderId")

	orderData, err := h.OrderService.GetOrder(r.Context(), principal, orderID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, orderData)
}

// ListMyOrders returns the authenticated user's own orders.
func (h *Handler) ListMyOrders(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	orders, err := h.OrderService.ListOrdersForUser(r.Context(), principal.ID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ListMyOrders: %v", err))
		http.Error(w, "Failed to load orders", http.StatusInternalServerError)
		return
	}
	if orders == nil {
		orders = []models.Order{}
	}

	h.writeJSON(w, http.StatusOK, orders)
}

// ListAllOrders returns every order. Routed behind the admin gate.
func (h *Handler) ListAllOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.OrderService.ListAllOrders(r.Context())
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ListAllOrders: %v", err))
		http.Error(w, "Failed to load orders", http.StatusInternalServerError)
		return
	}
	if orders == nil {
		orders = []models.Order{}
	}

	h.writeJSON(w, http.StatusOK, orders)
}

// UpdateStatus progresses the fulfillment state machine. Admin only.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	orderID := chi.URLParam(r, "orderId")

	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	updated, err := h.OrderService.UpdateStatus(r.Context(), principal, orderID, body.Status)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, updated)
}

// DownloadDocument streams one of the order's stored files back to an
// authorized viewer.
func (h *Handler) DownloadDocument(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	orderID := chi.URLParam(r, "orderId")
	filename := chi.URLParam(r, "filename")

	orderData, err := h.OrderService.GetOrder(r.Context(), principal, orderID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var doc *models.Document
	for i := range orderData.Documents {
		if orderData.Documents[i].Filename == filename {
			doc = &orderData.Documents[i]
			break
		}
	}
	if doc == nil {
		http.Error(w, "Document not found on order", http.StatusNotFound)
		return
	}

	f, err := h.Docs.Open(doc.Filename)
	if err != nil {
		if os.IsNotExist(err) {
			http.Error(w, "Document file is missing", http.StatusNotFound)
			return
		}
		h.Logger.Error("API", fmt.Sprintf("DownloadDocument: %v", err))
		http.Error(w, "Failed to open document", http.StatusInternalServerError)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", doc.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.OriginalName))
	if _, err := io.Copy(w, f); err != nil {
		h.Logger.Error("API", fmt.Sprintf("DownloadDocument: stream failed: %v", err))
	}
}

// Receipt returns an encrypted QR payment receipt for a paid order.
func (h *Handler) Receipt(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	orderID := chi.URLParam(r, "orderId")

	orderData, err := h.OrderService.GetOrder(r.Context(), principal, orderID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if orderData.PaymentStatus != models.PaymentCompleted {
		http.Error(w, "Order is not paid", http.StatusConflict)
		return
	}

	png, err := h.Receipts.GenerateQR(*orderData)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("Receipt: %v", err))
		http.Error(w, "Failed to generate receipt", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	if _, err := w.Write(png); err != nil {
		h.Logger.Error("API", fmt.Sprintf("Receipt: write failed: %v", err))
	}
}
