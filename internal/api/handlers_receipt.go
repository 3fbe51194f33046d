/**
 * @description
 * HTTP handlers for the receipt verification pipeline: multipart upload, the
 * user-triggered verification pass, and the internal manual-decision override.
 */

package api

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/vits2709/socialcraft-platform-sub000/internal/domain"
)

// Uploads beyond this size are rejected before reading the body into memory.
const maxReceiptUploadBytes = 10 << 20

// UploadReceiptHandler accepts a multipart receipt image for a venue.
func (h *RewardHandlers) UploadReceiptHandler(w http.ResponseWriter, r *http.Request) {
	account, ok := h.resolveAccount(w, r, "receipt_upload")
	if !ok {
		return
	}
	if !h.consumeRateLimit(w, r, "receipt_upload", account.ID, h.cfg.UploadRateLimitPerMinute) {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxReceiptUploadBytes)
	if err := r.ParseMultipartForm(maxReceiptUploadBytes); err != nil {
		log.Printf("level=warn component=api endpoint=receipt_upload outcome=reject reason=invalid_multipart err=%v", err)
		h.writeError(w, http.StatusBadRequest, "Invalid multipart body")
		return
	}

	venueSlug := strings.TrimSpace(r.FormValue("venue_slug"))
	if venueSlug == "" {
		h.writeError(w, http.StatusBadRequest, "venue_slug is required")
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "image file is required")
		return
	}
	defer file.Close()

	image, err := io.ReadAll(file)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Failed to read image")
		return
	}
	if len(image) == 0 {
		h.writeError(w, http.StatusBadRequest, "image file is empty")
		return
	}

	mediaType := header.Header.Get("Content-Type")
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}

	resp, err := h.service.UploadReceipt(r.Context(), account.ID, venueSlug, image, mediaType)
	if err != nil {
		h.writeServiceError(w, "receipt_upload", err)
		return
	}

	status := http.StatusCreated
	if resp.Reused {
		status = http.StatusOK
	}
	h.writeJSON(w, status, resp)
}

// VerifyReceiptHandler runs one verification pass over the caller's record.
func (h *RewardHandlers) VerifyReceiptHandler(w http.ResponseWriter, r *http.Request) {
	account, ok := h.resolveAccount(w, r, "receipt_verify")
	if !ok {
		return
	}

	verificationID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid verification ID format")
		return
	}

	resp, err := h.service.VerifyReceipt(r.Context(), account.ID, verificationID)
	if err != nil {
		h.writeServiceError(w, "receipt_verify", err)
		return
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// DecideReceiptHandler applies a manual approve/reject from the review console.
// Guarded by the internal API key middleware, not user auth.
func (h *RewardHandlers) DecideReceiptHandler(w http.ResponseWriter, r *http.Request) {
	verificationID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid verification ID format")
		return
	}

	var req domain.ReceiptDecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("level=warn component=api endpoint=receipt_decision outcome=reject reason=invalid_json err=%v", err)
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	resp, err := h.service.DecideReceipt(r.Context(), verificationID, req)
	if err != nil {
		h.writeServiceError(w, "receipt_decision", err)
		return
	}

	h.writeJSON(w, http.StatusOK, resp)
}
