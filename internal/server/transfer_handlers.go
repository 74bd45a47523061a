package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"cargohold/internal/constants"
	"cargohold/internal/storage"
	"cargohold/internal/transfer"
)

// handleTransfers handles /api/transfers
//
//	GET  - list indexed transfers
//	POST - upload a new object (request body is the raw bytes)
func (s *Server) handleTransfers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listTransfers(w, r)
	case http.MethodPost:
		s.uploadTransfer(w, r)
	default:
		WriteError(w, http.StatusMethodNotAllowed, "Method not allowed", constants.ErrCodeMethodNotAllowed)
	}
}

func (s *Server) listTransfers(w http.ResponseWriter, r *http.Request) {
	limit := constants.DefaultPageSize
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			WriteError(w, http.StatusBadRequest, "Invalid limit", constants.ErrCodeBadRequest)
			return
		}
		limit = n
	}
	if limit > constants.MaxPageSize {
		limit = constants.MaxPageSize
	}

	entries, err := s.app.Transfers.List(limit)
	if err != nil {
		s.logger.Error("Failed to list transfers: %v", err)
		WriteError(w, http.StatusInternalServerError, "Failed to list transfers", constants.ErrCodeInternal)
		return
	}
	if entries == nil {
		entries = []transfer.Entry{}
	}

	WriteSuccess(w, map[string]interface{}{
		"transfers": entries,
		"count":     len(entries),
	})
}

func (s *Server) uploadTransfer(w http.ResponseWriter, r *http.Request) {
	originName := r.URL.Query().Get("name")
	uploadedBy := r.URL.Query().Get("uploaded_by")

	hash, size, err := s.app.Objects.Put(r.Body)
	if err != nil {
		if errors.Is(err, storage.ErrObjectTooLarge) {
			WriteError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("Upload exceeds %d bytes", s.app.Config.Transfer.MaxUploadBytes),
				constants.ErrCodePayloadTooLarge)
			return
		}
		s.logger.Error("Upload failed: %v", err)
		WriteError(w, http.StatusInternalServerError, "Upload failed", constants.ErrCodeInternal)
		return
	}

	entry, err := s.app.Transfers.Add(hash, size, originName, uploadedBy)
	if err != nil {
		s.logger.Error("Failed to index upload %s: %v", hash, err)
		WriteError(w, http.StatusInternalServerError, "Failed to index upload", constants.ErrCodeInternal)
		return
	}

	s.logger.Info("Stored object %s (%d bytes)", hash, size)
	WriteJSON(w, http.StatusCreated, entry)
}

// handleTransferByHash handles /api/transfers/{hash}
//
//	GET  - download the object bytes
//	HEAD - existence and size check
func (s *Server) handleTransferByHash(w http.ResponseWriter, r *http.Request) {
	hash := strings.TrimPrefix(r.URL.Path, "/api/transfers/")
	if hash == "" || strings.Contains(hash, "/") {
		WriteError(w, http.StatusBadRequest, "Invalid transfer path", constants.ErrCodeBadRequest)
		return
	}
	if !storage.IsValidHash(hash) {
		WriteError(w, http.StatusBadRequest, "Invalid object hash", constants.ErrCodeBadRequest)
		return
	}

	switch r.Method {
	case http.MethodHead:
		entry, err := s.app.Transfers.Get(hash)
		if err != nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		// The index entry alone is not enough; the object bytes must be on
		// disk for a download to succeed.
		if !s.app.Objects.Exists(hash) {
			s.logger.Warn("Indexed object %s missing from store", hash)
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Length", strconv.FormatInt(entry.Size, 10))
		w.WriteHeader(http.StatusOK)

	case http.MethodGet:
		reader, size, err := s.app.Objects.Open(hash)
		if err != nil {
			if errors.Is(err, storage.ErrObjectNotFound) {
				WriteError(w, http.StatusNotFound, "Object not found", constants.ErrCodeNotFound)
				return
			}
			s.logger.Error("Failed to open object %s: %v", hash, err)
			WriteError(w, http.StatusInternalServerError, "Failed to open object", constants.ErrCodeInternal)
			return
		}
		defer reader.Close()

		w.Header().Set(constants.HeaderContentType, constants.DefaultMimeType)
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		if entry, err := s.app.Transfers.Get(hash); err == nil && entry.OriginName != "" {
			w.Header().Set("Content-Disposition",
				fmt.Sprintf("attachment; filename=%q", entry.OriginName))
		}
		if _, err := io.Copy(w, reader); err != nil {
			s.logger.Debug("Download of %s interrupted: %v", hash, err)
		}

	default:
		WriteError(w, http.StatusMethodNotAllowed, "Method not allowed", constants.ErrCodeMethodNotAllowed)
	}
}
