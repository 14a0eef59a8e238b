package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hyperjump/docent/internal/errs"
	"github.com/hyperjump/docent/internal/models"
	"go.uber.org/zap"
)

// multipartMemory is how much of a multipart body is held in memory before
// spilling to temporary files.
const multipartMemory = 8 << 20

func (s *Server) handleListGalleries(w http.ResponseWriter, r *http.Request) {
	galleries, err := s.catalog.ListGalleries(r.Context())
	if err != nil {
		s.fail(w, "list galleries failed", err)
		return
	}
	out := make([]models.GallerySummary, 0, len(galleries))
	for i := range galleries {
		out = append(out, galleries[i].Summary())
	}
	s.respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleListExhibitions(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("gallery_id")
	if raw == "" {
		s.respondError(w, http.StatusBadRequest, "gallery_id is required")
		return
	}
	galleryID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "gallery_id must be an integer")
		return
	}
	exhibitions, err := s.catalog.ListExhibitions(r.Context(), galleryID)
	if err != nil {
		s.fail(w, "list exhibitions failed", err)
		return
	}
	out := make([]models.ExhibitionSummary, 0, len(exhibitions))
	for i := range exhibitions {
		out = append(out, exhibitions[i].Summary())
	}
	s.respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleListArtworks(w http.ResponseWriter, r *http.Request) {
	exhibitionID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "exhibition id must be an integer")
		return
	}
	artworks, err := s.catalog.ListArtworks(r.Context(), exhibitionID)
	if err != nil {
		s.fail(w, "list artworks failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, artworks)
}

func (s *Server) handleGetArtwork(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "artwork_id")
	artwork, err := s.catalog.GetArtwork(r.Context(), id)
	if errors.Is(err, errs.ErrNotFound) {
		s.respondError(w, http.StatusNotFound, "artwork not found")
		return
	}
	if err != nil {
		s.fail(w, "get artwork failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, artwork)
}

func (s *Server) handleImageSearch(w http.ResponseWriter, r *http.Request) {
	if s.config.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			s.respondError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("upload exceeds %d bytes", s.config.MaxUploadBytes))
			return
		}
		s.respondError(w, http.StatusBadRequest, "expected multipart form with exhibition_id and image")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	exhibitionID, err := strconv.ParseInt(r.FormValue("exhibition_id"), 10, 64)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "exhibition_id must be an integer")
		return
	}
	topK := s.search.TopK()
	if raw := r.FormValue("top_k"); raw != "" {
		if topK, err = strconv.Atoi(raw); err != nil {
			s.respondError(w, http.StatusBadRequest, "top_k must be an integer")
			return
		}
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "image is required")
		return
	}
	defer file.Close()
	image, err := io.ReadAll(file)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "failed to read image")
		return
	}

	s.logger.Debug("image search request",
		zap.Int64("exhibition_id", exhibitionID),
		zap.Int("image_bytes", len(image)),
		zap.Int("top_k", topK))
	matches, err := s.search.ImageSearchTopK(r.Context(), exhibitionID, image, topK)
	if err != nil {
		s.fail(w, "image search failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, matches)
}

type healthResponse struct {
	Status     string `json:"status"`
	Model      string `json:"model"`
	Store      string `json:"store"`
	StoreBytes *int64 `json:"store_bytes,omitempty"`
	Oracle     string `json:"oracle,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Model: s.model, Oracle: s.oracleName}
	if b, ok := s.catalog.(interface{ Backend() string }); ok {
		resp.Store = b.Backend()
	}
	if sz, ok := s.catalog.(interface{ SizeBytes() (int64, error) }); ok {
		if n, err := sz.SizeBytes(); err == nil {
			resp.StoreBytes = &n
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.catalog.Ping(ctx); err != nil {
		s.logger.Warn("health: store ping failed", zap.Error(err))
		resp.Status = "unavailable"
		s.respondJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	if s.oracle != nil {
		if err := s.oracle.Ping(ctx); err != nil {
			s.logger.Warn("health: oracle ping failed", zap.String("oracle", s.oracleName), zap.Error(err))
			resp.Status = "unavailable"
			s.respondJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// fail logs err once and responds with its mapped status. Server-side
// failures get a generic message; client errors echo the cause.
func (s *Server) fail(w http.ResponseWriter, msg string, err error) {
	status := errs.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(msg, zap.Error(err), zap.Int("status", status))
		s.respondError(w, status, publicMessage(err))
		return
	}
	s.logger.Debug(msg, zap.Error(err), zap.Int("status", status))
	s.respondError(w, status, err.Error())
}

func publicMessage(err error) string {
	for _, sentinel := range []error{
		errs.ErrTimeout,
		errs.ErrOracleUnavailable,
		errs.ErrModelUnavailable,
		errs.ErrMalformedRow,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return "internal server error"
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
