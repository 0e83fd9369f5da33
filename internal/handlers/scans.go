package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"thermascan/api/internal/middleware"
	"thermascan/api/internal/models"
	"thermascan/api/internal/repository"
	"thermascan/api/internal/service"
	"thermascan/api/internal/vision"
)

var allowedImageTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
	"image/webp": {},
}

type scanResponse struct {
	ID         string             `json:"id"`
	ImageURL   string             `json:"image_url,omitempty"`
	Detections []models.Detection `json:"detections"`
	CreatedAt  time.Time          `json:"created_at"`
}

func (h HandlerSet) Scan(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	file, header, err := c.Request.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No image file provided"})
		return
	}
	defer file.Close()

	if header.Size > h.cfg.Upload.MaxSizeBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Image exceeds the maximum allowed size"})
		return
	}

	contentType := header.Header.Get("Content-Type")
	if _, ok := allowedImageTypes[contentType]; !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unsupported image type"})
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No image file provided"})
		return
	}

	result, err := h.scanner.Scan(c.Request.Context(), service.ScanInput{
		User:        user,
		Filename:    header.Filename,
		ContentType: contentType,
		Data:        data,
	})
	if err != nil {
		h.respondScanError(c, err)
		return
	}

	c.JSON(http.StatusOK, scanResponse{
		ID:         result.Record.ID,
		ImageURL:   result.ImageURL,
		Detections: result.Record.Detections,
		CreatedAt:  result.Record.CreatedAt,
	})
}

func (h HandlerSet) respondScanError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, vision.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded. Please try again later."})
	case errors.Is(err, vision.ErrPaymentRequired):
		c.JSON(http.StatusPaymentRequired, gin.H{"error": "AI credits exhausted. Please add credits to continue."})
	case errors.Is(err, vision.ErrUpstream):
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to analyze image"})
	case errors.Is(err, service.ErrUploadFailed):
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to upload image"})
	case errors.Is(err, service.ErrSaveFailed):
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save detection results"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (h HandlerSet) ListScans(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	limit := atoiDefault(c.DefaultQuery("limit", "50"), 50)
	offset := atoiDefault(c.DefaultQuery("offset", "0"), 0)

	records, err := h.records.ListByUser(c.Request.Context(), user.ID, limit, offset)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", user.ID).Msg("list scans failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list detections"})
		return
	}

	out := make([]scanResponse, 0, len(records))
	for _, record := range records {
		out = append(out, scanResponse{
			ID:         record.ID,
			Detections: record.Detections,
			CreatedAt:  record.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"scans": out})
}

func (h HandlerSet) GetScan(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Detection not found"})
		return
	}

	record, err := h.records.GetByID(c.Request.Context(), id, user.ID)
	if err != nil {
		if errors.Is(err, repository.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Detection not found"})
			return
		}
		h.log.Error().Err(err).Str("user_id", user.ID).Msg("get scan failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load detection"})
		return
	}

	c.JSON(http.StatusOK, scanResponse{
		ID:         record.ID,
		Detections: record.Detections,
		CreatedAt:  record.CreatedAt,
	})
}

func (h HandlerSet) DeleteScan(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Detection not found"})
		return
	}

	if err := h.records.Delete(c.Request.Context(), id, user.ID); err != nil {
		if errors.Is(err, repository.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Detection not found"})
			return
		}
		h.log.Error().Err(err).Str("user_id", user.ID).Msg("delete scan failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete detection"})
		return
	}

	c.Status(http.StatusNoContent)
}

func atoiDefault(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
