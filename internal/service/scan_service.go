package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"thermascan/api/internal/ids"
	"thermascan/api/internal/models"
)

var (
	ErrUploadFailed = errors.New("failed to upload image")
	ErrSaveFailed   = errors.New("failed to save detection results")
)

// BlobStore is the object storage capability the pipeline needs.
// Upload must refuse to overwrite an existing key.
type BlobStore interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// RecordStore persists a detection record and reads back the
// generated id and timestamp.
type RecordStore interface {
	Create(ctx context.Context, record models.DetectionRecord) (models.DetectionRecord, error)
}

// VisionService returns the raw model content for an image data URL.
type VisionService interface {
	Detect(ctx context.Context, imageDataURL string) (string, error)
}

// DetectionParser turns model content into detections, falling back
// instead of failing.
type DetectionParser func(content string) []models.Detection

type ScanInput struct {
	User        models.User
	Filename    string
	ContentType string
	Data        []byte
}

type ScanResult struct {
	Record models.DetectionRecord
	// ImageURL is empty when signing failed; that is not an error.
	ImageURL string
}

type ScanService struct {
	store      BlobStore
	records    RecordStore
	vision     VisionService
	parse      DetectionParser
	presignTTL time.Duration
	log        zerolog.Logger
	now        func() time.Time
}

func NewScanService(
	store BlobStore,
	records RecordStore,
	vision VisionService,
	parse DetectionParser,
	presignTTL time.Duration,
	log zerolog.Logger,
) *ScanService {
	return &ScanService{
		store:      store,
		records:    records,
		vision:     vision,
		parse:      parse,
		presignTTL: presignTTL,
		log:        log,
		now:        time.Now,
	}
}

// Scan runs the full pipeline: upload, AI detection, parse, persist,
// sign. Every step is sequential; every failure except signing and
// parsing is terminal. Prior side effects are never rolled back.
func (s *ScanService) Scan(ctx context.Context, input ScanInput) (ScanResult, error) {
	traceID := ids.New()
	logger := s.log.With().
		Str("scan_id", traceID).
		Str("user_id", input.User.ID).
		Logger()

	key := s.buildObjectKey(input.User.ID, input.Filename)

	if err := s.store.Upload(ctx, key, input.Data, input.ContentType); err != nil {
		logger.Error().Err(err).Str("object_key", key).Msg("image upload failed")
		return ScanResult{}, fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}

	dataURL := fmt.Sprintf("data:%s;base64,%s", input.ContentType, base64.StdEncoding.EncodeToString(input.Data))

	content, err := s.vision.Detect(ctx, dataURL)
	if err != nil {
		logger.Error().Err(err).Msg("ai detection failed")
		return ScanResult{}, err
	}

	detections := s.parse(content)

	record, err := s.records.Create(ctx, models.DetectionRecord{
		UserID:     input.User.ID,
		ImagePath:  key,
		Detections: detections,
	})
	if err != nil {
		logger.Error().Err(err).Str("object_key", key).Msg("detection record insert failed")
		return ScanResult{}, fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}

	imageURL, err := s.store.SignedURL(ctx, key, s.presignTTL)
	if err != nil {
		logger.Warn().Err(err).Str("object_key", key).Msg("signed url generation failed")
		imageURL = ""
	}

	logger.Info().
		Str("record_id", record.ID).
		Int("detections", len(record.Detections)).
		Msg("scan completed")

	return ScanResult{Record: record, ImageURL: imageURL}, nil
}

// buildObjectKey puts the owning user id in the first path segment;
// access policy on the bucket keys off that prefix.
func (s *ScanService) buildObjectKey(userID, filename string) string {
	return fmt.Sprintf("%s/%d_%s", userID, s.now().UnixMilli(), filename)
}
