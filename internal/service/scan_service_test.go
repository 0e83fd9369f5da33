package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"thermascan/api/internal/models"
	"thermascan/api/internal/vision"
)

type fakeBlobStore struct {
	uploadedKey  string
	uploadedData []byte
	uploadedType string
	uploadErr    error
	signedURL    string
	signErr      error
	signedKey    string
}

func (f *fakeBlobStore) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	f.uploadedKey = key
	f.uploadedData = data
	f.uploadedType = contentType
	return f.uploadErr
}

func (f *fakeBlobStore) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	f.signedKey = key
	return f.signedURL, f.signErr
}

type fakeRecordStore struct {
	created   models.DetectionRecord
	createErr error
}

func (f *fakeRecordStore) Create(ctx context.Context, record models.DetectionRecord) (models.DetectionRecord, error) {
	if f.createErr != nil {
		return models.DetectionRecord{}, f.createErr
	}
	record.ID = "11111111-2222-3333-4444-555555555555"
	record.CreatedAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.created = record
	return record, nil
}

type fakeVision struct {
	content  string
	err      error
	gotURL   string
	called   bool
}

func (f *fakeVision) Detect(ctx context.Context, imageDataURL string) (string, error) {
	f.called = true
	f.gotURL = imageDataURL
	return f.content, f.err
}

func newScanService(store *fakeBlobStore, records *fakeRecordStore, ai *fakeVision) *ScanService {
	return NewScanService(store, records, ai, vision.ExtractDetections, time.Hour, zerolog.Nop())
}

func testUser() models.User {
	return models.User{ID: "a81bc81b-dead-4e5d-abff-90865d1e13b1", Email: "user@example.com"}
}

func TestScan_ObjectKeyPattern(t *testing.T) {
	store := &fakeBlobStore{signedURL: "https://example.com/signed"}
	records := &fakeRecordStore{}
	ai := &fakeVision{content: "[]"}

	svc := newScanService(store, records, ai)
	svc.now = func() time.Time { return time.UnixMilli(1756600000000) }

	_, err := svc.Scan(context.Background(), ScanInput{
		User:        testUser(),
		Filename:    "scan.png",
		ContentType: "image/png",
		Data:        []byte("fake png bytes"),
	})
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	want := testUser().ID + "/1756600000000_scan.png"
	if store.uploadedKey != want {
		t.Errorf("Object key = %q, expected %q", store.uploadedKey, want)
	}

	pattern := regexp.MustCompile(`^` + regexp.QuoteMeta(testUser().ID) + `/\d+_scan\.png$`)
	if !pattern.MatchString(store.uploadedKey) {
		t.Errorf("Object key %q does not match the owner-prefix pattern", store.uploadedKey)
	}
}

func TestScan_DataURLEncoding(t *testing.T) {
	store := &fakeBlobStore{}
	records := &fakeRecordStore{}
	ai := &fakeVision{content: "[]"}

	data := []byte{0x89, 'P', 'N', 'G', 0x00, 0x01}

	svc := newScanService(store, records, ai)
	if _, err := svc.Scan(context.Background(), ScanInput{
		User:        testUser(),
		Filename:    "scan.png",
		ContentType: "image/png",
		Data:        data,
	}); err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	want := "data:image/png;base64," + base64.StdEncoding.EncodeToString(data)
	if ai.gotURL != want {
		t.Errorf("Data URL = %q, expected %q", ai.gotURL, want)
	}
}

func TestScan_DetectionsRoundTrip(t *testing.T) {
	store := &fakeBlobStore{signedURL: "https://example.com/signed"}
	records := &fakeRecordStore{}
	ai := &fakeVision{content: `[{"label":"Car","confidence":0.9,"bbox":{"x":1,"y":2,"width":3,"height":4},"temperature":"warm"}]`}

	svc := newScanService(store, records, ai)
	result, err := svc.Scan(context.Background(), ScanInput{
		User:        testUser(),
		Filename:    "scan.jpg",
		ContentType: "image/jpeg",
		Data:        []byte("jpg"),
	})
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	if len(result.Record.Detections) != 1 {
		t.Fatalf("Expected 1 detection, got %d", len(result.Record.Detections))
	}
	det := result.Record.Detections[0]
	if det.Label != "Car" || det.Confidence != 0.9 || det.Temperature != models.TemperatureWarm {
		t.Errorf("Detection not preserved: %+v", det)
	}
	if det.BBox != (models.BoundingBox{X: 1, Y: 2, Width: 3, Height: 4}) {
		t.Errorf("BBox not preserved: %+v", det.BBox)
	}
	if len(records.created.Detections) != 1 || records.created.Detections[0] != det {
		t.Errorf("Persisted detections differ from returned ones: %+v", records.created.Detections)
	}
}

func TestScan_ParseFailurePersistsFallback(t *testing.T) {
	store := &fakeBlobStore{}
	records := &fakeRecordStore{}
	ai := &fakeVision{content: "no structured output here"}

	svc := newScanService(store, records, ai)
	result, err := svc.Scan(context.Background(), ScanInput{
		User:        testUser(),
		Filename:    "scan.png",
		ContentType: "image/png",
		Data:        []byte("png"),
	})
	if err != nil {
		t.Fatalf("Scan should succeed on parse failure, got %v", err)
	}

	fallback := vision.FallbackDetections()
	if len(records.created.Detections) != 1 || records.created.Detections[0] != fallback[0] {
		t.Errorf("Persisted detections = %+v, expected fallback %+v", records.created.Detections, fallback)
	}
	if result.Record.Detections[0] != fallback[0] {
		t.Errorf("Returned detections = %+v, expected fallback", result.Record.Detections)
	}
}

func TestScan_UploadFailureIsTerminal(t *testing.T) {
	store := &fakeBlobStore{uploadErr: fmt.Errorf("disk full")}
	records := &fakeRecordStore{}
	ai := &fakeVision{content: "[]"}

	svc := newScanService(store, records, ai)
	_, err := svc.Scan(context.Background(), ScanInput{
		User:        testUser(),
		Filename:    "scan.png",
		ContentType: "image/png",
		Data:        []byte("png"),
	})
	if !errors.Is(err, ErrUploadFailed) {
		t.Errorf("Expected ErrUploadFailed, got %v", err)
	}
	if ai.called {
		t.Error("AI must not be called after a failed upload")
	}
}

func TestScan_AIErrorsPassThrough(t *testing.T) {
	for _, sentinel := range []error{vision.ErrRateLimited, vision.ErrPaymentRequired, vision.ErrUpstream} {
		store := &fakeBlobStore{}
		records := &fakeRecordStore{}
		ai := &fakeVision{err: sentinel}

		svc := newScanService(store, records, ai)
		_, err := svc.Scan(context.Background(), ScanInput{
			User:        testUser(),
			Filename:    "scan.png",
			ContentType: "image/png",
			Data:        []byte("png"),
		})
		if !errors.Is(err, sentinel) {
			t.Errorf("Expected %v to pass through, got %v", sentinel, err)
		}
		if records.created.UserID != "" {
			t.Error("No record may be persisted after an AI failure")
		}
	}
}

func TestScan_SaveFailureIsTerminal(t *testing.T) {
	store := &fakeBlobStore{}
	records := &fakeRecordStore{createErr: fmt.Errorf("connection reset")}
	ai := &fakeVision{content: "[]"}

	svc := newScanService(store, records, ai)
	_, err := svc.Scan(context.Background(), ScanInput{
		User:        testUser(),
		Filename:    "scan.png",
		ContentType: "image/png",
		Data:        []byte("png"),
	})
	if !errors.Is(err, ErrSaveFailed) {
		t.Errorf("Expected ErrSaveFailed, got %v", err)
	}
}

func TestScan_SigningFailureIsNotFatal(t *testing.T) {
	store := &fakeBlobStore{signErr: fmt.Errorf("presign unavailable")}
	records := &fakeRecordStore{}
	ai := &fakeVision{content: "[]"}

	svc := newScanService(store, records, ai)
	result, err := svc.Scan(context.Background(), ScanInput{
		User:        testUser(),
		Filename:    "scan.png",
		ContentType: "image/png",
		Data:        []byte("png"),
	})
	if err != nil {
		t.Fatalf("Scan must succeed when signing fails, got %v", err)
	}
	if result.ImageURL != "" {
		t.Errorf("Expected empty image URL, got %q", result.ImageURL)
	}
	if result.Record.ID == "" {
		t.Error("Record must still be persisted")
	}
}

func TestScan_DistinctKeysForRepeatedUploads(t *testing.T) {
	store := &fakeBlobStore{}
	records := &fakeRecordStore{}
	ai := &fakeVision{content: "[]"}

	svc := newScanService(store, records, ai)
	millis := int64(1756600000000)
	svc.now = func() time.Time {
		millis++
		return time.UnixMilli(millis)
	}

	input := ScanInput{
		User:        testUser(),
		Filename:    "scan.png",
		ContentType: "image/png",
		Data:        []byte("png"),
	}

	if _, err := svc.Scan(context.Background(), input); err != nil {
		t.Fatalf("First scan failed: %v", err)
	}
	first := store.uploadedKey

	if _, err := svc.Scan(context.Background(), input); err != nil {
		t.Fatalf("Second scan failed: %v", err)
	}
	second := store.uploadedKey

	if first == second {
		t.Errorf("Identical uploads must get distinct keys, both were %q", first)
	}
	if !strings.HasPrefix(first, testUser().ID+"/") || !strings.HasPrefix(second, testUser().ID+"/") {
		t.Errorf("Keys must keep the owner prefix: %q, %q", first, second)
	}
}
