package models

import "time"

type Temperature string

const (
	TemperatureHot  Temperature = "hot"
	TemperatureWarm Temperature = "warm"
	TemperatureCool Temperature = "cool"
	TemperatureCold Temperature = "cold"
)

// BoundingBox coordinates are percentages of the image dimensions (0-100).
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type Detection struct {
	Label       string      `json:"label"`
	Confidence  float64     `json:"confidence"`
	BBox        BoundingBox `json:"bbox"`
	Temperature Temperature `json:"temperature"`
}

// DetectionRecord is immutable after insert; id and created_at are
// generated by the database.
type DetectionRecord struct {
	ID         string
	UserID     string
	ImagePath  string
	Detections []Detection
	CreatedAt  time.Time
}
