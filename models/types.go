package models

import "time"

// BBox is a corner-form box [x1, y1, x2, y2] in image pixel units.
type BBox [4]float32

func (b BBox) Width() float32  { return b[2] - b[0] }
func (b BBox) Height() float32 { return b[3] - b[1] }

// Degenerate reports whether the box has no positive area.
func (b BBox) Degenerate() bool {
	return b[0] >= b[2] || b[1] >= b[3]
}

// Detection is immutable once produced by post-processing. Two detections
// are equal (==) when every field, including all four box values, matches.
type Detection struct {
	Label      string  `json:"label"`
	LabelIndex int     `json:"labelIndex"`
	BBox       BBox    `json:"bbox"`
	Confidence float32 `json:"confidence"`
}

type ProcessingTimings struct {
	RequestID   string
	ImageDecode time.Duration
	Solve       time.Duration
	Annotate    time.Duration
	Cache       time.Duration
	Total       time.Duration
}
