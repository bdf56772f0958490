package detections

const (
	// DefaultConfidence is the minimum class score kept by Detect.
	DefaultConfidence = 0.3
	// DefaultIoU is the overlap at which NMS suppresses a box.
	DefaultIoU = 0.5
	// UnknownLabel names a class index beyond the label set.
	UnknownLabel = "unknown"

	// decodeChunkSize is the number of anchors each decode job covers.
	decodeChunkSize = 512
)
