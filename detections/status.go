package detections

import "fmt"

// Status is the stage a request has reached. Requests move strictly through
// Preprocess, Inference, Postprocess and Completed, or drop to Error.
type Status int

const (
	StatusInitialize Status = iota
	// StatusDataPreparation is reserved for a stage before Preprocess.
	StatusDataPreparation
	StatusPreprocess
	StatusInference
	StatusPostprocess
	StatusCompleted
	StatusError
)

var statusNames = map[Status]string{
	StatusInitialize:      "INITIALIZE",
	StatusDataPreparation: "DATA_PREPARATION",
	StatusPreprocess:      "PREPROCESS",
	StatusInference:       "INFERENCE",
	StatusPostprocess:     "POSTPROCESS",
	StatusCompleted:       "COMPLETED",
	StatusError:           "ERROR",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Status(%d)", int(s))
}
