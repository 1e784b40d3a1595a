package model

// DocumentStatus is a stage of the ingestion state machine.
type DocumentStatus string

const (
	StatusUploaded             DocumentStatus = "uploaded"
	StatusProcessing           DocumentStatus = "processing"
	StatusTextExtracted        DocumentStatus = "text_extracted"
	StatusImagesExtracted      DocumentStatus = "images_extracted"
	StatusStructuralProcessing DocumentStatus = "structural_processing"
	StatusStructuralProcessed  DocumentStatus = "structural_processed"
	StatusChunked              DocumentStatus = "chunked"
	StatusEmbedded             DocumentStatus = "embedded"
	StatusProcessed            DocumentStatus = "processed"

	StatusError                     DocumentStatus = "error"
	StatusErrorImageExtraction      DocumentStatus = "error_image_extraction"
	StatusErrorStructuralProcessing DocumentStatus = "error_structural_processing"
	StatusFailed                    DocumentStatus = "failed"
)

// happyPath holds the rank of every non-error status; a higher rank is further
// along the pipeline.
var happyPath = map[DocumentStatus]int{
	StatusUploaded:             0,
	StatusProcessing:           1,
	StatusTextExtracted:        2,
	StatusImagesExtracted:      3,
	StatusStructuralProcessing: 4,
	StatusStructuralProcessed:  5,
	StatusChunked:              6,
	StatusEmbedded:             7,
	StatusProcessed:            8,
}

var errorStatuses = map[DocumentStatus]bool{
	StatusError:                     true,
	StatusErrorImageExtraction:      true,
	StatusErrorStructuralProcessing: true,
	StatusFailed:                    true,
}

// TransitionDecision is the outcome of checking a status change.
type TransitionDecision int

const (
	// TransitionApply means the status must be written.
	TransitionApply TransitionDecision = iota
	// TransitionNoop means the target is the current status or behind it; the
	// document is returned unchanged so retried pipeline steps are harmless.
	TransitionNoop
	// TransitionReject means the change is not allowed at all.
	TransitionReject
)

func (s DocumentStatus) Valid() bool {
	_, ok := happyPath[s]
	return ok || errorStatuses[s]
}

// IsError reports whether s is one of the terminal failure states.
func (s DocumentStatus) IsError() bool {
	return errorStatuses[s]
}

// IsQueryable reports whether chunks of a document in this status may be
// searched: only a fully embedded chunk set is consistent.
func (s DocumentStatus) IsQueryable() bool {
	return s == StatusEmbedded || s == StatusProcessed
}

// DecideTransition applies the transition table from s to target.
func (s DocumentStatus) DecideTransition(target DocumentStatus) TransitionDecision {
	if !target.Valid() {
		return TransitionReject
	}
	if target.IsError() {
		if s == target {
			return TransitionNoop
		}
		return TransitionApply
	}
	if s.IsError() {
		return TransitionReject
	}
	from, ok := happyPath[s]
	if !ok {
		// unknown legacy status: allow moving onto the state machine
		return TransitionApply
	}
	if happyPath[target] <= from {
		return TransitionNoop
	}
	return TransitionApply
}

// DocumentStatuses lists every status in pipeline order followed by the error
// states.
func DocumentStatuses() []DocumentStatus {
	return []DocumentStatus{
		StatusUploaded,
		StatusProcessing,
		StatusTextExtracted,
		StatusImagesExtracted,
		StatusStructuralProcessing,
		StatusStructuralProcessed,
		StatusChunked,
		StatusEmbedded,
		StatusProcessed,
		StatusError,
		StatusErrorImageExtraction,
		StatusErrorStructuralProcessing,
		StatusFailed,
	}
}
