package writer

import (
	"fmt"

	"github.com/ajitpratap0/mongoarrow/pkg/errors"
)

// WriteError is one rejected document
type WriteError struct {
	// Index is the row of the source table that failed
	Index int
	// BatchIndex is the position within the batch that carried it
	BatchIndex int
	Code       int
	Message    string
}

// ArrowWriteError reports a write that stopped partway. Batches before the
// failing one were committed and are not rolled back.
type ArrowWriteError struct {
	NInserted   int
	WriteErrors []WriteError
	// Partial is true when at least one document was inserted
	Partial bool
	// Batch is the 0-based number of the batch that failed
	Batch int
	Cause error
}

func (e *ArrowWriteError) Error() string {
	if len(e.WriteErrors) > 0 {
		first := e.WriteErrors[0]
		return fmt.Sprintf("write failed in batch %d after %d inserted: %d write error(s), first at row %d: %s",
			e.Batch, e.NInserted, len(e.WriteErrors), first.Index, first.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("write failed in batch %d after %d inserted: %v", e.Batch, e.NInserted, e.Cause)
	}
	return fmt.Sprintf("write failed in batch %d after %d inserted", e.Batch, e.NInserted)
}

// Unwrap returns the failing batch's cause, or a write-typed error when the
// batch only produced per-document errors.
func (e *ArrowWriteError) Unwrap() error {
	if e.Cause != nil {
		return e.Cause
	}
	return errors.New(errors.ErrorTypeWrite, "documents rejected")
}

// Details mirrors the server's bulk write result layout
func (e *ArrowWriteError) Details() map[string]any {
	writeErrors := make([]map[string]any, len(e.WriteErrors))
	for i, we := range e.WriteErrors {
		writeErrors[i] = map[string]any{
			"index":  we.Index,
			"code":   we.Code,
			"errmsg": we.Message,
		}
	}
	return map[string]any{
		"nInserted":   e.NInserted,
		"writeErrors": writeErrors,
	}
}

// IsDuplicateKey reports whether any rejected document hit a unique index
func (e *ArrowWriteError) IsDuplicateKey() bool {
	for _, we := range e.WriteErrors {
		if we.Code == duplicateKeyCode {
			return true
		}
	}
	return false
}

const duplicateKeyCode = 11000
