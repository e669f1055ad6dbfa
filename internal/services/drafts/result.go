package drafts

import (
	"fmt"

	"scour/internal/domain"
)

// Result is the closed set of outcomes of one generation call. The concrete
// types are Valid, Malformed, SchemaViolation and LowConfidence.
type Result interface {
	isResult()
	// Label is a short machine-readable tag for logs and rejection reasons.
	Label() string
}

// Valid carries a draft whose required fields are all present and well typed.
type Valid struct {
	Draft domain.IncidentDraft
}

// Malformed means the payload was not a JSON object.
type Malformed struct {
	Err error
}

// SchemaViolation means the payload was JSON but a required field was missing
// or had the wrong type.
type SchemaViolation struct {
	Field  string
	Detail string
}

// LowConfidence means the model declined with ok=false. Reason "duplicate"
// signals that the model recognised one of the recent incidents.
type LowConfidence struct {
	Reason     string
	Confidence float64
}

func (Valid) isResult()           {}
func (Malformed) isResult()       {}
func (SchemaViolation) isResult() {}
func (LowConfidence) isResult()   {}

func (Valid) Label() string           { return "valid" }
func (Malformed) Label() string       { return "malformed_json" }
func (SchemaViolation) Label() string { return "schema_violation" }
func (r LowConfidence) Label() string {
	if r.Reason == "" {
		return "low_confidence"
	}
	return r.Reason
}

func (m Malformed) String() string { return fmt.Sprintf("malformed: %v", m.Err) }

func (s SchemaViolation) String() string {
	if s.Detail == "" {
		return "schema violation: " + s.Field
	}
	return fmt.Sprintf("schema violation: %s: %s", s.Field, s.Detail)
}

// IsDuplicate reports whether the model flagged the evidence as already covered.
func (r LowConfidence) IsDuplicate() bool { return r.Reason == ReasonDuplicate }

const ReasonDuplicate = "duplicate"
