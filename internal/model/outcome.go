package model

// ErrorKind classifies why a row failed.
type ErrorKind string

const (
	ErrorKindParse      ErrorKind = "parse"      // malformed line or missing required field
	ErrorKindValidation ErrorKind = "validation" // parsed value violates a domain constraint
	ErrorKindUpsert     ErrorKind = "upsert"     // database call failed
)

// UpsertReason narrows an upsert failure for diagnostics.
type UpsertReason string

const (
	UpsertReasonTimeout    UpsertReason = "timeout"
	UpsertReasonConnection UpsertReason = "connection"
	UpsertReasonConstraint UpsertReason = "constraint"
	UpsertReasonNotFound   UpsertReason = "not_found"
	UpsertReasonOther      UpsertReason = "other"
)

// Failure describes a row that did not make it into the database.
type Failure struct {
	ID      string       `json:"id" yaml:"id"`
	Line    int          `json:"line" yaml:"line"`
	Kind    ErrorKind    `json:"kind" yaml:"kind"`
	Reason  UpsertReason `json:"reason,omitempty" yaml:"reason,omitempty"`
	Message string       `json:"message" yaml:"message"`
}

// Outcome is the result for one input row: exactly one of Row or Failure is set.
type Outcome struct {
	Row     *Row
	Failure *Failure
}

// Succeeded reports whether the outcome is a success.
func (o Outcome) Succeeded() bool {
	return o.Failure == nil
}

// Success builds a successful outcome.
func Success(row Row) Outcome {
	return Outcome{Row: &row}
}

// Fail builds a failed outcome.
func Fail(f Failure) Outcome {
	return Outcome{Failure: &f}
}
