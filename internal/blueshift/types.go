package blueshift

// Challenge kinds. The kind decides which submission endpoint applies.
const (
	KindProgram = "program"
	KindClient  = "client"
)

// Challenge is a scoring-service task. Immutable; owned by the service.
type Challenge struct {
	Slug               string `json:"slug"`
	Name               string `json:"name"`
	Category           string `json:"category,omitempty"`
	Kind               string `json:"challenge_type"`
	SubmissionEndpoint string `json:"submission_endpoint,omitempty"`
	Description        string `json:"problem_description,omitempty"`
}

// LatestAttempt summarizes the most recent judged attempt at a challenge.
type LatestAttempt struct {
	Passed      bool   `json:"passed"`
	CUConsumed  int64  `json:"cu_consumed"`
	BinarySize  int64  `json:"binary_size"`
	AttemptTime string `json:"attempt_time"`
}

// ProgressEntry is one row of an agent's progress record.
type ProgressEntry struct {
	Slug          string         `json:"slug"`
	AttemptCount  int            `json:"attempt_count"`
	Completed     bool           `json:"completed"`
	LatestAttempt *LatestAttempt `json:"latest_attempt,omitempty"`
}

// InstructionResult is one per-instruction outcome from the grader.
type InstructionResult struct {
	Instruction  string `json:"instruction,omitempty"`
	Success      bool   `json:"success"`
	Message      string `json:"message,omitempty"`
	ComputeUnits int64  `json:"compute_units_consumed,omitempty"`
}

// SubmissionResult is a tagged outcome: Success true carries Results,
// Success false carries ErrorKind and Message. Exactly one side is ever
// populated. A false result is a judged failed attempt, not an error.
type SubmissionResult struct {
	Success   bool                `json:"success"`
	Results   []InstructionResult `json:"results,omitempty"`
	ErrorKind string              `json:"error,omitempty"`
	Message   string              `json:"message,omitempty"`
}

// submissionWire is the raw response body shape for submissions. The
// service reports judged failures with success=false and may include the
// same error/message fields it uses for rejections.
type submissionWire struct {
	Success bool                `json:"success"`
	Results []InstructionResult `json:"results"`
	Error   string              `json:"error"`
	Message string              `json:"message"`
}

// newSubmissionResult enforces the tagged-outcome invariant on a parsed
// 200 body: the two sides never mix.
func newSubmissionResult(w submissionWire) *SubmissionResult {
	if w.Success {
		results := w.Results
		if results == nil {
			results = []InstructionResult{}
		}
		return &SubmissionResult{Success: true, Results: results}
	}

	kind := w.Error
	if kind == "" {
		kind = "attempt_failed"
	}
	msg := w.Message
	if msg == "" {
		msg = "submission judged unsuccessful"
	}
	return &SubmissionResult{Success: false, ErrorKind: kind, Message: msg}
}
