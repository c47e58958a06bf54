package lifecycle

import "time"

// Phase is the client-visible state of a submission.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseValidating Phase = "validating"
	PhaseUploading  Phase = "uploading"
	PhaseProcessing Phase = "processing"
	PhaseCompleted  Phase = "completed"
	PhaseFailed     Phase = "failed"
	PhaseCancelled  Phase = "cancelled"
)

// Finished reports whether the phase ends a submission.
func (p Phase) Finished() bool {
	return p == PhaseCompleted || p == PhaseFailed || p == PhaseCancelled
}

// StageLabels loop while a job is processing. They carry no state.
var StageLabels = []string{
	"Uploading video…",
	"Transcribing audio…",
	"Translating & adapting content…",
	"Generating localized video…",
}

// State is a snapshot of what a client should render for a job.
type State struct {
	Phase      Phase         `json:"phase"`
	JobID      string        `json:"job_id,omitempty"`
	StageLabel string        `json:"stage_label,omitempty"`
	Elapsed    time.Duration `json:"-"`
	ResultRef  string        `json:"result_ref,omitempty"`
	ErrorKind  Kind          `json:"error_kind,omitempty"`
	Message    string        `json:"message,omitempty"`
}

// ElapsedSeconds is Elapsed rounded down for display.
func (s State) ElapsedSeconds() int64 {
	return int64(s.Elapsed / time.Second)
}
