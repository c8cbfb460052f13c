// Package workflow drives a try-on run: both images are picked, the job
// is submitted to the inference service and its handle is polled until a
// result image appears.
package workflow

import (
	"fmt"
	"time"

	"github.com/raushankrgupta/virtual-tryon/models"
)

// Status is the phase of the try-on workflow.
type Status int

const (
	StatusIdle Status = iota
	StatusSubmitting
	StatusPolling
	StatusDone
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusSubmitting:
		return "submitting"
	case StatusPolling:
		return "polling"
	case StatusDone:
		return "done"
	case StatusFailed:
		return "failed"
	}
	return "unknown"
}

// MarshalText encodes the status by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a status name written by MarshalText.
func (s *Status) UnmarshalText(b []byte) error {
	for st := StatusIdle; st <= StatusFailed; st++ {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown workflow status %q", b)
}

// State is the screen state of one session. It is a value: transitions
// return a modified copy and never mutate the receiver.
type State struct {
	Subject   *models.Selection `json:"subject,omitempty"`
	Garment   *models.Selection `json:"garment,omitempty"`
	Status    Status            `json:"status"`
	Message   string            `json:"message"`
	Loading   bool              `json:"loading"`
	Result    string            `json:"result,omitempty"`
	Attempt   int               `json:"attempt"`
	RunID     string            `json:"run_id,omitempty"`
	Alert     string            `json:"alert,omitempty"`
	StartedAt time.Time         `json:"started_at,omitempty"`
}

// Selection returns the selection held for role.
func (s State) Selection(role models.Role) *models.Selection {
	if role == models.RoleGarment {
		return s.Garment
	}
	return s.Subject
}

// Ready reports whether both images are selected.
func (s State) Ready() bool {
	return s.Subject != nil && s.Garment != nil
}

// WithSelection stores sel for its role, replacing any prior pick.
func (s State) WithSelection(sel models.Selection) State {
	if sel.Role == models.RoleGarment {
		s.Garment = &sel
	} else {
		s.Subject = &sel
	}
	return s
}

// WithAlert records a blocking user-facing alert.
func (s State) WithAlert(msg string) State {
	s.Alert = msg
	return s
}

// DismissAlert clears the pending alert.
func (s State) DismissAlert() State {
	s.Alert = ""
	return s
}

// Start begins a run: loading is set, the previous result and alert are
// cleared and the attempt counter is reset.
func (s State) Start(runID string, now time.Time) State {
	s.RunID = runID
	s.StartedAt = now
	s.Status = StatusSubmitting
	s.Loading = true
	s.Result = ""
	s.Alert = ""
	s.Attempt = 0
	s.Message = ""
	return s
}

// WithMessage updates the status text.
func (s State) WithMessage(msg string) State {
	s.Message = msg
	return s
}

// Polling moves to the polling phase.
func (s State) Polling() State {
	s.Status = StatusPolling
	return s
}

// WithAttempt records the poll attempt and the status text it produced.
func (s State) WithAttempt(attempt int, msg string) State {
	s.Status = StatusPolling
	s.Attempt = attempt
	if msg != "" {
		s.Message = msg
	}
	return s
}

// Done finishes the run. result may be empty when the job completed
// without producing an image.
func (s State) Done(result string) State {
	s.Status = StatusDone
	s.Result = result
	s.Loading = false
	return s
}

// Failed finishes the run with err, alerting msg to the user.
func (s State) Failed(msg string) State {
	s.Status = StatusFailed
	s.Loading = false
	s.Alert = msg
	return s
}
