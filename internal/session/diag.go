package session

import "time"

// DiagnosticKind names the part of the session that failed.
type DiagnosticKind string

const (
	DiagIdentity     DiagnosticKind = "identity"
	DiagSubscription DiagnosticKind = "subscription"
	DiagAppend       DiagnosticKind = "append"
)

// Diagnostic is a non-fatal failure shown to the user until dismissed.
type Diagnostic struct {
	Kind    DiagnosticKind `json:"kind"`
	Message string         `json:"message"`
	At      time.Time      `json:"at"`
}

func (d Diagnostic) String() string {
	return string(d.Kind) + ": " + d.Message
}

func (s *Session) diagnose(kind DiagnosticKind, err error) {
	d := Diagnostic{Kind: kind, Message: err.Error(), At: s.clock.Now()}
	s.logger.Warn("session diagnostic", "kind", kind, "err", err)

	s.mu.Lock()
	s.diags = append(s.diags, d)
	s.mu.Unlock()
	s.onChange(ChangeDiagnostic)
}

// Diagnostics returns the undismissed diagnostics, oldest first.
func (s *Session) Diagnostics() []Diagnostic {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Diagnostic(nil), s.diags...)
}

// Dismiss removes the i-th diagnostic. It reports false for an index out of
// range.
func (s *Session) Dismiss(i int) bool {
	s.mu.Lock()
	if i < 0 || i >= len(s.diags) {
		s.mu.Unlock()
		return false
	}
	s.diags = append(s.diags[:i], s.diags[i+1:]...)
	s.mu.Unlock()
	s.onChange(ChangeDiagnostic)
	return true
}
