package smtp

import "time"

// State holds the per-connection SMTP variables. ReversePath and
// MailData are pointers because their presence is meaningful on its
// own: a set but empty reverse path is the null sender <>.
type State struct {
	Greeted     bool
	Date        time.Time
	ReversePath *string
	ForwardPath []string
	MailData    *string
}

// Clear drops the transaction in progress. The greeting and timestamp
// survive, per RFC 5321 RSET semantics.
func (s *State) Clear() {
	s.ReversePath = nil
	s.ForwardPath = nil
	s.MailData = nil
}

// AddForwardPath appends a recipient, preserving RCPT order and
// duplicates.
func (s *State) AddForwardPath(path string) {
	s.ForwardPath = append(s.ForwardPath, path)
}

// AddLine appends one body line, terminator included.
func (s *State) AddLine(line string) {
	if s.MailData == nil {
		s.MailData = new(string)
	}
	*s.MailData += line
}

func (s *State) MailAllowed() bool {
	return s.Greeted &&
		s.ReversePath == nil &&
		s.ForwardPath == nil &&
		s.MailData == nil
}

func (s *State) RcptAllowed() bool {
	return s.Greeted &&
		s.ReversePath != nil &&
		s.MailData == nil
}

func (s *State) DataAllowed() bool {
	return s.Greeted &&
		s.ReversePath != nil &&
		s.ForwardPath != nil &&
		s.MailData == nil
}
