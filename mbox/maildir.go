package mbox

import (
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/sloonz/go-maildir"

	"github.com/fakesmtpd/fakesmtpd/smtp"
)

// MaildirPrinter delivers each accepted message as a separate file in
// a maildir. The receiver headers match the ones of the mbox record;
// maildir semantics make concurrent deliveries safe without locking.
type MaildirPrinter struct {
	md *maildir.Maildir
}

// NewMaildirPrinter opens the maildir at path, creating it if needed.
func NewMaildirPrinter(path string) (*MaildirPrinter, error) {
	md, err := maildir.New(path, true)
	if err != nil {
		return nil, err
	}
	return &MaildirPrinter{md: md}, nil
}

func (p *MaildirPrinter) Print(state *smtp.State) {
	var b strings.Builder
	for _, receiver := range state.ForwardPath {
		fmt.Fprintf(&b, "X-FakeSMTPd-Receiver: %s\r\n", receiver)
	}
	if state.MailData != nil {
		b.WriteString(*state.MailData)
	}
	if _, err := p.md.CreateMail(strings.NewReader(b.String())); err != nil {
		log.Warnf("delivering to maildir: %v", err)
	}
}
