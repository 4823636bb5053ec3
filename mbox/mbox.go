// Package mbox delivers accepted messages to their final sink: an
// RFC 4155 default format mailbox on a file or stdout, or a maildir.
package mbox

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/fakesmtpd/fakesmtpd/smtp"
)

// Write renders one mbox record for a completed transaction. The From
// separator line carries the reverse path and the ctime rendering of
// the delivery timestamp; one X-FakeSMTPd-Receiver header per
// recipient follows, in RCPT order.
func Write(w io.Writer, state *smtp.State) error {
	reverse := ""
	if state.ReversePath != nil {
		reverse = *state.ReversePath
	}
	if _, err := fmt.Fprintf(w, "From %s %s\n", reverse, state.Date.UTC().Format(time.ANSIC)); err != nil {
		return err
	}
	for _, receiver := range state.ForwardPath {
		if _, err := fmt.Fprintf(w, "X-FakeSMTPd-Receiver: %s\n", receiver); err != nil {
			return err
		}
	}
	data := ""
	if state.MailData != nil {
		data = *state.MailData
	}
	if _, err := io.WriteString(w, strings.ReplaceAll(data, "\r\n", "\n")); err != nil {
		return err
	}
	// A single blank line separates records.
	_, err := io.WriteString(w, "\n")
	return err
}

// Printer appends one record per accepted transaction to a file or to
// stdout. Sessions run concurrently but share the sink, so appends are
// serialized under a mutex to keep records from interleaving.
type Printer struct {
	mu       sync.Mutex
	filename string
}

// NewPrinter creates a printer writing to the named file, or to stdout
// for "-".
func NewPrinter(filename string) *Printer {
	return &Printer{filename: filename}
}

func (p *Printer) Print(state *smtp.State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.print(state); err != nil {
		log.Warnf("writing mbox record: %v", err)
	}
}

// The file is opened in append mode per record and closed right after,
// so no file handle is held between records. A record is written in
// several write calls, so a reader of the file can see a partial record
// while one is being appended.
func (p *Printer) print(state *smtp.State) error {
	if p.filename == "-" {
		return Write(os.Stdout, state)
	}
	f, err := os.OpenFile(p.filename, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	return Write(f, state)
}
