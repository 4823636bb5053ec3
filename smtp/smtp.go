package smtp

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Handler receives the finalized state of every accepted mail
// transaction. Within one session it is invoked serially; handlers
// shared between sessions must do their own locking.
type Handler func(state *State)

type Config struct {
	// Hostname is used in the greeting banner and in EHLO, HELO and
	// QUIT replies. Defaults to the machine's FQDN.
	Hostname string

	Bind string
	Port int
}

type Server struct {
	config  Config
	handler Handler

	mu     sync.Mutex
	ln     net.Listener
	closed bool
}

func NewServer(config Config, handler Handler) *Server {
	if config.Hostname == "" {
		config.Hostname = Hostname()
	}
	if config.Port == 0 {
		config.Port = DefaultPort
	}
	return &Server{config: config, handler: handler}
}

func (srv *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", srv.config.Bind, srv.config.Port))
	if err != nil {
		return err
	}
	return srv.Serve(ln)
}

func (srv *Server) Serve(ln net.Listener) error {
	srv.mu.Lock()
	if srv.closed {
		srv.mu.Unlock()
		ln.Close()
		return nil
	}
	srv.ln = ln
	srv.mu.Unlock()

	defer ln.Close()
	log.WithField("addr", ln.Addr()).Info("listening")

	for {
		c, err := ln.Accept()
		if err != nil {
			// Just a temporary error
			if ne, ok := err.(net.Error); ok && ne.Temporary() {
				log.Warnf("accept error: %v", err)
				continue
			}
			if srv.stopped() {
				return nil
			}
			return err
		}

		conn := srv.newConn(c)
		go conn.serve()
	}
}

// Stop makes the accept loop return. Sessions already in flight keep
// running until their sockets close.
func (srv *Server) Stop() {
	srv.mu.Lock()
	srv.closed = true
	ln := srv.ln
	srv.mu.Unlock()
	if ln != nil {
		ln.Close()
	}
}

func (srv *Server) stopped() bool {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	return srv.closed
}

// Wrapper around net.Conn holding the session state.
func (srv *Server) newConn(c net.Conn) *conn {
	return &conn{
		c:          c,
		br:         bufio.NewReader(c),
		dispatcher: Dispatcher{Hostname: srv.config.Hostname},
		handler:    srv.handler,
		state:      &State{},
	}
}

type conn struct {
	c          net.Conn
	br         *bufio.Reader
	dispatcher Dispatcher
	handler    Handler
	state      *State
}

func (conn *conn) serve() {
	defer conn.c.Close()

	logger := log.WithField("remote", conn.c.RemoteAddr())
	defer func() {
		if r := recover(); r != nil {
			logger.Warnf("session error: %v", r)
		}
	}()

	logger.Info("connection opened")
	conn.write(Reply{ServiceReady, conn.dispatcher.Hostname + " FakeSMTPd Service ready"})

	for {
		line, err := readLine(conn.br, CommandLineLimit)
		if err == ErrLineTooLong {
			conn.write(Reply{SyntaxError, "Line too long."})
			continue
		}
		if line != "" && !conn.handleLine(logger, line) {
			break
		}
		if err != nil {
			break
		}
	}

	logger.Info("connection closed")
}

// handleLine dispatches one command line and runs data collection when
// the dispatcher starts it. It returns false once the session said
// goodbye.
func (conn *conn) handleLine(logger *log.Entry, line string) bool {
	for i := 0; i < len(line); i++ {
		if line[i] >= 0x80 {
			conn.write(Reply{SyntaxErrorParam, "Unexpected 8 bit character"})
			return true
		}
	}

	decoded := strings.TrimRight(line, " \t\r\n")
	logger.WithField("command", decoded).Debug("received command")

	command, arguments := parseCommandLine(decoded)
	reply := conn.dispatcher.Handle(conn.state, command, arguments)
	logger.WithField("reply", reply.String()).Debug("sending reply")
	conn.write(reply)

	switch reply.Status {
	case ServiceClosing:
		return false
	case StartMailInput:
		conn.readMailText(logger)
	}
	return true
}

// parseCommandLine splits a decoded line into the four character verb,
// upper-cased, and the argument string after the separator at index 4.
func parseCommandLine(line string) (command, arguments string) {
	command = line
	if len(command) > 4 {
		command = command[:4]
	}
	if len(line) > 5 {
		arguments = line[5:]
	}
	return strings.ToUpper(command), arguments
}

// readMailText collects body lines until the lone dot terminator. No
// dot-unstuffing takes place: lines starting with a dot are stored
// verbatim.
func (conn *conn) readMailText(logger *log.Entry) {
	for {
		line, err := readLine(conn.br, TextLineLimit)
		if err == ErrLineTooLong {
			conn.write(Reply{SyntaxError, "Line too long."})
			return
		}
		if line == ".\r\n" {
			break
		}
		if line != "" {
			conn.state.AddLine(decode7Bit(line))
		}
		if err != nil {
			// EOF before the terminator: the mail is dropped silently.
			return
		}
	}

	conn.state.Date = time.Now().UTC()
	conn.write(Reply{Ok, "OK"})
	logger.Debug("mail accepted")
	if conn.handler != nil {
		conn.handler(conn.state)
	}
	conn.state = &State{Greeted: conn.state.Greeted}
}

// decode7Bit masks the high bit of any non-ASCII byte, mirroring a
// strict ASCII decode with a 7 bit fallback.
func decode7Bit(s string) string {
	ascii := true
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			ascii = false
			break
		}
	}
	if ascii {
		return s
	}
	b := []byte(s)
	for i := range b {
		b[i] &= 0x7F
	}
	return string(b)
}

func (conn *conn) write(r Reply) {
	fmt.Fprintf(conn.c, "%d %s\r\n", r.Status, r.Message)
}
