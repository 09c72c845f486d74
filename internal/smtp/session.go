package smtp

import (
	"fmt"
	"io"
	"net"
	"net/textproto"
	"time"
)

// Stage identifies where in the SMTP dialogue a send failed. Failure
// classification downstream depends on the server's reply code, not the
// stage, but the stage makes rejection logs actionable.
type Stage string

const (
	StageMail Stage = "mail"
	StageRcpt Stage = "rcpt"
	StageData Stage = "data"
)

// SendError wraps a failure from one envelope exchange. Err preserves the
// underlying *textproto.Error when the server replied with a status code.
type SendError struct {
	Stage Stage
	Err   error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("smtp %s: %v", e.Stage, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// Session is a single live SMTP connection checked out of a Pool. It is
// not safe for concurrent use; the pool hands each session to one caller
// at a time.
type Session struct {
	client      smtpClient
	conn        net.Conn
	addr        string
	sendTimeout time.Duration
	broken      bool
}

// smtpClient is the subset of *net/smtp.Client the session drives.
// Narrowed to an interface so transmission paths can be tested without a
// network listener.
type smtpClient interface {
	Mail(from string) error
	Rcpt(to string) error
	Data() (io.WriteCloser, error)
	Reset() error
	Noop() error
	Quit() error
	Close() error
}

// Addr reports which host the session is connected to.
func (s *Session) Addr() string { return s.addr }

// Send transmits one message envelope. On a server rejection the session
// is reset and stays reusable; on a transport error it is marked broken so
// the pool discards it on release.
func (s *Session) Send(from, to string, data []byte) error {
	if s.conn != nil {
		_ = s.conn.SetDeadline(time.Now().Add(s.sendTimeout))
		defer s.conn.SetDeadline(time.Time{})
	}

	if err := s.client.Mail(from); err != nil {
		return s.fail(StageMail, err)
	}
	if err := s.client.Rcpt(to); err != nil {
		return s.fail(StageRcpt, err)
	}

	w, err := s.client.Data()
	if err != nil {
		return s.fail(StageData, err)
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		s.broken = true
		return &SendError{Stage: StageData, Err: err}
	}
	// Close flushes the terminating dot and surfaces the server's final
	// verdict on the message body.
	if err := w.Close(); err != nil {
		return s.fail(StageData, err)
	}
	return nil
}

func (s *Session) fail(stage Stage, err error) error {
	if _, ok := err.(*textproto.Error); ok {
		// Protocol-level rejection: the connection survives if RSET works.
		if resetErr := s.client.Reset(); resetErr != nil {
			s.broken = true
		}
	} else {
		s.broken = true
	}
	return &SendError{Stage: stage, Err: err}
}

func (s *Session) probe() error {
	if s.broken {
		return fmt.Errorf("smtp: session broken")
	}
	if s.conn != nil {
		_ = s.conn.SetDeadline(time.Now().Add(5 * time.Second))
		defer s.conn.SetDeadline(time.Time{})
	}
	if err := s.client.Noop(); err != nil {
		s.broken = true
		return err
	}
	return nil
}

func (s *Session) close() {
	if s.conn != nil {
		_ = s.conn.SetDeadline(time.Now().Add(5 * time.Second))
	}
	if err := s.client.Quit(); err != nil {
		_ = s.client.Close()
	}
}
