package delivery

import (
	"errors"
	"net"
	"net/textproto"
)

type failureClass int

const (
	classTransient failureClass = iota
	classPermanent
)

// classify maps an SMTP send error to its retry class. 5xx replies are
// protocol-defined as non-recoverable without sender-side changes; 4xx
// replies and everything ambiguous (timeouts, torn connections, unknown
// errors) get the transient treatment so greylisting and congestion can
// clear.
func classify(err error) failureClass {
	var protoErr *textproto.Error
	if errors.As(err, &protoErr) {
		if protoErr.Code/100 == 5 {
			return classPermanent
		}
		return classTransient
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return classTransient
	}

	return classTransient
}
