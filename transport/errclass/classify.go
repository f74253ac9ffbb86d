// SPDX-License-Identifier: GPL-3.0-or-later

// Package errclass classifies connection-level errors into short labels
// for logging, and distinguishes the subset that the socket pipeline
// treats as recoverable transport errors (spec.md §7) from everything
// else. Build-tagged per OS the way the ambient stack's own error
// classifier is split, since errno values differ between unix and
// windows.
package errclass

import (
	"errors"
	"net"
	"syscall"
)

// New classifies err into a short label, or "" if err is nil or
// unrecognized. Suitable as a [github.com/igankevich/factory/logctx.ErrClassifierFunc].
func New(err error) string {
	if err == nil {
		return ""
	}
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		if errors.Is(err, net.ErrClosed) {
			return "ECLOSED"
		}
		return ""
	}
	switch errno {
	case errEADDRNOTAVAIL:
		return "EADDRNOTAVAIL"
	case errEADDRINUSE:
		return "EADDRINUSE"
	case errECONNABORTED:
		return "ECONNABORTED"
	case errECONNREFUSED:
		return "ECONNREFUSED"
	case errECONNRESET:
		return "ECONNRESET"
	case errEHOSTUNREACH:
		return "EHOSTUNREACH"
	case errENETDOWN:
		return "ENETDOWN"
	case errENETUNREACH:
		return "ENETUNREACH"
	case errENOTCONN:
		return "ENOTCONN"
	case errETIMEDOUT:
		return "ETIMEDOUT"
	default:
		return ""
	}
}

// IsTransport reports whether err is the kind of connection failure spec
// §7 calls a transport error: one that triggers RecoverKernels on the
// affected connection rather than propagating to the caller.
func IsTransport(err error) bool {
	switch New(err) {
	case "ECONNABORTED", "ECONNREFUSED", "ECONNRESET", "EHOSTUNREACH",
		"ENETDOWN", "ENETUNREACH", "ENOTCONN", "ETIMEDOUT", "ECLOSED":
		return true
	default:
		return errors.Is(err, net.ErrClosed)
	}
}
