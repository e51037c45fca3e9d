package network

import (
	"errors"
	"fmt"
)

// ErrSocketClosed is returned by lifecycle operations on a closed socket
var ErrSocketClosed = errors.New("socket is closed")

// Kind classifies a lifecycle error
type Kind int

const (
	KindInvalidArgument Kind = iota
	KindProtocolNotSupported
	KindNotFound
	KindBusy
	KindAddrInUse
)

// Stable codes and errno equivalents per kind. Errno values follow the
// Linux numbering so they are stable across build targets.
var kindInfo = map[Kind]struct {
	code    string
	errno   int
	message string
}{
	KindInvalidArgument:      {"EINVAL", 22, "Invalid argument"},
	KindProtocolNotSupported: {"EPROTONOSUPPORT", 93, "Protocol not supported"},
	KindNotFound:             {"ENOENT", 2, "No such endpoint"},
	KindBusy:                 {"EBUSY", 16, "Socket is blocked by a bind or unbind operation"},
	KindAddrInUse:            {"EADDRINUSE", 98, "Address already in use"},
}

// Error is a structured lifecycle error carrying the stable code, an
// errno equivalent and, where applicable, the offending address.
type Error struct {
	Kind    Kind
	Code    string
	Errno   int
	Message string
	Address string // offending endpoint URI, may be empty
	cause   error
}

func (e *Error) Error() string {
	if e.Address != "" {
		return fmt.Sprintf("%s (%s): %s", e.Message, e.Code, e.Address)
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Code)
}

func (e *Error) Unwrap() error { return e.cause }

// Is lets errors.Is match on kind sentinels produced by the same
// constructor, regardless of address.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func newError(kind Kind, address string, cause error) *Error {
	info := kindInfo[kind]
	return &Error{
		Kind:    kind,
		Code:    info.code,
		Errno:   info.errno,
		Message: info.message,
		Address: address,
		cause:   cause,
	}
}

// ErrInvalidArgument builds an InvalidArgument error for an address
func ErrInvalidArgument(address string) *Error {
	return newError(KindInvalidArgument, address, nil)
}

// ErrProtocolNotSupported builds a ProtocolNotSupported error
func ErrProtocolNotSupported(address string) *Error {
	return newError(KindProtocolNotSupported, address, nil)
}

// ErrNotFound builds a NotFound error for an unbound endpoint
func ErrNotFound(address string) *Error {
	return newError(KindNotFound, address, nil)
}

// ErrBusy reports that a bind or unbind is already outstanding
func ErrBusy() *Error {
	return newError(KindBusy, "", nil)
}

// ErrAddrInUse builds an AddrInUse error wrapping the transport cause
func ErrAddrInUse(address string, cause error) *Error {
	return newError(KindAddrInUse, address, cause)
}
