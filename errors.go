package isotp

import (
	"errors"
	"fmt"
)

// Sentinel errors for conditions detected before any wire interaction.
var (
	ErrIllegalArgument = errors.New("error in function arguments")
	ErrNilContext      = errors.New("nil isotp context")
	ErrNoTransport     = errors.New("context has no transport configured")
)

// Code is the protocol-visible error taxonomy: a small integer code
// backed by a description map, implementing error directly so it can
// be compared with errors.Is without a wrapper.
type Code int8

const (
	CodeOK            Code = 0
	CodeInvalidArg    Code = 1  // EINVAL - null pointer, unusable input
	CodeOutOfRange    Code = 2  // ERANGE - length/enum outside permitted set
	CodeOverflow      Code = 3  // EOVERFLOW - payload would exceed caller buffer
	CodeNoBufferSpace Code = 4  // ENOBUFS - receive buffer smaller than SF payload
	CodeBadMessage    Code = 5  // EBADMSG - PCI mismatch / malformed header
	CodeNoMessage     Code = 6  // ENOMSG - frame does not contain expected PCI
	CodeUnsupported   Code = 7  // ENOTSUP - reserved code or combination
	CodeMsgSize       Code = 8  // EMSGSIZE - frame too short for declared content
	CodeTimedOut      Code = 9  // ETIMEDOUT - N_As/N_Ar/N_Bs/N_Cr elapsed
	CodeConnAborted   Code = 10 // ECONNABORTED - FC.OVFLW/FC.WAIT cap/seq mismatch
	CodeFault         Code = 11 // EFAULT - invariant violation (defensive)
)

var codeDescriptions = map[Code]string{
	CodeOK:            "success",
	CodeInvalidArg:    "invalid argument",
	CodeOutOfRange:    "value out of range",
	CodeOverflow:      "buffer overflow",
	CodeNoBufferSpace: "no buffer space available",
	CodeBadMessage:    "bad message",
	CodeNoMessage:     "no message of expected type",
	CodeUnsupported:   "operation not supported",
	CodeMsgSize:       "message size error",
	CodeTimedOut:      "operation timed out",
	CodeConnAborted:   "connection aborted",
	CodeFault:         "internal fault",
}

func (c Code) String() string {
	if s, ok := codeDescriptions[c]; ok {
		return s
	}
	return "unknown error"
}

func (c Code) Error() string {
	return c.String()
}

// ProtocolError wraps a Code with the operation it occurred in. It stays
// comparable via errors.Is against the bare Code, so callers can write
// `errors.Is(err, isotp.CodeTimedOut)` without unwrapping by hand.
type ProtocolError struct {
	Code Code
	Op   string
	Err  error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("isotp: %s: %s: %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("isotp: %s: %s", e.Op, e.Code)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

func (e *ProtocolError) Is(target error) bool {
	if c, ok := target.(Code); ok {
		return e.Code == c
	}
	if pe, ok := target.(*ProtocolError); ok {
		return pe.Code == e.Code
	}
	return false
}

func newErr(op string, code Code) *ProtocolError {
	return &ProtocolError{Code: code, Op: op}
}

func wrapErr(op string, code Code, err error) *ProtocolError {
	return &ProtocolError{Code: code, Op: op, Err: err}
}
