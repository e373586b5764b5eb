package pzem

import "fmt"

// IOError reports a transport-level failure: unreachable host, timeout,
// connection reset. The next scheduled poll retries; nothing retries inline.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("pzem: %s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// MalformedResponseError reports a structurally invalid response frame:
// bad CRC, address mismatch, exception-flagged reply, or a register count
// that does not match the request.
type MalformedResponseError struct {
	Reason string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("pzem: malformed response: %s", e.Reason)
}

// InvalidBlockLengthError is a precondition violation on Decode. Callers
// must hand Decode exactly the measurement block size.
type InvalidBlockLengthError struct {
	Length int
}

func (e *InvalidBlockLengthError) Error() string {
	return fmt.Sprintf("pzem: invalid register block length %d, want %d", e.Length, MeasurementRegisterCount)
}

// AddressNegotiationError reports that neither the configured unit address
// nor the general address acked the reset command. The client memoizes
// broadcast addressing and keeps going; this error surfaces once.
type AddressNegotiationError struct {
	Unit byte
}

func (e *AddressNegotiationError) Error() string {
	return fmt.Sprintf("pzem: reset command not acknowledged on unit address 0x%02X nor general address 0x%02X, falling back to broadcast", e.Unit, GeneralAddress)
}
