package domain

import (
	"errors"

	"github.com/gnowmil/peacefair-energy/pkg/pzem"
)

// ClassifyError maps a meter client error to the kind surfaced on live
// data snapshots.
func ClassifyError(err error) ErrorKind {
	if err == nil {
		return ErrorKindNone
	}
	var ioErr *pzem.IOError
	var malformed *pzem.MalformedResponseError
	var block *pzem.InvalidBlockLengthError
	var negotiation *pzem.AddressNegotiationError
	switch {
	case errors.As(err, &block):
		return ErrorKindInvalidBlockLength
	case errors.As(err, &malformed):
		return ErrorKindMalformedResponse
	case errors.As(err, &negotiation):
		return ErrorKindParameterNegotiation
	case errors.As(err, &ioErr):
		return ErrorKindProtocolIO
	default:
		return ErrorKindUnknown
	}
}
