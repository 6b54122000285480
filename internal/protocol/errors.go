package protocol

import "errors"

var (
	ErrMissingPath  = errors.New("protocol: navigation event missing path")
	ErrUnknownKind  = errors.New("protocol: unknown message kind")
	ErrEncodeState  = errors.New("protocol: state is not encodable")
	ErrDecodeState  = errors.New("protocol: state is not decodable")
	ErrUnexpectedID = errors.New("protocol: channel id required")
)
