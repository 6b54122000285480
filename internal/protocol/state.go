package protocol

import (
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// State travels as deterministic CBOR so identical metadata always
// produces identical bytes on the wire.
var (
	stateEnc cbor.EncMode
	stateDec cbor.DecMode
)

func init() {
	var err error
	stateEnc, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("protocol: CBOR encoder initialization failed: " + err.Error())
	}
	stateDec, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("protocol: CBOR decoder initialization failed: " + err.Error())
	}
}

func encodeState(state any) ([]byte, error) {
	b, err := stateEnc.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncodeState, err)
	}
	return b, nil
}

func decodeState(b []byte) (any, error) {
	var out any
	if err := stateDec.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeState, err)
	}
	return out, nil
}
