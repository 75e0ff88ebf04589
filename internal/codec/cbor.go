package codec

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Deterministic CBOR encoding (RFC 8949 core deterministic encoding profile).
// Equal values always encode to identical bytes, which content addressing,
// cold epoch blocks, and genome export all rely on.

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	opts := cbor.CoreDetEncOptions()
	em, err := opts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("codec: building deterministic encode mode: %v", err))
	}
	encMode = em

	dm, err := cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyEnforcedAPF,
		IndefLength: cbor.IndefLengthForbidden,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("codec: building decode mode: %v", err))
	}
	decMode = dm
}

// Marshal encodes v with deterministic encoding
func Marshal(v interface{}) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v
func Unmarshal(data []byte, v interface{}) error {
	return decMode.Unmarshal(data, v)
}
