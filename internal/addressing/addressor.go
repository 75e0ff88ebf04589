package addressing

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/zeebo/blake3"

	"github.com/stratadb/strata/internal/codec"
	"github.com/stratadb/strata/internal/errors"
)

// contentKey is the keyed-hash domain separator for content identifiers.
// Exactly 32 bytes, padded with '#'. Changing it changes every ContentID
// ever produced, so it is fixed for the lifetime of the data format.
const contentKey = "strata.content.id.v1############"

// Addressor computes deterministic content identifiers over canonicalized
// values. Identical content always yields the same identifier, across keys,
// writes, and process restarts.
type Addressor struct{}

// NewAddressor creates a content addressor
func NewAddressor() *Addressor {
	return &Addressor{}
}

// Identify canonicalizes a JSON value and returns its content identifier.
// Canonicalization decodes the payload and re-encodes it with deterministic
// CBOR, so formatting differences (whitespace, key order) do not change the
// identifier.
func (a *Addressor) Identify(value []byte) (string, error) {
	canonical, err := a.Canonicalize(value)
	if err != nil {
		return "", err
	}

	h := hasher()
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Canonicalize returns the deterministic byte encoding of a JSON value
func (a *Addressor) Canonicalize(value []byte) ([]byte, error) {
	var decoded interface{}
	if err := json.Unmarshal(value, &decoded); err != nil {
		return nil, errors.AddressingFailure("value is not valid JSON", err)
	}

	canonical, err := codec.Marshal(decoded)
	if err != nil {
		return nil, errors.AddressingFailure("failed to canonicalize value", err)
	}
	return canonical, nil
}

func hasher() *blake3.Hasher {
	h, err := blake3.NewKeyed([]byte(contentKey))
	if err != nil {
		// Key length is a compile-time constant, NewKeyed only fails on
		// a wrong-sized key.
		panic(fmt.Sprintf("addressing: bad content key: %v", err))
	}
	return h
}

// NewWriteID derives a write identifier from a content identifier and a
// monotonic timestamp. The content prefix makes identical-content writes
// visibly related while the timestamp keeps every write unique.
func NewWriteID(contentID string, timestamp int64) string {
	prefix := contentID
	if len(prefix) > 16 {
		prefix = prefix[:16]
	}
	return fmt.Sprintf("%s-%016x", prefix, uint64(timestamp))
}
