package util_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/stratadb/strata/internal/util"
)

func TestComputeChecksum(t *testing.T) {
	data := []byte(`{"name":"alice"}`)

	sum := util.ComputeChecksum(data)
	assert.Equal(t, sum, util.ComputeChecksum(data))

	// A single flipped byte changes the checksum
	flipped := append([]byte(nil), data...)
	flipped[0] ^= 0x01
	assert.NotEqual(t, sum, util.ComputeChecksum(flipped))
}

func TestComputeChecksumEmpty(t *testing.T) {
	assert.Equal(t, uint32(0), util.ComputeChecksum(nil))
	assert.Equal(t, uint32(0), util.ComputeChecksum([]byte{}))
}

func TestValidateChecksum(t *testing.T) {
	data := []byte(`{"v":1}`)
	sum := util.ComputeChecksum(data)

	assert.True(t, util.ValidateChecksum(data, sum))
	assert.False(t, util.ValidateChecksum(data, sum+1))
	assert.False(t, util.ValidateChecksum([]byte(`{"v":2}`), sum))
}
