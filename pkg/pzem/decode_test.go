package pzem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeKnownBlock(t *testing.T) {
	m, err := Decode([]uint16{2300, 100, 0, 50, 0, 0, 0, 500, 95})
	require.NoError(t, err)

	assert.Equal(t, 230.0, m.Voltage)
	assert.Equal(t, 0.1, m.Current)
	assert.Equal(t, 5.0, m.PowerWatt)
	assert.Equal(t, 0.0, m.EnergyKWh)
	assert.Equal(t, 50.0, m.Frequency)
	assert.Equal(t, 0.95, m.PowerFactor)
}

func TestDecodePairAssembly(t *testing.T) {
	// high word in the second register of each pair
	m, err := Decode([]uint16{0, 0x5678, 0x1234, 0, 0, 0x9ABC, 0x0001, 0, 0})
	require.NoError(t, err)

	assert.Equal(t, float64(0x12345678)/1000, m.Current)
	assert.Equal(t, float64(0x00019ABC)/1000, m.EnergyKWh)
}

func TestDecodeDeterministic(t *testing.T) {
	block := []uint16{2412, 8512, 1, 48201, 3, 54123, 7, 499, 87}
	a, err := Decode(block)
	require.NoError(t, err)
	b, err := Decode(block)
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestDecodeRejectsWrongLength(t *testing.T) {
	for _, n := range []int{0, 8, 10} {
		_, err := Decode(make([]uint16, n))
		var blockErr *InvalidBlockLengthError
		require.ErrorAs(t, err, &blockErr, "length %d", n)
		assert.Equal(t, n, blockErr.Length)
	}
}
