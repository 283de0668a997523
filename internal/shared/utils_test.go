package shared

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMakeRandHexString(t *testing.T) {
	t.Parallel()

	s1, err := MakeRandHexString(32)
	require.NoError(t, err)
	s2, err := MakeRandHexString(32)
	require.NoError(t, err)

	assert.Len(t, s1, 64)
	assert.NotEqual(t, s1, s2)

	_, err = hex.DecodeString(s1)
	assert.NoError(t, err)
}
