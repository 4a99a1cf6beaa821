package vector

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncodeVector(t *testing.T) {
	assert.Equal(t, "[]", encodeVector(nil))
	assert.Equal(t, "[1,0.5,-2]", encodeVector([]float32{1, 0.5, -2}))
}

func TestNewPGStoreRejectsIncompleteConfig(t *testing.T) {
	_, err := NewPGStore(nil, Config{})
	assert.Error(t, err)
}
