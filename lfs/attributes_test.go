package lfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPatternAttributesProvider(t *testing.T) {
	p := NewPatternAttributesProvider("*.psd", "assets/*.bin")

	assert.True(t, p.IsTracked("design.psd"))
	assert.True(t, p.IsTracked("assets/model.bin"))
	assert.False(t, p.IsTracked("main.go"))
	assert.False(t, p.IsTracked("other/model.bin"))
}
