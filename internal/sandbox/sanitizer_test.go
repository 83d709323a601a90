package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeCodeStripsNulAndNormalizesLineEndings(t *testing.T) {
	dirty := "x = 1\x00\r\ny = 2\r  \n"
	clean := SanitizeCode(dirty)
	assert.NotContains(t, clean, "\x00")
	assert.NotContains(t, clean, "\r")
	assert.Equal(t, "x = 1\ny = 2\n\n", clean)
}
