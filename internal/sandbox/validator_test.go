package sandbox

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateAllowsPlainProgram(t *testing.T) {
	v := Validate("x = 1\nprint(x)\n", Config{MaxCodeLength: 1000})
	assert.True(t, v.Allowed)
}

func TestValidateRejectsBlockedModuleImport(t *testing.T) {
	v := Validate("import os\n", Config{MaxCodeLength: 1000})
	assert.False(t, v.Allowed)
	assert.Contains(t, v.Reason, "blocked module")
}

func TestValidateRejectsReflectionAttribute(t *testing.T) {
	v := Validate("x = y.__class__\n", Config{MaxCodeLength: 1000})
	assert.False(t, v.Allowed)
}

func TestValidateRejectsDangerousCall(t *testing.T) {
	v := Validate("eval('1')\n", Config{MaxCodeLength: 1000})
	assert.False(t, v.Allowed)
}

func TestValidateRejectsOversizedSource(t *testing.T) {
	big := strings.Repeat("x = 1\n", 2000)
	v := Validate(big, Config{MaxCodeLength: 1000, MaxLineCount: 1000})
	assert.False(t, v.Allowed)
}

func TestValidateSurfacesSyntaxError(t *testing.T) {
	v := Validate("x = (\n", Config{MaxCodeLength: 1000})
	assert.False(t, v.Allowed)
	assert.Contains(t, v.Reason, "syntax error")
}

// validatePattern never rejects an import it doesn't recognize as blocked
// — it only logs it as suspicious — so these exercise the pattern layer
// directly, where that logging lives, rather than the full Validate
// pipeline.
func TestValidatePatternPermitsUnlistedImportAsSuspicious(t *testing.T) {
	v := validatePattern("import json\n", Config{MaxCodeLength: 1000})
	assert.True(t, v.Allowed)
}

func TestValidatePatternPermitsExplicitlyAllowedImport(t *testing.T) {
	v := validatePattern("import json\n", Config{MaxCodeLength: 1000, AllowedModules: []string{"json"}})
	assert.True(t, v.Allowed)
}
