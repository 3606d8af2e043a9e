package version

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVersionCommand(t *testing.T) {
	cmd := NewVersionCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs(nil)

	assert.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "picowarden dev")
	assert.Contains(t, out.String(), "Go: go")
}
