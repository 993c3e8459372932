package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvironmentFromSlice(t *testing.T) {
	env := EnvironmentFromSlice([]string{
		"HOME=/root",
		"EMPTY=",
		"WITH_EQUALS=a=b",
		"garbage",
		"=nokey",
	})

	assert.Equal(t, Environment{
		"HOME":        "/root",
		"EMPTY":       "",
		"WITH_EQUALS": "a=b",
	}, env)
}

func TestEnvironment_Merge(t *testing.T) {
	base := Environment{"A": "1", "B": "2"}
	overlay := Environment{"B": "20", "C": "30"}

	merged := base.Merge(overlay)

	assert.Equal(t, Environment{"A": "1", "B": "20", "C": "30"}, merged)
	// inputs are untouched
	assert.Equal(t, Environment{"A": "1", "B": "2"}, base)
	assert.Equal(t, Environment{"B": "20", "C": "30"}, overlay)
}

func TestEnvironment_Merge_NilMaps(t *testing.T) {
	var base Environment

	merged := base.Merge(nil)
	assert.NotNil(t, merged)
	assert.Empty(t, merged)

	merged["X"] = "1"
	assert.Nil(t, base)
}

func TestEnvironment_Slice(t *testing.T) {
	env := Environment{"PATH": "/bin", "B": "2", "A": "1"}

	assert.Equal(t, []string{"A=1", "B=2", "PATH=/bin"}, env.Slice())
}

func TestRunResult_Success(t *testing.T) {
	assert.True(t, (&RunResult{}).Success())
	assert.False(t, (&RunResult{FailedCommands: 1}).Success())
}
