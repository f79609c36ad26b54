package color_test

import (
	"strings"
	"testing"

	"github.com/mutgate-project/mutgate/pkg/color"
	"github.com/stretchr/testify/assert"
)

func TestDisabledOutputIsPlain(t *testing.T) {
	color.Disable()

	assert.Equal(t, "ok", color.Success("ok"))
	assert.Equal(t, "bad", color.Error("bad"))
	assert.Equal(t, "executed", color.State("executed"))
	assert.False(t, strings.Contains(color.Header("h"), "\033"))
}

func TestStatePassthroughForUnknown(t *testing.T) {
	color.Disable()
	assert.Equal(t, "created", color.State("created"))
}
