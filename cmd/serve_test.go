package cmd

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveLogLevel(t *testing.T) {
	level, err := resolveLogLevel("info", "")
	require.NoError(t, err)
	assert.Equal(t, logrus.InfoLevel, level)

	level, err = resolveLogLevel("info", "debug")
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, level, "flag overrides the configured level")

	_, err = resolveLogLevel("info", "loud")
	require.Error(t, err)
}
