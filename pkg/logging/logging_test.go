package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/example/craftshop/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew_WritesRotatedFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "orders.log")

	logger, err := New(config.LogConfig{
		Level:       "debug",
		OutputPaths: []string{filepath.Join(t.TempDir(), "stdout.log")},
		Filename:    file,
	}, "order-service")
	require.NoError(t, err)

	logger.Info("Order created", zap.String("order_number", "CG1-1"))
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"Order created"`)
	assert.Contains(t, string(data), `"service":"order-service"`)
	assert.Contains(t, string(data), `"order_number":"CG1-1"`)
}

func TestNew_LevelFilters(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.log")

	logger, err := New(config.LogConfig{Level: "warn", Encoding: "console", OutputPaths: []string{out}}, "svc")
	require.NoError(t, err)

	logger.Info("quiet")
	logger.Warn("loud")
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "quiet")
	assert.Contains(t, string(data), "loud")
}

func TestNew_Rejects(t *testing.T) {
	_, err := New(config.LogConfig{Level: "chatty"}, "svc")
	assert.Error(t, err)

	_, err = New(config.LogConfig{Level: "info", Encoding: "xml"}, "svc")
	assert.Error(t, err)
}
