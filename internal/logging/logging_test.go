package logging

import (
	"testing"

	"github.com/ariefcatur/go-realtime-inventory/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew(t *testing.T) {
	cfg := config.Config{ServiceName: "svc", Logger: config.Logger{Level: "debug", Encoding: "console"}}
	log, err := New(cfg)
	require.NoError(t, err)
	assert.True(t, log.Core().Enabled(zap.DebugLevel))

	_, err = New(config.Config{Logger: config.Logger{Level: "loud"}})
	assert.Error(t, err)
	_, err = New(config.Config{Logger: config.Logger{Level: "info", Encoding: "xml"}})
	assert.Error(t, err)
}
