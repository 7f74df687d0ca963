package logutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestSetLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	prev := GetLogger()
	t.Cleanup(func() { SetLogger(prev) })

	SetLogger(zap.New(core))
	GetLogger().Info("hello", zap.Int("n", 1))
	assert.Equal(t, 1, logs.Len())
	assert.Equal(t, "hello", logs.All()[0].Message)
}

func TestInitLoggerLevel(t *testing.T) {
	prev := GetLogger()
	t.Cleanup(func() { SetLogger(prev) })

	InitLogger("warn")
	assert.False(t, GetLogger().Core().Enabled(zap.InfoLevel))
	assert.True(t, GetLogger().Core().Enabled(zap.WarnLevel))

	InitLogger("bogus")
	assert.True(t, GetLogger().Core().Enabled(zap.InfoLevel))
}
