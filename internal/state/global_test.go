package state

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Neon18H/DRONEX-AGENT/log2"
)

func TestGlobalContext(t *testing.T) {
	t.Parallel()

	log := log2.NewTest(t, log2.LDebug)
	ctx, g := NewContext(log)
	assert.Same(t, g, GetGlobal(ctx))
	assert.Panics(t, func() { GetGlobal(context.Background()) })
}

func TestGlobalInitStopWait(t *testing.T) {
	t.Parallel()

	log := log2.NewTest(t, log2.LDebug)
	ctx, g := NewContext(log)
	g.BuildVersion = "test"

	fs := NewMockFullReader(map[string]string{"t.hcl": validHCL()})
	c, err := ReadConfig(log, fs, "t.hcl")
	require.NoError(t, err)
	require.NoError(t, g.Init(ctx, c))

	// nothing is running yet, stop must still converge promptly
	assert.True(t, g.StopWait(time.Second))
}
