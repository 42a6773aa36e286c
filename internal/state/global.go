package state

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"

	"github.com/Neon18H/DRONEX-AGENT/internal/tele"
	"github.com/Neon18H/DRONEX-AGENT/log2"
)

const ContextKey = "run/state-global"

// Global wires the agent subsystems together. One per process.
type Global struct {
	Alive        *alive.Alive
	BuildVersion string
	Config       *Config
	Log          *log2.Log
	Tele         *tele.Tele

	_copy_guard sync.Mutex //nolint:unused
}

func NewContext(log *log2.Log) (context.Context, *Global) {
	if log == nil {
		panic("code error NewContext() log=nil")
	}

	g := &Global{
		Alive: alive.NewAlive(),
		Log:   log,
		Tele:  tele.New(),
	}
	ctx := context.Background()
	ctx = context.WithValue(ctx, ContextKey, g)
	return ctx, g
}

func GetGlobal(ctx context.Context) *Global {
	v := ctx.Value(ContextKey)
	if v == nil {
		panic(fmt.Sprintf("context['%s'] is nil", ContextKey))
	}
	if g, ok := v.(*Global); ok {
		return g
	}
	panic(fmt.Sprintf("context['%s'] expected type *Global actual=%#v", ContextKey, v))
}

// If `Init` fails, consider `Global` is in broken state.
func (g *Global) Init(ctx context.Context, cfg *Config) error {
	g.Config = cfg

	g.Log.Infof("build version=%s", g.BuildVersion)
	g.Config.Agent.BuildVersion = g.BuildVersion

	if err := g.Tele.Init(ctx, g.Log.Clone(log2.LInfo), g.Config.Agent); err != nil {
		return errors.Annotate(err, "tele init")
	}
	return nil
}

// Stop requests shutdown of everything attached to this Global.
func (g *Global) Stop() {
	g.Tele.Stop()
	g.Alive.Stop()
}

// StopWait requests shutdown and waits for the run loop to exit, bounded
// by timeout. False means something is stuck.
func (g *Global) StopWait(timeout time.Duration) bool {
	g.Stop()
	done := make(chan struct{})
	go func() {
		g.Tele.Wait()
		g.Alive.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
