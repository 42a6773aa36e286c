// DRONEX field agent: registers with the backend over HTTPS and reports
// telemetry until stopped.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/daemon"
	"github.com/juju/errors"
	"github.com/mattn/go-isatty"

	"github.com/Neon18H/DRONEX-AGENT/internal/state"
	"github.com/Neon18H/DRONEX-AGENT/internal/tele"
	"github.com/Neon18H/DRONEX-AGENT/log2"
)

// set by script/build via ldflags
var BuildVersion string = "unknown"

// Exit codes are the contract with the surrounding service manager.
const (
	ExitOK      = 0
	ExitRuntime = 1
	ExitConfig  = 2
	ExitAborted = 3
)

const stopTimeout = 10 * time.Second

func main() {
	flagConfig := flag.String("config", "dronex-agent.hcl", "path to agent config (.hcl or .yaml)")
	flagVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()
	if *flagVersion {
		fmt.Printf("dronex-agent %s\n", BuildVersion)
		return
	}

	log := log2.NewStderr(log2.LInfo)
	if sdnotify("STATUS=starting") {
		// we're under systemd, journal adds timestamps
		log.SetFlags(log2.LServiceFlags)
	} else if isatty.IsTerminal(os.Stderr.Fd()) {
		log.SetFlags(log2.LInteractiveFlags)
	} else {
		log.SetFlags(log2.LStdFlags)
	}
	log.Infof("dronex-agent %s", BuildVersion)

	ctx, g := state.NewContext(log)
	g.BuildVersion = BuildVersion

	config, err := state.ReadConfig(log, state.NewOsFullReader(), *flagConfig)
	if err != nil {
		log.Errorf("config: %s", errors.ErrorStack(err))
		os.Exit(ExitConfig)
	}
	if err = g.Init(ctx, config); err != nil {
		log.Errorf("init: %s", errors.ErrorStack(err))
		os.Exit(ExitConfig)
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sigs
		log.Infof("signal=%v stopping", s)
		if !state.GetGlobal(ctx).StopWait(stopTimeout) {
			log.Errorf("graceful stop timed out")
			os.Exit(ExitRuntime)
		}
	}()

	sdnotify(daemon.SdNotifyReady)
	err = g.Tele.Run(ctx)
	g.Tele.Close()
	sdnotify(daemon.SdNotifyStopping)

	if err != nil {
		log.Errorf("%s", errors.ErrorStack(err))
		if errors.Cause(err) == tele.ErrCredentialsRejected {
			os.Exit(ExitAborted)
		}
		os.Exit(ExitRuntime)
	}
}

func sdnotify(s string) bool {
	ok, err := daemon.SdNotify(false, s)
	if err != nil {
		// not fatal, we may run outside systemd entirely
		fmt.Fprintf(os.Stderr, "sdnotify: %v\n", err)
	}
	return ok
}
