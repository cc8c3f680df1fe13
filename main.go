/*
Prism renders a demo scene through the deferred pass pipeline. Run it with
-headless to exercise the pipeline without a window or a GPU.
*/
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/spaghettifunk/prism/engine"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/testbed"
)

func main() {
	app := &engine.ApplicationConfig{}
	flag.StringVar(&app.ConfigPath, "config", "prism.toml", "path of the TOML config file")
	flag.BoolVar(&app.Headless, "headless", false, "render with the headless backend")
	flag.IntVar(&app.Frames, "frames", 0, "stop after this many frames, 0 runs until quit")
	flag.Parse()

	if _, err := os.Stat(app.ConfigPath); os.IsNotExist(err) {
		core.LogWarn("config `%s` not found, using defaults", app.ConfigPath)
		app.ConfigPath = ""
	}

	tb := testbed.NewTestGame(app)

	e, err := engine.New(tb.Game)
	if err != nil {
		core.LogFatal(err.Error())
	}

	if err := e.Initialize(); err != nil {
		_ = e.Shutdown()
		core.LogFatal(err.Error())
	}

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)

	// stop the frame loop; the main goroutine releases everything
	go func() {
		<-sigCh
		e.Stop()
	}()

	runErr := e.Run()
	if err := e.Shutdown(); err != nil {
		core.LogError(err.Error())
	}
	if runErr != nil {
		core.LogFatal(runErr.Error())
	}
}
