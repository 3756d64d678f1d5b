package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"lautenbacher.net/goirac/broker"
	c "lautenbacher.net/goirac/config"
	ctl "lautenbacher.net/goirac/controller"
	"lautenbacher.net/goirac/logging"
	pl "lautenbacher.net/goirac/platform"
	"lautenbacher.net/goirac/store"
	u "lautenbacher.net/goirac/util"
)

const shutdownTimeout = 3 * time.Second

// link is the messaging side the control loop talks to.
type link interface {
	ctl.Reporter
	EnsureConnected(ctx context.Context) error
	Commands() <-chan string
	Close()
}

// offline stands in for the broker when MQTT is disabled.
type offline struct{}

func (offline) Log(string)                            {}
func (offline) Status([]byte)                         {}
func (offline) EnsureConnected(context.Context) error { return nil }
func (offline) Commands() <-chan string               { return nil }
func (offline) Close()                                {}

type App struct {
	conf       c.Config
	cfile      string
	realHW     bool
	platform   pl.Platform
	medium     *store.FileMedium
	ctrl       *ctl.Controller
	link       link
	debouncer  *pl.Debouncer
	reloads    *u.Latest[c.Config]
	httpServer *http.Server
	now        func() time.Time

	ossignal   chan os.Signal
	stopsignal chan struct{}
	shutdownWg sync.WaitGroup
}

func NewApp(ossignal chan os.Signal) *App {
	return &App{
		ossignal:   ossignal,
		stopsignal: make(chan struct{}),
		reloads:    u.NewLatest[c.Config](),
		now:        time.Now,
	}
}

func main() {
	realp := flag.Bool("real", false, "Set to true if program runs on the real hardware")
	cfile := flag.String("config", c.CONFILE, "Path to the configuration file")
	flag.Parse()

	conf, err := c.ReadConfig(*cfile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ossignal := make(chan os.Signal, 4)
	signal.Notify(ossignal, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	app := NewApp(ossignal)
	if err := app.initialise(conf, *cfile, *realp); err != nil {
		logging.Close()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	app.shutdownWg.Add(1)
	go app.signalHandler(cancel)

	app.run(ctx)
	app.shutdown()
}

func (a *App) initialise(conf c.Config, cfile string, realHW bool) error {
	a.conf = conf
	a.cfile = cfile
	a.realHW = realHW

	logConf := a.logConfig(conf)
	err := logging.Init(logging.Options{
		Buffer: !realHW,
		Level:  logConf.Level,
		Format: logConf.Format,
		File:   logConf.File,
	})
	if err != nil {
		return fmt.Errorf("failed to initialise logging: %w", err)
	}

	layout := store.Layout{SlotSpan: conf.Storage.SlotSpan}
	a.medium, err = store.OpenFileMedium(conf.Storage.File, layout.Size())
	if err != nil {
		return err
	}

	// the platforms keep their own copy, reloads reach them through Apply
	platformConf := conf
	if realHW {
		a.platform = pl.NewRaspberryPiPlatform(&platformConf)
	} else {
		a.platform = pl.NewTUIPlatform(&platformConf, a.ossignal)
	}

	if conf.MQTT.Enabled {
		a.link = broker.New(&conf)
	} else {
		a.link = offline{}
	}

	if err := a.platform.Start(); err != nil {
		return fmt.Errorf("failed to start platform: %w", err)
	}
	<-a.platform.Ready()

	a.wire(store.New(a.medium, layout))

	if err := c.Watch(cfile, a.stopsignal, a.reload); err != nil {
		slog.Warn("Config file is not watched, use SIGHUP to reload", "error", err)
	}
	if conf.Web.Enabled {
		a.startWebServer()
	}
	return nil
}

// wire builds the controller on top of the started platform.
func (a *App) wire(st *store.Store) {
	a.ctrl = ctl.New(st, ctl.Devices{
		Receiver:    a.platform.Receiver(),
		Transmitter: a.platform.Transmitter(),
		Sensor:      a.platform.Sensor(),
	}, a.link, a.conf.Runtime())
	a.debouncer = pl.NewDebouncer(a.conf.Control.Debounce)

	for _, slot := range store.Slots {
		slog.Info("Signal slot", "slot", slot, "learned", st.Learned(slot))
	}
	slog.Info("System Initialized. Press button to enter Learning Mode.")
}

func (a *App) startWebServer() {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	c.RegisterRoutes(router, a.cfile)

	a.httpServer = &http.Server{Addr: a.conf.Web.Listen, Handler: router}
	go func() {
		slog.Info("Starting web API", "listen", a.conf.Web.Listen)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Web API failed", "error", err)
		}
	}()
}

// run is the single control loop. Everything that touches the
// controller happens here, one step after the other.
func (a *App) run(ctx context.Context) {
	reported := false
	for {
		if err := a.link.EnsureConnected(ctx); err != nil {
			slog.Info("Connecting aborted", "error", err)
		}
		if !reported {
			// the first line on the log topic needs the link
			a.link.Log("System Initialized. Press button to enter Learning Mode.")
			reported = true
		}

		select {
		case <-ctx.Done():
			slog.Info("Ending control loop")
			return
		default:
		}

		a.step(a.now())

		select {
		case <-ctx.Done():
		case <-time.After(a.conf.Control.LoopDelay):
		}
	}
}

func (a *App) step(now time.Time) {
	a.drainCommands(a.link.Commands())
	a.drainCommands(a.platform.Commands())

	if a.debouncer.Update(a.platform.Button().Level(), now) {
		a.ctrl.ToggleMode()
	}
	if conf, ok := a.reloads.Take(); ok {
		a.applyConfig(conf)
	}
	a.ctrl.Step(now)
}

func (a *App) drainCommands(commands <-chan string) {
	for {
		select {
		case cmd, ok := <-commands:
			if !ok {
				return
			}
			a.ctrl.HandleCommand(cmd)
		default:
			return
		}
	}
}

// reload is called from the config watcher and on SIGHUP. The new
// configuration is applied by the control loop.
func (a *App) reload() {
	conf, err := c.ReadConfig(a.cfile)
	if err != nil {
		slog.Error("Config reload failed, keeping the current configuration", "error", err)
		return
	}
	a.reloads.Offer(conf)
}

func (a *App) logConfig(conf c.Config) c.LogConfig {
	if a.realHW {
		return conf.Logging.HW
	}
	return conf.Logging.TUI
}

func (a *App) applyConfig(conf c.Config) {
	oldLog, newLog := a.logConfig(a.conf), a.logConfig(conf)
	if conf.Hardware != a.conf.Hardware || conf.Storage != a.conf.Storage ||
		conf.MQTT != a.conf.MQTT || conf.Device != a.conf.Device || conf.IR != a.conf.IR ||
		conf.Web != a.conf.Web || newLog.Format != oldLog.Format || newLog.File != oldLog.File {
		slog.Warn("Only Thresholds, Control and the log level are applied at runtime, restart for the other changes")
	}
	if newLog.Level != oldLog.Level {
		logging.SetLevel(newLog.Level)
		slog.Info("Log level changed", "level", newLog.Level)
	}
	a.conf.Logging = conf.Logging
	a.conf.Thresholds = conf.Thresholds
	a.conf.Control = conf.Control
	a.ctrl.Apply(a.conf.Runtime())
	a.platform.Apply(a.conf.Runtime())
	a.debouncer.SetWindow(a.conf.Control.Debounce)
}

func (a *App) signalHandler(cancel context.CancelFunc) {
	defer a.shutdownWg.Done()
	for {
		select {
		case <-a.stopsignal:
			return
		case sig := <-a.ossignal:
			if sig == syscall.SIGHUP {
				slog.Info("Reloading configuration", "signal", sig)
				a.reload()
				continue
			}
			slog.Info("Shutting down", "signal", sig)
			cancel()
			return
		}
	}
}

func (a *App) shutdown() {
	close(a.stopsignal)
	a.shutdownWg.Wait()

	if a.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := a.httpServer.Shutdown(ctx); err != nil {
			slog.Error("Web API shutdown failed", "error", err)
		}
		cancel()
	}
	a.link.Close()
	a.platform.Stop()
	if err := a.medium.Close(); err != nil {
		slog.Error("Closing signal store failed", "error", err)
	}
	slog.Info("Shutdown complete")
	if err := logging.Close(); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
}
