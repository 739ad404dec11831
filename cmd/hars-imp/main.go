// hars-imp connects a Linux desktop to Home Assistant over MQTT.
//
// It publishes discovery and status, runs button and switch commands,
// forwards notifications, reports host metrics, and keeps the broker's view
// of the machine correct across suspend, resume and shutdown by holding
// logind delay inhibitors.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/pflag"

	"github.com/nerrad567/hars-imp/internal/infrastructure/config"
	"github.com/nerrad567/hars-imp/internal/infrastructure/database"
	"github.com/nerrad567/hars-imp/internal/infrastructure/influxdb"
	"github.com/nerrad567/hars-imp/internal/infrastructure/logging"
	"github.com/nerrad567/hars-imp/internal/journal"
	"github.com/nerrad567/hars-imp/internal/lifecycle"
	"github.com/nerrad567/hars-imp/internal/power"
	"github.com/nerrad567/hars-imp/internal/session"
	"github.com/nerrad567/hars-imp/internal/shutdown"
)

// Version information, set at build time via ldflags.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	configEnv      = "HARS_CONFIG"
	configFileName = "config.yaml"
	eventStartup   = "startup"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
func run(ctx context.Context, args []string, stdout io.Writer) error {
	flags := pflag.NewFlagSet("hars-imp", pflag.ContinueOnError)
	flags.SetOutput(stdout)
	configFlag := flags.StringP("config", "c", "", "path to the YAML configuration file")
	showVersion := flags.BoolP("version", "v", false, "print version and exit")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *showVersion {
		fmt.Fprintf(stdout, "hars-imp %s (%s, %s)\n", version, commit, date)
		return nil
	}

	log := logging.Default()
	log.Info("starting hars-imp", "version", version, "commit", commit, "build_date", date)

	configPath := resolveConfigPath(*configFlag)
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log = logging.New(cfg.Logging, version).With("host", cfg.Hostname)
	log.Info("configuration loaded", "path", configPath)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Power events.
	bus := power.NewBus(power.DefaultBusCapacity)
	defer bus.Close()
	powerMgr := power.NewManager(power.SystemBusDialer{}, power.WithManagerLogger(log))
	defer func() {
		if closeErr := powerMgr.Close(); closeErr != nil {
			log.Warn("closing logind connection", "error", closeErr)
		}
	}()

	sub := bus.Subscribe()
	defer sub.Close()
	sub.SetLogger(log)

	monitorDone := make(chan struct{})
	if cfg.Power.Enabled {
		go func() {
			defer close(monitorDone)
			power.NewMonitor(power.SystemBusDialer{}, bus, log).Run(ctx)
		}()
		acquireInhibitors(ctx, powerMgr, cfg, log)
	} else {
		close(monitorDone)
		log.Info("power integration disabled")
	}
	defer func() {
		cancel()
		<-monitorDone
	}()

	// Optional lifecycle recorders.
	var recorders []lifecycle.Recorder
	if cfg.Journal.Enabled {
		j, jErr := journal.Open(ctx, database.Config{
			Path:        cfg.Journal.Path,
			WALMode:     cfg.Journal.WALMode,
			BusyTimeout: cfg.Journal.BusyTimeout,
		}, cfg.Hostname)
		if jErr != nil {
			log.Warn("lifecycle journal unavailable", "path", cfg.Journal.Path, "error", jErr)
		} else {
			defer j.Close() //nolint:errcheck // best effort on exit
			recorders = append(recorders, j)
			log.Info("lifecycle journal opened", "path", cfg.Journal.Path)
		}
	}

	var builderOpts []session.BuilderOption
	builderOpts = append(builderOpts, session.WithLogger(log))
	if cfg.InfluxDB.Enabled {
		influx, iErr := influxdb.Connect(ctx, cfg.InfluxDB, cfg.Hostname)
		if iErr != nil {
			log.Warn("InfluxDB unavailable, continuing without it", "url", cfg.InfluxDB.URL, "error", iErr)
		} else {
			defer influx.Close() //nolint:errcheck // flushes pending writes
			influx.SetOnError(func(err error) {
				log.Error("InfluxDB write error", "error", err)
			})
			recorders = append(recorders, influxdb.EventRecorder{Client: influx})
			builderOpts = append(builderOpts, session.WithMetricsSink(influx))
			log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
		}
	}

	builder := session.NewBuilder(cfg, version, builderOpts...)
	sess, err := builder.Build(ctx)
	if err != nil {
		return fmt.Errorf("initialising session: %w", err)
	}
	for _, r := range recorders {
		if recErr := r.Record(ctx, eventStartup, journal.OutcomeOK, ""); recErr != nil {
			log.Warn("failed to record startup", "error", recErr)
		}
	}

	coord := lifecycle.NewCoordinator(sess, lifecycle.Builder[*session.Session](builder), powerMgr, lifecycle.Config{
		Retry:            cfg.GetRetryPolicy(),
		DrainAttempts:    cfg.Power.Drain.Attempts,
		DrainDelay:       cfg.GetDrainDelay(),
		DrainPollTimeout: cfg.GetStatusTimeout(),
		SleepReason:      cfg.Power.SleepReason,
		Logger:           log,
		Recorders:        recorders,
	})

	signals := shutdown.NewSource()
	defer signals.Stop()

	log.Info("initialisation complete, waiting for events")
	return loop(ctx, coord, sub.Events(ctx), signals.C(), cfg.GetUpdateInterval(), log)
}

// loop dispatches MQTT messages, power events and shutdown signals until a
// shutdown signal has been handled.
func loop(
	ctx context.Context,
	coord *lifecycle.Coordinator[*session.Session],
	powerEvents <-chan power.Event,
	signals <-chan shutdown.Signal,
	errorBackoff time.Duration,
	log *logging.Logger,
) error {
	for {
		// The session is replaced on resume.
		sess := coord.Session()

		select {
		case <-ctx.Done():
			coord.HandleShutdown(context.WithoutCancel(ctx), shutdown.Terminate)
			return nil

		case sig := <-signals:
			scenario := coord.HandleShutdown(ctx, sig)
			log.Info("hars-imp stopped", "scenario", scenario.String())
			return nil

		case ev, ok := <-powerEvents:
			if !ok {
				powerEvents = nil
				continue
			}
			coord.HandlePowerEvent(ctx, ev)

		case ev := <-sess.Events():
			if ev.Err != nil {
				log.Warn("MQTT transport error", "error", ev.Err, "retry_in", errorBackoff)
				sleep(ctx, errorBackoff)
				continue
			}
			sess.HandleMessage(ctx, ev)
		}
	}
}

func acquireInhibitors(ctx context.Context, mgr *power.Manager, cfg *config.Config, log *logging.Logger) {
	for _, want := range []struct {
		class  power.Class
		reason string
	}{
		{power.ClassSleep, cfg.Power.SleepReason},
		{power.ClassShutdown, cfg.Power.ShutdownReason},
	} {
		if _, err := mgr.Acquire(ctx, want.class, want.reason); err != nil {
			log.Warn("running without inhibitor", "class", want.class.String(), "error", err)
			continue
		}
		log.Info("inhibitor acquired", "class", want.class.String())
	}
}

// resolveConfigPath picks the first of: the --config flag, HARS_CONFIG,
// ~/.config/hars-imp/config.yaml if it exists, then ./config.yaml.
func resolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if path := os.Getenv(configEnv); path != "" {
		return path
	}
	if dir, err := os.UserConfigDir(); err == nil {
		path := filepath.Join(dir, "hars-imp", configFileName)
		if _, statErr := os.Stat(path); statErr == nil {
			return path
		}
	}
	return configFileName
}

// sleep waits for d or until ctx ends.
func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
