package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog"

	"DormWatch/internal/campus"
	"DormWatch/internal/config"
	"DormWatch/internal/logging"
	"DormWatch/internal/metrics"
	"DormWatch/internal/monitor"
	"DormWatch/internal/notifier"
	"DormWatch/internal/recorder"
	"DormWatch/internal/scheduler"
	"DormWatch/internal/series"
)

var Version = "dev"

// CLI holds the command-line flags.
type CLI struct {
	Config     string           `help:"Path to the YAML config file." default:"configs/config.yaml" env:"CONFIG_PATH" type:"path"`
	EnvFile    string           `help:"Load environment variables from this file." name:"env-file" type:"path"`
	Daemon     bool             `help:"Keep running and repeat the check on the cron schedule."`
	Cron       string           `help:"Cron expression for daemon mode; overrides SCHEDULE_CRON."`
	RunOnStart bool             `help:"In daemon mode, also check once at startup." name:"run-on-start"`
	LogLevel   string           `help:"Log level (debug, info, warn, error)." name:"log-level"`
	Version    kong.VersionFlag `help:"Show version information."`
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	var cli CLI
	parser, err := kong.New(&cli,
		kong.Name("dormwatch"),
		kong.Description("Checks the dormitory electricity balance and notifies when it runs low."),
		kong.Vars{"version": "dormwatch " + Version},
		kong.UsageOnError(),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if _, err := parser.Parse(args); err != nil {
		parser.Errorf("%s", err)
		return 1
	}

	cfg, err := config.Load(cli.Config, cli.EnvFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if cli.LogLevel != "" {
		cfg.Log.Level = cli.LogLevel
	}
	log := logging.New(cfg.Log.Level, cfg.Log.Format)
	log.Info().Str("version", Version).Msg("dormwatch starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cfg.Validate(); err != nil {
		if cli.Daemon {
			log.Error().Err(err).Msg("daemon mode needs a complete configuration")
			return 1
		}
		// Logs the abort without touching the network or the database.
		_, _ = monitor.NewRunner(cfg, monitor.Deps{}, log).Run(ctx)
		return 0
	}

	deps, closeDeps, err := buildDeps(cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("init dependencies")
		return 1
	}
	defer closeDeps()
	runner := monitor.NewRunner(cfg, deps, log)

	if !cli.Daemon {
		// Aborts are logged by the runner and are not failures of the
		// process.
		_, _ = runner.Run(ctx)
		return 0
	}

	spec := cli.Cron
	if spec == "" {
		spec = cfg.Schedule.Cron
	}
	if spec == "" {
		log.Error().Msg("daemon mode needs a cron expression (--cron or SCHEDULE_CRON)")
		return 1
	}

	sched := scheduler.NewScheduler(ctx, runner, log)
	if err := sched.Register(spec); err != nil {
		log.Error().Err(err).Msg("register schedule")
		return 1
	}
	sched.Start()
	if cli.RunOnStart {
		log.Info().Msg("run-on-start enabled, checking now")
		go sched.Trigger()
	}

	log.Info().Msg("dormwatch is running, press Ctrl+C to stop")
	<-ctx.Done()
	log.Info().Msg("shutdown signal received, stopping")
	sched.Stop()
	return 0
}

// buildDeps wires the runner's collaborators from a validated cfg. The
// returned func releases them.
func buildDeps(cfg *config.Config, log zerolog.Logger) (monitor.Deps, func(), error) {
	client, err := campus.NewHTTPClient(cfg.Campus.BaseURL, cfg.Proxy)
	if err != nil {
		return monitor.Deps{}, nil, fmt.Errorf("campus client: %w", err)
	}
	var creds campus.CredentialStore
	if cfg.Campus.TokenFile != "" {
		creds = campus.NewVault(cfg.Campus.TokenFile, cfg.Campus.TokenPassword)
	}
	source := campus.NewSource(client, creds,
		cfg.Campus.Account, cfg.Campus.Password,
		campus.Rooms{Light: cfg.Campus.LightRoom, AC: cfg.Campus.ACRoom},
		log,
		campus.WithLocation(cfg.Location()),
	)

	push, err := notifier.NewServerChanNotifier(cfg.ServerChan.Keys, cfg.ServerChan.BaseURL, cfg.Proxy, log)
	if err != nil {
		return monitor.Deps{}, nil, fmt.Errorf("serverchan notifier: %w", err)
	}
	chat, err := notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.APIURL, cfg.Proxy)
	if err != nil {
		return monitor.Deps{}, nil, fmt.Errorf("telegram notifier: %w", err)
	}
	dispatcher := notifier.NewDispatcher(
		push,
		notifier.NewEmailNotifier(cfg.Email.Address, cfg.Email.SMTPCode, cfg.Email.SMTPServer, cfg.Email.SMTPPort),
		chat,
		log,
	)

	var rec recorder.Recorder = recorder.NewNoopRecorder()
	if cfg.Database.SQLitePath != "" {
		sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath, log)
		if err != nil {
			log.Warn().Err(err).Msg("init sqlite recorder failed, using noop")
		} else {
			rec = sr
		}
	}

	deps := monitor.Deps{
		Source:   source,
		Notifier: dispatcher,
		Store:    series.NewStore(cfg.Storage.DataDir, log),
		Recorder: rec,
		Metrics:  metrics.New(cfg.Metrics.PushgatewayURL, cfg.Metrics.Job),
	}
	return deps, func() {
		if err := rec.Close(); err != nil {
			log.Warn().Err(err).Msg("close recorder")
		}
	}, nil
}
