package main

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"gosuda.org/portal/portal/core/cryptoops"
	"gosuda.org/portal/sdk"

	"github.com/gosuda/temsim/internal/callout"
	"github.com/gosuda/temsim/internal/crew"
	"github.com/gosuda/temsim/internal/metrics"
	"github.com/gosuda/temsim/internal/room"
	"github.com/gosuda/temsim/internal/scenario"
	"github.com/gosuda/temsim/internal/sessionlog"
	"github.com/gosuda/temsim/internal/transport"
)

var (
	flagServerURLs []string
	flagPort       int
	flagName       string
	flagCredKey    string

	flagScenario   string
	flagTick       time.Duration
	flagGrace      time.Duration
	flagLogDir     string
	flagArchiveDir string

	flagCrewRoles    []string
	flagCrewProvider string
	flagCrewInterval time.Duration

	flagCallouts    bool
	flagCalloutDir  string
	flagPollyVoice  string
	flagPollyRegion string
)

func registerServeFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringSliceVar(&flagServerURLs, "server-url", splitEnv("RELAY"), "relayserver base URL(s); repeat or comma-separated (from env RELAY if set)")
	flags.IntVar(&flagPort, "port", -1, "optional local HTTP port (negative to disable)")
	flags.StringVar(&flagName, "name", "temsim", "backend display name")
	flags.StringVar(&flagCredKey, "cred-key", "", "optional credential key to use for the listener (base64 encoded)")

	flags.StringVar(&flagScenario, "scenario", "", "scenario key for every room (seeded pick when empty)")
	flags.DurationVar(&flagTick, "tick", room.DefaultTick, "simulation tick period")
	flags.DurationVar(&flagGrace, "grace", room.DefaultGrace, "how long an empty room stays open")
	flags.StringVar(&flagLogDir, "log-dir", envOr("TEMSIM_LOG_DIR", "sessions"), "directory for per-session JSONL logs (empty to disable)")
	flags.StringVar(&flagArchiveDir, "archive-dir", os.Getenv("TEMSIM_ARCHIVE_DIR"), "optional pebble archive of every session record")

	flags.StringSliceVar(&flagCrewRoles, "crew", nil, "roles seated by an automated crew member (controlling, monitoring)")
	flags.StringVar(&flagCrewProvider, "crew-provider", crew.ScriptedName, "crew provider name")
	flags.DurationVar(&flagCrewInterval, "crew-interval", crew.DefaultInterval, "minimum time between crew actions")

	flags.BoolVar(&flagCallouts, "callouts", false, "voice alerts through Amazon Polly")
	flags.StringVar(&flagCalloutDir, "callout-dir", "callouts", "directory for synthesized alert audio")
	flags.StringVar(&flagPollyVoice, "polly-voice", "Joanna", "Polly voice id")
	flags.StringVar(&flagPollyRegion, "polly-region", envOr("AWS_REGION", "us-east-1"), "Polly region")
}

func runServer(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lib, err := loadLibrary()
	if err != nil {
		return fmt.Errorf("load scenarios: %w", err)
	}
	mc, err := metrics.New(nil)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	var synth callout.Synthesizer
	if flagCallouts {
		synth = callout.NewPolly(callout.PollyConfig{Region: flagPollyRegion, VoiceID: flagPollyVoice})
	}
	a, err := newApp(ctx, appConfig{
		Library:      lib,
		Scenario:     flagScenario,
		Tick:         flagTick,
		Grace:        flagGrace,
		LogDir:       flagLogDir,
		ArchiveDir:   flagArchiveDir,
		CrewRoles:    flagCrewRoles,
		CrewProvider: flagCrewProvider,
		CrewInterval: flagCrewInterval,
		Synthesizer:  synth,
		CalloutDir:   flagCalloutDir,
		Metrics:      mc,
	})
	if err != nil {
		return err
	}
	mux := a.server.Router()

	var (
		client *sdk.RDClient
		ln     interface{ Close() error }
	)
	if len(flagServerURLs) > 0 {
		cred := sdk.NewCredential()
		if flagCredKey != "" {
			key, err := base64.StdEncoding.DecodeString(flagCredKey)
			if err != nil {
				return fmt.Errorf("decode cred key: %w", err)
			}
			cred2, err := cryptoops.NewCredentialFromPrivateKey(key)
			if err != nil {
				return fmt.Errorf("new credential from private key: %w", err)
			}
			cred = cred2
		}

		client, err = sdk.NewClient(func(c *sdk.RDClientConfig) { c.BootstrapServers = flagServerURLs })
		if err != nil {
			return fmt.Errorf("new client: %w", err)
		}
		relayLn, err := client.Listen(cred, flagName, []string{"http/1.1"})
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		ln = relayLn
		go func() {
			if err := http.Serve(relayLn, mux); err != nil && !errors.Is(err, http.ErrServerClosed) && ctx.Err() == nil {
				log.Error().Err(err).Msg("[temsim] relay http error")
			}
		}()
		log.Info().Strs("relay", flagServerURLs).Str("name", flagName).Msg("[temsim] listening through relay")
	}

	var httpSrv *http.Server
	if flagPort >= 0 {
		httpSrv = &http.Server{Addr: fmt.Sprintf(":%d", flagPort), Handler: mux, ReadHeaderTimeout: 5 * time.Second, IdleTimeout: 60 * time.Second}
		log.Info().Msgf("[temsim] serving locally at http://127.0.0.1:%d", flagPort)
		go func() {
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Warn().Err(err).Msg("[temsim] local http stopped")
			}
		}()
	}
	if ln == nil && httpSrv == nil {
		a.Close()
		return errors.New("nothing to serve: set --server-url or --port")
	}

	<-ctx.Done()
	if ln != nil {
		_ = ln.Close()
		_ = client.Close()
	}
	if httpSrv != nil {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := httpSrv.Shutdown(sctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("[temsim] http server shutdown error")
		}
		cancel()
	}
	a.Close()
	log.Info().Msg("[temsim] shutdown complete")
	return nil
}

// appConfig is everything newApp needs; runServer fills it from flags.
type appConfig struct {
	Library  *scenario.Library
	Scenario string
	Tick     time.Duration
	Grace    time.Duration

	LogDir     string
	ArchiveDir string

	CrewRoles    []string
	CrewProvider string
	CrewInterval time.Duration

	Synthesizer callout.Synthesizer
	CalloutDir  string

	Metrics *metrics.Collector
}

// app is the assembled process minus its listeners.
type app struct {
	registry  *room.Registry
	hub       *transport.Hub
	server    *transport.Server
	archive   *sessionlog.Archive
	cancel    context.CancelFunc
	done      chan struct{}
	crewRoles []room.Role
}

func newApp(parent context.Context, cfg appConfig) (*app, error) {
	roles := make([]room.Role, 0, len(cfg.CrewRoles))
	for _, r := range cfg.CrewRoles {
		role := room.Role(strings.TrimSpace(strings.ToLower(r)))
		if !role.Valid() {
			return nil, fmt.Errorf("--crew: %w: %q", room.ErrInvalidRole, r)
		}
		roles = append(roles, role)
	}
	if len(roles) > 0 {
		// Fail at startup rather than on the first room.
		if _, err := crew.New(cfg.CrewProvider, crew.Config{Library: cfg.Library, Role: roles[0]}); err != nil {
			return nil, err
		}
	}
	if cfg.Scenario != "" {
		if _, ok := cfg.Library.Scenario(cfg.Scenario); !ok {
			return nil, fmt.Errorf("unknown scenario %q", cfg.Scenario)
		}
	}

	ctx, cancel := context.WithCancel(parent)
	a := &app{hub: transport.NewHub(), cancel: cancel, done: make(chan struct{}), crewRoles: roles}

	var archive *sessionlog.Archive
	if cfg.ArchiveDir != "" {
		var err error
		if archive, err = sessionlog.OpenArchive(cfg.ArchiveDir); err != nil {
			cancel()
			return nil, err
		}
		a.archive = archive
	}

	var (
		broadcaster room.Broadcaster = a.hub
		announcer   *callout.Announcer
	)
	if cfg.Synthesizer != nil {
		var err error
		announcer, err = callout.NewAnnouncer(cfg.Synthesizer, callout.AnnouncerOptions{Dir: cfg.CalloutDir, Metrics: cfg.Metrics})
		if err != nil {
			cancel()
			if archive != nil {
				_ = archive.Close()
			}
			return nil, err
		}
		broadcaster = room.Fanout(a.hub, announcer)
	}

	a.registry = room.NewRegistry(room.RegistryOptions{
		Library:     cfg.Library,
		Scenario:    cfg.Scenario,
		Tick:        cfg.Tick,
		Grace:       cfg.Grace,
		Broadcaster: broadcaster,
		Metrics:     cfg.Metrics,
		OpenLog:     openLog(cfg.LogDir, archive),
		OnStart: func(r *room.Room) {
			a.seatCrew(ctx, r, cfg)
		},
	})
	a.server = transport.NewServer(transport.Options{
		Registry: a.registry,
		Hub:      a.hub,
		Library:  cfg.Library,
		Metrics:  cfg.Metrics,
	})

	go func() {
		defer close(a.done)
		if announcer != nil {
			_ = announcer.Run(ctx)
		}
	}()
	return a, nil
}

// openLog builds the per-room sink: a JSONL file per session, mirrored into
// the shared archive when there is one.
func openLog(dir string, archive *sessionlog.Archive) func(string, string, time.Time) (sessionlog.Sink, error) {
	if dir == "" && archive == nil {
		return nil
	}
	return func(roomID, session string, started time.Time) (sessionlog.Sink, error) {
		var sinks []sessionlog.Sink
		if archive != nil {
			sinks = append(sinks, sessionlog.KeepOpen(archive))
		}
		if dir != "" {
			f, err := sessionlog.Create(dir, roomID, session, started)
			if err != nil {
				return nil, err
			}
			log.Debug().Str("room", roomID).Str("path", f.Path()).Msg("[temsim] session log")
			sinks = append(sinks, f)
		}
		return sessionlog.Multi(sinks...), nil
	}
}

func (a *app) seatCrew(ctx context.Context, r *room.Room, cfg appConfig) {
	for _, role := range a.crewRoles {
		p, err := crew.New(cfg.CrewProvider, crew.Config{Library: cfg.Library, Role: role})
		if err != nil {
			log.Error().Err(err).Str("room", r.ID()).Msg("[temsim] build crew provider")
			continue
		}
		agent := crew.NewAgent(r, role, p, crew.AgentOptions{Interval: cfg.CrewInterval})
		unsubscribe := a.hub.Subscribe(r.ID(), agent)
		go func() {
			defer unsubscribe()
			if err := agent.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Warn().Err(err).Str("room", r.ID()).Str("role", string(role)).Msg("[temsim] crew stopped")
			}
		}()
	}
}

// Close stops every room and background worker, then closes the archive.
func (a *app) Close() {
	a.registry.Close()
	a.cancel()
	<-a.done
	if a.archive != nil {
		if err := a.archive.Close(); err != nil {
			log.Warn().Err(err).Msg("[temsim] close archive")
		}
	}
}

func splitEnv(key string) []string {
	var out []string
	for _, s := range strings.Split(os.Getenv(key), ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
