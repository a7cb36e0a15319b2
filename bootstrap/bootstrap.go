// Package bootstrap wires all dependencies and starts the application.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/leadline/leadline/adapters/captcha"
	"github.com/leadline/leadline/adapters/clock"
	lhttp "github.com/leadline/leadline/adapters/http"
	"github.com/leadline/leadline/adapters/idgen"
	"github.com/leadline/leadline/adapters/jsonfile"
	"github.com/leadline/leadline/adapters/memory"
	"github.com/leadline/leadline/adapters/metrics"
	"github.com/leadline/leadline/adapters/sqlite"
	"github.com/leadline/leadline/app"
	"github.com/leadline/leadline/config"
	"github.com/leadline/leadline/domain/plan"
	"github.com/leadline/leadline/domain/ratelimit"
	"github.com/leadline/leadline/ports"
)

// App represents the running application.
type App struct {
	Logger  zerolog.Logger
	Config  *config.Holder
	Metrics *metrics.Collector
	Rings   *metrics.Rings

	Guards *app.GuardService
	Quotas *app.QuotaService
	Users  ports.UserStore

	HTTPServer *http.Server

	registry *memory.Registry
	db       *sqlite.DB
}

// New creates and initializes the application from the config file at path.
func New(path string) (*App, error) {
	holder, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		return nil, err
	}
	cfg := holder.Get()

	logger := SetupLogger(cfg.Logging)
	logger.Info().Msg("initializing leadline")

	a := &App{
		Logger: logger,
		Config: holder,
	}

	if cfg.Metrics.Enabled {
		a.Metrics = metrics.New()
	}

	clk := clock.Real{}
	a.Rings = metrics.NewRings(clk)

	a.registry = memory.NewRegistry(memory.RegistryConfig{
		SweepInterval: time.Duration(cfg.Abuse.SweepIntervalSec) * time.Second,
	})
	global := a.registry.Register("global", limiterConfig(cfg.Abuse.Global), clk)
	contact := a.registry.Register("contact", limiterConfig(cfg.Abuse.Contact), clk)
	chat := a.registry.Register("chat", limiterConfig(cfg.Abuse.Chat), clk)
	login := a.registry.Register("login", limiterConfig(cfg.Abuse.Login), clk)
	signup := a.registry.Register("signup", limiterConfig(cfg.Abuse.Signup), clk)

	cooldowns := memory.NewCooldownTracker(
		time.Duration(cfg.Abuse.CooldownSeconds)*time.Second, clk)

	a.Guards = app.NewGuardService(app.GuardDeps{
		Cooldowns: cooldowns,
		Global:    global,
		Contact:   contact,
		Chat:      chat,
		Login:     login,
		Signup:    signup,
		Sessions:  memory.NewSessionIntervals(clk),
		Logger:    logger,
		Metrics:   a.Metrics,
	}, app.GuardConfig{
		Allowlist:          cfg.Abuse.IPAllowlist,
		Denylist:           cfg.Abuse.IPDenylist,
		CooldownSeconds:    cfg.Abuse.CooldownSeconds,
		ContactMinInterval: time.Duration(cfg.Abuse.ContactMinIntervalSec) * time.Second,
		ChatMinInterval:    time.Duration(cfg.Abuse.ChatMinIntervalSec) * time.Second,
	})

	ids := idgen.UUID{}
	users := jsonfile.NewUserStore(cfg.Storage.DataDir, clk, ids, logger)
	events := jsonfile.NewEventStore(cfg.Storage.DataDir, logger)
	messages := jsonfile.NewMessageStore(cfg.Storage.DataDir, logger)
	prefs := jsonfile.NewPrefStore(cfg.Storage.DataDir, logger)
	a.Users = users

	quotas, err := a.buildQuotaStore(cfg, clk)
	if err != nil {
		return nil, err
	}
	a.Quotas = app.NewQuotaService(app.QuotaDeps{
		Quotas:  quotas,
		Plans:   plansFromConfig(cfg.Plans),
		Logger:  logger,
		Metrics: a.Metrics,
		Rings:   a.Rings,
	}, cfg.Storage.QuotaFailMode != "closed")

	verifier := captcha.New(cfg.Captcha.Secret, logger, a.Rings)

	handler := lhttp.NewHandler(lhttp.HandlerDeps{
		Guards:   a.Guards,
		Quotas:   a.Quotas,
		Users:    users,
		Events:   events,
		Messages: messages,
		Prefs:    prefs,
		Captcha:  verifier,
		IDGen:    ids,
		Clock:    clk,
		Rings:    a.Rings,
		Logger:   logger,
	}, cfg.Captcha.RequireOnSignup)

	router := lhttp.NewRouter(handler, logger, lhttp.RouterConfig{
		Metrics:     a.Metrics,
		MetricsPath: cfg.Metrics.Path,
	})

	a.HTTPServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSec) * time.Second,
	}

	// The whole abuse policy follows config edits without a restart:
	// limiter parameters, IP lists, cooldown and the session debounce.
	// Server and storage changes still need one.
	guards := a.Guards
	holder.OnChange(func(c *config.Config) {
		global.SetConfig(limiterConfig(c.Abuse.Global))
		contact.SetConfig(limiterConfig(c.Abuse.Contact))
		chat.SetConfig(limiterConfig(c.Abuse.Chat))
		login.SetConfig(limiterConfig(c.Abuse.Login))
		signup.SetConfig(limiterConfig(c.Abuse.Signup))
		cooldowns.SetDuration(time.Duration(c.Abuse.CooldownSeconds) * time.Second)
		guards.SetPolicy(app.GuardConfig{
			Allowlist:          c.Abuse.IPAllowlist,
			Denylist:           c.Abuse.IPDenylist,
			CooldownSeconds:    c.Abuse.CooldownSeconds,
			ContactMinInterval: time.Duration(c.Abuse.ContactMinIntervalSec) * time.Second,
			ChatMinInterval:    time.Duration(c.Abuse.ChatMinIntervalSec) * time.Second,
		})
		logger.Info().Msg("abuse policy reloaded")
	})

	return a, nil
}

func (a *App) buildQuotaStore(cfg *config.Config, clk ports.Clock) (ports.QuotaStore, error) {
	switch cfg.Storage.QuotaDriver {
	case "sqlite":
		db, err := sqlite.Open(cfg.Storage.QuotaDSN)
		if err != nil {
			return nil, fmt.Errorf("open quota database: %w", err)
		}
		a.db = db
		a.Logger.Info().Str("dsn", cfg.Storage.QuotaDSN).Msg("using sqlite quota store")
		return sqlite.NewQuotaStore(db, clk), nil
	default:
		return jsonfile.NewQuotaStore(cfg.Storage.DataDir, clk, a.Logger), nil
	}
}

// Run starts the HTTP server and blocks until a signal or server error.
func (a *App) Run() error {
	if err := a.Config.WatchFile(); err != nil {
		a.Logger.Warn().Err(err).Msg("config watch disabled")
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().Str("addr", a.HTTPServer.Addr).Msg("starting http server")
		if err := a.HTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		a.Logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	return a.Shutdown()
}

// Shutdown gracefully stops the application.
func (a *App) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a.Config.Stop()

	if a.HTTPServer != nil {
		if err := a.HTTPServer.Shutdown(ctx); err != nil {
			a.Logger.Error().Err(err).Msg("http server shutdown error")
		}
	}

	if a.registry != nil {
		_ = a.registry.Close()
	}

	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("quota database close error")
		}
	}

	a.Logger.Info().Msg("shutdown complete")
	return nil
}

// SetupLogger builds the process logger from the logging config.
func SetupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		return zerolog.New(output).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func limiterConfig(lc config.LimiterConfig) ratelimit.Config {
	return ratelimit.Config{RatePerMinute: lc.RatePerMinute, Burst: lc.Burst}
}

func plansFromConfig(pcs []config.PlanConfig) []plan.Plan {
	if len(pcs) == 0 {
		return nil
	}
	plans := make([]plan.Plan, 0, len(pcs))
	for _, pc := range pcs {
		plans = append(plans, plan.Plan{
			ID:            pc.ID,
			ContactDaily:  pc.ContactDaily,
			ChatPerMinute: pc.ChatPerMinute,
		})
	}
	return plans
}
