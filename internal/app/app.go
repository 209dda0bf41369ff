package app

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"fuel-price-alerts/internal/alerting"
	"fuel-price-alerts/internal/config"
	"fuel-price-alerts/internal/httpapi"
	"fuel-price-alerts/internal/ingestion"
	"fuel-price-alerts/internal/scheduler"
	"fuel-price-alerts/internal/service"
	"fuel-price-alerts/internal/storage"
	"fuel-price-alerts/internal/version"
)

var errNoDatabase = errors.New("database.dsn not configured")

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Out    io.Writer
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{
		Config: cfg,
		Logger: logger.With().Str("component", "app").Logger(),
		Out:    os.Stdout,
	}
}

// newNotifier wires the enabled delivery channels behind the dispatcher.
// devices may be nil, in which case only the operator mirror receives alerts.
func (a *App) newNotifier(devices alerting.DeviceRegistry) alerting.Notifier {
	var mobile alerting.MobileSender
	if cfg := a.Config.Expo; cfg.Enabled {
		mobile = alerting.NewExpoClient(alerting.ExpoOptions{
			BaseURL:     cfg.BaseURL,
			AccessToken: cfg.AccessToken,
			BatchSize:   cfg.BatchSize,
			ChannelID:   cfg.ChannelID,
			Sound:       cfg.Sound,
			TTL:         cfg.TTL,
			Timeout:     cfg.Timeout,
		}, a.Logger)
	}

	var browser alerting.BrowserSender
	if cfg := a.Config.WebPush; cfg.Enabled {
		browser = alerting.NewWebPushClient(alerting.WebPushOptions{
			VAPIDPublicKey:  cfg.VAPIDPublicKey,
			VAPIDPrivateKey: cfg.VAPIDPrivateKey,
			Subject:         cfg.Subject,
			TTL:             cfg.TTL,
			Timeout:         cfg.Timeout,
		}, a.Logger)
	}

	var mirror alerting.Notifier
	if cfg := a.Config.Telegram; cfg.Enabled {
		mirror = alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, cfg.Timeout, a.Logger)
	}

	return alerting.NewDispatcher(devices, mobile, browser, mirror, a.Logger).
		WithOperationTimeout(a.Config.Alerting.OperationTimeout)
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	store, err := storage.Open(ctx, a.Config.Database, a.Config.App.Name)
	if err != nil {
		return nil, nil, err
	}
	return store, store.Close, nil
}

// requireStore opens the store and fails when no database is configured.
func (a *App) requireStore(ctx context.Context) (*storage.Store, func(), error) {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	if store == nil {
		return nil, nil, errNoDatabase
	}
	return store, closeStore, nil
}

func (a *App) newAlertService(store *storage.Store, sched *scheduler.Scheduler) *service.Service {
	return service.New(a.Config, sched, store, store, store, a.newNotifier(store), a.Logger)
}

func (a *App) newIngestion(store *storage.Store, sched *scheduler.Scheduler) *ingestion.Service {
	cfg := a.Config.Ingestion
	client := ingestion.NewClient(ingestion.ClientOptions{
		BaseURL: cfg.BaseURL,
		Token:   cfg.Token,
		Timeout: cfg.Timeout,
	}, a.Logger)

	return ingestion.New(ingestion.Options{
		Region: ingestion.Region{
			CountryID: cfg.CountryID,
			GeoLevel:  cfg.GeoLevel,
			GeoID:     cfg.GeoID,
		},
		SyncMasterOnStart: cfg.SyncMasterOnStart,
	}, sched, client, store, a.Logger)
}

// Run executes the alert loop, the ingestion loop and the HTTP server until
// a signal arrives or one of them fails.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.requireStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	if a.Config.Database.MigrateOnStart {
		if err := a.applyMigrations(ctx, store); err != nil {
			return err
		}
	}

	alertSched := scheduler.New(scheduler.Options{
		Name:         "alerts",
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)
	tasks := []*scheduler.Task{
		scheduler.NewTask("alerts", a.newAlertService(store, alertSched).Run, a.Logger),
	}

	if a.Config.Ingestion.Enabled {
		ingestSched := scheduler.New(scheduler.Options{
			Name:      "ingestion",
			Interval:  a.Config.Ingestion.Interval,
			Immediate: true,
		}, a.Logger)
		tasks = append(tasks, scheduler.NewTask("ingestion", a.newIngestion(store, ingestSched).Run, a.Logger))
	} else {
		a.Logger.Warn().Msg("ingestion disabled; prices must be loaded by another process")
	}

	if a.Config.HTTP.Enabled {
		srv := httpapi.New(a.Config.HTTP.Addr, store, a.Logger)
		tasks = append(tasks, scheduler.NewTask("http", srv.Run, a.Logger))
	}

	a.Logger.Info().Str("build", version.Get().String()).Int("tasks", len(tasks)).Msg("starting fuelwatch")

	g, gctx := errgroup.WithContext(ctx)
	for _, task := range tasks {
		task := task
		if err := task.Start(gctx); err != nil {
			return err
		}
		g.Go(func() error {
			<-task.Done()
			return task.Stop()
		})
	}

	if err := g.Wait(); err != nil {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("fuelwatch stopped")
	return nil
}

// ExportOptions hold parameters for exporting trigger states.
type ExportOptions struct {
	PNGPath string
	CSVPath string
	MaxRows int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// SyncOptions select which ingestion operations to run.
type SyncOptions struct {
	Master bool
	Prices bool
}
