package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/skobkin/machinecfg/internal/bus"
	"github.com/skobkin/machinecfg/internal/config"
	"github.com/skobkin/machinecfg/internal/connectors"
	"github.com/skobkin/machinecfg/internal/correlator"
	"github.com/skobkin/machinecfg/internal/device"
	"github.com/skobkin/machinecfg/internal/grbl"
	"github.com/skobkin/machinecfg/internal/i18n"
	"github.com/skobkin/machinecfg/internal/logging"
	"github.com/skobkin/machinecfg/internal/notifications"
	"github.com/skobkin/machinecfg/internal/persistence"
	"github.com/skobkin/machinecfg/internal/settings"
)

const journalWriterCapacity = 64

type Runtime struct {
	mu sync.RWMutex

	Ctx    context.Context
	cancel context.CancelFunc

	Paths  Paths
	Config config.AppConfig

	LogManager  *logging.Manager
	Bus         *bus.PubSubBus
	DB          *sql.DB
	ChangeRepo  *persistence.ChangeRepo
	WriterQueue *persistence.WriterQueue

	Translator          *i18n.Translator
	Settings            *settings.Store
	Correlator          *correlator.Correlator
	ConnectionTransport *SwitchableTransport
	Device              *device.Service
	MachineSettings     *MachineSettingsController

	// Ready is closed once the device connection is first established.
	Ready <-chan struct{}

	notifiersMu sync.RWMutex
	notifiers   notifications.Fanout

	connStatusMu    sync.RWMutex
	connStatus      connectors.ConnectionStatus
	connStatusKnown bool
}

func Initialize(parent context.Context) (*Runtime, error) {
	paths, err := ResolvePaths()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(paths.ConfigFile)
	if err != nil {
		return nil, err
	}

	return InitializeWith(parent, paths, cfg)
}

// InitializeWith builds the runtime from an already loaded config. The config
// is not written back until SaveAndApplyConfig is called. An incomplete
// connection section is accepted; the device service keeps retrying until it
// is fixed.
func InitializeWith(parent context.Context, paths Paths, cfg config.AppConfig) (*Runtime, error) {
	cfg.FillMissingDefaults()

	ctx, cancel := context.WithCancel(parent)
	rt := &Runtime{
		Ctx:    ctx,
		cancel: cancel,
		Paths:  paths,
		Config: cfg,
	}

	logMgr := logging.NewManager()
	if err := logMgr.Configure(cfg.Logging, paths.LogFile); err != nil {
		_ = logMgr.Close()
		cancel()

		return nil, fmt.Errorf("configure logging: %w", err)
	}
	rt.LogManager = logMgr
	slog.Info("starting machinecfg runtime", "version", BuildVersion(), "build_date", BuildDateYMD())

	translator, err := i18n.New(cfg.UI.Language)
	if err != nil {
		slog.Warn("load message catalog, falling back to english", "language", cfg.UI.Language, "error", err)
		translator = i18n.MustNew("en")
	}
	rt.Translator = translator
	slog.Debug("message catalog loaded", "language", translator.Language().String())

	db, err := persistence.Open(ctx, paths.DBFile)
	if err != nil {
		_ = rt.Close()

		return nil, err
	}
	rt.DB = db
	rt.ChangeRepo = persistence.NewChangeRepo(db)
	if removed, err := persistence.PruneHistory(ctx, db, HistoryRetention); err != nil {
		slog.Warn("prune settings history", "error", err)
	} else if removed > 0 {
		slog.Info("pruned settings history", "removed", removed, "kept", HistoryRetention)
	}

	b := bus.New(logMgr.Logger("bus"))
	rt.Bus = b
	bus.Listen(ctx, b, connectors.TopicConnStatus, func(status connectors.ConnectionStatus) bool {
		rt.setConnStatus(status)

		return true
	})
	rt.Ready = ConnectedSignal(ctx, b)

	writerQueue := persistence.NewWriterQueue(logMgr.Logger("persistence"), journalWriterCapacity)
	writerQueue.Start(ctx)
	rt.WriterQueue = writerQueue
	persistence.StartChangeJournal(ctx, b, writerQueue, rt.ChangeRepo, logMgr.Logger("persistence"))

	rt.notifiers = notifications.Fanout{
		notifications.NewLogSender(logMgr.Logger("notifications")),
		rt.desktopNotifier(notifications.NewDesktopSender(Name, logMgr.Logger("notifications.desktop"))),
	}

	rt.Correlator = correlator.New(b, logMgr.Logger("correlator"))
	rt.Correlator.Start(ctx)

	connTransport, err := NewConnectionTransport(cfg.Connection)
	if err != nil {
		_ = rt.Close()

		return nil, fmt.Errorf("initialize transport: %w", err)
	}
	rt.ConnectionTransport = connTransport

	rt.Device = device.NewService(logMgr.Logger("device"), b, rt.ConnectionTransport)

	rt.Settings = settings.NewStore()
	rt.MachineSettings = NewMachineSettingsController(MachineSettingsDeps{
		Store:     rt.Settings,
		Sender:    rt.Device,
		Catcher:   rt.Correlator,
		Processor: grbl.NewProcessor(),
		Notifier:  notifications.SenderFunc(rt.notify),
		Catalog:   translator,
		Bus:       b,
		Logger:    logMgr.Logger("app.machine_settings"),
	})

	rt.Device.Start(ctx)

	return rt, nil
}

// AddNotifier registers an additional notification backend, for example the in-window one.
func (r *Runtime) AddNotifier(sender notifications.Sender) {
	if sender == nil {
		return
	}
	r.notifiersMu.Lock()
	r.notifiers = append(r.notifiers, sender)
	r.notifiersMu.Unlock()
}

func (r *Runtime) notify(payload notifications.Payload) {
	r.notifiersMu.RLock()
	senders := append(notifications.Fanout(nil), r.notifiers...)
	r.notifiersMu.RUnlock()
	senders.Send(payload)
}

func (r *Runtime) desktopNotifier(desktop notifications.Sender) notifications.Sender {
	return notifications.SenderFunc(func(payload notifications.Payload) {
		if !r.CurrentConfig().UI.Notifications.Desktop {
			return
		}
		desktop.Send(payload)
	})
}

func (r *Runtime) CurrentConfig() config.AppConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.Config
}

func (r *Runtime) setConnStatus(status connectors.ConnectionStatus) {
	r.connStatusMu.Lock()
	r.connStatus = status
	r.connStatusKnown = true
	r.connStatusMu.Unlock()
}

func (r *Runtime) CurrentConnStatus() (connectors.ConnectionStatus, bool) {
	r.connStatusMu.RLock()
	status := r.connStatus
	known := r.connStatusKnown
	r.connStatusMu.RUnlock()

	return status, known
}

func (r *Runtime) SaveAndApplyConfig(cfg config.AppConfig) error {
	cfg.FillMissingDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	if err := config.Save(r.Paths.ConfigFile, cfg); err != nil {
		r.mu.Unlock()

		return err
	}
	previous := r.Config
	r.Config = cfg
	r.mu.Unlock()

	if err := r.LogManager.Configure(cfg.Logging, r.Paths.LogFile); err != nil {
		return err
	}

	if r.ConnectionTransport != nil && previous.Connection != cfg.Connection {
		if err := r.ConnectionTransport.Apply(cfg.Connection); err != nil {
			return err
		}
	}

	return nil
}

// History returns the most recent settings changes, newest first.
func (r *Runtime) History(ctx context.Context, limit int) ([]connectors.SubmitEvent, error) {
	if r.ChangeRepo == nil {
		return nil, fmt.Errorf("database is not initialized")
	}

	return r.ChangeRepo.ListRecent(ctx, limit)
}

func (r *Runtime) ClearHistory() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := persistence.ClearHistory(ctx, r.DB); err != nil {
		return err
	}
	slog.Info("settings history cleared")

	return nil
}

func (r *Runtime) Close() error {
	if r.cancel != nil {
		r.cancel()
	}
	if r.Bus != nil {
		r.Bus.Close()
	}
	if r.ConnectionTransport != nil {
		_ = r.ConnectionTransport.Close()
	}
	if r.DB != nil {
		_ = r.DB.Close()
	}
	if r.LogManager != nil {
		_ = r.LogManager.Close()
	}

	return nil
}
