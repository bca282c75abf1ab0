package core

import (
	"database/sql"
	"fmt"
	"log"

	"github.com/narrate-go/narrate/internal/backend"
	"github.com/narrate-go/narrate/internal/channel"
	"github.com/narrate-go/narrate/internal/config"
	"github.com/narrate-go/narrate/internal/db"
	"github.com/narrate-go/narrate/internal/jobs"
	"github.com/narrate-go/narrate/internal/models"
	"github.com/narrate-go/narrate/internal/progress"
	"github.com/narrate-go/narrate/internal/reassembly"
	"github.com/narrate-go/narrate/internal/store"
	"github.com/narrate-go/narrate/internal/websocket"
)

// App holds the core components of the console that are shared between the
// relay server, the watch view and the one-shot CLI commands.
type App struct {
	config  *config.Config
	db      *sql.DB
	store   *store.Store
	conn    *channel.Connection
	router  *channel.Router
	tracker *progress.Tracker
	reasm   *reassembly.Reassembler
	client  *backend.Client
	manager *jobs.Manager
	wsHub   *websocket.Hub

	stopRelay func()
}

// New sets up and returns a new App instance. It handles loading the
// configuration, initializing the database connection, and running migrations.
// The channel is not connected until Start is called.
func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	database, err := db.InitDB(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := db.RunMigrations(database); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to run database migrations: %w", err)
	}

	app := NewWithDeps(cfg, database)

	// Runs left "running" by a previous process can never complete now.
	if n, err := app.store.FinishStaleRuns(); err != nil {
		log.Printf("Warning: could not close stale runs: %v", err)
	} else if n > 0 {
		log.Printf("Marked %d stale run(s) from a previous session as failed.", n)
	}

	log.Println("Core application setup complete.")
	return app, nil
}

// NewWithDeps wires an App around an already migrated database. database may
// be nil, which disables the analysis cache and run history.
func NewWithDeps(cfg *config.Config, database *sql.DB, opts ...channel.Option) *App {
	a := &App{
		config:  cfg,
		db:      database,
		router:  channel.NewRouter(),
		tracker: progress.NewTracker(),
		reasm:   reassembly.New(cfg.Channel.ReasoningOpen, cfg.Channel.ReasoningClose),
		client:  backend.New(cfg.Backend.BaseURL, cfg.RequestTimeout()),
		wsHub:   websocket.NewHub(),
	}
	if database != nil {
		a.store = store.New(database)
	}

	opts = append([]channel.Option{channel.WithReconnectDelay(cfg.ReconnectDelay())}, opts...)
	a.conn = channel.NewConnection(cfg.ChannelURL(), opts...)
	a.conn.OnEvent(a.router.Dispatch)
	a.conn.OnStateChange(func(s channel.State) {
		log.Printf("[channel] State: %s", s)
	})

	// Observers run in registration order: the models update before the
	// relay reads them.
	a.tracker.Attach(a.router)
	a.reasm.Attach(a.router)
	a.stopRelay = a.router.Observe(a.relay)

	a.manager = jobs.NewManager(a.client, a.tracker, a.reasm, a.store)
	return a
}

// relay forwards the model state an event produced to browser clients.
func (a *App) relay(ev models.Event) {
	switch ev.Kind {
	case models.KindProgress:
		p := a.tracker.Get(ev.JobID)
		a.wsHub.BroadcastJSON(models.RelayUpdate{JobID: ev.JobID, Kind: "progress", Progress: &p})
	case models.KindModelOutput:
		v := a.reasm.View(ev.JobID)
		a.wsHub.BroadcastJSON(models.RelayUpdate{JobID: ev.JobID, Kind: "view", View: &v})
	}
}

// Start runs the relay hub and opens the channel.
func (a *App) Start() {
	go a.wsHub.Run()
	a.conn.Connect()
}

func (a *App) Config() *config.Config { return a.config }
func (a *App) DB() *sql.DB { return a.db }
func (a *App) Store() *store.Store { return a.store }
func (a *App) Connection() *channel.Connection { return a.conn }
func (a *App) Router() *channel.Router { return a.router }
func (a *App) Tracker() *progress.Tracker { return a.tracker }
func (a *App) Reassembler() *reassembly.Reassembler { return a.reasm }
func (a *App) Backend() *backend.Client { return a.client }
func (a *App) JobManager() *jobs.Manager { return a.manager }
func (a *App) WsHub() *websocket.Hub { return a.wsHub }

// Close gracefully closes the application's resources: the channel, the
// completion watchers and the DB connection.
func (a *App) Close() {
	a.conn.Close()
	a.manager.Close()
	if a.stopRelay != nil {
		a.stopRelay()
	}
	if a.db != nil {
		a.db.Close()
	}
}
