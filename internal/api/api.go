package api

import (
	"database/sql"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/byosamah/volteria-sub006/internal/dispatch"
	"github.com/byosamah/volteria-sub006/internal/repository"
)

// Reverse tunnel port range assigned to controllers
const (
	DefaultPortRangeMin = 2230
	DefaultPortRangeMax = 2299
)

// API holds repository dependencies for clean data access
type API struct {
	siteRepo       repository.SiteRepository
	controllerRepo repository.ControllerRepository
	commandRepo    repository.CommandRepository
	heartbeatRepo  repository.HeartbeatRepository
	portRepo       repository.PortAllocationRepository

	queue      *dispatch.Queue
	submitter  *dispatch.Submitter
	classifier *dispatch.Classifier

	portRangeMin      int
	portRangeMax      int
	livenessThreshold time.Duration
}

// Options overrides the API's product defaults. Zero values keep the default.
type Options struct {
	PortRangeMin      int
	PortRangeMax      int
	LivenessThreshold time.Duration
	AwaitTimeout      time.Duration
	PollInterval      time.Duration
}

// NewAPI creates a new API instance with repositories initialized from the database
func NewAPI(db *sql.DB) *API {
	return NewAPIWithOptions(db, Options{})
}

// NewAPIWithOptions creates an API with tuned timing and port range,
// used by the server entrypoint to apply configuration
func NewAPIWithOptions(db *sql.DB, opts Options) *API {
	controllerRepo := repository.NewControllerRepository(db)
	commandRepo := repository.NewCommandRepository(db)
	heartbeatRepo := repository.NewHeartbeatRepository(db)

	queue := dispatch.NewQueue(commandRepo, controllerRepo)
	submitter := dispatch.NewSubmitter(queue)
	if opts.AwaitTimeout > 0 {
		submitter.Timeout = opts.AwaitTimeout
	}
	if opts.PollInterval > 0 {
		submitter.PollInterval = opts.PollInterval
	}

	a := &API{
		siteRepo:          repository.NewSiteRepository(db),
		controllerRepo:    controllerRepo,
		commandRepo:       commandRepo,
		heartbeatRepo:     heartbeatRepo,
		portRepo:          repository.NewPortAllocationRepository(db),
		queue:             queue,
		submitter:         submitter,
		classifier:        dispatch.NewClassifier(heartbeatRepo),
		portRangeMin:      DefaultPortRangeMin,
		portRangeMax:      DefaultPortRangeMax,
		livenessThreshold: dispatch.DefaultLivenessThreshold,
	}
	if opts.PortRangeMin > 0 {
		a.portRangeMin = opts.PortRangeMin
	}
	if opts.PortRangeMax > 0 {
		a.portRangeMax = opts.PortRangeMax
	}
	if opts.LivenessThreshold > 0 {
		a.livenessThreshold = opts.LivenessThreshold
	}
	return a
}

// RegisterRoutes registers all API endpoints to the given chi router.
func (a *API) RegisterRoutes(r chi.Router) {
	sites := NewSites(a)
	controllers := NewControllers(a)
	commands := NewCommands(a)
	heartbeats := NewHeartbeats(a)
	liveness := NewLiveness(a)
	ports := NewPorts(a)

	// Sites endpoints group
	r.Route("/api/v0/sites", func(r chi.Router) {
		r.Get("/", sites.ListSitesHandler)
		r.Post("/", sites.CreateSiteHandler)
		r.Get("/{id}", sites.GetSiteHandler)
		r.Delete("/{id}", sites.DeleteSiteHandler)
		r.Get("/name/{name}", sites.GetSiteByNameHandler)
		r.Get("/{id}/controllers", controllers.ListSiteControllersHandler)
		r.Get("/{id}/liveness", liveness.SiteLivenessHandler)
	})

	// Controllers endpoints group, including the controller-facing
	// dispatch, heartbeat, and tunnel port surfaces
	r.Route("/api/v0/controllers", func(r chi.Router) {
		r.Get("/", controllers.ListControllersHandler)
		r.Post("/", controllers.CreateControllerHandler)
		r.Get("/{id}", controllers.GetControllerHandler)
		r.Delete("/{id}", controllers.DeleteControllerHandler)
		r.Get("/name/{name}", controllers.GetControllerByNameHandler)
		r.Get("/{id}/commands", commands.PollCommandsHandler)
		r.Post("/{id}/heartbeats", heartbeats.RecordHeartbeatHandler)
		r.Get("/{id}/heartbeats", heartbeats.ListHeartbeatsHandler)
		r.Get("/{id}/heartbeats/latest", heartbeats.LatestHeartbeatHandler)
		r.Get("/{id}/liveness", liveness.ControllerLivenessHandler)
		r.Post("/{id}/port", ports.AllocatePortHandler)
		r.Get("/{id}/port", ports.GetPortHandler)
		r.Delete("/{id}/port", ports.ReleasePortHandler)
	})

	// Commands endpoints group
	r.Route("/api/v0/commands", func(r chi.Router) {
		r.Post("/", commands.SubmitCommandHandler)
		r.Post("/sync", commands.SubmitSyncCommandHandler)
		r.Post("/batch", commands.SubmitBatchHandler)
		r.Get("/{id}", commands.GetCommandHandler)
		r.Post("/{id}/ack", commands.AckCommandHandler)
		r.Post("/{id}/status", commands.ReportStatusHandler)
	})

	// Ports endpoints group
	r.Route("/api/v0/ports", func(r chi.Router) {
		r.Get("/", ports.ListPortsHandler)
	})
}
