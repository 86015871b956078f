package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/janelia-flyem/omerokv/memstore"
	"github.com/janelia-flyem/omerokv/omerokv"
	"github.com/rs/cors"
	"github.com/zenazn/goji/web"
	"github.com/zenazn/goji/web/middleware"
)

// WebAPIPath is the prefix of all HTTP API calls.
const WebAPIPath = "/api/"

// Server exposes a memstore.Store through the store HTTP API.
type Server struct {
	config Config
	store  *memstore.Store
	mux    *web.Mux

	handler http.Handler

	blocks blockList

	mu      sync.RWMutex
	revoked map[string]struct{}

	unavailable bool // annotation queries fail with 503 if set
}

// New returns a server over the given store.  A nil store gets a fresh empty one.
func New(config Config, store *memstore.Store) *Server {
	if store == nil {
		store = memstore.New()
	}
	s := &Server{
		config:  config,
		store:   store,
		mux:     web.New(),
		revoked: make(map[string]struct{}),
	}
	s.initRoutes()
	if config.BlockListFile != "" {
		if err := s.LoadBlockListFile(config.BlockListFile); err != nil {
			omerokv.Errorf("unable to load blocklist, serving without one: %v\n", err)
		}
	}
	if len(config.CorsDomains) != 0 {
		c := cors.New(cors.Options{
			AllowedOrigins:   config.CorsDomains,
			AllowedMethods:   []string{"GET", "POST", "DELETE"},
			AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-Id"},
			AllowCredentials: true,
		})
		s.handler = c.Handler(s.mux)
	} else {
		s.handler = s.mux
	}
	return s
}

// Store returns the backing store so tests and tutorials can seed it directly.
func (s *Server) Store() *memstore.Store {
	return s.store
}

// SetQueryUnavailable makes annotation queries fail with 503 Service Unavailable,
// emulating a lost connection to the platform's query service.
func (s *Server) SetQueryUnavailable(unavailable bool) {
	s.mu.Lock()
	s.unavailable = unavailable
	s.mu.Unlock()
}

func (s *Server) queryUnavailable() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unavailable
}

func (s *Server) initRoutes() {
	s.mux.Use(middleware.EnvInit)
	s.mux.Use(middleware.RequestID)
	s.mux.Use(recoverHandler)
	s.mux.Use(s.isAuthorized)
	s.mux.Use(s.blockRequests)

	s.mux.Get("/api/version", versionHandler)
	s.mux.Post("/api/session", s.createSessionHandler)
	s.mux.Delete("/api/session", s.closeSessionHandler)

	s.mux.Post("/api/project", s.createProjectHandler)
	s.mux.Post("/api/dataset", s.createDatasetHandler)
	s.mux.Post("/api/project/:id/datasets/:did", s.linkDatasetHandler)
	s.mux.Get("/api/project/:id/datasets", s.projectDatasetsHandler)
	s.mux.Get("/api/dataset/:id/images", s.datasetImagesHandler)
	s.mux.Post("/api/dataset/:id/images/:iid", s.linkImageHandler)
	s.mux.Post("/api/dataset/:id/import", s.importHandler)

	s.mux.Get("/api/images", s.allImagesHandler)
	s.mux.Get("/api/image/:id", s.imageHandler)
	s.mux.Post("/api/image", s.createImageHandler)
	s.mux.Get("/api/image/:id/plane/:z/:c/:t", s.planeHandler)
	s.mux.Get("/api/image/:id/annotations", s.annotationsHandler)

	s.mux.Get("/api/find/:type", s.findHandler)
	s.mux.Post("/api/:type/:id/annotations", s.addAnnotationHandler)
	s.mux.Get("/api/query/annotation", s.queryHandler)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Serve listens on the configured address until the context is done.  Stay-alive
// connections are not allowed to hog goroutines for more than an hour.
func (s *Server) Serve(ctx context.Context) error {
	address := s.config.address()
	src := &http.Server{
		Addr:        address,
		Handler:     s,
		ReadTimeout: 1 * time.Hour,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := src.Shutdown(shutdownCtx); err != nil {
			omerokv.Errorf("shutting down web server: %v\n", err)
		}
	}()
	omerokv.Infof("Web server listening at %s ...\n", address)
	if err := src.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
