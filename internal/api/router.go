// Package api exposes the catalog and the session planner over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"trackly/internal/geo"
	"trackly/internal/session"
	"trackly/internal/transit"
)

type Catalog interface {
	Buses() []transit.Bus
	Bus(vehicle string) (transit.Bus, bool)
	Refresh(ctx context.Context) (int, error)
	LoadedAt() time.Time
	Decode(encoded string) ([]geo.Point, error)
}

type Planner interface {
	Plan(ctx context.Context, q session.Query) (session.Plan, error)
	Get(id string) (session.Session, bool)
	Delete(id string) bool
}

type Server struct {
	catalog Catalog
	planner Planner
	started time.Time
}

func NewServer(catalog Catalog, planner Planner) *Server {
	return &Server{catalog: catalog, planner: planner, started: time.Now()}
}

// RegisterRoutes mounts the API on router.
func (s *Server) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/health", s.Health).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/buses", s.ListBuses).Methods(http.MethodGet)
	api.HandleFunc("/buses/refresh", s.RefreshBuses).Methods(http.MethodPost)
	api.HandleFunc("/buses/{vehicle}/route", s.BusRoute).Methods(http.MethodGet)
	api.HandleFunc("/sessions", s.CreatePlan).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}", s.GetSession).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}", s.DeleteSession).Methods(http.MethodDelete)
}

// Handler returns the full middleware-wrapped router.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	s.RegisterRoutes(r)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	return Chain(r, Recovery, Logging, CORS)
}
