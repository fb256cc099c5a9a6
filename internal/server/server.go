// Package server exposes stop search, arrival boards, nearby stops and
// favorites over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"mtd-arrivals/internal/arrivals"
	"mtd-arrivals/internal/favorites"
	"mtd-arrivals/internal/geo"
	"mtd-arrivals/internal/stops"
	"mtd-arrivals/internal/transit"
)

// BoardSource renders the current arrival board of a stop.
type BoardSource interface {
	Board(ctx context.Context, stopID string) (arrivals.Board, error)
}

// NearbySource lists stops around a point.
type NearbySource interface {
	GetStopsByLatLon(ctx context.Context, p geo.Point) ([]transit.NearbyStop, error)
}

// LiveStream serves a websocket of live boards for a stop.
type LiveStream interface {
	ServeStop(w http.ResponseWriter, r *http.Request, stopID string)
}

type Options struct {
	Logger      *zap.Logger
	Index       *stops.Index
	Favorites   favorites.Store
	Boards      BoardSource
	Nearby      NearbySource
	Stream      LiveStream // optional
	CORSOrigins []string
	StaticDir   string
}

type Server struct {
	logger   *zap.Logger
	index    *stops.Index
	favs     favorites.Store
	boards   BoardSource
	nearby   NearbySource
	stream   LiveStream
	validate *validator.Validate
	opts     Options
}

func New(opts Options) *Server {
	return &Server{
		logger:   opts.Logger,
		index:    opts.Index,
		favs:     opts.Favorites,
		boards:   opts.Boards,
		nearby:   opts.Nearby,
		stream:   opts.Stream,
		validate: validator.New(),
		opts:     opts,
	}
}

// Routes builds the chi router.
func (s *Server) Routes() http.Handler {
	origins := s.opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", clientIDHeader},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)

	r.Route("/api", func(r chi.Router) {
		r.Get("/stops", s.searchStops)
		r.Get("/stops/{stopID}", s.getStop)
		r.Get("/stops/{stopID}/arrivals", s.getArrivals)
		r.Get("/nearby", s.getNearby)

		r.Get("/favorites", s.listFavorites)
		r.Put("/favorites/{stopID}", s.addFavorite)
		r.Delete("/favorites/{stopID}", s.removeFavorite)
		r.Post("/favorites/{stopID}/toggle", s.toggleFavorite)
	})

	if s.stream != nil {
		r.Get("/ws/stops/{stopID}", s.streamStop)
	}

	if s.opts.StaticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(s.opts.StaticDir)))
	}
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
