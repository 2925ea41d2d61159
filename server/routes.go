package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/facebookgo/httpdown"
	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/ndlib/folio/bundle"
	"github.com/ndlib/folio/entity"
	"github.com/ndlib/folio/negotiate"
	"github.com/ndlib/folio/util"
)

// RESTServer holds the configuration for a folio REST API server.
//
// Set all the public fields and then call Run. Run will listen on the given
// address and handle requests. Do not change any fields after calling Run.
type RESTServer struct {
	// Listen is the address to listen on. defaults to ":14000"
	Listen string

	// Entities is the version store. Run will panic if it is nil.
	Entities *entity.Store

	// Builder writes bundles and manifests, and Reader serves them. Run
	// will panic if either is nil.
	Builder *bundle.Builder
	Reader  *bundle.Reader

	// Decoder turns the X-Api-Key header into a principal. If this is nil
	// every request is anonymous.
	Decoder TokenDecoder

	Log *zap.Logger

	// CORSOrigins lists the origins allowed to make cross site requests.
	// Empty means cross site requests are refused.
	CORSOrigins []string

	// MaxRebuilds is the number of /admin/rebuild requests admitted at
	// once. Extra requests are refused rather than queued. defaults to 1
	MaxRebuilds int

	server     httpdown.Server // used to close our listening socket
	negotiator *negotiate.Negotiator
	rebuilds   *util.Gate
	registry   *prometheus.Registry
}

var RequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "folio",
	Subsystem: "http",
	Name:      "request_duration_seconds",
	Buckets:   prometheus.DefBuckets,
}, []string{"method", "route", "status"})

// Run initializes the server and then blocks listening for and handling
// http requests.
func (s *RESTServer) Run() error {
	h := s.Handler()
	s.Log.Info("starting folio server", zap.String("version", Version), zap.String("listen", s.Listen))

	var err error
	hd := httpdown.HTTP{StopTimeout: 10 * time.Second}
	s.server, err = hd.ListenAndServe(&http.Server{
		Addr:    s.Listen,
		Handler: h,
	})
	if err != nil {
		s.Log.Error("listen", zap.Error(err))
		return err
	}
	return s.server.Wait()
}

// Stop will stop the server and return when the in-flight requests have
// finished and the socket is closed.
func (s *RESTServer) Stop() error {
	if s.rebuilds != nil {
		s.rebuilds.Stop()
	}
	if s.server == nil {
		return nil
	}
	return s.server.Stop()
}

// Handler fills in defaults and returns the complete handler chain. Run
// calls it; tests may call it directly.
func (s *RESTServer) Handler() http.Handler {
	if s.Entities == nil || s.Builder == nil || s.Reader == nil {
		panic("folio server needs Entities, Builder and Reader")
	}
	if s.Log == nil {
		s.Log = zap.NewNop()
	}
	if s.Listen == "" {
		s.Listen = ":14000"
	}
	if s.Decoder == nil {
		s.Log.Warn("no token decoder given, every request is anonymous")
		s.Decoder = NewAnonymousDecoder()
	}
	if s.MaxRebuilds <= 0 {
		s.MaxRebuilds = 1
	}
	s.negotiator = negotiate.New(s.Reader)
	s.rebuilds = util.NewGate(s.MaxRebuilds)
	s.registry = prometheus.NewRegistry()
	s.registry.MustRegister(RequestDuration)
	s.registry.MustRegister(bundle.Collectors()...)
	s.registry.MustRegister(negotiate.Collectors()...)

	c := cors.New(cors.Options{
		AllowedOrigins: s.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH"},
		AllowedHeaders: []string{"X-Api-Key", "Content-Type", "If-None-Match", "If-Match"},
		ExposedHeaders: []string{"ETag", "X-Request-Id"},
	})
	return c.Handler(s.addRoutes())
}

func (s *RESTServer) addRoutes() http.Handler {
	var routes = []struct {
		method  string
		route   string
		handler httprouter.Handle
	}{
		{"GET", "/entity-types", s.ListTypesHandler},
		{"GET", "/entity-types/:typeId", s.GetTypeHandler},
		{"PUT", "/entity-types/:typeId", s.PutTypeHandler},

		{"POST", "/entities", s.CreateEntityHandler},
		{"GET", "/entities", s.ListEntitiesHandler},
		{"GET", "/entities/:id", s.GetEntityHandler},
		{"GET", "/entities/:id/versions", s.VersionsHandler},
		{"PATCH", "/entities/:id", s.UpdateEntityHandler},
		{"POST", "/entities/:id/transition/:action", s.TransitionHandler},

		// the read only sync things
		{"GET", "/manifest/:scope", s.ManifestHandler},
		{"GET", "/bundle/:scope/:typeId", s.BundleHandler},
		{"POST", "/sync/:scope", s.SyncHandler},

		{"POST", "/admin/rebuild", s.RebuildHandler},

		// other
		{"GET", "/", WelcomeHandler},
		{"GET", "/metrics", s.MetricsHandler},
	}

	r := httprouter.New()
	for _, route := range routes {
		r.Handle(route.method,
			route.route,
			s.logWrapper(route.route, s.authWrapper(route.handler)))
	}
	r.NotFound = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, errNoRoute)
	})
	r.MethodNotAllowed = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, errNoMethod)
	})
	return r
}

// MetricsHandler serves this server's prometheus registry.
func (s *RESTServer) MetricsHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
}

type principalKey struct{}

// principal returns the principal the authWrapper stored in the request.
func principal(r *http.Request) entity.Principal {
	p, _ := r.Context().Value(principalKey{}).(entity.Principal)
	return p
}

// authWrapper returns a Handler which will first decode the user token and
// put the resulting principal in the request context. An unknown token is
// an anonymous principal; deciding what that principal may do is left to
// the handlers.
func (s *RESTServer) authWrapper(handler httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		token := r.Header.Get("X-Api-Key")
		p, err := s.Decoder.TokenDecode(token)
		if err != nil {
			s.Log.Error("decoding token", zap.Error(err))
			writeError(w, err)
			return
		}
		ctx := context.WithValue(r.Context(), principalKey{}, p)
		handler(w, r.WithContext(ctx), ps)
	}
}

// statusWriter remembers the status code written.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

// logWrapper takes a handler and returns a handler which does the same
// thing, and then logs the request with a fresh request id.
func (s *RESTServer) logWrapper(route string, handler httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		start := time.Now()
		id := uuid.New().String()
		w.Header().Set("X-Request-Id", id)
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		handler(sw, r, ps)
		elapsed := time.Since(start)
		RequestDuration.WithLabelValues(r.Method, route, strconv.Itoa(sw.status)).Observe(elapsed.Seconds())
		s.Log.Info("request",
			zap.String("id", id),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", sw.status),
			zap.Duration("elapsed", elapsed))
	}
}
