package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Geniuskaa/maraton_registration/internal/config"
	"github.com/Geniuskaa/maraton_registration/pkg/admin"
	"github.com/Geniuskaa/maraton_registration/pkg/api"
	"github.com/Geniuskaa/maraton_registration/pkg/auth"
	"github.com/Geniuskaa/maraton_registration/pkg/database"
	"github.com/Geniuskaa/maraton_registration/pkg/mail"
	"github.com/Geniuskaa/maraton_registration/pkg/metrics"
	"github.com/Geniuskaa/maraton_registration/pkg/registration"
	"github.com/Geniuskaa/maraton_registration/pkg/report"
)

const (
	LOGIN_PATH       = "/admin/login"
	RECENT_ATTEMPTS  = 20
	SHUTDOWN_TIMEOUT = 10 * time.Second
)

type attemptLister interface {
	RecentAttempts(ctx context.Context, limit int) ([]registration.Attempt, error)
}

type Server struct {
	ctx    context.Context
	logger *zap.Logger
	mux    *chi.Mux
	db     *database.Postgres
	serv   *http.Server
	cfg    *config.Entity
	client *api.Client

	loc       *time.Location
	metrics   *metrics.Collector
	submitter *registration.Submitter
	panel     *admin.Panel
	auth      *auth.Authenticator
	mailer    *mail.Sender
	attempts  attemptLister
	views     *views
}

// NewServer wires the front for the given backend client. db may be nil, in
// which case attempts are not recorded. The collector must be registered on
// the registry later passed to Init.
func NewServer(ctx context.Context, logger *zap.Logger, mux *chi.Mux, db *database.Postgres, conf *config.Entity,
	client *api.Client, collector *metrics.Collector) *Server {
	return &Server{ctx: ctx, logger: logger, mux: mux, db: db, cfg: conf, client: client, metrics: collector}
}

func (s *Server) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	s.mux.ServeHTTP(writer, request)
}

func (s *Server) Init(atom zap.AtomicLevel, reg *prometheus.Registry) {
	s.loc = admin.LoadLocation(s.cfg.App.Timezone)
	s.views = mustParseViews()
	s.auth = auth.New(s.cfg.Admin, s.logger)

	var recorder registration.AttemptRecorder
	if s.db != nil {
		recorder = s.db
		s.attempts = s.db
	}
	s.submitter = registration.NewSubmitter(s.client, s.logger, s.metrics, recorder)

	opts := []admin.PanelOption{admin.WithLoadCounter(s.metrics), admin.WithWorkbook(report.Workbook)}
	if s.cfg.Mail.Hostname != "" {
		s.mailer = mail.NewSender(s.cfg.Mail, s.logger)
		opts = append(opts, admin.WithReportMailer(s.mailer))
	}
	s.panel = admin.NewPanel(s.client, s.logger, s.loc, opts...)

	s.mux.Use(middleware.RequestID, middleware.RealIP, s.requestLogger, s.recoverer, s.metrics.RequestsMetricsMiddleware)

	s.mux.Get("/", s.handleForm)
	s.mux.Post("/register", s.handleRegister)
	s.mux.Get("/healthz", func(writer http.ResponseWriter, request *http.Request) {
		writer.WriteHeader(http.StatusNoContent)
	})
	s.mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	s.mux.Mount("/internal", s.internalRoutes(atom))

	s.mux.Route("/admin", func(r chi.Router) {
		r.Get("/login", s.handleLoginForm)
		r.Post("/login", s.handleLogin)
		r.Post("/logout", s.handleLogout)

		r.Group(func(r chi.Router) {
			r.Use(s.auth.Middleware(LOGIN_PATH))
			r.Get("/", s.handleAdmin)
			r.Post("/refresh", s.handleRefresh)
			r.Get("/export", s.handleExportCSV)
			r.Get("/export.xlsx", s.handleExportXLSX)
			r.Post("/report", s.handleReport)
			r.Get("/reprint", s.handleReprint)
			r.Get("/stats", s.handleStats)
		})
	})

	// Log level and backend timeout follow the config file without a restart.
	viper.OnConfigChange(func(e fsnotify.Event) {
		s.logger.Info(fmt.Sprintf("Config file changed: %s", e.Name))
		s.reload(atom)
	})
	if file := viper.ConfigFileUsed(); file != "" {
		if _, err := os.Stat(file); err == nil {
			viper.WatchConfig()
		}
	}
}

func (s *Server) reload(atom zap.AtomicLevel) {
	if lvl := viper.GetString(config.LOG_LEVEL); lvl != "" {
		var l zapcore.Level
		if err := l.UnmarshalText([]byte(lvl)); err != nil {
			s.logger.Warn("Unknown log level in config", zap.String("level", lvl))
		} else {
			atom.SetLevel(l)
		}
	}
	if secs := viper.GetInt(config.API_TIMEOUT_SECONDS); secs > 0 {
		s.client.SetTimeout(time.Duration(secs) * time.Second)
	}
}

func (s *Server) internalRoutes(atom zap.AtomicLevel) http.Handler {
	r := chi.NewRouter()
	r.Method(http.MethodGet, "/log-level", atom)
	r.Method(http.MethodPut, "/log-level", atom)
	return r
}

func (s *Server) Start(addr string) error {
	s.serv = &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-s.ctx.Done()
		ctx, cancel := context.WithTimeout(context.Background(), SHUTDOWN_TIMEOUT)
		defer cancel()
		if err := s.serv.Shutdown(ctx); err != nil {
			s.logger.Error("Shutdown failed", zap.Error(err))
		}
	}()

	s.logger.Info("Service successfully started", zap.String("addr", addr))
	if err := s.serv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("ListenAndServe failed: %w", err)
	}
	return nil
}

func (s *Server) recoverer(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {

		defer func() {
			if err := recover(); err != nil {
				if err == http.ErrAbortHandler {
					panic(err)
				}
				writer.WriteHeader(http.StatusInternalServerError)
				writer.Write([]byte("Something going wrong..."))
				s.logger.Error("panic occurred", zap.Any("panic", err), zap.String("path", request.URL.Path))
			}
		}()
		handler.ServeHTTP(writer, request)
	})
}

func (s *Server) requestLogger(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		ww := middleware.NewWrapResponseWriter(writer, request.ProtoMajor)
		start := time.Now()
		handler.ServeHTTP(ww, request)

		s.logger.Debug("Request served",
			zap.String("method", request.Method),
			zap.String("path", request.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(request.Context())))
	})
}
