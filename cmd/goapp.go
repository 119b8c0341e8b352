package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.10.0"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Geniuskaa/maraton_registration/internal/config"
	"github.com/Geniuskaa/maraton_registration/pkg/api"
	"github.com/Geniuskaa/maraton_registration/pkg/database"
	"github.com/Geniuskaa/maraton_registration/pkg/metrics"
	"github.com/Geniuskaa/maraton_registration/pkg/server"
)

const (
	service     = "maraton-registration"
	environment = "production"
	id          = 1
)

var (
	cfgFile string
	conf    *config.Entity
	logger  *zap.Logger
	atom    zap.AtomicLevel
)

var rootCmd = &cobra.Command{
	Use:           "goapp",
	Short:         "Registration front for the LMA 2025 marathon",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == hashPasswordCmd.Name() {
			return nil
		}

		var err error
		conf, err = config.NewConfig(cfgFile)
		if err != nil {
			return err
		}

		// The server logs to stdout like before, CLI output owns stdout otherwise.
		var console io.Writer = os.Stderr
		if cmd.Name() == serveCmd.Name() {
			console = os.Stdout
		}
		logger, atom, err = loggerInit(conf.Log, console)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the registration form and the admin panel",
	RunE: func(cmd *cobra.Command, args []string) error {
		return execute(cmd.Context(), net.JoinHostPort(conf.App.Host, conf.App.Port))
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", config.DefaultConfigFile, "env file with the configuration")
	rootCmd.AddCommand(serveCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func execute(ctx context.Context, addr string) (err error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdown := setupTracing(ctx)
	defer shutdown()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.New(reg)

	db, closeDB := openDatabase(ctx)
	defer closeDB()

	client := api.NewClient(conf.Api.Base, conf.Api.Timeout(), logger, api.WithObserver(collector))

	mux := chi.NewRouter()
	application := server.NewServer(ctx, logger, mux, db, conf, client, collector)
	application.Init(atom, reg)

	return application.Start(addr)
}

// openDatabase connects the attempt log when DB_HOST is set. Without it the
// service runs with a nil database.
func openDatabase(ctx context.Context) (*database.Postgres, func()) {
	if !conf.DB.Enabled() {
		logger.Info("DB_HOST is empty, registration attempts are not recorded")
		return nil, func() {}
	}

	pool := database.PoolCreation(ctx, logger, conf) // Panics if something gone wrong
	db := database.NewPostgres(pool)
	if err := db.Migrate(ctx); err != nil {
		logger.Panic("Err migrating DB", zap.Error(err))
	}
	return db, pool.Close
}

func setupTracing(ctx context.Context) func() {
	if conf.Jag.Dsn == "" {
		return func() {}
	}

	tp, err := tracerProvider(conf.Jag.Dsn)
	if err != nil {
		logger.Error("Error when setting up tracer", zap.Error(err))
		return func() {}
	}
	otel.SetTracerProvider(tp)

	return func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second*5)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Error("Tracer shutdown failed", zap.Error(err))
		}
	}
}

func loggerInit(conf config.Log, console io.Writer) (*zap.Logger, zap.AtomicLevel, error) {

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(time.RFC1123Z)
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	fileEncoder := zapcore.NewJSONEncoder(encoderConfig)
	consoleEncoder := zapcore.NewConsoleEncoder(encoderConfig)

	atom := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if err := atom.UnmarshalText([]byte(conf.Level)); err != nil {
		return nil, atom, fmt.Errorf("loggerInit failed: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(conf.File), 0o755); err != nil {
		return nil, atom, fmt.Errorf("loggerInit failed: %w", err)
	}
	file, err := os.OpenFile(conf.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return nil, atom, fmt.Errorf("loggerInit failed: %w", err)
	}

	writeSyncer := zapcore.AddSync(file)
	core := zapcore.NewTee(
		zapcore.NewCore(fileEncoder, writeSyncer, atom),
		zapcore.NewCore(consoleEncoder, zapcore.AddSync(console), atom),
	)

	return zap.New(core), atom, nil
}

func tracerProvider(url string) (*tracesdk.TracerProvider, error) {
	exp, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(url)))
	if err != nil {
		return nil, err
	}
	tp := tracesdk.NewTracerProvider(
		tracesdk.WithBatcher(exp),
		tracesdk.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(service),
			attribute.String("environment", environment),
			attribute.Int64("ID", id),
		)),
	)
	return tp, nil
}
