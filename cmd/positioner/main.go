// Command positioner is an operator console for placing properties on
// neighborhood panoramas. It drives the headless engine and persists every
// placement through the configured storage backend.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/estate360/positioner/internal/api"
	"github.com/estate360/positioner/internal/config"
	"github.com/estate360/positioner/internal/dispatcher"
	"github.com/estate360/positioner/internal/engine"
	"github.com/estate360/positioner/internal/engine/headless"
	"github.com/estate360/positioner/internal/handlers"
	"github.com/estate360/positioner/internal/influx"
	"github.com/estate360/positioner/internal/logging"
	"github.com/estate360/positioner/internal/monitor"
	intOtel "github.com/estate360/positioner/internal/otel"
	"github.com/estate360/positioner/internal/positioner"
	"github.com/estate360/positioner/internal/storage"
	pgstorage "github.com/estate360/positioner/internal/storage/postgres"
	"github.com/estate360/positioner/internal/viewer"
	"github.com/estate360/positioner/internal/worker"
	"github.com/estate360/positioner/pkg/core"

	"github.com/rs/zerolog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// module defs - BuildDate can be set at build time via ldflags
var (
	CurrentVersion string = "0.0.1"
	BuildDate      string = "unknown"

	AppName string = "positioner"
)

// global variables
var (
	// SlogManager handles all slog-based logging
	SlogManager *logging.SlogManager

	// Logger is the slog logger (convenience reference)
	Logger *slog.Logger

	// OTelProvider handles OpenTelemetry
	OTelProvider *intOtel.Provider

	SessionStartTime time.Time = time.Now()

	handlerService *handlers.Service
)

func main() {
	configDir := "."
	if len(os.Args) > 1 {
		configDir = os.Args[1]
	}

	SlogManager = logging.NewSlogManager()
	SlogManager.Setup(nil, "info", nil)
	Logger = SlogManager.Logger()

	if err := config.Load(configDir); err != nil {
		Logger.Warn("Failed to load config, using defaults!", "error", err)
	} else {
		Logger.Info("Loaded config", "dir", configDir)
	}

	logFile := setupLogging()
	if logFile != nil {
		defer logFile.Close()
	}
	Logger.Info("Starting up...", "version", CurrentVersion, "buildDate", BuildDate)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Stdin, os.Stdout, logFile); err != nil {
		Logger.Error("Positioner stopped with error", "error", err)
	}

	if OTelProvider != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := OTelProvider.Shutdown(shutdownCtx); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to shut down OTel provider: %v\n", err)
		}
		cancel()
	}
}

// setupLogging opens the session log file and re-points the slog manager at
// it, with Graylog and OTel when configured.
func setupLogging() *os.File {
	logFilePath := logging.LogFilePath(config.GetString("logsDir"), AppName, SessionStartTime)
	logFile, err := logging.OpenLogFile(logFilePath)
	if err != nil {
		Logger.Error("Failed to create/open log file!", "error", err, "path", logFilePath)
		return nil
	}

	otelCfg := config.GetOTelConfig()
	if otelCfg.Enabled {
		OTelProvider, err = intOtel.New(intOtel.Config{
			Enabled:        otelCfg.Enabled,
			ServiceName:    otelCfg.ServiceName,
			ServiceVersion: CurrentVersion,
			BatchTimeout:   otelCfg.BatchTimeout,
			LogWriter:      logFile,
			Endpoint:       otelCfg.Endpoint,
			Insecure:       otelCfg.Insecure,
		})
		if err != nil {
			Logger.Error("Failed to initialize OTel provider", "error", err)
		} else {
			Logger.Info("OTel provider initialized", "file", logFilePath, "endpoint", otelCfg.Endpoint)
		}
	}

	opts := []logging.SetupOption{
		logging.WithContextProvider(func() []slog.Attr {
			if handlerService == nil {
				return nil
			}
			return handlerService.LogAttrs()
		}),
	}
	if gl := config.GetGraylogConfig(); gl.Enabled {
		w, err := logging.NewGraylogWriter(gl.Address)
		if err != nil {
			Logger.Warn("Failed to connect to Graylog", "error", err, "address", gl.Address)
		} else {
			opts = append(opts, logging.WithGraylog(w))
		}
	}

	var otelLogProvider *sdklog.LoggerProvider
	if OTelProvider != nil {
		otelLogProvider = OTelProvider.LoggerProvider()
	}
	SlogManager.Setup(logFile, config.GetString("logLevel"), otelLogProvider, opts...)
	Logger = SlogManager.Logger()
	slog.SetDefault(Logger)
	Logger.Info("Logging to file", "path", logFilePath)
	return logFile
}

// run wires the positioner stack and reads commands from in until quit,
// end of input or ctx is cancelled.
func run(ctx context.Context, in io.Reader, out io.Writer, logFile *os.File) error {
	apiCfg := config.GetAPIConfig()
	var apiClient *api.Client
	if apiCfg.ServerURL != "" {
		apiClient = api.New(apiCfg.ServerURL, apiCfg.APIKey)
		if err := apiClient.Healthcheck(); err != nil {
			Logger.Warn("Panorama service not reachable", "error", err, "url", apiCfg.ServerURL)
		}
	}

	var zlogOut io.Writer = os.Stderr
	if logFile != nil {
		zlogOut = logFile
	}
	zlog := zerolog.New(zlogOut).With().Timestamp().Str("service", AppName).Logger()

	storageCfg := config.GetStorageConfig()
	backend, err := createStorageBackend(storageCfg, apiCfg, Logger)
	if err != nil {
		return fmt.Errorf("failed to create storage backend: %w", err)
	}
	if err := backend.Init(); err != nil {
		return fmt.Errorf("failed to initialize storage backend: %w", err)
	}

	workerDeps := worker.Dependencies{Logger: Logger, Context: ctx}
	influxManager := influx.NewManager(config.GetInfluxConfig(), zlog,
		filepath.Join(config.GetString("logsDir"), "placements.influx.gz"))
	switch err := influxManager.Connect(ctx); {
	case err == nil:
		workerDeps.Influx = influxManager
	case errors.Is(err, influx.ErrDisabled):
		Logger.Debug("Influx telemetry disabled")
	default:
		Logger.Warn("Influx telemetry unavailable", "error", err)
	}
	if apiClient != nil {
		workerDeps.Remote = apiClient
	}

	workerManager := worker.NewManager(workerDeps, backend)
	eventDispatcher, err := dispatcher.New[worker.Job]("worker", logging.NewDispatcherLogger(zlog))
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}
	workerManager.RegisterHandlers(eventDispatcher)

	viewerCfg := config.GetViewerConfig()
	markerCfg := config.GetMarkerConfig()
	eng := headless.New(imageLoader(apiClient, apiCfg.ProbeImage),
		headless.WithEventBuffer(viewerCfg.EventBuffer),
		headless.WithLogger(Logger))

	deps := handlers.Dependencies{
		Engine:     eng,
		Dispatcher: eventDispatcher,
		Worker:     workerManager,
		LogManager: SlogManager,
		Context:    ctx,
		Degrees:    viewerCfg.Degrees,
		Options: []positioner.Option{
			positioner.WithLogger(Logger),
			positioner.WithDispatcherLogger(logging.NewDispatcherLogger(zlog)),
			positioner.WithViewerConfig(viewer.Config{
				Container: viewerCfg.Container,
				Options: engine.Options{
					DefaultZoom: viewerCfg.DefaultZoom,
					Navbar:      viewerCfg.Navbar,
				},
			}),
			positioner.WithDraftSpec(markerCfg.Draft),
			positioner.WithLayerSpec(markerCfg.Property),
			positioner.WithDisplayHandler(func(ds core.DisplayState) {
				fmt.Fprintf(out, "\n» %s\n", handlers.FormatDisplay(ds))
			}),
		},
	}
	if apiClient != nil {
		deps.Directory = apiClient
	}
	handlerService = handlers.NewService(deps)

	monitorService := startMonitor(workerManager, backend)

	err = repl(ctx, in, out, handlerService)

	Logger.Info("Shutting down...")
	if monitorService != nil {
		monitorService.Stop()
	}
	handlerService.Close()
	if cerr := eventDispatcher.Close(); cerr != nil {
		Logger.Error("Failed to close dispatcher", "error", cerr)
	}
	if cerr := backend.Close(); cerr != nil {
		Logger.Error("Failed to close storage backend", "error", cerr)
	}
	if OTelProvider != nil {
		_ = OTelProvider.Flush(context.Background())
	}
	uploadExport(backend, apiClient, Logger)
	if workerDeps.Influx != nil {
		if cerr := influxManager.Close(); cerr != nil {
			Logger.Error("Failed to close influx", "error", cerr)
		}
	}
	Logger.Info("Session finished",
		"saved", workerManager.Saved(),
		"cleared", workerManager.Cleared(),
		"failed", workerManager.Failed())
	return err
}

// startMonitor keeps the status file current while the console runs.
func startMonitor(workerManager *worker.Manager, backend storage.Backend) *monitor.Service {
	monitorCfg := config.GetMonitorConfig()
	if !monitorCfg.Enabled {
		return nil
	}
	deps := monitor.Dependencies{
		LogManager:    SlogManager,
		WorkerManager: workerManager,
		Display:       handlerService.Display,
		StatusPath:    monitorCfg.StatusPath,
		Interval:      monitorCfg.Interval,
	}
	if pg, ok := backend.(*pgstorage.Backend); ok {
		deps.Pending = pg.Pending
	}
	svc := monitor.NewService(deps)
	if err := svc.Start(); err != nil {
		Logger.Warn("Failed to start status monitor", "error", err)
		return nil
	}
	return svc
}

// imageLoader probes panorama images through the API when enabled, otherwise
// every image loads.
func imageLoader(client *api.Client, probe bool) headless.Loader {
	if client != nil && probe {
		return client
	}
	return headless.LoaderFunc(func(context.Context, string) error { return nil })
}

// repl reads one command per line. Scanning runs on its own goroutine so
// a signal can end the session while waiting for input.
func repl(ctx context.Context, in io.Reader, out io.Writer, svc *handlers.Service) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	fmt.Fprintln(out, `panorama positioner ready, type "help" for commands`)
	for {
		fmt.Fprint(out, "> ")
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return nil
		case err := <-scanErr:
			return err
		case line := <-lines:
			result, err := svc.Execute(line)
			switch {
			case errors.Is(err, handlers.ErrQuit):
				return nil
			case err != nil:
				fmt.Fprintf(out, "error: %v\n", err)
			case result != "":
				fmt.Fprintln(out, result)
			}
		}
	}
}
