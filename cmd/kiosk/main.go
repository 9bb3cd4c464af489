package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/hostelpass/internal/api"
	"github.com/your-org/hostelpass/internal/api/handlers"
	"github.com/your-org/hostelpass/internal/api/ws"
	"github.com/your-org/hostelpass/internal/camera"
	"github.com/your-org/hostelpass/internal/capture"
	"github.com/your-org/hostelpass/internal/config"
	"github.com/your-org/hostelpass/internal/geo"
	"github.com/your-org/hostelpass/internal/imaging"
	"github.com/your-org/hostelpass/internal/observability"
	"github.com/your-org/hostelpass/internal/session"
	"github.com/your-org/hostelpass/internal/snapshot"
	"github.com/your-org/hostelpass/internal/upstream"
	"github.com/your-org/hostelpass/internal/vision"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting attendance kiosk", "port", cfg.Server.Port, "vision_mode", cfg.Vision.Mode)

	// Device session (who is signed in on this kiosk)
	store, err := session.NewFileStore(cfg.Session.Path)
	if err != nil {
		slog.Error("open session store", "error", err)
		os.Exit(1)
	}

	client := upstream.NewClient(cfg.Upstream, store)

	// Optional snapshot archive
	var archive *snapshot.Store
	if cfg.Snapshot.Enabled() {
		archive, err = snapshot.NewStore(cfg.Snapshot)
		if err != nil {
			slog.Error("connect to snapshot storage", "error", err)
			os.Exit(1)
		}
		if err := archive.EnsureBucket(context.Background()); err != nil {
			slog.Warn("ensure snapshot bucket", "error", err)
		}
	}

	// WebSocket hub for the display UI
	hub := ws.NewHub()
	go hub.Run()

	// Face models — loaded in the background so the kiosk comes up
	// immediately; capture sessions wait on readiness.
	var engine *vision.Engine
	if cfg.Vision.Mode == config.VisionModeClient {
		ort.SetSharedLibraryPath(getONNXLibPath())
		if err := ort.InitializeEnvironment(); err != nil {
			slog.Error("onnx runtime init failed", "error", err)
			os.Exit(1)
		}
		defer ort.DestroyEnvironment()

		engine = vision.NewEngine(cfg.Vision)
		go func() {
			loadCtx, cancel := context.WithTimeout(context.Background(), cfg.Vision.LoadTimeout)
			defer cancel()
			if err := engine.Load(loadCtx); err != nil {
				slog.Error("load face models", "error", err)
			}
		}()
		defer engine.Close()
	}

	mgr := capture.NewManager(capture.Deps{
		Config:     cfg,
		Extractor:  engine,
		Locator:    geo.NewSource(cfg.Geo),
		Normalizer: imaging.NewNormalizer(cfg.Capture.MaxImageWidth, cfg.Capture.JPEGQuality),
		Archiver:   archiverOrNil(archive),
		Upstream:   client,
		Store:      store,
		NewMedia: func() capture.Media {
			return camera.New(cfg.Camera)
		},
		OnUpdate:     hub.BroadcastStatus,
		OnDetections: hub.BroadcastDetections,
	})
	defer mgr.Cancel()

	router := api.NewRouter(api.RouterConfig{
		APIKey:   cfg.Server.APIKey,
		Manager:  mgr,
		Upstream: client,
		Store:    store,
		Models:   modelUnitOrNil(engine),
		Snapshot: pingerOrNil(archive),
		Hub:      hub,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("kiosk API listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down kiosk...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("kiosk stopped")
}

// archiverOrNil keeps the typed-nil *snapshot.Store out of the Archiver
// interface; same for the readiness pingers below.
func archiverOrNil(s *snapshot.Store) capture.Archiver {
	if s == nil {
		return nil
	}
	return s
}

func pingerOrNil(s *snapshot.Store) handlers.Pinger {
	if s == nil {
		return nil
	}
	return s
}

func modelUnitOrNil(e *vision.Engine) handlers.ModelUnit {
	if e == nil {
		return nil
	}
	return e
}

// getONNXLibPath returns the ONNX Runtime shared library path.
func getONNXLibPath() string {
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "linux":
		return "libonnxruntime.so"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "onnxruntime.dll"
	}
}
