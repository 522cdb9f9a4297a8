package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"captiond/internal/app"
	"captiond/internal/config"
	"captiond/internal/httpapi"
)

func main() {
	// Flags with environment variable defaults
	defaultAddr := ":8090"
	if v := os.Getenv("CAPTIOND_ADDR"); v != "" {
		defaultAddr = v
	}
	addr := flag.String("addr", defaultAddr, "HTTP listen address, e.g. :8090")
	configPath := flag.String("config", "", "Optional config file (.yaml/.json/.toml)")
	modelsDir := flag.String("models-dir", "~/models/vlm", "Directory to scan for *.gguf model files")
	settingsPath := flag.String("settings", "", "Settings file path (defaults to ~/.config/captiond/settings.json)")
	captionTimeout := flag.Int("caption-timeout-sec", 300, "Per-image caption request timeout in seconds")
	corsOrigins := flag.String("cors-origins", "", "Comma-separated allowed CORS origins; empty disables CORS")
	flag.Parse()

	// Config file fills anything the flags left at their defaults.
	if *configPath != "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("failed to load config %s: %v", *configPath, err)
		}
		set := map[string]bool{}
		flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
		if !set["addr"] && cfg.Addr != "" {
			*addr = cfg.Addr
		}
		if !set["models-dir"] && cfg.ModelsDir != "" {
			*modelsDir = cfg.ModelsDir
		}
		if !set["settings"] && cfg.SettingsPath != "" {
			*settingsPath = cfg.SettingsPath
		}
		if !set["caption-timeout-sec"] && cfg.CaptionTimeoutSec > 0 {
			*captionTimeout = cfg.CaptionTimeoutSec
		}
		if cfg.LogLevel != "" && os.Getenv("CAPTIOND_LOG_LEVEL") == "" {
			os.Setenv("CAPTIOND_LOG_LEVEL", cfg.LogLevel)
		}
	}
	if *settingsPath == "" {
		*settingsPath = config.DefaultSettingsPath()
	}

	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	httpapi.SetLogger(logger)

	if *corsOrigins != "" {
		httpapi.SetCORSOptions(true,
			splitCSV(*corsOrigins),
			[]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			[]string{"Accept", "Content-Type", "X-Log-Level"},
		)
	}

	application := app.New(app.Options{
		SettingsPath:   *settingsPath,
		ModelsDir:      *modelsDir,
		CaptionTimeout: time.Duration(*captionTimeout) * time.Second,
	})

	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()
	httpapi.SetBaseContext(baseCtx)

	mux := httpapi.NewMux(application)
	srv := &http.Server{Addr: *addr, Handler: mux}

	go func() {
		logger.Info().Str("addr", *addr).Str("models_dir", *modelsDir).Msg("captiond listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Graceful shutdown (Ctrl+C / SIGTERM)
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	cancelBase()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	application.Shutdown(ctx)
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown error")
	}
}

// splitCSV splits a comma-separated flag value, trimming whitespace and
// skipping empty entries.
func splitCSV(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			item := trimSpace(s[start:i])
			if item != "" {
				out = append(out, item)
			}
			start = i + 1
		}
	}
	return out
}

func trimSpace(s string) string {
	for len(s) > 0 && (s[0] == ' ' || s[0] == '\t') {
		s = s[1:]
	}
	for len(s) > 0 && (s[len(s)-1] == ' ' || s[len(s)-1] == '\t') {
		s = s[:len(s)-1]
	}
	return s
}
