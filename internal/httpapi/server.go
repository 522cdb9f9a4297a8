package httpapi

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"captiond/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	StartServer(cfg types.ServerConfig) (types.ServerStatusResponse, error)
	StopServer() error
	ServerStatus() types.ServerStatusResponse
	ServerLogs() []string

	Queue() []types.WorkItem
	Enqueue(folderPath, prompt string) (types.WorkItem, error)
	Dequeue(id int) bool
	SetPrompt(id int, prompt string) bool

	StartBatch(overwrite bool) (bool, error)
	StopBatch()
	BatchProgress() types.BatchProgressResponse
	StatusSince(seq int64) []types.StatusLine

	Models() ([]types.Model, error)
	DetectBinary() string
	Settings() types.Settings
	UpdateSettings(s types.Settings) types.Settings

	ListCaptions(dir string) ([]types.CaptionResponse, error)
	LoadCaption(imagePath string) (types.CaptionResponse, error)
	SaveCaption(imagePath, text string) error
	MoveKeyword(req types.MoveRequest) (types.MoveResponse, error)

	VRAM(ctx context.Context) (types.VRAMInfo, error)
	KillGPU(ctx context.Context) (int, error)
}

// NewMux builds the daemon's HTTP router.
func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	// Compression for JSON endpoints
	r.Use(middleware.Compress(5))
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	r.Use(MetricsMiddleware)
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
		}))
	}

	r.Route("/server", func(r chi.Router) {
		r.Post("/start", func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			var req types.StartServerRequest
			if !decodeJSON(w, r, &req) {
				return
			}
			resp, err := svc.StartServer(req.Config)
			if err != nil {
				writeError(w, err)
				logRequest(r, statusFor(err), start, err)
				return
			}
			writeJSON(w, http.StatusOK, resp)
			logRequest(r, http.StatusOK, start, nil)
		})
		r.Post("/stop", func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			if err := svc.StopServer(); err != nil {
				writeError(w, err)
				logRequest(r, statusFor(err), start, err)
				return
			}
			// stop is asynchronous: the process group is signaled, not reaped
			writeJSON(w, http.StatusAccepted, svc.ServerStatus())
			logRequest(r, http.StatusAccepted, start, nil)
		})
		r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, svc.ServerStatus())
		})
		r.Get("/logs", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"lines": svc.ServerLogs()})
		})
	})

	r.Route("/queue", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, types.QueueResponse{Items: svc.Queue()})
		})
		r.Post("/", func(w http.ResponseWriter, r *http.Request) {
			var req types.EnqueueRequest
			if !decodeJSON(w, r, &req) {
				return
			}
			item, err := svc.Enqueue(req.FolderPath, req.Prompt)
			if err != nil {
				writeJSONError(w, http.StatusBadRequest, err.Error())
				return
			}
			writeJSON(w, http.StatusCreated, item)
		})
		r.Delete("/{id}", func(w http.ResponseWriter, r *http.Request) {
			id, ok := pathID(w, r)
			if !ok {
				return
			}
			if !svc.Dequeue(id) {
				// either unknown or currently processing; both refuse removal
				writeJSONError(w, http.StatusConflict, "item not removable")
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})
		r.Put("/{id}/prompt", func(w http.ResponseWriter, r *http.Request) {
			id, ok := pathID(w, r)
			if !ok {
				return
			}
			var req types.SetPromptRequest
			if !decodeJSON(w, r, &req) {
				return
			}
			if !svc.SetPrompt(id, req.Prompt) {
				writeJSONError(w, http.StatusNotFound, "no such queue item")
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})
	})

	r.Route("/batch", func(r chi.Router) {
		r.Post("/start", func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			var req types.StartBatchRequest
			if !decodeJSON(w, r, &req) {
				return
			}
			started, err := svc.StartBatch(req.Overwrite)
			if err != nil {
				writeError(w, err)
				logRequest(r, statusFor(err), start, err)
				return
			}
			status := http.StatusOK
			if started {
				status = http.StatusAccepted
			}
			writeJSON(w, status, map[string]any{"started": started})
			logRequest(r, status, start, nil)
		})
		r.Post("/stop", func(w http.ResponseWriter, r *http.Request) {
			svc.StopBatch()
			w.WriteHeader(http.StatusAccepted)
		})
		r.Get("/progress", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, svc.BatchProgress())
		})
	})

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		var since int64
		if v := r.URL.Query().Get("since"); v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				writeJSONError(w, http.StatusBadRequest, "invalid since cursor")
				return
			}
			since = n
		}
		writeJSON(w, http.StatusOK, types.StatusResponse{Lines: svc.StatusSince(since)})
	})

	r.Get("/models", func(w http.ResponseWriter, r *http.Request) {
		models, err := svc.Models()
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, types.ModelsResponse{Models: models})
	})

	r.Get("/binary", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"path": svc.DetectBinary()})
	})

	r.Get("/settings", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Settings())
	})
	r.Put("/settings", func(w http.ResponseWriter, r *http.Request) {
		var req types.Settings
		if !decodeJSON(w, r, &req) {
			return
		}
		writeJSON(w, http.StatusOK, svc.UpdateSettings(req))
	})

	r.Route("/captions", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			dir := r.URL.Query().Get("dir")
			if dir == "" {
				writeJSONError(w, http.StatusBadRequest, "dir is required")
				return
			}
			items, err := svc.ListCaptions(dir)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"items": items})
		})
		r.Get("/one", func(w http.ResponseWriter, r *http.Request) {
			img := r.URL.Query().Get("image")
			if img == "" {
				writeJSONError(w, http.StatusBadRequest, "image is required")
				return
			}
			c, err := svc.LoadCaption(img)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, c)
		})
		r.Put("/one", func(w http.ResponseWriter, r *http.Request) {
			var req types.SaveCaptionRequest
			if !decodeJSON(w, r, &req) {
				return
			}
			if req.ImagePath == "" {
				writeJSONError(w, http.StatusBadRequest, "image_path is required")
				return
			}
			if err := svc.SaveCaption(req.ImagePath, req.Text); err != nil {
				writeError(w, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})
	})

	r.Post("/filter/move", func(w http.ResponseWriter, r *http.Request) {
		var req types.MoveRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		resp, err := svc.MoveKeyword(req)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, resp)
	})

	r.Route("/gpu", func(r chi.Router) {
		r.Get("/vram", func(w http.ResponseWriter, r *http.Request) {
			// shutdown cancels in-flight nvidia-smi calls too
			ctx, cancel := joinContexts(serverBaseCtx, r.Context())
			defer cancel()
			info, err := svc.VRAM(ctx)
			if err != nil {
				writeJSONError(w, http.StatusBadGateway, err.Error())
				return
			}
			writeJSON(w, http.StatusOK, info)
		})
		r.Post("/kill", func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := joinContexts(serverBaseCtx, r.Context())
			defer cancel()
			killed, err := svc.KillGPU(ctx)
			if err != nil {
				writeJSONError(w, http.StatusBadGateway, err.Error())
				return
			}
			writeJSON(w, http.StatusOK, map[string]int{"killed": killed})
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if serverBaseCtx.Err() != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("shutting down"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)

	return r
}

// decodeJSON enforces the JSON content type and body limit, decoding into v.
// Writes the error response itself and reports whether decoding succeeded.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// headers are already written; nothing sane to do beyond logging
		logEncodeFailure(err)
	}
}

func logEncodeFailure(err error) {
	if zlog != nil {
		zlog.Error().Err(err).Msg("encode response")
		return
	}
	log.Printf("encode response: %v", err)
}
