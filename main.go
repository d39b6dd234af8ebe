package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"markd/configs"
	"markd/internal/scheduler"
	"markd/pipelines"
	"markd/pipelines/daily"
	"markd/pipelines/dispatch"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to initialize logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	schedulerMode := flag.Bool("scheduler", false, "run the scheduler loop in the foreground")
	daemonMode := flag.Bool("daemon", false, "spawn the scheduler in the background and exit")
	pipelineName := flag.String("pipeline", "", "run one pipeline synchronously and exit")
	listPipelines := flag.Bool("list", false, "list registered pipelines and exit")
	flag.Parse()

	cfg, err := configs.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	state := pipelines.NewState(cfg)
	pipelines.Register(daily.New(state, *pipelineName != ""))
	pipelines.Register(dispatch.New(state, *pipelineName != ""))

	switch {
	case *listPipelines:
		fmt.Print(pipelines.ListWithDescriptions())
	case *daemonMode:
		runDaemon(cfg)
	case *schedulerMode:
		runScheduler(cfg, state)
	case *pipelineName != "":
		runPipeline(*pipelineName)
	default:
		runServer(cfg)
	}
}

// runDaemon spawns a detached scheduler process and exits.
func runDaemon(cfg *configs.Env) {
	pidFile := scheduler.NewPIDFile(cfg.DataDir)
	if pid, err := pidFile.RunningPID(); err != nil {
		zap.L().Fatal("pid file check failed", zap.Error(err))
	} else if pid != 0 {
		zap.L().Info("scheduler already running", zap.Int("pid", pid))
		return
	}

	pid, err := scheduler.SpawnDetached()
	if err != nil {
		zap.L().Fatal("failed to start scheduler daemon", zap.Error(err))
	}
	zap.L().Info("scheduler daemon started", zap.Int("pid", pid))
}

// runScheduler blocks in the trigger loop until interrupted.
func runScheduler(cfg *configs.Env, state *pipelines.State) {
	pidFile := scheduler.NewPIDFile(cfg.DataDir)
	if err := pidFile.Acquire(); err != nil {
		zap.L().Fatal("cannot start scheduler", zap.Error(err))
	}
	defer pidFile.Release()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := scheduler.New(state).Run(ctx); err != nil && err != context.Canceled {
		zap.L().Error("scheduler exited", zap.Error(err))
		os.Exit(1)
	}
}

// runPipeline executes one registered pipeline synchronously.
func runPipeline(name string) {
	p := pipelines.Get(name)
	if p == nil {
		zap.L().Error("unknown pipeline", zap.String("pipeline", name))
		fmt.Fprint(os.Stderr, pipelines.ListWithDescriptions())
		os.Exit(1)
	}
	if err := p.ValidateConfig(); err != nil {
		zap.L().Fatal("pipeline configuration invalid",
			zap.String("pipeline", name), zap.Error(err))
	}
	if err := p.RunOnce(); err != nil {
		zap.L().Error("pipeline failed", zap.String("pipeline", name), zap.Error(err))
		os.Exit(1)
	}
}

// runServer exposes health and manual pipeline triggers over HTTP.
func runServer(cfg *configs.Env) {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	for _, name := range pipelines.List() {
		mux.HandleFunc("/run/"+name, handlePipeline(name))
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		zap.L().Info("starting server", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zap.L().Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zap.L().Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		zap.L().Fatal("server forced to shutdown", zap.Error(err))
	}
	zap.L().Info("server stopped")
}

type pipelineResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func handlePipeline(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		p := pipelines.Get(name)
		if p == nil {
			writeError(w, http.StatusInternalServerError, "pipeline not found")
			return
		}
		if err := p.ValidateConfig(); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		zap.L().Info("pipeline started", zap.String("pipeline", name))
		if err := p.RunOnce(); err != nil {
			zap.L().Error("pipeline failed", zap.String("pipeline", name), zap.Error(err))
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		zap.L().Info("pipeline complete", zap.String("pipeline", name))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(pipelineResponse{Success: true})
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(pipelineResponse{Success: false, Error: message})
}
