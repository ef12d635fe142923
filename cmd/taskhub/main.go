// Command taskhub is the server/worker/scheduler entrypoint, wiring
// config, logging, persistence, the Service Facade and the HTTP/WS
// frontends together, in the shape of the teacher's cmd/dagu.go +
// cmd/commands.go.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/taskhub/taskhub/internal/auth"
	"github.com/taskhub/taskhub/internal/config"
	"github.com/taskhub/taskhub/internal/httpapi"
	"github.com/taskhub/taskhub/internal/logger"
	"github.com/taskhub/taskhub/internal/notify"
	"github.com/taskhub/taskhub/internal/service"
	"github.com/taskhub/taskhub/internal/store"
	"github.com/taskhub/taskhub/internal/store/sqlite"
	"github.com/taskhub/taskhub/internal/tasklog"
	"github.com/taskhub/taskhub/internal/types"
	"github.com/taskhub/taskhub/internal/wshub"
	"github.com/taskhub/taskhub/internal/workerreg"
)

var (
	cfgFile string
	debug   bool

	version = "0.0.0"
)

func main() {
	root := &cobra.Command{
		Use:   "taskhub",
		Short: "Workflow and task orchestration service",
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	root.AddCommand(serverCmd())
	root.AddCommand(workerCmd())
	root.AddCommand(schedulerCmd())
	root.AddCommand(versionCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the binary version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}
}

// serverCmd runs the master process: HTTP/WS frontends, cron scheduler and
// worker registry, over the configured Store.
func serverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "Run the master API/WS server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, st, err := bootstrap()
			if err != nil {
				return err
			}
			defer st.Close()

			hub := wshub.New(log)
			issuer := auth.NewIssuer([]byte(cfg.Auth.Secret), cfg.Auth.TTLOrDefault(), st)
			notifiers := buildNotifiers(cfg)

			svc := service.New(service.Deps{
				Log:           log,
				Store:         st,
				Streamer:      hub,
				Sinks:         consoleAndFileSinks(cfg, log),
				LogMaxRecords: cfg.Log.MaxRecords,
				PoolWorkers:   runtimePoolSize(),
				WorkerSelect:  workerreg.ParseSelectStrategy(cfg.Worker.SelectStrategy),
				Notifiers:     notifiers,
			})
			defer svc.Shutdown()

			ctx, cancel := signalContext()
			defer cancel()

			if err := svc.StartCron(ctx); err != nil {
				return fmt.Errorf("starting cron scheduler: %w", err)
			}

			api := httpapi.New(svc, issuer, hub, log)

			apiAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
			wsAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.WSPort)

			apiSrv := &http.Server{Addr: apiAddr, Handler: api}
			wsSrv := &http.Server{Addr: wsAddr, Handler: api.WSHandler()}

			go func() {
				log.Info("http api listening", "addr", apiAddr)
				if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Error("http api server failed", "error", err)
				}
			}()
			go func() {
				log.Info("websocket hub listening", "addr", wsAddr)
				if err := wsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Error("websocket server failed", "error", err)
				}
			}()

			<-ctx.Done()
			log.Info("shutting down")
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			_ = apiSrv.Shutdown(shutdownCtx)
			_ = wsSrv.Shutdown(shutdownCtx)
			return nil
		},
	}
}

// workerCmd runs this node as a remote worker: registers with the master,
// heartbeats on an interval, and exposes /api/worker/execute.
func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run as a remote worker node",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, st, err := bootstrap()
			if err != nil {
				return err
			}
			defer st.Close()
			if !cfg.Work.IsWork {
				return fmt.Errorf("work.is_work must be true to run the worker subcommand")
			}

			hub := wshub.New(log)
			issuer := auth.NewIssuer([]byte(cfg.Auth.Secret), cfg.Auth.TTLOrDefault(), st)

			svc := service.New(service.Deps{
				Log:           log,
				Store:         st,
				Streamer:      hub,
				Sinks:         consoleAndFileSinks(cfg, log),
				LogMaxRecords: cfg.Log.MaxRecords,
				PoolWorkers:   runtimePoolSize(),
				WorkerSelect:  workerreg.ParseSelectStrategy(cfg.Worker.SelectStrategy),
				SelfWorkerID:  cfg.Work.WorkerID,
			})
			defer svc.Shutdown()

			api := httpapi.New(svc, issuer, hub, log)

			ctx, cancel := signalContext()
			defer cancel()

			go registerAndHeartbeat(ctx, cfg, log)

			addr := fmt.Sprintf("%s:%d", cfg.Work.WorkerHost, cfg.Work.WorkerPort)
			srv := &http.Server{Addr: addr, Handler: api}
			go func() {
				log.Info("worker listening", "addr", addr)
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Error("worker server failed", "error", err)
				}
			}()

			<-ctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			_ = srv.Shutdown(shutdownCtx)
			return nil
		},
	}
}

// schedulerCmd runs cron dispatch only, against the shared Store, without
// the HTTP/WS frontends. Useful for a standalone scheduler process sitting
// alongside a fleet of worker nodes.
func schedulerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scheduler",
		Short: "Run the cron scheduler without the HTTP frontend",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, st, err := bootstrap()
			if err != nil {
				return err
			}
			defer st.Close()

			svc := service.New(service.Deps{
				Log:           log,
				Store:         st,
				LogMaxRecords: cfg.Log.MaxRecords,
				PoolWorkers:   runtimePoolSize(),
				WorkerSelect:  workerreg.ParseSelectStrategy(cfg.Worker.SelectStrategy),
			})
			defer svc.Shutdown()

			ctx, cancel := signalContext()
			defer cancel()
			if err := svc.StartCron(ctx); err != nil {
				return fmt.Errorf("starting cron scheduler: %w", err)
			}
			log.Info("cron scheduler running")
			<-ctx.Done()
			return nil
		},
	}
}

func bootstrap() (*config.Config, logger.Logger, store.Store, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("loading config: %w", err)
	}

	var logOpts []logger.Option
	if debug {
		logOpts = append(logOpts, logger.WithDebug())
	}
	log := logger.New(logOpts...)

	st, err := sqlite.Open(cfg.Database.DBPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("opening store: %w", err)
	}
	return cfg, log, st, nil
}

func consoleAndFileSinks(cfg *config.Config, log logger.Logger) []tasklog.Sink {
	sinks := []tasklog.Sink{tasklog.NewConsoleSink()}
	if cfg.Log.Path == "" {
		return sinks
	}
	fileSink, err := tasklog.NewFileSink(cfg.Log.Path, cfg.Log.RotateBytes, cfg.Log.MaxFiles)
	if err != nil {
		log.Warn("file log sink disabled", "error", err)
		return sinks
	}
	return append(sinks, fileSink)
}

func buildNotifiers(cfg *config.Config) notify.Group {
	var group notify.Group
	if v := os.Getenv("TASKHUB_SLACK_TOKEN"); v != "" {
		group = append(group, notify.NewSlackNotifier(v, os.Getenv("TASKHUB_SLACK_CHANNEL")))
	}
	if v := os.Getenv("TASKHUB_DISCORD_TOKEN"); v != "" {
		if d, err := notify.NewDiscordNotifier(v, os.Getenv("TASKHUB_DISCORD_CHANNEL")); err == nil {
			group = append(group, d)
		}
	}
	if v := os.Getenv("TASKHUB_WEBHOOK_URL"); v != "" {
		group = append(group, notify.NewWebhookNotifier(v))
	}
	_ = cfg
	return group
}

func runtimePoolSize() int {
	if n := os.Getenv("TASKHUB_POOL_WORKERS"); n != "" {
		var parsed int
		if _, err := fmt.Sscanf(n, "%d", &parsed); err == nil && parsed > 0 {
			return parsed
		}
	}
	return 8
}

func registerAndHeartbeat(ctx context.Context, cfg *config.Config, log logger.Logger) {
	info := types.WorkerInfo{
		ID: cfg.Work.WorkerID, Host: cfg.Work.WorkerHost, Port: cfg.Work.WorkerPort,
		Queues: cfg.Work.Queues, Labels: cfg.Work.Labels, MaxRunningTasks: cfg.Work.MaxRunningTasks,
	}
	interval := cfg.Work.HeartbeatInterval
	if interval <= 0 {
		interval = 3 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		sendWorkerHeartbeat(cfg, info)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func sendWorkerHeartbeat(cfg *config.Config, info types.WorkerInfo) {
	client := &http.Client{Timeout: 5 * time.Second}
	base := fmt.Sprintf("http://%s:%d", cfg.Work.MasterHost, cfg.Work.MasterPort)
	postJSON(client, base+"/api/workers/register", info)
	postJSON(client, base+"/api/workers/heartbeat", map[string]any{"worker_id": info.ID, "running_tasks": 0})
}

func postJSON(client *http.Client, url string, body any) {
	b, err := json.Marshal(body)
	if err != nil {
		return
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return
	}
	_ = resp.Body.Close()
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func init() {
	log.SetFlags(0)
}
