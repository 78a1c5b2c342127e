// Telefetch - Telegram media delivery bot
// Main program entry point.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/telefetch-project/telefetch/internal/api"
	"github.com/telefetch-project/telefetch/internal/bot"
	"github.com/telefetch-project/telefetch/internal/config"
	"github.com/telefetch-project/telefetch/internal/logger"
	"github.com/telefetch-project/telefetch/internal/media"
	"github.com/telefetch-project/telefetch/internal/planner"
	"github.com/telefetch-project/telefetch/internal/registry"
	"github.com/telefetch-project/telefetch/internal/shutdown"
	"github.com/telefetch-project/telefetch/internal/status"
	"github.com/telefetch-project/telefetch/internal/storage"
	"github.com/telefetch-project/telefetch/internal/telegram"
	"github.com/telefetch-project/telefetch/internal/version"
	"github.com/telefetch-project/telefetch/internal/websocket"
	"github.com/telefetch-project/telefetch/internal/worker"
)

func main() {
	configPath := flag.String("config", config.DefaultConfigDir+"/"+config.DefaultConfigFile, "path to the configuration file")
	showVersion := flag.Bool("version", false, "print version information")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.GetVersionInfo().String())
		os.Exit(0)
	}

	configMgr := config.NewManagerWithPath(*configPath)
	cfg, err := configMgr.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.InitLogger(logger.Options{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		Directory:  cfg.Log.Directory,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not initialize logging: %v\n", err)
	}
	log := logger.GetLogger()

	log.Infof("telefetch %s starting", version.GetVersion())
	log.Infof("config file: %s", configMgr.GetConfigPath())

	if err := os.MkdirAll(cfg.Download.Directory, 0755); err != nil {
		log.Fatalf("could not create download directory %s: %v", cfg.Download.Directory, err)
	}

	resolver := media.NewYTDLPResolver(media.YTDLPOptions{
		ConcurrentFragments: cfg.Download.ConcurrentFragments,
		Retries:             cfg.Download.Retries,
		FragmentRetries:     cfg.Download.FragmentRetries,
		SocketTimeout:       cfg.Download.SocketTimeout,
	}, log)
	if err := resolver.CheckDependencies(); err != nil {
		log.Fatalf("dependency check failed: %v", err)
	}

	token := cfg.BotToken()
	client, err := telegram.NewClient(token, cfg.Telegram.APIEndpoint, log)
	if err != nil {
		log.Fatalf("could not connect to Telegram: %v", err)
	}
	log.Infof("authorized as @%s", client.Username())

	uploader := telegram.NewUploader(
		cfg.Telegram.APIEndpoint,
		token,
		cfg.Telegram.UploadChunkKB*1024,
		time.Duration(cfg.Telegram.UploadTimeout)*time.Second,
	)

	storageMgr, err := storage.NewManager(&cfg.Storage)
	if err != nil {
		log.Fatalf("could not open job ledger: %v", err)
	}

	wsMgr := websocket.NewManager()
	wsMgr.Start()

	pl := planner.New(planner.Config{
		MaxSendBytes:       cfg.Planner.MaxSendBytes,
		AudioHeadroomBytes: cfg.Planner.AudioHeadroomBytes,
		ProbeTimeout:       time.Duration(cfg.Planner.ProbeTimeout) * time.Second,
	}, log)

	pending := registry.NewPendingStore(time.Duration(cfg.Planner.PendingTTL) * time.Second)
	cancels := registry.NewCancelRegistry()
	reporter := status.NewReporter(client, time.Duration(cfg.Status.EditIntervalMS)*time.Millisecond)

	pool := worker.NewPool(worker.Config{
		Workers:      cfg.Download.Workers,
		DownloadDir:  cfg.Download.Directory,
		MaxSendBytes: cfg.Planner.MaxSendBytes,
		MinFreeBytes: cfg.Download.MinFreeBytes,
	}, worker.Deps{
		Resolver:  resolver,
		Uploader:  uploader,
		Messenger: client,
		Reporter:  reporter,
		Cancels:   cancels,
		Store:     storageMgr.GetStore(),
		Events:    wsMgr,
		Log:       log,
	})
	pool.Start()

	var adminSrv *api.Server
	if cfg.Admin.Enabled {
		adminSrv = api.NewServer(api.Config{
			Host:         cfg.Admin.Host,
			Port:         cfg.Admin.Port,
			ReadTimeout:  time.Duration(cfg.Admin.ReadTimeout) * time.Second,
			WriteTimeout: time.Duration(cfg.Admin.WriteTimeout) * time.Second,
			DownloadDir:  cfg.Download.Directory,
		}, pool, storageMgr.GetStore(), wsMgr)
		if err := adminSrv.Start(); err != nil {
			log.Fatalf("could not start admin server: %v", err)
		}
	}

	b := bot.New(bot.Config{LogChatID: cfg.Telegram.LogChatID},
		client, resolver, pl, pending, cancels, pool, log)

	botCtx, botCancel := context.WithCancel(context.Background())
	botDone := make(chan struct{})
	go func() {
		defer close(botDone)
		b.Run(botCtx, client.UpdatesChan())
	}()

	shutdownMgr := shutdown.NewManager(60 * time.Second)

	// Stop taking new updates first, then let running jobs finish.
	shutdownMgr.Register("telegram-polling", func(ctx context.Context) error {
		client.StopPolling()
		botCancel()
		select {
		case <-botDone:
		case <-ctx.Done():
		}
		return nil
	}, shutdown.PriorityCritical)

	shutdownMgr.Register("worker-pool", func(ctx context.Context) error {
		pool.Stop()
		return nil
	}, shutdown.PriorityHigh)

	if adminSrv != nil {
		shutdownMgr.Register("admin-server", func(ctx context.Context) error {
			return adminSrv.Stop(ctx)
		}, shutdown.PriorityNormal)
	}

	shutdownMgr.Register("websocket", func(ctx context.Context) error {
		wsMgr.Stop()
		return nil
	}, shutdown.PriorityNormal)

	shutdownMgr.Register("storage", func(ctx context.Context) error {
		return storageMgr.Close()
	}, shutdown.PriorityNormal)

	shutdownMgr.Register("logger", func(ctx context.Context) error {
		return log.Close()
	}, shutdown.PriorityLow)

	shutdownMgr.Start()

	log.Info("telefetch is running, press Ctrl+C to stop")

	<-shutdownMgr.Done()
	shutdownMgr.Wait()
}
