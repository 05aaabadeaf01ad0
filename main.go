package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"campus-alert/api"
	"campus-alert/config"
	"campus-alert/core/auth"
	"campus-alert/core/geo"
	"campus-alert/core/incidents"
	"campus-alert/core/notify"
	"campus-alert/core/rbac"
	"campus-alert/core/store"
	"campus-alert/core/utils"
	"campus-alert/tasks"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the yaml config file")
	flag.Parse()

	logger := utils.NewLogger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Errorf("config load: %v", err)
		os.Exit(1)
	}
	utils.SetReferenceZone(cfg.Timezone)

	db, err := store.NewDB(cfg, logger)
	if err != nil {
		logger.Errorf("db open: %v", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := store.ApplyMigrations(ctx, db, cfg, logger); err != nil {
		logger.Errorf("db migrate: %v", err)
		os.Exit(1)
	}

	incidentsStore := store.NewIncidentsStore(db)
	trailStore := store.NewAuditTrailStore(db)
	reportsStore := store.NewReportsStore(db)
	archiveStore := store.NewArchiveStore(db)
	adminsStore := store.NewAdminsStore(db)
	studentsStore := store.NewStudentsStore(db)
	chatStore := store.NewChatStore(db)
	sessionsStore := store.NewSessionsStore(db)
	requestsStore := store.NewAdminRequestsStore(db)
	audits := store.NewAuditLogStore(db)

	policy, err := rbac.NewPolicy()
	if err != nil {
		logger.Errorf("rbac: %v", err)
		os.Exit(1)
	}

	var sender notify.Sender = notify.NopSender{}
	if cfg.Mail.Enabled {
		sender = notify.NewSMTPSender(cfg.Mail, logger)
	}

	svc := incidents.NewService(incidents.ServiceDeps{
		Incidents:        incidentsStore,
		Audit:            trailStore,
		Reports:          reportsStore,
		Archive:          archiveStore,
		Admins:           adminsStore,
		Students:         studentsStore,
		Chat:             chatStore,
		Notifier:         sender,
		Logger:           logger,
		ResolvedIDPrefix: cfg.Incidents.ResolvedIDPrefix,
		FeedLimit:        cfg.Incidents.FeedLimit,
	})

	server := api.NewServer(api.ServerDeps{
		Cfg:            cfg,
		Policy:         policy,
		SessionManager: auth.NewSessionManager(sessionsStore, cfg.EffectiveSessionTTL(), false),
		Hasher:         auth.NewHasher(cfg.Pepper),
		Incidents:      incidentsStore,
		Archive:        archiveStore,
		Reports:        reportsStore,
		Students:       studentsStore,
		Admins:         adminsStore,
		Requests:       requestsStore,
		Chat:           chatStore,
		Sessions:       sessionsStore,
		Trail:          trailStore,
		Audits:         audits,
		Service:        svc,
		Geocoder:       geo.NewGeocoder(cfg.Geocoding, logger),
		Sender:         sender,
		Logger:         logger,
	})

	scheduler := tasks.NewScheduler(*cfg, sessionsStore, incidentsStore, adminsStore, sender, logger)
	if err := scheduler.Start(); err != nil {
		logger.Errorf("scheduler: %v", err)
		os.Exit(1)
	}

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Printf("listening on %s", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("http server: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Printf("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
	scheduler.Stop(shutdownCtx)
}
