package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	alarmapp "gasmonitor-cloud/internal/alarms/application"
	alarmrepo "gasmonitor-cloud/internal/alarms/infrastructure/postgres"
	alarmhttp "gasmonitor-cloud/internal/alarms/interfaces/http"
	"gasmonitor-cloud/internal/alarms/notify"
	apihttp "gasmonitor-cloud/internal/api/http"
	"gasmonitor-cloud/internal/audit"
	"gasmonitor-cloud/internal/auth"
	gases "gasmonitor-cloud/internal/gases/domain"
	gasrepo "gasmonitor-cloud/internal/gases/infrastructure/postgres"
	measurementapp "gasmonitor-cloud/internal/measurements/application"
	measurementrepo "gasmonitor-cloud/internal/measurements/infrastructure/postgres"
	measurementhttp "gasmonitor-cloud/internal/measurements/interfaces/http"
	"gasmonitor-cloud/internal/observability/metrics"
	snapshotapp "gasmonitor-cloud/internal/snapshots/application"
	snapshotrepo "gasmonitor-cloud/internal/snapshots/infrastructure/postgres"
	storagepg "gasmonitor-cloud/internal/storage/postgres"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	_ = godotenv.Load()

	cfg := loadConfig()
	logger := log.New(os.Stdout, "", log.LstdFlags)

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("db open error: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Fatalf("db ping error: %v", err)
	}

	metrics.Init(db, logger)

	gasRepo := gasrepo.NewGasRepository(db)
	if err := gasRepo.Seed(context.Background(), gases.DefaultGasTypes()); err != nil {
		logger.Fatalf("gas seed error: %v", err)
	}

	measurementRepo := measurementrepo.NewMeasurementRepository(db)
	alarmRepo := alarmrepo.NewAlarmRepository(db)
	snapshotRepo := snapshotrepo.NewSnapshotRepository(db)

	uow, err := storagepg.NewUnitOfWork(db, measurementRepo, alarmRepo)
	if err != nil {
		logger.Fatalf("unit of work error: %v", err)
	}

	managerOpts := []alarmapp.ManagerOption{
		alarmapp.WithInactivityWindow(cfg.InactivityWindow),
		alarmapp.WithLogger(logger),
	}
	if cfg.WebhookURLs != "" {
		var targets []alarmapp.AlarmNotifier
		for _, rawURL := range strings.Split(cfg.WebhookURLs, ",") {
			rawURL = strings.TrimSpace(rawURL)
			if rawURL == "" {
				continue
			}
			channel, err := notify.NewWebhookChannel(rawURL)
			if err != nil {
				logger.Fatalf("webhook channel error: %v", err)
			}
			notifier, err := notify.NewNotifier(gasRepo, channel, nil,
				notify.WithDedupeWindow(time.Minute),
			)
			if err != nil {
				logger.Fatalf("alarm notifier error: %v", err)
			}
			targets = append(targets, notifier)
		}
		if len(targets) > 0 {
			managerOpts = append(managerOpts, alarmapp.WithNotifier(notify.NewMultiNotifier(targets...)))
			logger.Printf("alarm webhook notifications enabled, %d endpoint(s)", len(targets))
		}
	}

	alarmManager, err := alarmapp.NewManager(alarmRepo, managerOpts...)
	if err != nil {
		logger.Fatalf("alarm manager error: %v", err)
	}
	defer alarmManager.Shutdown()

	measurementService, err := measurementapp.NewService(uow, measurementRepo, alarmManager, measurementapp.WithLogger(logger))
	if err != nil {
		logger.Fatalf("measurement service error: %v", err)
	}

	snapshotCfg, err := snapshotapp.LoadConfig()
	if err != nil {
		logger.Fatalf("snapshot config error: %v", err)
	}
	snapshotService, err := snapshotapp.NewService(alarmManager, snapshotRepo,
		snapshotapp.WithLocation(snapshotCfg.Location()),
		snapshotapp.WithLogger(logger),
	)
	if err != nil {
		logger.Fatalf("snapshot service error: %v", err)
	}
	if snapshotCfg.Enabled {
		scheduler := snapshotapp.NewScheduler(snapshotService, snapshotCfg.DailyAt, snapshotCfg.Location(), logger)
		go scheduler.Start(context.Background())
		logger.Printf("snapshot scheduler enabled, daily at %s %s", snapshotCfg.DailyAt, snapshotCfg.Timezone)
	}

	auditRepo := audit.NewRepository(db)

	measurementHandler, err := measurementhttp.NewHandler(measurementService, measurementhttp.WithAuditLogger(auditRepo))
	if err != nil {
		logger.Fatalf("measurement handler error: %v", err)
	}
	alarmHandler, err := alarmhttp.NewHandler(alarmManager, snapshotService, alarmhttp.WithAuditLogger(auditRepo))
	if err != nil {
		logger.Fatalf("alarm handler error: %v", err)
	}

	policy := auth.NewDefaultPolicy([]string{"/health", "/healthz", "/metrics"}, nil)
	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), policy)

	mux := http.NewServeMux()
	mux.Handle("/api/v1/measurements", measurementHandler)
	mux.Handle("/api/v1/measurements/", measurementHandler)
	mux.Handle("/api/v1/alarms", alarmHandler)
	mux.Handle("/api/v1/alarms/", alarmHandler)
	mux.Handle("/api/v1/exports/measurements.csv", apihttp.NewExportMeasurementsHandler(measurementService, "csv"))
	mux.Handle("/api/v1/exports/measurements.xlsx", apihttp.NewExportMeasurementsHandler(measurementService, "xlsx"))
	mux.Handle("/api/v1/exports/snapshot.pdf", apihttp.NewExportSnapshotPDFHandler(snapshotService))
	mux.Handle("/health", apihttp.NewHealthHandler(db, cfg.Environment))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: loggingMiddleware(authMiddleware.Wrap(mux), logger)}
	logger.Printf("http listening on %s", cfg.HTTPAddr)
	logger.Fatal(server.ListenAndServe())
}

type config struct {
	DatabaseURL      string
	HTTPAddr         string
	InactivityWindow time.Duration
	JWTSecret        string
	WebhookURLs      string
	Environment      string
}

func loadConfig() config {
	cfg := config{
		DatabaseURL:      getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		HTTPAddr:         getenvDefault("HTTP_ADDR", ":8080"),
		InactivityWindow: getenvDuration("ALARM_INACTIVITY_WINDOW", alarmapp.DefaultInactivityWindow),
		JWTSecret:        getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
		WebhookURLs:      getenvDefault("ALARM_WEBHOOK_URL", ""),
		Environment:      getenvDefault("APP_ENV", "development"),
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL or PG_DSN is required")
	}
	return cfg
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
