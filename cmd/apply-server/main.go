// cmd/apply-server/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"advisory-apply/internal/common/aws"
	"advisory-apply/internal/common/config"
	"advisory-apply/internal/common/database"
	"advisory-apply/internal/common/logger"
	"advisory-apply/internal/common/observability"
	"advisory-apply/internal/models"
	"advisory-apply/internal/wizard/cache"
	"advisory-apply/internal/wizard/classify"
	"advisory-apply/internal/wizard/controller"
	"advisory-apply/internal/wizard/notify"
	"advisory-apply/internal/wizard/schema"
	"advisory-apply/internal/wizard/search"
	"advisory-apply/internal/wizard/store"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting apply server...",
		zap.String("environment", cfg.App.Environment))

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Postgres ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return pg.Ping(pingCtx)
	}, 10, 2*time.Second, zapLog, "Postgres initialization")
	if err != nil {
		zapLog.Fatal("postgres unavailable", zap.Error(err))
	}
	defer pg.Close()

	// --- Redis ---
	rdb, err := database.NewRedis(cfg.Database.Redis)
	if err != nil {
		zapLog.Fatal("redis init failed", zap.Error(err))
	}
	defer rdb.Close()
	if err := rdb.Ping(ctx); err != nil {
		zapLog.Fatal("redis unavailable", zap.Error(err))
	}

	// --- Elasticsearch (optional) ---
	var indexer controller.SearchIndex
	if cfg.Database.Elasticsearch.Enabled {
		es, err := database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			zapLog.Fatal("elasticsearch init failed", zap.Error(err))
		}
		if err := es.Ping(); err != nil {
			zapLog.Warn("elasticsearch unavailable, search indexing disabled", zap.Error(err))
		} else {
			indexer = search.NewIndexer(es.Client, cfg.Database.Elasticsearch.DraftIndex, log)
		}
	}

	// --- Notification gateway ---
	var notifier controller.Notifier
	if cfg.Notifications.Email.Enabled || cfg.Notifications.SMS.Enabled {
		sesClient, err := aws.NewSESClient(ctx, cfg.Notifications.AWS.Region)
		if err != nil {
			zapLog.Fatal("ses init failed", zap.Error(err))
		}
		snsClient, err := aws.NewSNSClient(ctx, cfg.Notifications.AWS.Region)
		if err != nil {
			zapLog.Fatal("sns init failed", zap.Error(err))
		}
		notifier = notify.NewGateway(notify.Config{
			EmailEnabled: cfg.Notifications.Email.Enabled,
			FromEmail:    cfg.Notifications.Email.FromEmail,
			OpsEmail:     cfg.Notifications.Email.OpsEmail,
			SMSEnabled:   cfg.Notifications.SMS.Enabled,
			SMSSenderID:  cfg.Notifications.SMS.SenderID,
		}, sesClient, snsClient, log)
	}

	draftCache := cache.New(rdb.GetClient(), time.Duration(cfg.Wizard.CacheTTLMin)*time.Minute, log)
	draftStore := store.NewClient(pg.GetDB(), log)

	steps, err := schema.NewRegistry()
	if err != nil {
		zapLog.Fatal("step schema registry failed", zap.Error(err))
	}

	manager := controller.NewManager(controller.Deps{
		Store:         draftStore,
		Cache:         draftCache,
		Steps:         steps,
		Notifier:      notifier,
		Search:        indexer,
		Logger:        log,
		AutosaveDelay: time.Duration(cfg.Wizard.AutosaveDelayMS) * time.Millisecond,
		RemoteTimeout: 10 * time.Second,
	}, time.Duration(cfg.Wizard.SessionTTLMin)*time.Minute)
	go manager.Run(ctx, time.Minute)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	registerWizardRoutes(mux, manager, obs, log)

	server := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		zapLog.Info("listening", zap.String("address", cfg.Server.Address))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zapLog.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("shutdown failed", zap.Error(err))
	}
}

// registerWizardRoutes maps the controller operations onto the JSON API the
// wizard front end calls. The client identity rides in a header so the
// local cache slot is stable across page loads.
func registerWizardRoutes(mux *http.ServeMux, manager *controller.Manager, obs *observability.Observability, log logger.Logger) {
	session := func(w http.ResponseWriter, r *http.Request) *controller.Session {
		clientID := r.Header.Get("X-Client-Id")
		if clientID == "" {
			// First contact: mint the stable client identity the cache
			// slot is keyed by. The front end persists and replays it.
			clientID = uuid.New().String()
		}
		w.Header().Set("X-Client-Id", clientID)
		advisor := models.Advisor{
			ID:   r.URL.Query().Get("advisorId"),
			Name: r.URL.Query().Get("advisorName"),
		}
		return manager.Session(clientID, advisor)
	}

	mux.HandleFunc("POST /api/wizard/mount", func(w http.ResponseWriter, r *http.Request) {
		// The resume query parameter is consumed here; the front end strips
		// it from the URL once this call returns.
		result, err := session(w, r).Mount(r.Context(), r.URL.Query().Get("resume"))
		if err != nil {
			writeError(w, classify.Classify(err, classify.StageSave))
			return
		}
		writeJSON(w, http.StatusOK, result)
	})

	mux.HandleFunc("POST /api/wizard/resume/accept", func(w http.ResponseWriter, r *http.Request) {
		result, err := session(w, r).AcceptResume(r.Context())
		if err != nil {
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, result)
	})

	mux.HandleFunc("POST /api/wizard/resume/decline", func(w http.ResponseWriter, r *http.Request) {
		result, err := session(w, r).DeclineResume(r.Context())
		if err != nil {
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, result)
	})

	mux.HandleFunc("POST /api/wizard/steps/{step}/complete", func(w http.ResponseWriter, r *http.Request) {
		step, err := strconv.Atoi(r.PathValue("step"))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad step number"})
			return
		}
		var data map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad request body"})
			return
		}
		sess := session(w, r)
		if err := sess.CompleteStep(r.Context(), step, data); err != nil {
			status := http.StatusUnprocessableEntity
			if err == controller.ErrAlreadySubmitted || err == controller.ErrResumePending {
				status = http.StatusConflict
			}
			writeJSON(w, status, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"currentStep":    sess.CurrentStep(),
			"completedSteps": sess.CompletedSteps(),
		})
	})

	mux.HandleFunc("POST /api/wizard/steps/{step}/back", func(w http.ResponseWriter, r *http.Request) {
		step, err := strconv.Atoi(r.PathValue("step"))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad step number"})
			return
		}
		sess := session(w, r)
		if err := sess.GoBack(step); err != nil {
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"currentStep":    sess.CurrentStep(),
			"completedSteps": sess.CompletedSteps(),
		})
	})

	mux.HandleFunc("POST /api/wizard/save", func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		if err := session(w, r).Flush(r.Context()); err != nil {
			obs.RecordSave(r.Context(), "explicit", "error")
			obs.RecordSaveDuration(r.Context(), time.Since(started), "error")
			writeError(w, classify.Classify(err, classify.StageSave))
			return
		}
		obs.RecordSave(r.Context(), "explicit", "ok")
		obs.RecordSaveDuration(r.Context(), time.Since(started), "ok")
		writeJSON(w, http.StatusOK, map[string]bool{"saved": true})
	})

	mux.HandleFunc("POST /api/wizard/submit", func(w http.ResponseWriter, r *http.Request) {
		result, details := session(w, r).Submit(r.Context())
		if details != nil {
			writeError(w, *details)
			return
		}
		writeJSON(w, http.StatusOK, result)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, details classify.Details) {
	status := http.StatusBadGateway
	if !details.CanRetry {
		status = http.StatusConflict
	}
	if details.Kind == store.KindTimeout {
		status = http.StatusGatewayTimeout
	}
	writeJSON(w, status, details)
}
