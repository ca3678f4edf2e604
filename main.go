package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"time"

	"tag-monitor/internal/alarmstore"
	"tag-monitor/internal/broadcast"
	"tag-monitor/internal/config"
	"tag-monitor/internal/httpapi"
	"tag-monitor/internal/ingest"
	"tag-monitor/internal/observability/metrics"
	"tag-monitor/internal/rotator"
	"tag-monitor/internal/session"
	"tag-monitor/internal/storage"
	storagepg "tag-monitor/internal/storage/postgres"
	"tag-monitor/internal/ticker"
	"tag-monitor/internal/tickerhub"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger := log.New(os.Stdout, "", log.LstdFlags)
	ctx := context.Background()

	metrics.Init()

	// With a database the snapshot store and broadcast channels are
	// shared across processes; without one the process runs standalone
	// on in-memory doubles.
	var (
		snapshots     storage.Store
		alarmChannel  broadcast.Channel
		tickerChannel broadcast.Channel
	)
	if cfg.PostgresDSN != "" {
		db, err := sql.Open("pgx", cfg.PostgresDSN)
		if err != nil {
			logger.Fatalf("db open error: %v", err)
		}
		defer db.Close()
		if err := db.Ping(); err != nil {
			logger.Fatalf("db ping error: %v", err)
		}
		snapshots = storagepg.NewSnapshotStore(db)

		switch cfg.Broadcast {
		case config.BroadcastPoll:
			// Durable-storage fallback for databases where a dedicated
			// LISTEN connection is not available. The ticker side has no
			// channel here; the publisher polls the persisted snapshot.
			logger.Printf("broadcast over storage polling")
			alarmPoll, err := broadcast.NewPollChannel(snapshots, broadcast.ChannelAlarmStore,
				broadcast.WithPollInterval(cfg.SnapshotPoll()))
			if err != nil {
				logger.Fatalf("broadcast poll error: %v", err)
			}
			defer alarmPoll.Close()
			alarmChannel = alarmPoll
		default:
			pgBus, err := broadcast.NewPGBus(ctx, cfg.PostgresDSN, db, []string{broadcast.ChannelAlarmStore, broadcast.ChannelTicker}, logger)
			if err != nil {
				logger.Fatalf("broadcast bus error: %v", err)
			}
			defer pgBus.Close()
			alarmChannel = pgBus.Channel(broadcast.ChannelAlarmStore)
			tickerChannel = pgBus.Channel(broadcast.ChannelTicker)
		}
	} else {
		logger.Printf("no database configured, running standalone")
		snapshots = storage.NewMemoryStore()
		bus := broadcast.NewBus()
		alarmChannel = bus.Channel(broadcast.ChannelAlarmStore)
		tickerChannel = bus.Channel(broadcast.ChannelTicker)
	}

	store, err := alarmstore.NewStore(snapshots, alarmChannel,
		alarmstore.WithBucket(cfg.Bucket()),
		alarmstore.WithTTL(cfg.TTL()),
		alarmstore.WithLogger(logger),
	)
	if err != nil {
		logger.Fatalf("alarm store error: %v", err)
	}
	defer store.Close()

	allowList := tickerhub.NewAllowList()
	hub, err := tickerhub.NewHub(allowList)
	if err != nil {
		logger.Fatalf("ticker hub error: %v", err)
	}

	publisher, err := ticker.NewPublisher(hub, snapshots, tickerChannel,
		ticker.WithFade(cfg.Fade()),
		ticker.WithCooldown(cfg.Cooldown()),
		ticker.WithStagger(cfg.Stagger()),
		ticker.WithLogger(logger),
	)
	if err != nil {
		logger.Fatalf("ticker publisher error: %v", err)
	}
	defer publisher.Close()
	publisher.StartSubscription(ctx)
	if tickerChannel == nil && cfg.PostgresDSN != "" {
		go publisher.RunSnapshotFallback(ctx, cfg.SnapshotPoll())
	}

	store.Subscribe(func(event alarmstore.Event) {
		if event.Type != alarmstore.EventAdd || event.Alarm == nil {
			return
		}
		// Every process sees the store event and publishes its own copy;
		// a ticker broadcast on top would deliver the text N times.
		publisher.Publish(context.Background(), []ticker.Alert{alarmAlert(*event.Alarm)}, ticker.PublishOptions{
			Mode:    ticker.ModeAppend,
			Stagger: cfg.Stagger(),
		})
	})

	sseBroker := httpapi.NewSSEBroker()
	streamRotator, err := rotator.New(sseBroker, rotator.WithInterval(cfg.RotateInterval()))
	if err != nil {
		logger.Fatalf("rotator error: %v", err)
	}
	hub.Register(streamRotator)

	classifier, err := ingest.NewClassifier(store)
	if err != nil {
		logger.Fatalf("classifier error: %v", err)
	}
	client, err := ingest.NewClient(cfg.FeedURL, classifier.HandleMessage, ingest.WithClientLogger(logger))
	if err != nil {
		logger.Fatalf("feed client error: %v", err)
	}
	go client.Run(ctx)

	alarmsHandler, err := httpapi.NewHandler(store)
	if err != nil {
		logger.Fatalf("alarms handler error: %v", err)
	}
	mux := httpapi.NewMux(alarmsHandler, httpapi.NewStreamHandler(sseBroker))

	policy := session.NewDefaultPolicy([]string{"/healthz", "/metrics"}, []string{"/api/v1/alarms/export"})
	authMiddleware := session.NewMiddleware([]byte(cfg.JWTSecret), policy)

	handler := loggingMiddleware(authMiddleware.Wrap(sessionFilterMiddleware(mux, hub)), logger)
	server := &http.Server{Addr: cfg.HTTPAddr, Handler: handler}
	logger.Printf("http listening on %s", cfg.HTTPAddr)
	logger.Fatal(server.ListenAndServe())
}

// alarmAlert renders one alarm record as a ticker alert.
func alarmAlert(record alarmstore.Record) ticker.Alert {
	level := ticker.LevelWarn
	if record.Status == alarmstore.StatusError {
		level = ticker.LevelError
	}
	var text string
	if record.Kind == alarmstore.KindGateway {
		text = record.ID + " 게이트웨이가 " + record.Status + " 상태입니다."
	} else {
		text = tickerhub.MacPretty(record.ID) + " 디바이스가 " + record.Status + " 상태입니다."
	}
	return ticker.Alert{Text: text, Level: level, ID: record.ID, Kind: record.Kind}
}

// sessionFilterMiddleware projects the authenticated session's
// authorization data onto the display filter before the request is
// served, so the allow-list tracks the identity provider.
func sessionFilterMiddleware(next http.Handler, hub *tickerhub.Hub) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s := session.FromContext(r.Context()); s != nil {
			hub.ReplaceAllowList(s.AllowedTags)
			hub.SetPrivileged(s.Admin)
		}
		next.ServeHTTP(w, r)
	})
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

// Flush keeps the event stream usable through the wrapper.
func (w *statusWriter) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
