package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"disputeflow/assignment"
	"disputeflow/attachment"
	"disputeflow/config"
	"disputeflow/db"
	"disputeflow/dispute"
	"disputeflow/notify"
)

// server owns the engine handles the transport layer dispatches into.
type server struct {
	pool        *pgxpool.Pool
	assignments *assignment.Engine
	disputes    *dispute.Service
	evidence    *attachment.Ledger
}

func (s *server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.pool.Ping(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"degraded"}`))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		log.Fatalf("bootstrap database pool: %v", err)
	}
	defer pool.Close()

	assignRepo := assignment.NewPGRepository(pool, cfg.LockTimeout)
	engine := assignment.NewEngine(pool, assignRepo)

	disputeRepo := dispute.NewRepository(pool, cfg.LockTimeout)
	disputeSvc := dispute.NewService(pool, disputeRepo).WithEscalator(engine)

	ledger := attachment.NewLedger(pool, attachment.NewRepository(pool, cfg.LockTimeout))

	api := &server{pool: pool, assignments: engine, disputes: disputeSvc, evidence: ledger}

	var publisher notify.Publisher = notify.LogPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		kp, err := notify.NewKafkaPublisher(cfg.KafkaBrokers, cfg.NotifyTopic)
		if err != nil {
			log.Fatalf("bootstrap kafka publisher: %v", err)
		}
		defer kp.Close()
		publisher = kp
	}

	outbox := notify.NewPGOutbox(pool, cfg.MaxPublishTries)
	dispatcher := notify.NewDispatcher(outbox, publisher, cfg.DispatchBatch, cfg.DispatchInterval, cfg.DispatchWorkers)

	dispatcherDone := make(chan struct{})
	go func() {
		defer close(dispatcherDone)
		if err := dispatcher.Run(ctx); err != nil {
			log.Printf("dispatcher stopped: %v", err)
		}
	}()

	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", api.health)

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("dispute engine listening on :%s", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("http server: %v", err)
	}

	<-dispatcherDone
	log.Printf("shutdown complete")
}
