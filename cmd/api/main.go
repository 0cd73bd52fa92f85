package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"quickcourt.org/internal/auth"
	"quickcourt.org/internal/booking"
	"quickcourt.org/internal/httpapi"
	"quickcourt.org/internal/obs"
	"quickcourt.org/internal/payment"
	"quickcourt.org/internal/reporting"
	"quickcourt.org/internal/store/pg"
	"quickcourt.org/internal/stream"
	"quickcourt.org/internal/workflow"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

// Aliases keep the embedded field names distinct; both engines export a
// type named InMemory.
type bookingMem = booking.InMemory
type workflowMem = workflow.InMemory

// memSource snapshots both in-memory engines for the aggregator.
type memSource struct {
	*bookingMem
	*workflowMem
}

var _ reporting.Source = memSource{}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	policy := booking.CancelBookerOrAdmin
	if os.Getenv("QUICKCOURT_CANCEL_POLICY") == "any" {
		policy = booking.CancelAnyActor
	}

	var settler payment.Settler = payment.NewSimulated()
	if key := os.Getenv("QUICKCOURT_STRIPE_KEY"); key != "" {
		settler = payment.NewStripe(key, envOr("QUICKCOURT_CURRENCY", "usd"))
		log.Printf("payments: stripe gateway enabled")
	}

	var (
		bookings booking.Service
		catalog  booking.Catalog
		wf       workflow.Service
		stats    reporting.Service
		ready    httpapi.ReadyProbe
		closeDB  func()
	)
	if dsn := os.Getenv("QUICKCOURT_PG_DSN"); dsn != "" {
		store, err := pg.Open(dsn, settler, policy)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		bookings, catalog, wf, stats = store, store, store, store
		ready = httpapi.ReadyProbe{DB: store.DB()}
		closeDB = func() { _ = store.Close() }
	} else {
		log.Printf("QUICKCOURT_PG_DSN not set, running with in-memory state")
		engine := booking.NewInMemory(settler, policy)
		users := workflow.NewInMemory(engine)
		bookings, catalog, wf = engine, engine, users
		stats = reporting.NewAggregator(memSource{engine, users})
		closeDB = func() {}
	}

	if addr := os.Getenv("QUICKCOURT_REDIS_ADDR"); addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: addr})
		stats = reporting.NewCache(stats, rdb, time.Minute)
		log.Printf("reporting: redis cache enabled at %s", addr)
	}

	var verifier *auth.Verifier
	if secret := os.Getenv("QUICKCOURT_JWT_SECRET"); secret != "" {
		verifier = auth.NewVerifier(secret)
	} else {
		log.Printf("WARNING: QUICKCOURT_JWT_SECRET not set, authentication disabled")
	}

	events := stream.New()

	api := httpapi.New(httpapi.Config{
		Bookings: bookings,
		Catalog:  catalog,
		Workflow: wf,
		Stats:    stats,
		Verifier: verifier,
		Events:   events,
		Ready:    ready,
		Version:  version,
	})

	handler := httpapi.SecurityHeaders(
		httpapi.CORS(
			httpapi.RequestID(
				httpapi.LoggingJSON(
					httpapi.MaxBodyBytes(
						httpapi.RateLimit(api.Handler(), 50, 25),
						1<<20)))))

	srv := &http.Server{
		Addr:              envOr("QUICKCOURT_ADDR", ":8080"),
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	// Booked windows in the past sweep to completed so list filters and
	// owner earnings stay consistent even without reads touching them.
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-rootCtx.Done():
				return
			case <-ticker.C:
				n, err := bookings.CompleteExpired(rootCtx)
				if err != nil {
					log.Printf("sweep expired bookings: %v", err)
					continue
				}
				if n > 0 {
					log.Printf("swept %d expired bookings to completed", n)
				}
			}
		}
	}()

	var grpcSrv *httpapi.GRPCServer
	if addr := os.Getenv("QUICKCOURT_GRPC_ADDR"); addr != "" {
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			log.Fatalf("grpc listen: %v", err)
		}
		grpcSrv = httpapi.NewGRPCServer()
		grpcSrv.SetServing(true)
		go func() {
			if err := grpcSrv.Serve(lis); err != nil {
				log.Printf("grpc serve: %v", err)
			}
		}()
		log.Printf("gRPC health on %s", addr)
	}

	log.Printf("Starting quickcourt-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")
	obs.SetReady(false)
	if grpcSrv != nil {
		grpcSrv.SetServing(false)
	}
	cancelRoot()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if grpcSrv != nil {
		grpcSrv.Stop()
	}
	closeDB()
	log.Println("Stopped")
}
