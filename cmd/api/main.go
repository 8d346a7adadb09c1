package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	"sapl.leg.br/lexml/internal/auth"
	"sapl.leg.br/lexml/internal/config"
	"sapl.leg.br/lexml/internal/httpapi"
	"sapl.leg.br/lexml/internal/obs"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	configPath := flag.String("config", os.Getenv("SAPL_LEXML_CONFIG"), "TOML or YAML settings file")
	flag.Parse()

	settings, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	obs.Init()
	obs.InitBuildInfo(version, commit)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	store, err := openStore(ctx, settings.Database)
	cancel()
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer store.Close()

	api := httpapi.New(store, version,
		httpapi.WithBatchSize(settings.BatchSize),
		httpapi.WithMaxBodyBytes(settings.MaxBodyBytes),
		httpapi.WithRateLimit(settings.RateLimit.RPS, settings.RateLimit.Burst),
		httpapi.WithCredentials(auth.CredentialsFromEnv()),
	)

	srv := &http.Server{
		Addr:              settings.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	var grpcSrv *grpc.Server
	if settings.GRPCAddr != "" {
		lis, err := net.Listen("tcp", settings.GRPCAddr)
		if err != nil {
			log.Fatalf("grpc listen: %v", err)
		}
		grpcSrv = grpc.NewServer()
		httpapi.NewGRPCServer(httpapi.ReadyProbe{Repo: store}, version).Register(grpcSrv)
		reflection.Register(grpcSrv)
		go func() {
			if err := grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				log.Fatalf("grpc serve: %v", err)
			}
		}()
		log.Printf("gRPC health on %s", settings.GRPCAddr)
	}

	log.Printf("Starting sapl-lexml %s (%s store) on %s", version, settings.Database.Driver, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	_ = srv.Shutdown(shutdownCtx)
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	log.Println("Stopped")
}
