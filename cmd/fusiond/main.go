// Command fusiond is the swap coordinator daemon: it loads configuration,
// opens the storage backend, wires the event pipeline to both chain
// adapters, and serves the control-plane RPC surface until signalled to
// shut down. The overall shape -- loadConfig, open storage, wire
// subsystems, serve RPC, wait for shutdown -- is grounded on lnd.go's
// lndMain.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fusionbridge/swapd/adapter/evmorder"
	"github.com/fusionbridge/swapd/adapter/nearescrow"
	"github.com/fusionbridge/swapd/claimexec"
	"github.com/fusionbridge/swapd/coordinator"
	"github.com/fusionbridge/swapd/escrow"
	"github.com/fusionbridge/swapd/events"
	"github.com/fusionbridge/swapd/fusionconfig"
	"github.com/fusionbridge/swapd/fusionlog"
	"github.com/fusionbridge/swapd/fusionrpc"
	"github.com/fusionbridge/swapd/pkg/clock"
	"github.com/fusionbridge/swapd/secretregistry"
	"github.com/fusionbridge/swapd/storage"
	"google.golang.org/grpc"
)

var log = fusionlog.NewSubLogger("FSND")

func main() {
	if err := fusiondMain(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func fusiondMain() error {
	cfg, err := fusionconfig.LoadConfig(os.Args[1:])
	if err != nil {
		return fmt.Errorf("fusiond: load config: %w", err)
	}

	if err := fusionlog.InitLogRotator(
		cfg.LogDir+"/"+"swapd.log", cfg.MaxLogSize*1024, cfg.MaxLogFiles,
	); err != nil {
		return fmt.Errorf("fusiond: init log rotator: %w", err)
	}

	log.Infof("starting fusiond, storage backend=%s", cfg.StorageBackend)

	backend, err := openStorage(cfg)
	if err != nil {
		return fmt.Errorf("fusiond: open storage: %w", err)
	}
	defer backend.Close()

	clk := clock.NewDefaultClock()
	registry := secretregistry.NewRegistry(clk)
	escrows := escrow.NewStore(escrow.NewMemoryLedger())
	records := coordinator.NewStore(func(r coordinator.Record) error {
		return backend.PutRecord(context.Background(), r)
	})

	pipeline := events.NewPipeline(cfg.EventBufferSize, nil)

	evmClient := evmorder.NewClient()
	nearClient := nearescrow.NewClient(cfg.NEARRPCEndpoint)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := evmClient.Start(ctx, events.Checkpoint{}, pipeline.Ingress()); err != nil {
		return fmt.Errorf("fusiond: start evm adapter: %w", err)
	}
	if err := nearClient.Start(ctx, events.Checkpoint{}, pipeline.Ingress()); err != nil {
		return fmt.Errorf("fusiond: start near adapter: %w", err)
	}

	go pipeline.Run(ctx)

	claimTimeout, err := time.ParseDuration(cfg.ClaimMaxElapsed)
	if err != nil {
		return fmt.Errorf("fusiond: invalid claimmaxelapsed: %w", err)
	}

	// The secret is always revealed on the NEAR escrow first, so the
	// counter-claim this executor submits always lands on the EVM order.
	claimExecutor := claimexec.NewExecutor(evmClient, claimTimeout)
	go drainClaimResults(claimExecutor)

	d := &driver{
		pipeline: pipeline,
		records:  records,
		claims:   claimExecutor,
		near:     nearClient,
		evm:      evmClient,
		clk:      clk,
	}

	grpcServer := grpc.NewServer(
		grpc.UnaryInterceptor(grpc_prometheus.UnaryServerInterceptor),
		grpc.StreamInterceptor(grpc_prometheus.StreamServerInterceptor),
	)
	rpcServer := fusionrpc.NewServer(records, escrows, clk)
	rpcServer.SetOrchestrator(newOrchestrator(d))
	fusionrpc.RegisterServer(grpcServer, rpcServer)
	grpc_prometheus.Register(grpcServer)

	reg := prometheus.NewRegistry()
	reg.MustRegister(grpc_prometheus.DefaultServerMetrics)
	for _, c := range registry.Collectors() {
		reg.MustRegister(c)
	}

	go serveMetrics(cfg.MetricsListen, reg)

	lis, err := net.Listen("tcp", cfg.RPCListen)
	if err != nil {
		return fmt.Errorf("fusiond: listen on %s: %w", cfg.RPCListen, err)
	}

	go func() {
		log.Infof("RPC server listening on %s", cfg.RPCListen)
		if err := grpcServer.Serve(lis); err != nil {
			log.Errorf("grpc server stopped: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Infof("shutdown signal received, draining")
	grpcServer.GracefulStop()

	return nil
}

// drainClaimResults logs every claim outcome claimExecutor reports. The
// transition on success flows back through the adapter's own emitted
// events (evmorder.Client.Claim re-emits via ObserveFill); a failure emits
// no event. This loop exists purely for operator visibility.
func drainClaimResults(claimExecutor *claimexec.Executor) {
	for res := range claimExecutor.Results() {
		if res.Success {
			log.Infof("claim executor: swap %s succeeded after %d attempt(s)", res.SwapKey, res.Attempts)
		} else {
			log.Errorf("claim executor: swap %s failed: %v", res.SwapKey, res.Err)
		}
	}
}

func openStorage(cfg *fusionconfig.Config) (storage.Backend, error) {
	switch cfg.StorageBackend {
	case "postgres":
		return storage.OpenPostgres(context.Background(), cfg.PostgresDSN)
	default:
		return storage.OpenBolt(cfg.DataDir)
	}
}

func serveMetrics(addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	log.Infof("metrics server listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Errorf("metrics server stopped: %v", err)
	}
}
