// Command omikuji-server runs the consent and draw ledger gRPC server.
package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/and161185/omikuji/internal/api/ledgerv1"
	"github.com/and161185/omikuji/internal/config"
	"github.com/and161185/omikuji/internal/idtoken"
	"github.com/and161185/omikuji/internal/limiter"
	"github.com/and161185/omikuji/internal/metrics"
	"github.com/and161185/omikuji/internal/migrate"
	"github.com/and161185/omikuji/internal/repository/postgres"
	grpcserver "github.com/and161185/omikuji/internal/server/grpc"
	"github.com/and161185/omikuji/internal/service"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// main loads configuration, runs migrations and serves the ledger until SIGINT/SIGTERM.
func main() {
	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()

	cfg, err := config.LoadServer()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	// Flags default to the environment
	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "gRPC listen address")
	flag.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "metrics/health HTTP listen address (empty disables)")
	flag.StringVar(&cfg.DSN, "dsn", cfg.DSN, "PostgreSQL DSN")
	flag.StringVar(&cfg.ChannelID, "channel-id", cfg.ChannelID, "LINE Login channel id (ID token audience)")
	flag.DurationVar(&cfg.DrawWindow, "draw-window", cfg.DrawWindow, "draw limiter window")
	flag.IntVar(&cfg.MaxDraws, "max-draws", cfg.MaxDraws, "draws allowed per user and window")
	flag.StringVar(&cfg.TLSCert, "tls-cert", cfg.TLSCert, "TLS certificate (PEM)")
	flag.StringVar(&cfg.TLSKey, "tls-key", cfg.TLSKey, "TLS private key (PEM)")
	flag.BoolVar(&cfg.Dev, "dev", cfg.Dev, "enable server reflection (dev only; lists the ledger service but cannot describe its JSON-coded methods)")
	flag.Parse()

	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.Addr),
	)
	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func run(ctx context.Context, cfg config.Server, logger *zap.Logger) error {
	ver, err := migrate.Up(ctx, cfg.DSN)
	if err != nil {
		return err
	}
	logger.Info("schema migrated", zap.Int64("version", ver))

	db, pool, err := postgres.New(ctx, cfg.DSN, cfg.DBMaxConns)
	if err != nil {
		return err
	}
	defer db.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	coll := metrics.NewCollector(reg)

	ledger := service.NewLedgerService(
		postgres.NewConsentRepo(db),
		postgres.NewDrawRepo(db),
		limiter.NewPG(pool, cfg.DrawWindow, cfg.MaxDraws),
		service.WithHooks(coll),
		service.WithLogger(logger.Named("ledger")),
	)

	opts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			grpcserver.RecoverUnary(logger),
			grpcserver.LoggingUnary(logger),
			grpcserver.MetricsUnary(coll),
			grpcserver.AuthUnary(idtoken.NewVerifier(cfg.ChannelID, []byte(cfg.ChannelSecret)), logger),
		),
	}
	if cfg.TLSCert != "" {
		creds, err := credentials.NewServerTLSFromFile(cfg.TLSCert, cfg.TLSKey)
		if err != nil {
			return err
		}
		opts = append(opts, grpc.Creds(creds))
	} else {
		logger.Warn("TLS disabled; ID tokens travel in clear text")
	}
	s := grpc.NewServer(opts...)
	hs := registerServices(s, ledger, cfg.Dev)

	lis, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.Addr), zap.Bool("tls", cfg.TLSCert != ""))
		return s.Serve(lis)
	})

	var ms *http.Server
	if cfg.MetricsAddr != "" {
		ms = &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           metrics.SetupMetricsRoute(reg),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info("metrics listening", zap.String("addr", cfg.MetricsAddr))
			if err := ms.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		hs.Shutdown()

		done := make(chan struct{})
		go func() {
			s.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(cfg.ShutdownTimeout):
			s.Stop()
		}
		if ms != nil {
			sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			_ = ms.Shutdown(sctx)
		}
		return nil
	})

	return g.Wait()
}

// registerServices installs the ledger and health services, plus reflection
// when dev is set. The ledger uses the JSON codec and ships no protobuf
// descriptors, so reflection can list it but not describe it.
func registerServices(s *grpc.Server, ledger service.LedgerService, dev bool) *health.Server {
	ledgerv1.RegisterLedgerServer(s, grpcserver.New(ledger))
	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	if dev {
		reflection.Register(s)
	}
	return hs
}
