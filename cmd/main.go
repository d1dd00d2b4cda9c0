package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/uwscope/scope-web-sub000/internal/config"
	"github.com/uwscope/scope-web-sub000/internal/observability"
	"github.com/uwscope/scope-web-sub000/internal/service"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:           "scope-records",
		Short:         "Patient record store and schedule maintenance",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", os.Getenv("SCOPE_CONFIG"), "path to a TOML config file")

	root.AddCommand(
		newServeCmd(&configPath),
		newMigrateCmd(&configPath),
		newInitCmd(&configPath),
		newMaintainCmd(&configPath),
	)
	return root
}

func newServeCmd(configPath *string) *cobra.Command {
	var maintainEvery time.Duration
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gRPC record service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			// 1. Config, logging, storage.
			a, err := newApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.close()

			// 2. Tracing.
			shutdownTracing, err := observability.InitTracing(ctx, a.log, a.cfg.Tracing)
			if err != nil {
				return err
			}
			a.closers = append(a.closers, shutdownTracing)

			// 3. gRPC server.
			grpcServer := grpc.NewServer(grpc.UnaryInterceptor(service.UnaryLogging(a.log)))
			service.RegisterRecordService(grpcServer, service.NewRecordService(a.records, a.log))
			healthServer := health.NewServer()
			healthpb.RegisterHealthServer(grpcServer, healthServer)
			healthServer.SetServingStatus(service.RecordServiceName, healthpb.HealthCheckResponse_SERVING)
			reflection.Register(grpcServer)

			lis, err := net.Listen("tcp", a.cfg.GRPC.Addr)
			if err != nil {
				return fmt.Errorf("listen %s: %w", a.cfg.GRPC.Addr, err)
			}

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				a.log.Info("grpc server listening", "addr", a.cfg.GRPC.Addr)
				return grpcServer.Serve(lis)
			})

			// 4. Metrics endpoint.
			var metricsServer *http.Server
			if a.cfg.Metrics.Addr != "" {
				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{Registry: a.registry}))
				metricsServer = &http.Server{Addr: a.cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
				g.Go(func() error {
					a.log.Info("metrics listening", "addr", a.cfg.Metrics.Addr)
					if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						return err
					}
					return nil
				})
			}

			// 5. Periodic maintenance.
			if maintainEvery > 0 {
				g.Go(func() error {
					ticker := time.NewTicker(maintainEvery)
					defer ticker.Stop()
					for {
						select {
						case <-ctx.Done():
							return nil
						case <-ticker.C:
							if err := a.maintainAll(ctx); err != nil {
								a.log.Error("maintenance failed", "error", err)
							}
						}
					}
				})
			}

			// 6. Graceful shutdown.
			g.Go(func() error {
				<-ctx.Done()
				a.log.Info("shutting down")
				healthServer.Shutdown()
				grpcServer.GracefulStop()
				if metricsServer != nil {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					return metricsServer.Shutdown(shutdownCtx)
				}
				return nil
			})
			return g.Wait()
		},
	}
	cmd.Flags().DurationVar(&maintainEvery, "maintain-every", 0, "maintain all collections at this interval (0 disables)")
	return cmd
}

func newMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the document table",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer a.close()
			if a.cfg.Storage == config.StorageMongo {
				a.log.Info("mongo storage keeps its indexes per collection; nothing to migrate")
				return nil
			}
			a.log.Info("migration complete")
			return nil
		},
	}
}

func newInitCmd(configPath *string) *cobra.Command {
	var collection string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Prepare a patient collection",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer a.close()
			if err := a.records.InitCollection(cmd.Context(), collection); err != nil {
				return err
			}
			a.log.Info("collection initialized", "collection", collection)
			return nil
		},
	}
	cmd.Flags().StringVar(&collection, "collection", "", "collection name")
	_ = cmd.MarkFlagRequired("collection")
	return cmd
}

func newMaintainCmd(configPath *string) *cobra.Command {
	var (
		collection string
		all        bool
	)
	cmd := &cobra.Command{
		Use:   "maintain",
		Short: "Extend and repair the scheduled occurrences of patient collections",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if (collection == "") == !all {
				return errors.New("pass exactly one of --collection or --all")
			}
			a, err := newApp(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer a.close()
			if all {
				return a.maintainAll(cmd.Context())
			}
			_, err = a.records.Maintain(cmd.Context(), collection)
			return err
		},
	}
	cmd.Flags().StringVar(&collection, "collection", "", "collection to maintain")
	cmd.Flags().BoolVar(&all, "all", false, "maintain every collection")
	return cmd
}
