package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	gracefully "github.com/tj/go-gracefully"
	"github.com/uber/jaeger-client-go"
	jaegercfg "github.com/uber/jaeger-client-go/config"
	jaegerlog "github.com/uber/jaeger-client-go/log"

	"github.com/Siya-Moghe/yak-yet-another-kafka/internal/broker"
	"github.com/Siya-Moghe/yak-yet-another-kafka/internal/config"
	"github.com/Siya-Moghe/yak-yet-another-kafka/internal/coordinator"
	"github.com/Siya-Moghe/yak-yet-another-kafka/internal/httpapi"
	"github.com/Siya-Moghe/yak-yet-another-kafka/internal/log"
)

var (
	brokerCfg = config.DefaultBrokerConfig()

	cli = &cobra.Command{
		Use:   "yak",
		Short: "A replicated, topic-partitioned message log broker",
	}
)

func init() {
	brokerCmd := &cobra.Command{Use: "broker", Short: "Run a YAK broker", Run: run}
	brokerCmd.Flags().Int32Var(&brokerCfg.BrokerID, "broker-id", brokerCfg.BrokerID, "Broker ID, unique within the cluster")
	brokerCmd.Flags().StringVar(&brokerCfg.Host, "host", brokerCfg.Host, "Address for the HTTP API to bind on")
	brokerCmd.Flags().IntVar(&brokerCfg.Port, "port", brokerCfg.Port, "Port for the HTTP API to bind on")
	brokerCmd.Flags().StringVar(&brokerCfg.AdvertiseHost, "advertise-host", brokerCfg.AdvertiseHost, "Address other brokers use to reach this one, if different from --host")
	brokerCmd.Flags().StringVar(&brokerCfg.DataDir, "data-dir", brokerCfg.DataDir, "Directory under which per-topic logs are stored")
	brokerCmd.Flags().StringVar(&brokerCfg.RedisHost, "redis-host", brokerCfg.RedisHost, "Host of the coordinator (Redis)")
	brokerCmd.Flags().IntVar(&brokerCfg.RedisPort, "redis-port", brokerCfg.RedisPort, "Port of the coordinator (Redis)")
	brokerCmd.Flags().DurationVar(&brokerCfg.LeaseTTL, "lease-ttl", brokerCfg.LeaseTTL, "TTL of the leader lease")
	brokerCmd.Flags().DurationVar(&brokerCfg.RenewInterval, "renew-interval", brokerCfg.RenewInterval, "Interval between lease acquire/renew attempts")
	brokerCmd.Flags().Int64Var(&brokerCfg.MaxMessageBytes, "max-message-bytes", brokerCfg.MaxMessageBytes, "Maximum size of a single produced message body")

	cli.AddCommand(brokerCmd)
}

func run(cmd *cobra.Command, args []string) {
	logger := log.New().With(
		log.Int32("broker_id", brokerCfg.BrokerID),
		log.String("host", brokerCfg.Host),
		log.String("redis_addr", fmt.Sprintf("%s:%d", brokerCfg.RedisHost, brokerCfg.RedisPort)),
	)
	defer logger.Sync()

	jcfg := jaegercfg.Configuration{
		Sampler: &jaegercfg.SamplerConfig{
			Type:  jaeger.SamplerTypeConst,
			Param: 1,
		},
		Reporter: &jaegercfg.ReporterConfig{
			LogSpans: true,
		},
	}
	_, closer, err := jcfg.New(
		"yak",
		jaegercfg.Logger(jaegerlog.StdLogger),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error starting tracer: %v\n", err)
		os.Exit(1)
	}
	defer closer.Close()

	coord := coordinator.New(brokerCfg.RedisHost, brokerCfg.RedisPort)
	defer coord.Close()

	b, err := broker.New(brokerCfg, coord, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error starting broker: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go b.Run(ctx)

	api := httpapi.New(b, logger, brokerCfg.MaxMessageBytes)
	addr := fmt.Sprintf("%s:%d", brokerCfg.Host, brokerCfg.Port)
	srv := &http.Server{Addr: addr, Handler: api}

	go func() {
		logger.Info("http api listening", log.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http api stopped", log.Error("error", err))
		}
	}()

	gracefully.Timeout = 10 * time.Second
	gracefully.Shutdown()

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "error shutting down http api: %v\n", err)
	}
	if err := b.Shutdown(); err != nil {
		fmt.Fprintf(os.Stderr, "error shutting down broker: %v\n", err)
		os.Exit(1)
	}
}

func main() {
	cli.Execute()
}
