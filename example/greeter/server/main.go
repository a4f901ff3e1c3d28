package main

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	_ "golang.org/x/net/trace"

	"github.com/marsevilspirit/greeter/config"
	"github.com/marsevilspirit/greeter/greeter"
	"github.com/marsevilspirit/greeter/log"
	"github.com/marsevilspirit/greeter/server"
	"github.com/marsevilspirit/greeter/serverplugin"
)

var configPath = flag.String("config", "", "config file (yaml, json or toml); GREETER_* env vars override it")

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	log.SetLevel(log.ParseLevel(cfg.LogLevel))

	opts := []server.OptionFn{
		server.WithReadTimeout(cfg.ReadTimeout),
		server.WithWriteTimeout(cfg.WriteTimeout),
		server.WithShutdownSignals(server.DefaultShutdownSignals...),
	}
	if cfg.TLSCertFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.TLSCertFile, cfg.TLSKeyFile)
		if err != nil {
			log.Fatalf("failed to load TLS key pair: %v", err)
		}
		opts = append(opts, server.WithTLSConfig(&tls.Config{Certificates: []tls.Certificate{cert}}))
	}

	s := server.NewServer(opts...)

	mp := serverplugin.NewMetricsPlugin(nil)
	s.Plugins.Add(mp)
	if cfg.Trace {
		s.Plugins.Add(&serverplugin.TracePlugin{})
	}

	var metricsServer *http.Server
	if cfg.MetricsAddress != "" {
		pp, err := serverplugin.NewPrometheusPlugin(nil)
		if err != nil {
			log.Fatalf("failed to register prometheus metrics: %v", err)
		}
		s.Plugins.Add(pp)

		// x/net/trace 已经在 DefaultServeMux 上注册了 /debug/requests
		http.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{Addr: cfg.MetricsAddress}
		go func() {
			log.Infof("serving metrics on %s", cfg.MetricsAddress)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorf("metrics server: %v", err)
			}
		}()
	}

	if err := greeter.RegisterGreeterServer(s, &greeter.Greeter{}); err != nil {
		log.Fatalf("failed to register greeter: %v", err)
	}

	if err := s.Start(cfg.Network, cfg.Address); err != nil {
		log.Fatalf("failed to start server: %v", err)
	}

	stopReport := make(chan struct{})
	if d := cfg.MetricsReportInterval; d > 0 {
		go func() {
			ticker := time.NewTicker(d)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					mp.Report(log.WithField("component", "metrics"))
				case <-stopReport:
					return
				}
			}
		}()
	}

	s.RegisterOnShutdown(func() {
		close(stopReport)
		mp.Report(log.WithField("component", "metrics"))

		if metricsServer != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			metricsServer.Shutdown(ctx)
		}
	})

	s.BlockUntilShutdown()
}
