package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/stijnveenman/pigeon/internal/broker"
	"github.com/stijnveenman/pigeon/internal/config"
)

// readStatsInterval is how often the background reporter logs the broker's
// cumulative segment read counters.
const readStatsInterval = 5 * time.Minute

const appName = "pigeon"

func main() {
	configPath := flag.String("config", "", "path to a YAML configuration file")
	flag.Parse()

	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	logger = level.NewFilter(logger, level.AllowInfo())
	logger = log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		level.Error(logger).Log("msg", "failed to load config", "err", err)
		os.Exit(1)
	}

	b, err := broker.Open(cfg, logger)
	if err != nil {
		level.Error(logger).Log("msg", "failed to open broker", "err", err)
		os.Exit(1)
	}
	defer func() {
		if err := b.Close(); err != nil {
			level.Error(logger).Log("msg", "error closing broker", "err", err)
		}
	}()

	level.Info(logger).Log("msg", fmt.Sprintf("%s ready", appName), "data_path", cfg.DataPath)

	stop := make(chan struct{})
	defer close(stop)
	go reportReadStats(b, logger, stop)

	waitForShutdown(logger)
}

// reportReadStats periodically logs the broker's cumulative segment read
// counters until stop is closed.
func reportReadStats(b *broker.Broker, logger log.Logger, stop <-chan struct{}) {
	ticker := time.NewTicker(readStatsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			reads, bytesRead := b.ReadStats()
			level.Info(logger).Log("msg", "read stats", "reads_total", reads, "bytes_read_total", bytesRead)
		case <-stop:
			return
		}
	}
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.New(), nil
	}
	return config.LoadFile(path)
}

func waitForShutdown(logger log.Logger) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	level.Info(logger).Log("msg", "shutting down", "signal", s.String())
}
