package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/2bv/prime-anonymizer/internal/audit"
	"github.com/2bv/prime-anonymizer/internal/config"
	"github.com/2bv/prime-anonymizer/internal/logger"
)

func main() {
	var (
		configPath = flag.String("config", "", "Configuration file path")
		output     = flag.String("output", "audit.parquet", "Output Parquet file path")
		sinceStr   = flag.String("since", "24h", "Export entries newer than this duration (e.g. 24h, 7d as 168h)")
		limit      = flag.Int("limit", 100000, "Maximum number of entries to export")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: "console",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	since, err := time.ParseDuration(*sinceStr)
	if err != nil {
		log.Fatal("Invalid -since duration", zap.String("since", *sinceStr), zap.Error(err))
	}

	store, err := audit.NewStore(&audit.Config{
		DatabaseURL:     cfg.Audit.DatabaseURL,
		MaxOpenConns:    cfg.Audit.MaxOpenConns,
		MaxIdleConns:    cfg.Audit.MaxIdleConns,
		ConnMaxLifetime: cfg.Audit.ConnMaxLifetime,
	}, log.WithComponent("audit").Logger)
	if err != nil {
		log.Fatal("Failed to connect to audit database", zap.Error(err))
	}
	defer store.Close()

	exporter := audit.NewExporter(store, log.WithComponent("export").Logger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	result, err := exporter.Export(ctx, *output, time.Now().Add(-since), *limit)
	if err != nil {
		log.Fatal("Export failed", zap.Error(err))
	}

	fmt.Printf("Exported %d audit entries to %s in %s\n", result.Rows, result.Path, result.Duration.Round(time.Millisecond))
}
