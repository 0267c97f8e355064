package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Ashrafnet/CommunityServer/internal/account"
	"github.com/Ashrafnet/CommunityServer/internal/config"
	"github.com/Ashrafnet/CommunityServer/pkg/database"
	"github.com/Ashrafnet/CommunityServer/pkg/utilities"
)

func main() {
	// load .env file if present so os.Getenv picks values from it
	// this is best-effort: if no .env exists, continue (use defaults or real env)
	_ = godotenv.Load()

	input := flag.String("input", "", "directory records, one JSON object per line (default stdin)")
	migrateFirst := flag.Bool("migrate", false, "create missing tables before syncing")
	flag.Parse()

	// init logger
	lg, err := utilities.Init(utilities.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()

	sugar := lg.Sugar()
	sugar.Info("starting identity-sync")

	cfg, err := config.Load()
	if err != nil {
		sugar.Fatalf("config: %v", err)
	}

	// init db
	db, err := database.Connect(database.ConfigFromEnv())
	if err != nil {
		sugar.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	// graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *migrateFirst {
		if err := migrate(ctx, db, cfg.TenantID); err != nil {
			sugar.Fatalf("migrate: %v", err)
		}
		sugar.Info("schema ready")
	}

	a, err := newApp(cfg, db, nil, clockwork.NewRealClock(), sugar)
	if err != nil {
		sugar.Fatalf("init: %v", err)
	}

	var in io.Reader = os.Stdin
	if *input != "" {
		f, err := os.Open(*input)
		if err != nil {
			sugar.Fatalf("open input: %v", err)
		}
		defer f.Close()
		in = f
	}

	sum, runErr := a.syncRecords(ctx, in)
	sugar.Infow("directory sync finished",
		"records", sum.total(),
		"created", sum.Outcomes[account.OutcomeCreated],
		"merged", sum.Outcomes[account.OutcomeMerged],
		"replaced", sum.Outcomes[account.OutcomeReplaced],
		"merged_into_holder", sum.Outcomes[account.OutcomeMergedIntoHolder],
		"unchanged", sum.Outcomes[account.OutcomeUnchanged],
		"skipped", sum.Outcomes[account.OutcomeSkipped],
		"failed", sum.Failed,
	)

	if cfg.MetricsTextfile != "" {
		if err := prometheus.WriteToTextfile(cfg.MetricsTextfile, a.registry); err != nil {
			sugar.Warnw("write metrics textfile failed", "path", cfg.MetricsTextfile, "err", err)
		}
	}

	if runErr != nil {
		sugar.Errorw("directory sync aborted", "err", runErr)
		os.Exit(1)
	}
	if sum.Failed > 0 {
		os.Exit(1)
	}
	sugar.Info("goodbye")
}
