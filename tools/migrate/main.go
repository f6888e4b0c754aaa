package main

import (
	"fmt"
	"os"

	"github.com/barberflow/barberflow/libs/config"
	"github.com/barberflow/barberflow/libs/db"
	"github.com/barberflow/barberflow/libs/runtime"
	"github.com/barberflow/barberflow/migrations"
)

func main() {
	logger := runtime.NewLogger("migrate")

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, stop := runtime.SignalContext()
	defer stop()

	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	applied, err := db.Migrate(ctx, pool, migrations.FS, logger)
	if err != nil {
		logger.Error("migrations failed", "err", err, "applied", applied)
		pool.Close()
		os.Exit(1)
	}
	logger.Info("migrations complete", "applied", applied)
}
