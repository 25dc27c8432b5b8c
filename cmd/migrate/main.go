package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"time"

	"ms-tickets/internal/config"
	"ms-tickets/internal/database/migrations"
	"ms-tickets/internal/logger"
	"ms-tickets/internal/models"
	"ms-tickets/internal/order/db"
	"ms-tickets/internal/utils"

	"github.com/joho/godotenv"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

func main() {
	down := flag.Bool("down", false, "roll back every migration")
	to := flag.Int("to", -1, "migrate to a specific version")
	seed := flag.Bool("seed", false, "insert a sample pending order after migrating")
	flag.Parse()

	_ = godotenv.Load()
	cfg := config.Load()

	log := logger.NewLogger(cfg.Log.Dir)
	defer log.Close()

	ctx := context.Background()

	connector := pgdriver.NewConnector(pgdriver.WithDSN(cfg.Database.DSN))
	sqldb := sql.OpenDB(connector)
	defer sqldb.Close()

	if err := sqldb.PingContext(ctx); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to database: %v", err))
	}

	runner := migrations.NewRunner(sqldb, log)
	defer runner.Close()

	var err error
	switch {
	case *down:
		log.Info("MIGRATE", "Rolling back all migrations...")
		err = runner.MigrateDown()
	case *to >= 0:
		log.Info("MIGRATE", fmt.Sprintf("Migrating to version %d...", *to))
		err = runner.MigrateTo(uint(*to))
	default:
		log.Info("MIGRATE", "Running migrations...")
		err = runner.MigrateUp()
	}
	if err != nil {
		log.Error("MIGRATE", err.Error())
		os.Exit(1)
	}

	if *seed && !*down {
		if err := seedData(ctx, bun.NewDB(sqldb, pgdialect.New()), cfg); err != nil {
			log.Error("MIGRATE", fmt.Sprintf("Seeding failed: %v", err))
			os.Exit(1)
		}
		log.Info("MIGRATE", "Sample order inserted")
	}

	log.Info("MIGRATE", "✅ Done.")
}

func seedData(ctx context.Context, bunDB *bun.DB, cfg *config.Config) error {
	ticketID, qrCode := utils.GenerateTicketIdentifiers()
	ticketType := cfg.Tickets.DefaultType
	order := &models.Order{
		ID:            utils.GenerateOrderID(),
		TicketID:      ticketID,
		QRCode:        qrCode,
		FullName:      "Sample Guest",
		Email:         "guest@example.com",
		Phone:         "254712345678",
		TicketType:    ticketType,
		Quantity:      1,
		TotalAmount:   cfg.Tickets.Prices[ticketType],
		PaymentStatus: models.PaymentPending,
		CreatedAt:     time.Now().UTC(),
	}
	return (&db.DB{Bun: bunDB}).CreateOrder(ctx, order)
}
