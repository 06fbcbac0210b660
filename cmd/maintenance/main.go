package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/inzira/ticketing-core/internal/config"
	"github.com/inzira/ticketing-core/internal/database"
	"github.com/inzira/ticketing-core/internal/services"
	"github.com/inzira/ticketing-core/pkg/events"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// One-shot operator tasks against the ticketing database:
//
//	maintenance -task reap [-timeout 5m]
//	maintenance -task advance-trips
//	maintenance -task clear-data -yes
func main() {
	var (
		dbURLFlag string
		task      string
		timeout   time.Duration
		batchSize int
		confirmed bool
	)
	flag.StringVar(&dbURLFlag, "database-url", "", "PostgreSQL connection string (overrides DATABASE_URL)")
	flag.StringVar(&task, "task", "", "reap | advance-trips | clear-data")
	flag.DurationVar(&timeout, "timeout", 5*time.Minute, "age after which an unpaid booking is reaped")
	flag.IntVar(&batchSize, "batch-size", 500, "maximum bookings reaped in one run")
	flag.BoolVar(&confirmed, "yes", false, "confirm destructive tasks")
	flag.Parse()

	// Try loading .env from current working directory (optional)
	_ = godotenv.Load()

	dbURL := dbURLFlag
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set and -database-url was not provided")
	}

	// Build minimal database config without loading full app config
	db, err := database.NewConnection(config.DatabaseConfig{
		URL:                dbURL,
		MaxConnections:     5,
		MaxIdleConnections: 2,
	})
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	txRunner := database.NewTxRunner(db, logger, 3)
	tripRepo := database.NewScheduledTripRepository(db)

	switch task {
	case "reap":
		reaper := services.NewUnpaidBookingReaper(
			txRunner,
			services.NewSeatLedger(tripRepo, logger),
			database.NewBookingRepository(db),
			database.NewPaymentRepository(db),
			services.NewSeatUpdateHub(1, logger),
			events.NewLogPublisher(logger),
			nil,
			services.ReaperConfig{Timeout: timeout, BatchSize: batchSize},
			logger,
		)
		result, err := reaper.RunOnce(ctx)
		if err != nil {
			log.Fatalf("reap failed: %v", err)
		}
		fmt.Printf("Reaped %d bookings, released %d seats, skipped %d.\n", result.Deleted, result.SeatsReleased, result.Skipped)

	case "advance-trips":
		sweeper := services.NewTripStatusService(txRunner, tripRepo, "", logger)
		result, err := sweeper.RunOnce(ctx)
		if err != nil {
			log.Fatalf("trip status sweep failed: %v", err)
		}
		fmt.Printf("Trips departed: %d, completed: %d.\n", result.Departed, result.Completed)

	case "clear-data":
		if !confirmed {
			log.Fatal("clear-data deletes every booking and payment; rerun with -yes")
		}
		clearData(ctx, db)

	default:
		flag.Usage()
		os.Exit(2)
	}
}

// clearData removes all bookings and payments and gives every trip its seats back
func clearData(ctx context.Context, db *database.PostgresDB) {
	fmt.Println("Connected to database. Clearing booking data...")

	statements := []string{
		`TRUNCATE TABLE payment_audit_logs, payments, bookings RESTART IDENTITY CASCADE`,
		`UPDATE scheduled_trips SET available_seats = total_seats, updated_at = NOW()`,
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			log.Fatalf("failed to clear data: %v", err)
		}
	}

	fmt.Println("Post-clear row counts:")
	for _, t := range []string{"bookings", "payments", "payment_audit_logs"} {
		var count int
		if err := db.GetContext(ctx, &count, fmt.Sprintf("SELECT COUNT(*) FROM %s", t)); err != nil {
			fmt.Printf("  %s: error: %v\n", t, err)
			continue
		}
		fmt.Printf("  %s: %d\n", t, count)
	}
}
