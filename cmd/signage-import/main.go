// Command signage-import stores a preprocessed dataset document in the
// signage_datasets table so signage instances can load it by station.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/joho/godotenv"

	"bus-signage/internal/db"
	"bus-signage/internal/schedule"
)

func main() {
	_ = godotenv.Load()

	dsn := flag.String("db", os.Getenv("DATABASE_URL"), "postgres:// or sqlite:// DSN")
	station := flag.String("station", os.Getenv("STATION"), "station the dataset belongs to")
	file := flag.String("file", "", "dataset JSON file (.json or .json.gz)")
	version := flag.String("version", "", "dataset version label (default: content hash)")
	allowPartial := flag.Bool("allow-partial", false, "accept datasets without departure_info or calendar")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if *dsn == "" || *station == "" || *file == "" {
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := run(ctx, logger, *dsn, *station, *file, *version, *allowPartial); err != nil {
		logger.Error("import failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, dsn, station, file, version string, allowPartial bool) error {
	src := schedule.FileSource{Path: file}
	payload, err := src.Fetch(ctx)
	if err != nil {
		return err
	}

	// Validate the bytes about to be inserted the same way the server loads them.
	store := schedule.NewStore(logger, nil)
	ds, err := store.Load(ctx, payloadSource{name: src.String(), b: payload})
	if err != nil {
		if !errors.Is(err, schedule.ErrMissingData) || !allowPartial {
			return err
		}
		logger.Warn("importing partial dataset", slog.Any("error", err))
	}

	if version == "" {
		version = fmt.Sprintf("%016x", xxhash.Sum64(payload))
	}

	conn, dialect, err := db.Open(dsn)
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := db.Ping(ctx, conn); err != nil {
		return err
	}
	if err := db.EnsureSchema(ctx, conn, dialect); err != nil {
		return err
	}
	if err := db.InsertDataset(ctx, conn, dialect, station, version, time.Now(), payload); err != nil {
		return err
	}
	logger.Info("dataset imported",
		slog.String("station", station),
		slog.String("version", version),
		slog.String("stationName", ds.StationName),
		slog.Int("platforms", len(ds.DepartureInfo)),
		slog.Int("bytes", len(payload)))
	return nil
}

// payloadSource serves bytes that were already read from disk.
type payloadSource struct {
	name string
	b    []byte
}

func (p payloadSource) Fetch(context.Context) ([]byte, error) { return p.b, nil }
func (p payloadSource) String() string                        { return p.name }
