package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/goodtune/ontime/internal/config"
	"github.com/goodtune/ontime/internal/sensor"
	"github.com/goodtune/ontime/internal/storage"
	"github.com/goodtune/ontime/internal/units"
	"github.com/spf13/cobra"
)

var statusUnit string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show persisted usage for every sensor",
	Long: `Read each configured sensor's persisted record and print the accumulated
time. Records in storage that no configured sensor owns are listed as orphans.`,
	Example: `  ontime status
  ontime -c config.yaml status --unit m`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVarP(&statusUnit, "unit", "u", "", "Display unit (h, m, s); defaults to each sensor's unit")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	store, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return printStatus(ctx, os.Stdout, cfg.Sensors, store.Records(), units.Parse(statusUnit))
}

// printStatus writes one block per sensor followed by orphaned keys
func printStatus(ctx context.Context, w io.Writer, sensors []config.SensorConfig, records storage.RecordStore, unit units.Unit) error {
	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	red := color.New(color.FgRed, color.Bold)

	owned := make(map[string]bool, len(sensors))

	for _, s := range sensors {
		key := sensor.KeyFor(s)
		owned[storage.NormalizeKey(key)] = true

		display := unit
		if display == "" {
			display = units.Parse(s.Unit)
		}

		_, _ = cyan.Fprintf(w, "\n%s (%s)\n", s.Name, s.UniqueID)
		fmt.Fprintf(w, "  entity:  %s\n", s.EntityID)
		fmt.Fprintf(w, "  key:     %s\n", key)

		record, err := records.Load(ctx, key)
		switch {
		case err == nil:
			_, _ = green.Fprintf(w, "  usage:   %.4f %s\n", units.Convert(record.AccumulatedSeconds, display), display)
			fmt.Fprintf(w, "  reset:   %s\n", storage.FormatTimestamp(record.LastResetAt))
			fmt.Fprintf(w, "  updated: %s\n", storage.FormatTimestamp(record.LastUpdateAt))
		case errors.Is(err, storage.ErrNotFound):
			_, _ = yellow.Fprintln(w, "  usage:   unavailable (no record)")
		case errors.Is(err, storage.ErrMalformed):
			_, _ = red.Fprintf(w, "  usage:   unavailable (malformed record: %v)\n", err)
		default:
			return fmt.Errorf("load %s: %w", key, err)
		}
	}

	keys, err := records.Keys(ctx)
	if err != nil {
		return fmt.Errorf("list keys: %w", err)
	}

	var orphans []string
	for _, key := range keys {
		if !owned[storage.NormalizeKey(key)] {
			orphans = append(orphans, key)
		}
	}

	if len(orphans) > 0 {
		_, _ = yellow.Fprintf(w, "\nRecords without a configured sensor (%d):\n", len(orphans))
		for _, key := range orphans {
			fmt.Fprintf(w, "  - %s\n", key)
		}
	}

	return nil
}
