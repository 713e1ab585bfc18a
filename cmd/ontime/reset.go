package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/goodtune/ontime/internal/config"
	"github.com/goodtune/ontime/internal/sensor"
	"github.com/goodtune/ontime/internal/storage"
	"github.com/spf13/cobra"
)

var resetDelete bool

var resetCmd = &cobra.Command{
	Use:   "reset UNIQUE_ID",
	Short: "Reset a sensor's persisted usage",
	Long: `Zero the persisted record of a sensor directly in storage. A running server
keeps its in-memory total and overwrites the record on the next transition; use
POST /api/sensors/{id}/reset to reset a running server instead.`,
	Example: `  ontime reset switch.boiler_cumulative_usage
  ontime reset --delete switch.boiler_cumulative_usage`,
	Args: cobra.ExactArgs(1),
	RunE: runReset,
}

func init() {
	resetCmd.Flags().BoolVar(&resetDelete, "delete", false, "Remove the record instead of zeroing it")
	rootCmd.AddCommand(resetCmd)
}

func runReset(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	sensorCfg, ok := findSensor(cfg.Sensors, args[0])
	if !ok {
		return fmt.Errorf("unknown sensor: %s", args[0])
	}

	store, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	key := sensor.KeyFor(sensorCfg)
	if err := resetRecord(ctx, store.Records(), key, time.Now(), resetDelete); err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	if resetDelete {
		_, _ = green.Fprintf(os.Stdout, "Deleted record %s for %s\n", key, sensorCfg.UniqueID)
	} else {
		_, _ = green.Fprintf(os.Stdout, "Reset record %s for %s\n", key, sensorCfg.UniqueID)
	}
	return nil
}

// resetRecord zeroes or deletes the record under key
func resetRecord(ctx context.Context, records storage.RecordStore, key string, now time.Time, remove bool) error {
	if remove {
		if err := records.Delete(ctx, key); err != nil {
			return fmt.Errorf("delete %s: %w", key, err)
		}
		return nil
	}

	if err := records.Save(ctx, key, storage.NewRecord(now)); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

func findSensor(sensors []config.SensorConfig, uniqueID string) (config.SensorConfig, bool) {
	for _, s := range sensors {
		if s.UniqueID == uniqueID {
			return s, true
		}
	}
	return config.SensorConfig{}, false
}
