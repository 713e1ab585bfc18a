package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/goodtune/ontime/internal/config"
	"github.com/goodtune/ontime/internal/storage"
	"github.com/goodtune/ontime/internal/storage/file"
	"github.com/goodtune/ontime/internal/units"
)

func init() {
	color.NoColor = true
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestFindUnknownKeys(t *testing.T) {
	path := writeConfig(t, `
server:
  api_port: 8081
  api_prot: 8082
storage:
  type: file
  file:
    dir: /tmp/ontime
sensors:
  - entity_id: switch.boiler
    unit: m
    colour: red
`)

	unknown, err := findUnknownKeys(path)
	if err != nil {
		t.Fatalf("findUnknownKeys failed: %v", err)
	}

	want := []string{"sensors[0].colour", "server.api_prot"}
	if strings.Join(unknown, ",") != strings.Join(want, ",") {
		t.Errorf("unknown = %v, want %v", unknown, want)
	}
}

func TestDumpConfigHighlightsChanges(t *testing.T) {
	cfg := getDefaultConfig()
	cfg.Server.APIPort = 8081
	cfg.Sensors = []config.SensorConfig{{EntityID: "switch.boiler", UniqueID: "boiler", Name: "Boiler", Unit: "m"}}

	var buf bytes.Buffer
	dumpConfig(&buf, cfg, getDefaultConfig())
	out := buf.String()

	if !strings.Contains(out, "api_port = 8081  (modified from default: 8080)") {
		t.Errorf("expected modified api_port in dump:\n%s", out)
	}
	if !strings.Contains(out, "metrics_port = 9090\n") {
		t.Errorf("expected default metrics_port in dump:\n%s", out)
	}
	if !strings.Contains(out, "key = d_boiler") {
		t.Errorf("expected derived sensor key in dump:\n%s", out)
	}
}

func TestResetRecord(t *testing.T) {
	ctx := context.Background()
	store, err := file.Open(t.TempDir())
	if err != nil {
		t.Fatalf("file.Open failed: %v", err)
	}
	records := store.Records()
	now := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

	if err := records.Save(ctx, "d_boiler", storage.UsageRecord{
		LastResetAt:        now.Add(-48 * time.Hour),
		LastUpdateAt:       now.Add(-time.Hour),
		AccumulatedSeconds: 7200,
	}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if err := resetRecord(ctx, records, "d_boiler", now, false); err != nil {
		t.Fatalf("resetRecord failed: %v", err)
	}
	record, err := records.Load(ctx, "d_boiler")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if record.AccumulatedSeconds != 0 || !record.LastResetAt.Equal(now) || !record.LastUpdateAt.Equal(now) {
		t.Errorf("unexpected record after reset: %+v", record)
	}

	if err := resetRecord(ctx, records, "d_boiler", now, true); err != nil {
		t.Fatalf("resetRecord delete failed: %v", err)
	}
	if _, err := records.Load(ctx, "d_boiler"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Load after delete = %v, want ErrNotFound", err)
	}
}

func TestPrintStatus(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := file.Open(dir)
	if err != nil {
		t.Fatalf("file.Open failed: %v", err)
	}
	records := store.Records()
	now := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

	_ = records.Save(ctx, "d_boiler", storage.UsageRecord{LastResetAt: now, LastUpdateAt: now, AccumulatedSeconds: 5400})
	_ = records.Save(ctx, "d_retired", storage.NewRecord(now))
	if err := os.WriteFile(filepath.Join(dir, "d_broken.json"), []byte(`{"last_reset_at":"2024-01-01T00:00:00Z"}`), 0644); err != nil {
		t.Fatalf("write broken record: %v", err)
	}

	sensors := []config.SensorConfig{
		{EntityID: "switch.boiler", UniqueID: "boiler", Name: "Boiler", Unit: "h"},
		{EntityID: "switch.pump", UniqueID: "pump", Name: "Pump", Unit: "s"},
		{EntityID: "switch.fan", UniqueID: "broken", Name: "Fan", Unit: "s"},
	}

	tests := []struct {
		name string
		unit units.Unit
		want []string
	}{
		{
			name: "sensor units",
			want: []string{
				"usage:   1.5000 h",
				"unavailable (no record)",
				"unavailable (malformed record",
				"- d_retired",
			},
		},
		{
			name: "override unit",
			unit: units.Minutes,
			want: []string{"usage:   90.0000 m"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := printStatus(ctx, &buf, sensors, records, tt.unit); err != nil {
				t.Fatalf("printStatus failed: %v", err)
			}
			out := buf.String()
			for _, want := range tt.want {
				if !strings.Contains(out, want) {
					t.Errorf("output missing %q:\n%s", want, out)
				}
			}
			if strings.Contains(out, "- d_boiler") {
				t.Errorf("configured key listed as orphan:\n%s", out)
			}
		})
	}
}

func TestPrintStatus_JSONSuffixKeyIsOwned(t *testing.T) {
	ctx := context.Background()
	store, err := file.Open(t.TempDir())
	if err != nil {
		t.Fatalf("file.Open failed: %v", err)
	}
	records := store.Records()
	now := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

	if err := records.Save(ctx, "d_boiler.json", storage.NewRecord(now)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	sensors := []config.SensorConfig{
		{EntityID: "switch.boiler", UniqueID: "boiler", Name: "Boiler", Unit: "h", Key: "d_boiler.json"},
	}

	var buf bytes.Buffer
	if err := printStatus(ctx, &buf, sensors, records, ""); err != nil {
		t.Fatalf("printStatus failed: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "usage:   0.0000 h") {
		t.Errorf("sensor record not shown:\n%s", out)
	}
	if strings.Contains(out, "Records without a configured sensor") {
		t.Errorf("sensor's own record listed as orphan:\n%s", out)
	}
}

func TestOpenStorage(t *testing.T) {
	store, err := openStorage(config.StorageConfig{Type: "file", File: config.FileConfig{Dir: t.TempDir()}})
	if err != nil {
		t.Fatalf("openStorage(file) failed: %v", err)
	}
	_ = store.Close()

	if _, err := openStorage(config.StorageConfig{Type: "bolt"}); err == nil {
		t.Error("expected error for unsupported storage type")
	}
}
