package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// setupTestRedis creates a miniredis instance for testing Lua scripts
func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	return client, mr
}

func TestSaveRecordScript(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer client.Close()
	defer mr.Close()

	ctx := context.Background()

	tests := []struct {
		name    string
		key     string
		seconds string
	}{
		{name: "create record", key: "d_boiler", seconds: "300"},
		{name: "fractional seconds", key: "d_pump", seconds: "12.5"},
		{name: "negative seconds", key: "d_skewed", seconds: "-4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recordKey := "ontime:usage:" + tt.key
			indexKey := "ontime:usage:keys"

			result := client.Eval(ctx, saveRecordScript, []string{recordKey, indexKey},
				tt.key, "2024-01-01T00:00:00Z", "2024-01-01T00:05:00Z", tt.seconds)
			if result.Err() != nil {
				t.Fatalf("Script execution failed: %v", result.Err())
			}

			data, err := client.HGetAll(ctx, recordKey).Result()
			if err != nil {
				t.Fatalf("Failed to get record data: %v", err)
			}

			if data["accumulated_seconds"] != tt.seconds {
				t.Errorf("Expected accumulated_seconds=%s, got %s", tt.seconds, data["accumulated_seconds"])
			}
			if data["last_reset_at"] != "2024-01-01T00:00:00Z" {
				t.Errorf("Expected last_reset_at to be stored, got %q", data["last_reset_at"])
			}
			if data["last_update_at"] != "2024-01-01T00:05:00Z" {
				t.Errorf("Expected last_update_at to be stored, got %q", data["last_update_at"])
			}

			isMember, err := client.SIsMember(ctx, indexKey, tt.key).Result()
			if err != nil {
				t.Fatalf("Failed to check set membership: %v", err)
			}
			if !isMember {
				t.Errorf("Expected %s in key index", tt.key)
			}
		})
	}
}

func TestSaveRecordScript_DropsStaleFields(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer client.Close()
	defer mr.Close()

	ctx := context.Background()
	recordKey := "ontime:usage:d_boiler"

	// Simulate a record written by something else with an extra field
	mr.HSet(recordKey, "usage_in_sec", "99", "stale", "yes")

	if err := client.Eval(ctx, saveRecordScript, []string{recordKey, "ontime:usage:keys"},
		"d_boiler", "2024-01-01T00:00:00Z", "2024-01-01T00:00:00Z", "0").Err(); err != nil {
		t.Fatalf("Script execution failed: %v", err)
	}

	if mr.HGet(recordKey, "stale") != "" {
		t.Error("Expected stale field to be removed")
	}
	if mr.HGet(recordKey, "usage_in_sec") != "" {
		t.Error("Expected legacy field to be removed")
	}
	if got := mr.HGet(recordKey, "accumulated_seconds"); got != "0" {
		t.Errorf("Expected accumulated_seconds=0, got %s", got)
	}
}
