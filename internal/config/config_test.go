package config

import (
	"testing"

	"github.com/qr-backend/internal/constants"

	"github.com/spf13/viper"
)

func TestSetDefaultsProvidesCoreSections(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		t.Fatalf("unmarshal defaults failed: %v", err)
	}
	if cfg.Bulk.ChunkSize != constants.DefaultBulkChunkSize {
		t.Fatalf("bulk chunk size want %d got %d", constants.DefaultBulkChunkSize, cfg.Bulk.ChunkSize)
	}
	if cfg.Quota.MonthlyLimit <= 0 || cfg.Quota.MaxBatchSize <= 0 {
		t.Fatalf("quota defaults missing: %+v", cfg.Quota)
	}
	if cfg.Queue.Queues[constants.QueueDefault] == 0 {
		t.Fatalf("default queue weight missing: %+v", cfg.Queue.Queues)
	}
	if cfg.Security.VerifyRateLimit.MaxRequests <= 0 {
		t.Fatalf("verify rate limit defaults missing")
	}
}

func TestCodesConfigNormalize(t *testing.T) {
	cfg := CodesConfig{TokenBytes: 4, MicroCheckBytes: 2, WatermarkBytes: 64}.Normalize()
	if cfg.TokenBytes != constants.DefaultTokenBytes {
		t.Fatalf("token bytes should be raised to %d, got %d", constants.DefaultTokenBytes, cfg.TokenBytes)
	}
	if cfg.MicroCheckBytes != constants.DefaultDerivationBytes || cfg.WatermarkBytes != constants.DefaultDerivationBytes {
		t.Fatalf("derivation bytes should fall back to default: %+v", cfg)
	}
	if cfg.MaxMintRetries != constants.DefaultMintRetryLimit {
		t.Fatalf("mint retries default mismatch: %d", cfg.MaxMintRetries)
	}

	keep := CodesConfig{TokenBytes: 32, MicroCheckBytes: 8, WatermarkBytes: 20, MaxMintRetries: 2}.Normalize()
	if keep.TokenBytes != 32 || keep.MicroCheckBytes != 8 || keep.WatermarkBytes != 20 || keep.MaxMintRetries != 2 {
		t.Fatalf("valid values should be preserved: %+v", keep)
	}
}
