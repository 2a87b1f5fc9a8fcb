package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		wantErr bool
	}{
		{
			name:    "default config",
			envVars: map[string]string{},
			wantErr: false,
		},
		{
			name: "custom config",
			envVars: map[string]string{
				"SERVICE_NAME":     "test-service",
				"LISTEN_PORT":      "4444",
				"POOL_FEE_PERCENT": "2.5",
				"NETWORKS":         "main,test",
			},
			wantErr: false,
		},
		{
			name: "invalid port",
			envVars: map[string]string{
				"LISTEN_PORT": "99999",
			},
			wantErr: true,
		},
		{
			name: "invalid fee",
			envVars: map[string]string{
				"POOL_FEE_PERCENT": "150",
			},
			wantErr: true,
		},
		{
			name: "invalid network rpc port",
			envVars: map[string]string{
				"NETWORKS":      "main",
				"MAIN_RPC_PORT": "-1",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Set environment variables
			for key, value := range tt.envVars {
				if err := os.Setenv(key, value); err != nil {
					t.Fatalf("failed to set environment variable %s: %v", key, err)
				}
			}
			defer func() {
				// Clean up environment variables
				for key := range tt.envVars {
					if err := os.Unsetenv(key); err != nil {
						t.Logf("failed to unset environment variable %s: %v", key, err)
					}
				}
			}()

			cfg, err := Load()
			if (err != nil) != tt.wantErr {
				t.Errorf("Load() error = %v, wantErr %v", err, tt.wantErr)
				return
			}

			if !tt.wantErr {
				// Verify some basic fields
				if cfg.ServiceName == "" {
					t.Error("ServiceName should not be empty")
				}
				if cfg.ListenPort <= 0 {
					t.Error("ListenPort should be positive")
				}
				if len(cfg.Networks) == 0 {
					t.Error("Networks should not be empty")
				}
			}
		})
	}
}

func TestLoadNetworks(t *testing.T) {
	envVars := map[string]string{
		"NETWORKS":            "main,test",
		"MAIN_POOL_ADDRESS":   "BPoolAddressMainXXXXXXXXXXXXXXXXXX",
		"MAIN_MATURE_HOURS":   "5",
		"TEST_POOL_ADDRESS":   "yPoolAddressTestXXXXXXXXXXXXXXXXXX",
		"TEST_MINIMUM_PAYOUT": "20000",
	}
	for key, value := range envVars {
		if err := os.Setenv(key, value); err != nil {
			t.Fatalf("failed to set environment variable %s: %v", key, err)
		}
	}
	defer func() {
		for key := range envVars {
			if err := os.Unsetenv(key); err != nil {
				t.Logf("failed to unset environment variable %s: %v", key, err)
			}
		}
	}()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	main, err := cfg.Network("main")
	if err != nil {
		t.Fatalf("Network(main) error = %v", err)
	}
	if main.PoolAddress != "BPoolAddressMainXXXXXXXXXXXXXXXXXX" {
		t.Errorf("main pool address = %v", main.PoolAddress)
	}
	if main.MatureHours != 5 {
		t.Errorf("main mature hours = %v, want 5", main.MatureHours)
	}

	test, err := cfg.Network("test")
	if err != nil {
		t.Fatalf("Network(test) error = %v", err)
	}
	if test.MinimumPayout != 20000 {
		t.Errorf("test minimum payout = %v, want 20000", test.MinimumPayout)
	}

	if _, err := cfg.Network("regtest"); err == nil {
		t.Error("Network(regtest) should fail for unconfigured network")
	}
}

func TestConfigValidation(t *testing.T) {
	valid := func() *Config {
		return &Config{
			ServiceName:      "test",
			ListenPort:       8000,
			PoolFeePercent:   5.0,
			RetentionDays:    2,
			PayoutBatchSize:  10,
			PayoutsPerMinute: 12,
			Networks: map[string]*NetworkConfig{
				"main": {RPCHost: "localhost", RPCPort: 40009, MatureHours: 5, MinimumPayout: 1},
			},
		}
	}

	if err := valid().validate(); err != nil {
		t.Errorf("validate() should not fail for valid config: %v", err)
	}

	// Test invalid configurations
	invalidConfigs := map[string]func(*Config){
		"empty service name":   func(c *Config) { c.ServiceName = "" },
		"zero listen port":     func(c *Config) { c.ListenPort = 0 },
		"fee above 100":        func(c *Config) { c.PoolFeePercent = 150 },
		"no networks":          func(c *Config) { c.Networks = nil },
		"zero retention":       func(c *Config) { c.RetentionDays = 0 },
		"zero payout batch":    func(c *Config) { c.PayoutBatchSize = 0 },
		"negative mature":      func(c *Config) { c.Networks["main"].MatureHours = -1 },
		"negative min payout":  func(c *Config) { c.Networks["main"].MinimumPayout = -5 },
		"zero payouts per min": func(c *Config) { c.PayoutsPerMinute = 0 },
	}

	for name, mutate := range invalidConfigs {
		cfg := valid()
		mutate(cfg)
		if err := cfg.validate(); err == nil {
			t.Errorf("validate() should fail for %s", name)
		}
	}
}

func TestGetEnvHelpers(t *testing.T) {
	// Test getEnv
	if err := os.Setenv("TEST_STRING", "test_value"); err != nil {
		t.Fatalf("failed to set TEST_STRING: %v", err)
	}
	defer func() {
		if err := os.Unsetenv("TEST_STRING"); err != nil {
			t.Logf("failed to unset TEST_STRING: %v", err)
		}
	}()

	if got := getEnv("TEST_STRING", "default"); got != "test_value" {
		t.Errorf("getEnv() = %v, want %v", got, "test_value")
	}

	if got := getEnv("NONEXISTENT", "default"); got != "default" {
		t.Errorf("getEnv() = %v, want %v", got, "default")
	}

	// Test getEnvInt
	if err := os.Setenv("TEST_INT", "42"); err != nil {
		t.Fatalf("failed to set TEST_INT: %v", err)
	}
	defer func() {
		if err := os.Unsetenv("TEST_INT"); err != nil {
			t.Logf("failed to unset TEST_INT: %v", err)
		}
	}()

	if got := getEnvInt("TEST_INT", 0); got != 42 {
		t.Errorf("getEnvInt() = %v, want %v", got, 42)
	}

	if got := getEnvInt("NONEXISTENT", 99); got != 99 {
		t.Errorf("getEnvInt() = %v, want %v", got, 99)
	}

	// Test getEnvFloat
	if err := os.Setenv("TEST_FLOAT", "3.14"); err != nil {
		t.Fatalf("failed to set TEST_FLOAT: %v", err)
	}
	defer func() {
		if err := os.Unsetenv("TEST_FLOAT"); err != nil {
			t.Logf("failed to unset TEST_FLOAT: %v", err)
		}
	}()

	if got := getEnvFloat("TEST_FLOAT", 0.0); got != 3.14 {
		t.Errorf("getEnvFloat() = %v, want %v", got, 3.14)
	}

	// Test getEnvDuration
	if err := os.Setenv("TEST_DURATION", "30s"); err != nil {
		t.Fatalf("failed to set TEST_DURATION: %v", err)
	}
	defer func() {
		if err := os.Unsetenv("TEST_DURATION"); err != nil {
			t.Logf("failed to unset TEST_DURATION: %v", err)
		}
	}()

	if got := getEnvDuration("TEST_DURATION", 0); got != 30*time.Second {
		t.Errorf("getEnvDuration() = %v, want %v", got, 30*time.Second)
	}

	// Test getEnvSlice
	if err := os.Setenv("TEST_SLICE", "a, b,c"); err != nil {
		t.Fatalf("failed to set TEST_SLICE: %v", err)
	}
	defer func() {
		if err := os.Unsetenv("TEST_SLICE"); err != nil {
			t.Logf("failed to unset TEST_SLICE: %v", err)
		}
	}()

	got := getEnvSlice("TEST_SLICE", nil)
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Errorf("getEnvSlice() = %v, want [a b c]", got)
	}
}
