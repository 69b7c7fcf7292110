package config

import "testing"

func validConfig() Config {
	return Config{
		Wallet: WalletConfig{PrivateKey: "0xabc", ChainID: 1, MakerID: "maker-1"},
		Venue:  VenueConfig{BaseURL: "https://venue.example/api", WSURL: "wss://venue.example/ws"},
		Wire:   WireConfig{OddsUnit: 1_000_000, LadderStep: 1_000, StakeUnit: 100},
		Timing: TimingConfig{CompleteFraction: 0.99},
	}
}

func TestValidateAcceptsCompleteConfig(t *testing.T) {
	t.Parallel()
	c := validConfig()
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
}

func TestValidateRejectsMissingPrivateKey(t *testing.T) {
	t.Parallel()
	c := validConfig()
	c.Wallet.PrivateKey = ""
	if err := c.Validate(); err == nil {
		t.Fatal("expected an error for missing wallet.private_key")
	}
}

func TestValidateRejectsZeroWireConstants(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"odds_unit", func(c *Config) { c.Wire.OddsUnit = 0 }},
		{"ladder_step", func(c *Config) { c.Wire.LadderStep = 0 }},
		{"stake_unit", func(c *Config) { c.Wire.StakeUnit = 0 }},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			c := validConfig()
			tc.mutate(&c)
			if err := c.Validate(); err == nil {
				t.Fatalf("expected Validate() to reject zero %s", tc.name)
			}
		})
	}
}

func TestValidateRejectsCompleteFractionOutOfRange(t *testing.T) {
	t.Parallel()
	for _, bad := range []float64{0, -0.5, 1.5} {
		c := validConfig()
		c.Timing.CompleteFraction = bad
		if err := c.Validate(); err == nil {
			t.Errorf("expected Validate() to reject complete_fraction=%v", bad)
		}
	}
}
