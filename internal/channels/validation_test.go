package channels

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateAcceptsTypicalConfigs(t *testing.T) {
	cases := []*Config{
		validConfig("BF LED matrix full", "20x"),
		validConfig("Fluorescence 405 nm Ex", "10x"),
		{Name: "DF", Objective: "4x", ExposureMs: 0.1, IlluminationIntensity: 100, FilterPosition: 8},
	}
	for _, c := range cases {
		if err := Validate(c); err != nil {
			t.Errorf("Validate(%s @ %s): %v", c.Name, c.Objective, err)
		}
	}
}

func TestValidateRejectsBadFields(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"empty name", func(c *Config) { c.Name = "" }, "name"},
		{"blank name", func(c *Config) { c.Name = "   " }, "name"},
		{"long name", func(c *Config) { c.Name = strings.Repeat("x", 101) }, "name"},
		{"empty objective", func(c *Config) { c.Objective = "" }, "objective"},
		{"zero exposure", func(c *Config) { c.ExposureMs = 0 }, "exposure"},
		{"huge exposure", func(c *Config) { c.ExposureMs = 20000 }, "exposure"},
		{"negative gain", func(c *Config) { c.AnalogGain = -1 }, "gain"},
		{"negative source", func(c *Config) { c.IlluminationSource = -1 }, "source"},
		{"intensity above 100", func(c *Config) { c.IlluminationIntensity = 101 }, "intensity"},
		{"zero filter position", func(c *Config) { c.FilterPosition = 0 }, "filter"},
		{"z offset too large", func(c *Config) { c.ZOffsetUm = 500 }, "z offset"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := validConfig("488", "20x")
			tc.mutate(c)
			err := Validate(c)
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("error %v does not wrap ErrInvalidConfig", err)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}
