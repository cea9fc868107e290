/*
   config - viper-backed settings loader for the translation core.

   Copyright (c) 2026, EV6 Core Contributors

   Permission is hereby granted, free of charge, to any person obtaining a copy
   of this software and associated documentation files (the "Software"), to deal
   in the Software without restriction, including without limitation the rights
   to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
   copies of the Software, and to permit persons to whom the Software is
   furnished to do so, subject to the following conditions:

   The above copyright notice and this permission notice shall be included in
   all copies or substantial portions of the Software.

   THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
   IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
   FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
   AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
   LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
   OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
   SOFTWARE.
*/

// Package config binds the process-start settings spec.md leaves external:
// how many CPUs, how much guest memory, the VA width, and the Open-Question
// behavior flags internal/xlate.Settings exposes. It plays the role the
// teacher's config/configparser package plays for device models, but binds
// through viper/cobra/pflag instead of a hand-rolled line grammar, since
// nothing here configures named device models the way the teacher's parser
// grammar was built around.
package config

import (
	"fmt"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/openalpha/ev6core/internal/platform"
	"github.com/openalpha/ev6core/internal/pte"
	"github.com/openalpha/ev6core/internal/xlate"
)

// Settings is the full set of process-start knobs.
type Settings struct {
	NumCPUs           int    `mapstructure:"num_cpus"`
	MemoryBytes       uint64 `mapstructure:"memory_bytes"`
	VAWidth48         bool   `mapstructure:"va_width_48"`
	BucketsPerRealm   int    `mapstructure:"buckets_per_realm"`
	Ways              int    `mapstructure:"ways"`
	LogDebug          bool   `mapstructure:"log_debug"`
	UseZapLog         bool   `mapstructure:"use_zap_log"`

	TLBCheckBothRealms         bool `mapstructure:"tlb_check_both_realms"`
	BroadcastShootdownOnInsert bool `mapstructure:"broadcast_shootdown_on_insert"`
	FlushAllOnContextSwitch    bool `mapstructure:"flush_all_on_context_switch"`
	AlignmentBytes             int  `mapstructure:"alignment_bytes"`
}

// defaults mirrors xlate.DefaultSettings and a small single-CPU demo system,
// so a process with no config file, env vars, or flags still boots.
func defaults() Settings {
	xs := xlate.DefaultSettings()
	return Settings{
		NumCPUs:                    1,
		MemoryBytes:                1 << 26, // 64 MiB
		VAWidth48:                  false,
		BucketsPerRealm:            256,
		Ways:                       4,
		LogDebug:                   false,
		UseZapLog:                  false,
		TLBCheckBothRealms:         xs.TLBCheckBothRealms,
		BroadcastShootdownOnInsert: xs.BroadcastShootdownOnInsert,
		FlushAllOnContextSwitch:    xs.FlushAllOnContextSwitch,
		AlignmentBytes:             xs.AlignmentBytes,
	}
}

// flagKeys maps each dash-named CLI flag to the underscore-named viper/
// mapstructure key Settings is unmarshaled from — pflag convention favors
// dashes, viper's env-var convention favors underscores, and BindPFlag lets
// the two coexist without forcing one style on the other.
var flagKeys = map[string]string{
	"num-cpus":                     "num_cpus",
	"memory-bytes":                 "memory_bytes",
	"va-width-48":                  "va_width_48",
	"buckets-per-realm":            "buckets_per_realm",
	"ways":                         "ways",
	"log-debug":                    "log_debug",
	"use-zap-log":                  "use_zap_log",
	"tlb-check-both-realms":        "tlb_check_both_realms",
	"broadcast-shootdown-on-insert": "broadcast_shootdown_on_insert",
	"flush-all-on-context-switch":  "flush_all_on_context_switch",
	"alignment-bytes":              "alignment_bytes",
}

// BindFlags registers the flag surface cmd/axpcore exposes, wiring each flag
// into v so viper's precedence order (flag > env > file > default) applies.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	d := defaults()
	flags.Int("num-cpus", d.NumCPUs, "number of simulated CPUs")
	flags.Uint64("memory-bytes", d.MemoryBytes, "guest physical memory size in bytes")
	flags.Bool("va-width-48", d.VAWidth48, "select the 48-bit VA configuration instead of 43-bit")
	flags.Int("buckets-per-realm", d.BucketsPerRealm, "SPAM buckets per realm, per CPU")
	flags.Int("ways", d.Ways, "SPAM bucket set-associativity")
	flags.Bool("log-debug", d.LogDebug, "echo every log line to stderr, not just WARN and above")
	flags.Bool("use-zap-log", d.UseZapLog, "use the zap-backed JSON sink instead of the slog text sink")
	flags.Bool("tlb-check-both-realms", d.TLBCheckBothRealms, "TBCHK probes both I and D SPAM arrays")
	flags.Bool("broadcast-shootdown-on-insert", d.BroadcastShootdownOnInsert, "proactively shoot down every peer on a TLB fill")
	flags.Bool("flush-all-on-context-switch", d.FlushAllOnContextSwitch, "SWPCTX flushes the whole TLB instead of just the outgoing ASN")
	flags.Int("alignment-bytes", d.AlignmentBytes, "natural alignment F1's alignment check enforces")

	for flagName, key := range flagKeys {
		if err := v.BindPFlag(key, flags.Lookup(flagName)); err != nil {
			return fmt.Errorf("config: bind flag %s: %w", flagName, err)
		}
	}
	return nil
}

// Load builds a Settings by layering, in increasing precedence: compiled-in
// defaults, an optional config file (TOML/YAML/JSON, located by viper's
// normal search path plus any explicit path set via v.SetConfigFile),
// AXPCORE_-prefixed environment variables, and whatever flags BindFlags
// already bound into v.
func Load(v *viper.Viper) (Settings, error) {
	d := defaults()
	v.SetDefault("num_cpus", d.NumCPUs)
	v.SetDefault("memory_bytes", d.MemoryBytes)
	v.SetDefault("va_width_48", d.VAWidth48)
	v.SetDefault("buckets_per_realm", d.BucketsPerRealm)
	v.SetDefault("ways", d.Ways)
	v.SetDefault("log_debug", d.LogDebug)
	v.SetDefault("use_zap_log", d.UseZapLog)
	v.SetDefault("tlb_check_both_realms", d.TLBCheckBothRealms)
	v.SetDefault("broadcast_shootdown_on_insert", d.BroadcastShootdownOnInsert)
	v.SetDefault("flush_all_on_context_switch", d.FlushAllOnContextSwitch)
	v.SetDefault("alignment_bytes", d.AlignmentBytes)

	v.SetEnvPrefix("AXPCORE")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Settings{}, fmt.Errorf("config: %w", err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate rejects settings combinations the rest of the system cannot
// tolerate (spec.md invariants it would be a programmer error to violate at
// process start, not a guest-triggerable fault).
func (s Settings) Validate() error {
	if s.NumCPUs < 1 {
		return fmt.Errorf("config: num_cpus must be >= 1, got %d", s.NumCPUs)
	}
	if s.BucketsPerRealm < 1 {
		return fmt.Errorf("config: buckets_per_realm must be >= 1, got %d", s.BucketsPerRealm)
	}
	if s.Ways < 1 {
		return fmt.Errorf("config: ways must be >= 1, got %d", s.Ways)
	}
	if s.AlignmentBytes < 1 {
		return fmt.Errorf("config: alignment_bytes must be >= 1, got %d", s.AlignmentBytes)
	}
	return nil
}

// VACtl composes the pte.VaCtl control word this Settings selects.
func (s Settings) VACtl() pte.VaCtl {
	if s.VAWidth48 {
		return pte.VaCtl(1 << 1)
	}
	return pte.VaCtl(0)
}

// XlateSettings projects the Open-Question flags into xlate.Settings.
func (s Settings) XlateSettings() xlate.Settings {
	return xlate.Settings{
		TLBCheckBothRealms:         s.TLBCheckBothRealms,
		BroadcastShootdownOnInsert: s.BroadcastShootdownOnInsert,
		AlignmentBytes:             s.AlignmentBytes,
		FlushAllOnContextSwitch:    s.FlushAllOnContextSwitch,
	}
}

// PlatformTable returns the superpage window table this Settings selects.
// Open Question 4 leaves room for a chassis-specific override; this core's
// config surface does not yet expose a way to author a custom table from a
// file, so it always returns the chassis default.
func (s Settings) PlatformTable() platform.Table {
	return platform.Default()
}
