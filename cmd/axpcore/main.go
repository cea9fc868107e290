/*
   axpcore - demo harness for the EV6 translation and SPAM core.

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

package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/openalpha/ev6core/internal/config"
	"github.com/openalpha/ev6core/internal/eventlog"
	"github.com/openalpha/ev6core/internal/guestmem"
	"github.com/openalpha/ev6core/internal/metrics"
	"github.com/openalpha/ev6core/internal/sysctx"
)

var (
	cfgFile   string
	v         = viper.New()
	metricsAddr string
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "axpcore",
		Short: "EV6 virtual-memory translation core demo harness",
		RunE:  run,
	}
	cmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (TOML/YAML/JSON)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "if set, serve prometheus metrics on this address (e.g. :9090) instead of exiting after the demo run")
	if err := config.BindFlags(v, cmd.Flags()); err != nil {
		panic(err) // programmer error: flag/viper wiring, not a guest-triggerable condition
	}
	return cmd
}

func run(cmd *cobra.Command, args []string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	}
	settings, err := config.Load(v)
	if err != nil {
		return err
	}

	var log eventlog.EventLog
	if settings.UseZapLog {
		zs, err := eventlog.NewProductionZapSink()
		if err != nil {
			return fmt.Errorf("axpcore: zap sink: %w", err)
		}
		log = zs
	} else {
		log = eventlog.NewSlogSink(os.Stdout, settings.LogDebug)
	}

	reg := prometheus.NewRegistry()
	metrics.MustRegister(reg)

	mem := guestmem.NewFlatMemory(settings.MemoryBytes)
	sc := sysctx.New(settings.NumCPUs, settings.BucketsPerRealm, settings.Ways, mem, log, settings.PlatformTable(), settings.VACtl())

	log.Write(eventlog.Info, -1, "axpcore started: %d cpu(s), %d MiB guest memory", sc.NumCPUs(), settings.MemoryBytes/(1<<20))
	runDemo(sc, log)

	if metricsAddr != "" {
		log.Write(eventlog.Info, -1, "serving metrics on %s", metricsAddr)
		http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		return http.ListenAndServe(metricsAddr, nil)
	}
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
