/* Copyright (c) 2017 Jason Ish
 * All rights reserved.
 *
 * Redistribution and use in source and binary forms, with or without
 * modification, are permitted provided that the following conditions
 * are met:
 *
 * 1. Redistributions of source code must retain the above copyright
 *    notice, this list of conditions and the following disclaimer.
 * 2. Redistributions in binary form must reproduce the above copyright
 *    notice, this list of conditions and the following disclaimer in the
 *    documentation and/or other materials provided with the distribution.
 *
 * THIS SOFTWARE IS PROVIDED ``AS IS'' AND ANY EXPRESS OR IMPLIED
 * WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE IMPLIED WARRANTIES OF
 * MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE
 * DISCLAIMED. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY DIRECT,
 * INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES
 * (INCLUDING, BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR
 * SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS INTERRUPTION)
 * HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY, WHETHER IN CONTRACT,
 * STRICT LIABILITY, OR TORT (INCLUDING NEGLIGENCE OR OTHERWISE) ARISING
 * IN ANY WAY OUT OF THE USE OF THIS SOFTWARE, EVEN IF ADVISED OF THE
 * POSSIBILITY OF SUCH DAMAGE.
 */

package detect

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jasonish/evedetect/config"
	"github.com/jasonish/evedetect/core"
	"github.com/jasonish/evedetect/engine"
	"github.com/jasonish/evedetect/eve"
	"github.com/jasonish/evedetect/geoip"
	"github.com/jasonish/evedetect/ips"
	"github.com/jasonish/evedetect/log"
	"github.com/jasonish/evedetect/options"
	"github.com/jasonish/evedetect/output"
	"github.com/jasonish/evedetect/packet"
	"github.com/jasonish/evedetect/perf"
	"github.com/jasonish/evedetect/rules"
	"github.com/jasonish/evedetect/server"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

var opts struct {
	ConfigFilename string
	Rules          []string
	RuleStates     []string
	Workers        int
	Strict         bool
	Watch          bool
	Http           bool
	HttpAddress    string
	Profile        bool
	ProfileOut     string
	Verbose        bool
}

func initViper(v *viper.Viper) {
	v.SetEnvPrefix("EVEDETECT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	v.BindEnv("rules")
	v.BindEnv("workers")
	v.BindEnv("strict")
	v.BindEnv("profile")
	v.BindEnv("geoip.enabled")
	v.BindEnv("geoip.database")
	v.BindEnv("http.address")
}

func newFlagSet() *pflag.FlagSet {
	flagset := pflag.NewFlagSet("detect", pflag.ContinueOnError)
	flagset.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: evedetect detect [options] <file.pcap>...\n\n")
		flagset.PrintDefaults()
	}

	flagset.StringVarP(&opts.ConfigFilename, "config", "c", "", "Configuration file")
	flagset.StringSliceVarP(&opts.Rules, "rules", "r", nil, "Rule file, directory or glob (repeatable)")
	flagset.StringSliceVar(&opts.RuleStates, "rule-state", nil, "Rule state override as [gid:]sid:state (repeatable)")
	flagset.IntVarP(&opts.Workers, "workers", "w", 0, "Number of workers (default: number of CPUs)")
	flagset.BoolVar(&opts.Strict, "strict", false, "Fail on the first bad rule")
	flagset.BoolVar(&opts.Watch, "watch", false, "Reload when rule files change")
	flagset.BoolVar(&opts.Http, "http", false, "Start the HTTP API")
	flagset.StringVar(&opts.HttpAddress, "http-address", "", "HTTP API address (default: "+config.DefaultHttpAddress+")")
	flagset.BoolVar(&opts.Profile, "profile", false, "Print option profiling at exit")
	flagset.StringVar(&opts.ProfileOut, "profile-out", "", "Write option profiling in pprof format")
	flagset.BoolVarP(&opts.Verbose, "verbose", "v", false, "Be more verbose")

	return flagset
}

// loadConfig merges the configuration file, the environment and the
// command line, in increasing order of precedence.
func loadConfig(flagset *pflag.FlagSet) (*config.Config, error) {
	v := viper.New()
	initViper(v)

	if opts.ConfigFilename != "" {
		log.Info("Using configuration file %s", opts.ConfigFilename)
		v.SetConfigFile(opts.ConfigFilename)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "failed to read %s", opts.ConfigFilename)
		}
	}

	conf, err := config.Decode(v.AllSettings())
	if err != nil {
		return nil, err
	}

	if flagset.Changed("rules") {
		conf.Rules = opts.Rules
	}
	if flagset.Changed("workers") {
		conf.Workers = opts.Workers
	}
	if flagset.Changed("strict") {
		conf.Strict = opts.Strict
	}
	if flagset.Changed("profile") || opts.ProfileOut != "" {
		conf.Profile = true
	}
	if flagset.Changed("http") {
		conf.Http.Enabled = opts.Http
	}
	if opts.HttpAddress != "" {
		conf.Http.Enabled = true
		conf.Http.Address = opts.HttpAddress
	}
	for _, spec := range opts.RuleStates {
		state, err := config.ParseRuleStateSpec(spec)
		if err != nil {
			return nil, err
		}
		conf.RuleStates = append(conf.RuleStates, state)
	}

	if len(conf.Rules) == 0 {
		return nil, errors.New("no rules configured")
	}

	return conf, nil
}

// newLoader returns a loader that reads the configuration with load and
// compiles its rule paths, so rule states, rule order and routes changed
// since the last load take effect. A configuration error fails the load.
// Rule errors are logged; they only fail the load in strict mode.
func newLoader(registry *ips.Registry, load func() (*config.Config, error), sinks map[string]output.Sink) engine.Loader {
	return func() (*rules.RuleSet, error) {
		conf, err := load()
		if err != nil {
			return nil, err
		}
		compilerOptions, warnings, err := conf.CompilerOptions(sinks)
		if err != nil {
			return nil, err
		}
		for _, warning := range warnings {
			log.Warning("%v", warning)
		}

		compiler := rules.NewCompiler(registry, compilerOptions)
		if err := compiler.AddPaths(conf.Rules); err != nil {
			compiler.Discard()
			return nil, err
		}
		for _, err := range compiler.Errors() {
			log.Warning("%v", err)
		}
		if compiler.Duplicates() > 0 {
			log.WarningWithFields(log.Fields{
				"duplicates": compiler.Duplicates(),
			}, "Ignored duplicate rules")
		}
		return compiler.Finish()
	}
}

func sinkList(sinks map[string]output.Sink) []output.Sink {
	list := []output.Sink{}
	for _, sink := range sinks {
		list = append(list, sink)
	}
	return list
}

func newAlerter(conf *config.Config, sinks map[string]output.Sink) (*engine.Alerter, func()) {
	alerter := engine.NewAlerter(sinkList(sinks))
	cleanup := func() {}

	if conf.Geoip.Enabled {
		db, err := geoip.NewGeoIpDb(conf.Geoip.Database)
		if err != nil {
			log.Warning("GeoIP disabled: %v", err)
		} else {
			log.Info("Using GeoIP database %s, built %v", db.Type(), db.BuildDate())
			alerter.AddFilter(eve.NewGeoipFilter(db))
			cleanup = func() {
				db.Close()
			}
		}
	}

	if conf.RuleText {
		catalog := rules.NewCatalog(conf.Rules)
		log.Info("Loaded %d rules for alert rule text", catalog.Len())
		alerter.AddFilter(catalog)
	}

	alerter.AddFilter(&eve.TagsFilter{Tags: []string{"evedetect"}})

	return alerter, cleanup
}

func process(ctx context.Context, pool *engine.Pool, filenames []string) error {
	group, ctx := errgroup.WithContext(ctx)
	frames := make(chan packet.Frame, engine.DefaultQueueLength)

	group.Go(func() error {
		return pool.Run(ctx, frames)
	})

	group.Go(func() error {
		defer close(frames)
		for _, filename := range filenames {
			log.Info("Reading %s", filename)
			reader, err := packet.OpenPcap(filename)
			if err != nil {
				return err
			}
			err = engine.Feed(ctx, reader, frames)
			reader.Close()
			if err != nil {
				return errors.Wrapf(err, "failed to read %s", filename)
			}
		}
		return nil
	})

	return group.Wait()
}

func writeProfile(profiler *ips.Profiler, start time.Time) error {
	stats := profiler.Snapshot()
	if err := perf.WriteText(os.Stdout, stats); err != nil {
		return err
	}
	if opts.ProfileOut == "" {
		return nil
	}
	file, err := os.Create(opts.ProfileOut)
	if err != nil {
		return err
	}
	defer file.Close()
	if err := perf.WritePprof(file, stats, start, time.Since(start)); err != nil {
		return err
	}
	log.Info("Wrote profile to %s", opts.ProfileOut)
	return nil
}

func Main(args []string) int {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warning("Failed to load .env: %v", err)
	}

	flagset := newFlagSet()
	if err := flagset.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return 0
		}
		return 1
	}

	if opts.Verbose {
		log.SetLevel(log.DEBUG)
	}

	log.Info("This is EveDetect version %v (rev: %v)", core.BuildVersion, core.BuildRev)

	conf, err := loadConfig(flagset)
	if err != nil {
		log.Error("%v", err)
		return 1
	}

	if flagset.NArg() == 0 && !conf.Http.Enabled {
		log.Error("No pcap files given")
		flagset.Usage()
		return 1
	}

	sinks, err := conf.OpenOutputs()
	if err != nil {
		log.Error("%v", err)
		return 1
	}
	defer config.CloseOutputs(sinks)

	registry := ips.NewRegistry()
	if err := options.Register(registry); err != nil {
		log.Error("%v", err)
		return 1
	}

	loader := newLoader(registry, func() (*config.Config, error) {
		return loadConfig(flagset)
	}, sinks)
	eng, err := engine.New(registry, loader)
	if err != nil {
		log.Error("%v", err)
		return 1
	}
	defer eng.Close()

	status := eng.Status()
	log.InfoWithFields(log.Fields{
		"rule_set_id": status.RuleSetId,
		"options":     status.Options,
		"shared":      status.Shared,
	}, "Loaded %d rules", status.Rules)

	alerter, cleanup := newAlerter(conf, sinks)
	defer cleanup()

	profiler := ips.NewProfiler(registry)
	pool := engine.NewPool(eng, profiler, alerter, engine.PoolConfig{
		Workers: conf.Workers,
		Timing:  conf.Profile,
	})
	log.Debug("Using %d workers", pool.Workers())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigchan := make(chan os.Signal, 1)
	signal.Notify(sigchan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigchan)
	go func() {
		select {
		case sig := <-sigchan:
			log.Info("Got signal %v, stopping.", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	if opts.Watch {
		go func() {
			if err := eng.Watch(ctx, conf.Rules, engine.DefaultDebounce); err != nil {
				log.Error("Rule watcher failed: %v", err)
			}
		}()
	}

	start := time.Now()

	if conf.Http.Enabled {
		httpServer := server.NewServer(server.AppContext{
			Engine:   eng,
			Profiler: profiler,
			Pool:     pool,
			Started:  start,
		})
		httpServer.RequestLogging = conf.Http.RequestLogging
		go func() {
			if err := httpServer.Start(conf.Http.Address); err != nil {
				log.Error("HTTP server failed: %v", err)
				cancel()
			}
		}()
	}

	exitCode := 0
	if err := process(ctx, pool, flagset.Args()); err != nil && err != context.Canceled {
		log.Error("%v", err)
		exitCode = 1
	}

	stats := pool.Stats()
	log.InfoWithFields(log.Fields{
		"packets":       stats.Packets,
		"decode_errors": stats.DecodeErrors,
		"matches":       stats.Matches,
		"events":        alerter.Count(),
	}, "Processed %d packets in %v", stats.Packets, time.Since(start))

	if conf.Profile {
		if err := writeProfile(profiler, start); err != nil {
			log.Error("Failed to write profile: %v", err)
			exitCode = 1
		}
	}

	if conf.Http.Enabled && ctx.Err() == nil {
		log.Info("Serving HTTP API on %s until interrupted", conf.Http.Address)
		<-ctx.Done()
	}

	return exitCode
}
