package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	slogmulti "github.com/samber/slog-multi"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tamirms/streamsort"
)

// sorterConfig mirrors the Sorter section of the configuration file.
type sorterConfig struct {
	SortBuffer      int    `mapstructure:"sort_buffer" yaml:"sort_buffer"`
	MinRadixBits    uint   `mapstructure:"min_radix_bits" yaml:"min_radix_bits"`
	MaxRadixBits    uint   `mapstructure:"max_radix_bits" yaml:"max_radix_bits"`
	AddRadixBits    uint   `mapstructure:"add_radix_bits" yaml:"add_radix_bits"`
	MinMultiwayBits uint   `mapstructure:"min_multiway_bits" yaml:"min_multiway_bits"`
	MaxMultiwayBits uint   `mapstructure:"max_multiway_bits" yaml:"max_multiway_bits"`
	Threads         int    `mapstructure:"threads" yaml:"threads"`
	RadixThreshold  int    `mapstructure:"radix_threshold" yaml:"radix_threshold"`
	Trace           int    `mapstructure:"trace" yaml:"trace"`
	Debug           string `mapstructure:"debug" yaml:"debug"`
	TempDir         string `mapstructure:"temp_dir" yaml:"temp_dir"`
}

type logConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	File  string `mapstructure:"file" yaml:"file"`
}

type config struct {
	Sorter sorterConfig `mapstructure:"sorter" yaml:"sorter"`
	Log    logConfig    `mapstructure:"log" yaml:"log"`
}

// bindings maps configuration keys to the flags that override them.
var bindings = []struct{ key, flag string }{
	{"sorter.sort_buffer", "sort-buffer"},
	{"sorter.min_radix_bits", "min-radix-bits"},
	{"sorter.max_radix_bits", "max-radix-bits"},
	{"sorter.add_radix_bits", "add-radix-bits"},
	{"sorter.min_multiway_bits", "min-multiway-bits"},
	{"sorter.max_multiway_bits", "max-multiway-bits"},
	{"sorter.threads", "threads"},
	{"sorter.radix_threshold", "radix-threshold"},
	{"sorter.trace", "trace"},
	{"sorter.debug", "debug"},
	{"sorter.temp_dir", "temp-dir"},
	{"log.level", "log-level"},
	{"log.file", "log-file"},
}

const envPrefix = "STREAMSORT"

func addConfigFlags(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.StringP("config", "c", "", "configuration file (default ./streamsort.yaml if present)")
	f.Int("sort-buffer", streamsort.DefaultBufferSize, "memory budget in bytes")
	f.Uint("min-radix-bits", 2, "narrowest radix split")
	f.Uint("max-radix-bits", 10, "widest radix split, 0 disables splitting")
	f.Uint("add-radix-bits", 0, "extra radix bits beyond what the input size needs")
	f.Uint("min-multiway-bits", 2, "log2 of the fewest inputs merged at once")
	f.Uint("max-multiway-bits", 4, "log2 of the most inputs merged at once, 0 disables")
	f.Int("threads", 0, "goroutines for in-memory sorting")
	f.Int("radix-threshold", 4096, "bytes below which in-memory radix sort hands over to quicksort")
	f.Int("trace", 0, "trace level 0-5")
	f.String("debug", "", "comma-separated debug flags")
	f.String("temp-dir", "", "directory for temporary files")
	f.String("log-level", "info", "log level: debug, info, warn, error")
	f.String("log-file", "", "also write JSON logs to this file")
}

// loadConfig layers flags over environment over the configuration file.
func loadConfig(cmd *cobra.Command) (*config, error) {
	v := viper.New()
	flags := cmd.Flags()
	for _, b := range bindings {
		if err := v.BindPFlag(b.key, flags.Lookup(b.flag)); err != nil {
			return nil, err
		}
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path, err := flags.GetString("config")
	if err != nil {
		return nil, err
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("streamsort")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading configuration: %w", err)
		}
	}

	known := make(map[string]bool, len(bindings))
	for _, b := range bindings {
		known[b.key] = true
	}
	for _, key := range v.AllKeys() {
		if !known[key] {
			return nil, fmt.Errorf("invalid option in configuration file: %s", key)
		}
	}

	var cfg config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding configuration: %w", err)
	}
	return &cfg, nil
}

// options translates the configuration into sorter options.
func (c *config) options(log *slog.Logger) ([]streamsort.Option, error) {
	debug, err := streamsort.ParseDebugFlags(c.Sorter.Debug)
	if err != nil {
		return nil, err
	}
	s := c.Sorter
	return []streamsort.Option{
		streamsort.WithBufferSize(s.SortBuffer),
		streamsort.WithRadixBits(s.MinRadixBits, s.MaxRadixBits, s.AddRadixBits),
		streamsort.WithMultiwayBits(s.MinMultiwayBits, s.MaxMultiwayBits),
		streamsort.WithWorkers(s.Threads),
		streamsort.WithRadixThreshold(s.RadixThreshold),
		streamsort.WithTrace(s.Trace),
		streamsort.WithDebug(debug),
		streamsort.WithTempDir(s.TempDir),
		streamsort.WithLogger(log),
	}, nil
}

// newLogger builds a text logger on w, fanned out to a JSON log file when
// one is configured. The returned function closes the file.
func newLogger(c logConfig, w io.Writer) (*slog.Logger, func() error, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		return nil, nil, fmt.Errorf("log level: %w", err)
	}
	opts := &slog.HandlerOptions{Level: level}
	text := slog.NewTextHandler(w, opts)
	if c.File == "" {
		return slog.New(text), func() error { return nil }, nil
	}
	f, err := os.OpenFile(c.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("log file: %w", err)
	}
	h := slogmulti.Fanout(text, slog.NewJSONHandler(f, opts))
	return slog.New(h), f.Close, nil
}

func newConfigCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			enc := yaml.NewEncoder(a.stdout)
			enc.SetIndent(2)
			if err := enc.Encode(a.cfg); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}
