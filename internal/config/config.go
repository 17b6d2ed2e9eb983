// Package config holds the command line configuration of the trip pipeline. Every
// option is a flag; TRIPCLEAN_* environment variables and an optional config file
// fill in whatever was not given on the command line.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"go-trip-pipeline/internal/geo"
	"go-trip-pipeline/internal/logger"
	"go-trip-pipeline/internal/model"
	"go-trip-pipeline/internal/pipeline"
	"go-trip-pipeline/internal/report"
	"go-trip-pipeline/internal/stats"
	"go-trip-pipeline/pkg/utils"
)

// EnvPrefix prefixes every environment variable, e.g. TRIPCLEAN_BATCH_SIZE.
const EnvPrefix = "TRIPCLEAN"

// Sink kinds accepted by the --sink option.
const (
	SinkSQLite   = "sqlite"
	SinkPostgres = "postgres"
	SinkMySQL    = "mysql"
	SinkCSV      = "csv"
	SinkJSONL    = "jsonl"
	SinkDiscard  = "discard"
)

// Config is the full set of options for one invocation.
type Config struct {
	ConfigFile string

	Source     string
	S3Region   string
	S3Endpoint string

	Sink      string
	Reset     bool
	OutputDir string
	Ledger    string

	AMQPURL        string
	AMQPExchange   string
	AMQPRoutingKey string

	BatchSize      int
	SampleSize     int
	SampleStrategy string
	SampleSeed     uint64
	MaxRecords     int

	Limits pipeline.Limits

	IQRMultiplier float64
	MinSample     int

	MinDistanceKM    float64
	MaxSpeedKMH      float64
	GeohashPrecision uint

	RetryAttempts     int
	RetryInitialDelay time.Duration
	RetryMaxDelay     time.Duration
	RetryMultiplier   float64
	RetryJitter       bool

	Timeout  string
	LogLevel string
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	retry := model.DefaultRetryConfig
	return Config{
		S3Region:          "us-east-1",
		Sink:              "sqlite://taxi_data.db",
		OutputDir:         "output",
		Ledger:            "tripclean_runs.db",
		AMQPExchange:      report.DefaultExchange,
		AMQPRoutingKey:    report.DefaultRoutingKey,
		BatchSize:         pipeline.DefaultBatchSize,
		SampleSize:        pipeline.DefaultSampleSize,
		SampleStrategy:    string(stats.SampleReservoir),
		SampleSeed:        pipeline.DefaultSampleSeed,
		Limits:            pipeline.DefaultLimits,
		IQRMultiplier:     stats.DefaultIQRMultiplier,
		MinSample:         stats.DefaultMinSample,
		MinDistanceKM:     pipeline.DefaultMinDistanceKM,
		MaxSpeedKMH:       pipeline.DefaultMaxSpeedKMH,
		GeohashPrecision:  geo.DefaultCellPrecision,
		RetryAttempts:     retry.MaxAttempts,
		RetryInitialDelay: retry.InitialDelay,
		RetryMaxDelay:     retry.MaxDelay,
		RetryMultiplier:   retry.BackoffMultiplier,
		RetryJitter:       retry.Jitter,
		LogLevel:          "info",
	}
}

// RegisterFlags defines a flag for every option, writing into c. Values already in c
// are the flag defaults.
func (c *Config) RegisterFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&c.ConfigFile, "config", "c", c.ConfigFile, "Configuration file (yaml, toml or json) to read from.")

	fs.StringVarP(&c.Source, "source", "s", c.Source, "Raw trip CSV: local path, http(s):// URL or s3://bucket/key.")
	fs.StringVar(&c.S3Region, "s3-region", c.S3Region, "AWS region for s3:// sources.")
	fs.StringVar(&c.S3Endpoint, "s3-endpoint", c.S3Endpoint, "Custom S3 endpoint, e.g. a local minio.")

	fs.StringVar(&c.Sink, "sink", c.Sink, "Destination: sqlite://path, postgres://dsn, mysql://dsn, a .csv/.jsonl path, csv, jsonl or discard.")
	fs.BoolVar(&c.Reset, "reset", c.Reset, "Drop and recreate the trip table before loading.")
	fs.StringVar(&c.OutputDir, "output-dir", c.OutputDir, "Base directory for per-run outputs (csv/jsonl sinks, report.json).")
	fs.StringVar(&c.Ledger, "ledger", c.Ledger, "sqlite file recording every run. Empty disables the ledger.")

	fs.StringVar(&c.AMQPURL, "amqp-url", c.AMQPURL, "RabbitMQ URL to publish run reports to. Empty disables publishing.")
	fs.StringVar(&c.AMQPExchange, "amqp-exchange", c.AMQPExchange, "Exchange for run reports.")
	fs.StringVar(&c.AMQPRoutingKey, "amqp-routing-key", c.AMQPRoutingKey, "Routing key for run reports.")

	fs.IntVar(&c.BatchSize, "batch-size", c.BatchSize, "Accepted records per sink write.")
	fs.IntVar(&c.SampleSize, "sample-size", c.SampleSize, "Durations kept for outlier bounds.")
	fs.StringVar(&c.SampleStrategy, "sample-strategy", c.SampleStrategy, "How the duration sample is drawn: reservoir or prefix.")
	fs.Uint64Var(&c.SampleSeed, "sample-seed", c.SampleSeed, "Seed for reservoir sampling.")
	fs.IntVar(&c.MaxRecords, "max-records", c.MaxRecords, "Stop each pass after this many rows. 0 reads everything.")

	fs.IntVar(&c.Limits.MinPassengers, "min-passengers", c.Limits.MinPassengers, "Lowest accepted passenger count.")
	fs.IntVar(&c.Limits.MaxPassengers, "max-passengers", c.Limits.MaxPassengers, "Highest accepted passenger count.")
	fs.Float64Var(&c.Limits.MinLat, "min-lat", c.Limits.MinLat, "Southern edge of the service area.")
	fs.Float64Var(&c.Limits.MaxLat, "max-lat", c.Limits.MaxLat, "Northern edge of the service area.")
	fs.Float64Var(&c.Limits.MinLon, "min-lon", c.Limits.MinLon, "Western edge of the service area.")
	fs.Float64Var(&c.Limits.MaxLon, "max-lon", c.Limits.MaxLon, "Eastern edge of the service area.")
	fs.IntVar(&c.Limits.MinDuration, "min-duration", c.Limits.MinDuration, "Shortest plausible trip in seconds.")
	fs.IntVar(&c.Limits.MaxDuration, "max-duration", c.Limits.MaxDuration, "Longest plausible trip in seconds.")

	fs.Float64Var(&c.IQRMultiplier, "iqr-multiplier", c.IQRMultiplier, "IQR multiplier for duration outliers.")
	fs.IntVar(&c.MinSample, "min-sample", c.MinSample, "Smallest sample for statistical bounds; smaller samples use the sanity band.")

	fs.Float64Var(&c.MinDistanceKM, "min-distance-km", c.MinDistanceKM, "Shortest accepted trip distance.")
	fs.Float64Var(&c.MaxSpeedKMH, "max-speed-kmh", c.MaxSpeedKMH, "Fastest accepted average speed.")
	fs.UintVar(&c.GeohashPrecision, "geohash-precision", c.GeohashPrecision, "Characters in pickup/dropoff geohash cells. 0 disables them.")

	fs.IntVar(&c.RetryAttempts, "retry-attempts", c.RetryAttempts, "Attempts per batch write.")
	fs.DurationVar(&c.RetryInitialDelay, "retry-initial-delay", c.RetryInitialDelay, "Delay before the first retry.")
	fs.DurationVar(&c.RetryMaxDelay, "retry-max-delay", c.RetryMaxDelay, "Upper limit for retry delays.")
	fs.Float64Var(&c.RetryMultiplier, "retry-multiplier", c.RetryMultiplier, "Backoff multiplier between retries.")
	fs.BoolVar(&c.RetryJitter, "retry-jitter", c.RetryJitter, "Add jitter to retry delays.")

	fs.StringVar(&c.Timeout, "timeout", c.Timeout, "Abort the run after this long, e.g. 30m. Empty means no limit.")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "debug, info, warn or error.")
}

// Load applies configuration in priority order: flags, then environment, then the
// config file named by --config, then flag defaults. Values land in the variables the
// flags point at.
func Load(v *viper.Viper, flags *pflag.FlagSet, envPrefix string) error {
	if err := v.BindPFlags(flags); err != nil {
		return err
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if c := v.GetString("config"); c != "" {
		v.SetConfigFile(c)
		if err := v.ReadInConfig(); err != nil {
			return errors.Wrapf(err, "error reading configuration file '%s'", c)
		}
	}

	var flagErr error
	flags.VisitAll(func(f *pflag.Flag) {
		if flagErr != nil || f.Changed {
			return
		}
		if err := f.Value.Set(v.GetString(f.Name)); err != nil {
			flagErr = errors.Wrapf(err, "invalid value for %s", f.Name)
		}
	})
	return flagErr
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.Source) == "" {
		problems = append(problems, "source is required")
	}
	if _, _, err := c.SinkTarget(); err != nil {
		problems = append(problems, err.Error())
	}

	if c.BatchSize <= 0 {
		problems = append(problems, "batch-size must be positive")
	}
	if c.SampleSize <= 0 {
		problems = append(problems, "sample-size must be positive")
	}
	if _, err := stats.ParseSampleStrategy(c.SampleStrategy); err != nil {
		problems = append(problems, err.Error())
	}
	if c.MaxRecords < 0 {
		problems = append(problems, "max-records must not be negative")
	}

	l := c.Limits
	if l.MinPassengers < 0 || l.MinPassengers > l.MaxPassengers {
		problems = append(problems, "passenger limits must satisfy 0 <= min-passengers <= max-passengers")
	}
	if l.MinLat < -90 || l.MaxLat > 90 || l.MinLat >= l.MaxLat {
		problems = append(problems, "latitude limits must satisfy -90 <= min-lat < max-lat <= 90")
	}
	if l.MinLon < -180 || l.MaxLon > 180 || l.MinLon >= l.MaxLon {
		problems = append(problems, "longitude limits must satisfy -180 <= min-lon < max-lon <= 180")
	}
	if l.MinDuration < 0 || l.MinDuration >= l.MaxDuration {
		problems = append(problems, "duration limits must satisfy 0 <= min-duration < max-duration")
	}

	if c.IQRMultiplier <= 0 {
		problems = append(problems, "iqr-multiplier must be positive")
	}
	if c.MinSample < 2 {
		problems = append(problems, "min-sample must be at least 2")
	}
	if c.MinDistanceKM < 0 {
		problems = append(problems, "min-distance-km must not be negative")
	}
	if c.MaxSpeedKMH <= 0 {
		problems = append(problems, "max-speed-kmh must be positive")
	}
	if c.GeohashPrecision > 12 {
		problems = append(problems, "geohash-precision must be in 0..12")
	}

	if c.RetryAttempts < 1 {
		problems = append(problems, "retry-attempts must be at least 1")
	}
	if c.RetryInitialDelay <= 0 || c.RetryMaxDelay < c.RetryInitialDelay {
		problems = append(problems, "retry delays must satisfy 0 < retry-initial-delay <= retry-max-delay")
	}
	if c.RetryMultiplier < 1 {
		problems = append(problems, "retry-multiplier must be at least 1")
	}

	if _, err := c.TimeoutDuration(); err != nil {
		problems = append(problems, "timeout: "+err.Error())
	}
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		problems = append(problems, err.Error())
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

// SinkTarget splits the --sink option into a sink kind and its target (path or DSN).
// The csv and jsonl kinds have an empty target when the file goes to the run's output
// directory.
func (c *Config) SinkTarget() (kind, target string, err error) {
	sink := strings.TrimSpace(c.Sink)
	scheme, rest := utils.SplitScheme(sink)
	switch scheme {
	case "sqlite", "sqlite3", "file":
		if rest == "" {
			return "", "", errors.New("sqlite sink needs a path")
		}
		return SinkSQLite, rest, nil
	case "postgres", "postgresql":
		return SinkPostgres, sink, nil
	case "mysql":
		if rest == "" {
			return "", "", errors.New("mysql sink needs a DSN")
		}
		return SinkMySQL, rest, nil
	case "":
	default:
		return "", "", errors.Errorf("unsupported sink scheme %q", scheme)
	}

	switch strings.ToLower(sink) {
	case "":
		return "", "", errors.New("sink is required")
	case SinkDiscard, "none":
		return SinkDiscard, "", nil
	case SinkCSV:
		return SinkCSV, "", nil
	case SinkJSONL, "json":
		return SinkJSONL, "", nil
	}
	switch utils.FileType(sink) {
	case "csv":
		return SinkCSV, sink, nil
	case "jsonl":
		return SinkJSONL, sink, nil
	case "":
		if strings.HasSuffix(strings.ToLower(sink), ".db") {
			return SinkSQLite, sink, nil
		}
	}
	return "", "", errors.Errorf("cannot tell sink type of %q", sink)
}

// TimeoutDuration is the parsed --timeout; zero means no limit.
func (c *Config) TimeoutDuration() (time.Duration, error) {
	return utils.ParseDuration(c.Timeout, 0)
}

// Pipeline converts the options into a pipeline configuration.
func (c *Config) Pipeline() (pipeline.Config, error) {
	strategy, err := stats.ParseSampleStrategy(c.SampleStrategy)
	if err != nil {
		return pipeline.Config{}, err
	}
	return pipeline.Config{
		BatchSize:      c.BatchSize,
		SampleSize:     c.SampleSize,
		SampleStrategy: strategy,
		SampleSeed:     c.SampleSeed,
		MaxRecords:     c.MaxRecords,
		Limits:         c.Limits,
		Detector: stats.Detector{
			Multiplier: c.IQRMultiplier,
			MinSample:  c.MinSample,
		},
		Enricher: pipeline.Enricher{
			MinDistanceKM: c.MinDistanceKM,
			MaxSpeedKMH:   c.MaxSpeedKMH,
			CellPrecision: c.GeohashPrecision,
		},
		Retry: model.RetryConfig{
			MaxAttempts:       c.RetryAttempts,
			InitialDelay:      c.RetryInitialDelay,
			MaxDelay:          c.RetryMaxDelay,
			BackoffMultiplier: c.RetryMultiplier,
			Jitter:            c.RetryJitter,
		},
	}, nil
}

// Redacted describes the sink without credentials, for logs.
func (c *Config) Redacted() string {
	kind, target, err := c.SinkTarget()
	if err != nil {
		return "invalid"
	}
	switch kind {
	case SinkPostgres, SinkMySQL, SinkDiscard:
		return kind
	}
	if target == "" {
		return fmt.Sprintf("%s (%s)", kind, c.OutputDir)
	}
	return fmt.Sprintf("%s:%s", kind, target)
}
