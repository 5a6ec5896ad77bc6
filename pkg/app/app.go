// Package app bootstraps a one-shot command: it loads configuration, sets up
// logging and metrics, runs a single task and maps the outcome to an exit
// code.
package app

import (
	"context"
	"flag"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/code-payments/movie-review/pkg/keypair"
	"github.com/code-payments/movie-review/pkg/metrics"
)

const (
	ExitSuccess = 0
	ExitFailure = 1
)

// Task is the unit of work run once per process. The New Relic application,
// when configured, is reachable through ctx by the metrics package.
type Task func(ctx context.Context, config BaseConfig) error

// Run loads the configuration, runs task and returns the process exit code:
// ExitSuccess when the task returns nil, ExitFailure on any failure.
func Run(task Task, options ...Option) int {
	o := opts{
		flags:     flag.CommandLine,
		args:      os.Args[1:],
		logOutput: os.Stdout,
	}
	for _, option := range options {
		option(&o)
	}

	logger := logrus.StandardLogger().WithField("type", "app")

	configPath := o.flags.String("config", "config.yaml", "configuration file path")
	if err := o.flags.Parse(o.args); err != nil {
		logger.WithError(err).Error("failed to parse flags")
		return ExitFailure
	}

	config, err := loadConfig(*configPath)
	if err != nil {
		logger.WithError(err).Error("failed to load config")
		return ExitFailure
	}

	if len(config.AppName) == 0 {
		logger.Error("must specify an application name")
		return ExitFailure
	}

	// todo: Better abstraction so we're not directly tied to NR
	var metricsProvider *newrelic.Application
	if len(config.NewRelicLicenseKey) > 0 {
		nr, err := newrelic.NewApplication(
			newrelic.ConfigFromEnvironment(),
			newrelic.ConfigAppName(config.AppName),
			newrelic.ConfigLicense(config.NewRelicLicenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
			newrelic.ConfigAppLogForwardingEnabled(true),
		)
		if err != nil {
			logger.WithError(err).Error("error connecting to new relic")
			return ExitFailure
		}

		metricsProvider = nr
		defer nr.Shutdown(10 * time.Second)
	}

	configureLogger(config, metricsProvider, o.logOutput)

	runID := uuid.New().String()
	logger = logrus.StandardLogger().WithFields(logrus.Fields{
		"type":   "app",
		"app":    config.AppName,
		"run_id": runID,
	})

	// The first signal cancels the task. Releasing the signals once that
	// happens lets a second one terminate the process.
	signalCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP)
	defer stop()
	go func() {
		<-signalCtx.Done()
		stop()
	}()
	ctx := signalCtx

	if config.TaskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.TaskTimeout)
		defer cancel()
	}

	ctx = metrics.NewContext(ctx, metricsProvider)
	ctx, endTxn := metrics.StartTransaction(ctx, config.AppName)
	defer endTxn()

	if txn := newrelic.FromContext(ctx); txn != nil {
		txn.AddAttribute("run_id", runID)
	}

	logger.Debug("running task")
	if err := task(ctx, config); err != nil {
		if txn := newrelic.FromContext(ctx); txn != nil {
			txn.NoticeError(err)
		}

		logger.WithContext(ctx).WithError(err).Error("task failed")
		return ExitFailure
	}

	logger.WithContext(ctx).Debug("task completed")
	return ExitSuccess
}

// loadConfig reads the optional config file, loads the dotenv file it (or the
// environment) names, and only then resolves every key so values defined in
// the dotenv file are honoured.
func loadConfig(configPath string) (BaseConfig, error) {
	v := newViper()

	// viper.ReadInConfig only returns ConfigFileNotFoundError if it has to search
	// for a default config file because one hasn't been explicitly set. That is,
	// if we explicitly set a config file, and it does not exist, viper will not
	// return a ConfigFileNotFoundError, so we check ourselves.
	if _, err := os.Stat(configPath); err == nil {
		v.SetConfigFile(configPath)
	} else if !os.IsNotExist(err) {
		return BaseConfig{}, errors.Wrap(err, "failed to check if config exists")
	}

	err := v.ReadInConfig()
	_, isConfigNotFound := err.(viper.ConfigFileNotFoundError)
	if err != nil && !isConfigNotFound {
		return BaseConfig{}, errors.Wrap(err, "failed to read config")
	}

	envFile := defaultConfig.EnvFile
	if v.IsSet("env_file") {
		envFile = v.GetString("env_file")
	}
	if err := keypair.LoadEnvFile(envFile); err != nil {
		return BaseConfig{}, err
	}

	config := defaultConfig
	if err := v.Unmarshal(&config); err != nil {
		return BaseConfig{}, errors.Wrap(err, "failed to unmarshal config")
	}
	config.EnvFile = envFile

	return config, nil
}

func configureLogger(config BaseConfig, metricsProvider *newrelic.Application, out io.Writer) {
	if metricsProvider != nil {
		logrus.SetFormatter(metrics.NewLogFormatter(metricsProvider, &logrus.JSONFormatter{}))
	} else {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}

	level, err := logrus.ParseLevel(strings.ToLower(config.LogLevel))
	if err != nil {
		logrus.StandardLogger().WithField("log_level", config.LogLevel).Warn("unknown log level, ignoring")
	} else {
		logrus.SetLevel(level)
	}

	logrus.SetOutput(out)
}
