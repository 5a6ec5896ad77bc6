package app

import (
	"time"

	"github.com/spf13/viper"
)

// Config is the task specific configuration found under the "app" key.
//
// Users should use mapstructure.Decode for Config.
type Config map[string]interface{}

// BaseConfig contains the process configuration shared by every task.
type BaseConfig struct {
	LogLevel string `mapstructure:"log_level"`

	AppName string `mapstructure:"app_name"`

	// Cluster is a well known cluster name (devnet, testnet, mainnet-beta,
	// localnet) or an RPC URL.
	Cluster string `mapstructure:"cluster"`

	// RPCEndpoint overrides the endpoint derived from Cluster.
	RPCEndpoint string `mapstructure:"rpc_endpoint"`

	// RPCTimeout bounds each RPC request. Zero disables the bound.
	RPCTimeout time.Duration `mapstructure:"rpc_timeout"`

	SkipPreflight bool `mapstructure:"skip_preflight"`

	// EnvFile is loaded into the environment before the rest of the config is
	// read. Variables already set in the environment take precedence.
	EnvFile string `mapstructure:"env_file"`

	// TaskTimeout bounds the whole run. Zero disables the bound.
	TaskTimeout time.Duration `mapstructure:"task_timeout"`

	// Metrics configuration across many providers
	NewRelicLicenseKey string `mapstructure:"new_relic_license_key"`

	AppConfig Config `mapstructure:"app"`
}

var defaultConfig = BaseConfig{
	LogLevel: "info",
	AppName:  "movie-review",
	Cluster:  "devnet",
	EnvFile:  ".env",
}

func newViper() *viper.Viper {
	v := viper.New()

	_ = v.BindEnv("log_level", "LOG_LEVEL")

	_ = v.BindEnv("app_name", "APP_NAME")

	_ = v.BindEnv("cluster", "CLUSTER")
	_ = v.BindEnv("rpc_endpoint", "RPC_ENDPOINT")
	_ = v.BindEnv("rpc_timeout", "RPC_TIMEOUT")
	_ = v.BindEnv("skip_preflight", "SKIP_PREFLIGHT")

	_ = v.BindEnv("env_file", "ENV_FILE")
	_ = v.BindEnv("task_timeout", "TASK_TIMEOUT")

	_ = v.BindEnv("new_relic_license_key", "NEW_RELIC_LICENSE_KEY")

	return v
}
