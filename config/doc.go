// Package config loads service configuration with Viper.
//
// Values come from a config.yml found in the standard locations (or given
// with WithConfigFile), then from the process environment and an optional
// .env file loaded with godotenv. Environment variables map onto nested keys
// by splitting on underscores, so FLOW_CONCURRENCY sets flow.concurrency.
//
// # Usage
//
//	type DemoConfig struct {
//	    config.ServiceConfig `yaml:",inline" mapstructure:",squash"`
//	    Flow flow.Config     `yaml:"flow" mapstructure:"flow"`
//	}
//
//	cfg, err := config.Load[DemoConfig]("flowdemo")
package config
