package config

import (
	"os"
	"path"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/kbukum/flowkit/errors"
	"github.com/kbukum/flowkit/logger"
)

// FileSystem abstracts the file operations of the loader so tests can fake
// them.
type FileSystem interface {
	Exists(path string) bool
	LoadEnv(path string) error
	Getwd() (string, error)
}

// RealFileSystem implements FileSystem on the OS.
type RealFileSystem struct{}

func (rfs *RealFileSystem) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (rfs *RealFileSystem) LoadEnv(path string) error {
	return godotenv.Load(path)
}

func (rfs *RealFileSystem) Getwd() (string, error) {
	return os.Getwd()
}

// Resolver finds the config and env files of a service.
type Resolver struct {
	FileSystem FileSystem
}

// ResolvedFiles contains the resolved config and env file paths. Empty
// means not found.
type ResolvedFiles struct {
	ConfigFile string
	EnvFile    string
}

// ResolveFiles returns the explicit paths of opts when set and searches the
// usual locations for the rest. A <SERVICE>_CONFIG_FILE environment variable
// takes precedence over the search for the config file.
func (cr *Resolver) ResolveFiles(serviceName string, opts LoaderConfig) ResolvedFiles {
	resolved := ResolvedFiles{
		ConfigFile: opts.ConfigFile,
		EnvFile:    opts.EnvFile,
	}
	if resolved.ConfigFile == "" {
		resolved.ConfigFile = os.Getenv(envName(serviceName, "CONFIG_FILE"))
	}
	if resolved.ConfigFile == "" {
		resolved.ConfigFile = cr.first(candidates(serviceDirs(serviceName), "config.yml"))
	}
	if resolved.EnvFile == "" {
		dirs := serviceDirs(serviceName)
		resolved.EnvFile = cr.first(append(
			candidates(dirs, ".env."+serviceName),
			candidates(dirs, ".env")...,
		))
	}
	return resolved
}

func (cr *Resolver) first(paths []string) string {
	for _, p := range paths {
		if cr.FileSystem.Exists(p) {
			return p
		}
	}
	return ""
}

// serviceDirs lists the directories searched for a service, most specific
// first. "api-gateway" is also looked up as "gateway".
func serviceDirs(serviceName string) []string {
	names := []string{serviceName}
	if idx := strings.LastIndex(serviceName, "-"); idx != -1 {
		names = append(names, serviceName[idx+1:])
	}
	var dirs []string
	for _, n := range names {
		dirs = append(dirs, "cmd/"+n)
	}
	for _, n := range names {
		dirs = append(dirs, "config/"+n)
	}
	return append(dirs, "config", "")
}

// candidates expands every directory relative to the working directory and
// up to two parents.
func candidates(dirs []string, fileName string) []string {
	out := make([]string, 0, len(dirs)*3)
	for _, dir := range dirs {
		if dir == "" {
			out = append(out, fileName, "../"+fileName, "../../"+fileName)
			continue
		}
		rel := path.Join(dir, fileName)
		out = append(out, "./"+rel, "../"+rel, "../../"+rel)
	}
	return out
}

// LoaderConfig holds dependencies and optional overrides.
type LoaderConfig struct {
	FileSystem FileSystem
	ConfigFile string // explicit config file path
	EnvFile    string // explicit env file path
	// EnvPrefix restricts environment binding to variables starting with
	// PREFIX_, with the prefix stripped. Empty binds every variable.
	EnvPrefix string
}

// LoaderOption is a functional option for LoadConfig.
type LoaderOption func(*LoaderConfig)

// WithFileSystem sets a custom filesystem for the loader.
func WithFileSystem(fs FileSystem) LoaderOption {
	return func(lc *LoaderConfig) { lc.FileSystem = fs }
}

// WithConfigFile sets an explicit config file path.
func WithConfigFile(path string) LoaderOption {
	return func(lc *LoaderConfig) { lc.ConfigFile = path }
}

// WithEnvFile sets an explicit .env file path.
func WithEnvFile(path string) LoaderOption {
	return func(lc *LoaderConfig) { lc.EnvFile = path }
}

// WithEnvPrefix binds only environment variables named PREFIX_KEY.
func WithEnvPrefix(prefix string) LoaderOption {
	return func(lc *LoaderConfig) { lc.EnvPrefix = strings.ToUpper(strings.TrimSuffix(prefix, "_")) }
}

// LoadConfig decodes the configuration of a service into cfg. Values come
// from config.yml, then from the environment (after loading the .env file),
// the environment winning. A missing config file is not an error.
func LoadConfig(serviceName string, cfg interface{}, opts ...LoaderOption) error {
	var lc LoaderConfig
	for _, opt := range opts {
		opt(&lc)
	}
	if lc.FileSystem == nil {
		lc.FileSystem = &RealFileSystem{}
	}

	resolver := &Resolver{FileSystem: lc.FileSystem}
	files := resolver.ResolveFiles(serviceName, lc)

	v := viper.New()
	if files.ConfigFile != "" && lc.FileSystem.Exists(files.ConfigFile) {
		v.SetConfigFile(files.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return errors.InvalidConfig(serviceName, err).WithDetail("file", files.ConfigFile)
		}
	}

	if files.EnvFile != "" && lc.FileSystem.Exists(files.EnvFile) {
		if err := lc.FileSystem.LoadEnv(files.EnvFile); err != nil {
			logger.Warn("failed to load env file", logger.MergeWithError(
				logger.Fields("file", files.EnvFile), err))
		}
	}
	bindEnv(v, os.Environ(), lc.EnvPrefix)

	if err := v.Unmarshal(cfg); err != nil {
		return errors.InvalidConfig(serviceName, err)
	}

	fields := logger.Fields(
		"service", serviceName,
		"config_file", files.ConfigFile,
		"env_file", files.EnvFile,
	)
	if wd, err := lc.FileSystem.Getwd(); err == nil {
		fields["cwd"] = wd
	}
	logger.Debug("config loaded", fields)
	return nil
}

// Load decodes the configuration of serviceName into a new T, applies its
// defaults and validates it.
//
//	cfg, err := config.Load[DemoConfig]("flowdemo")
func Load[T any, PT interface {
	*T
	Config
}](serviceName string, opts ...LoaderOption) (*T, error) {
	cfg := new(T)
	if err := LoadConfig(serviceName, cfg, opts...); err != nil {
		return nil, err
	}
	pt := PT(cfg)
	pt.ApplyDefaults()
	if err := pt.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envName builds the SERVICE_SUFFIX variable name of a service.
func envName(serviceName, suffix string) string {
	return strings.ToUpper(strings.ReplaceAll(serviceName, "-", "_")) + "_" + suffix
}

// bindEnv sets every KEY=value of environ on v under each key the variable
// could stand for, so FLOW_BATCH_SIZE reaches flow.batch_size.
func bindEnv(v *viper.Viper, environ []string, prefix string) {
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			continue
		}
		if prefix != "" {
			var found bool
			if key, found = strings.CutPrefix(key, prefix+"_"); !found || key == "" {
				continue
			}
		}
		for _, variant := range generateEnvKeyVariants(key) {
			v.Set(variant, value)
		}
	}
}

// maxSplitParts bounds the exhaustive variant expansion; longer names only
// get the flat and fully dotted forms plus one nesting level.
const maxSplitParts = 5

// generateEnvKeyVariants returns the config keys an environment variable may
// address. Every underscore is either a word separator or a nesting level:
//
//	FLOW_BATCH_SIZE -> flow_batch_size, flow.batch_size, flow_batch.size, flow.batch.size
func generateEnvKeyVariants(envKey string) []string {
	parts := strings.Split(strings.ToLower(envKey), "_")
	if len(parts) == 1 {
		return parts
	}
	if len(parts) > maxSplitParts {
		return []string{
			strings.Join(parts, "_"),
			parts[0] + "." + strings.Join(parts[1:], "_"),
			strings.Join(parts, "."),
		}
	}

	variants := make([]string, 0, 1<<(len(parts)-1))
	for mask := 0; mask < 1<<(len(parts)-1); mask++ {
		var b strings.Builder
		b.WriteString(parts[0])
		for i, p := range parts[1:] {
			if mask&(1<<i) != 0 {
				b.WriteByte('.')
			} else {
				b.WriteByte('_')
			}
			b.WriteString(p)
		}
		variants = append(variants, b.String())
	}
	return variants
}
