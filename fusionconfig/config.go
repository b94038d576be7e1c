// Package fusionconfig loads the daemon's configuration from a config file
// and command-line flags, grounded on lnd.go's loadConfig/go-flags
// pattern: a typed struct with `long`/`description` tags, parsed first
// against the default config file and then overridden by flags actually
// passed on the command line.
package fusionconfig

import (
	"fmt"
	"os"
	"path/filepath"

	flags "github.com/jessevdk/go-flags"
)

const (
	defaultConfigFilename  = "swapd.conf"
	defaultDataDirname     = "data"
	defaultLogLevel        = "info"
	defaultLogFilename     = "swapd.log"
	defaultRPCListenAddr   = "localhost:10821"
	defaultMetricsAddr     = "localhost:10822"
	defaultStorageBackend  = "bolt"
	defaultClaimMaxElapsed = "5m"
	defaultSecretTTLSecs   = uint64(86400)
	defaultEventBufferSize = 256
)

// Config is the daemon's full set of operator-tunable settings.
type Config struct {
	ConfigFile string `long:"configfile" description:"Path to configuration file"`
	DataDir    string `long:"datadir" description:"Directory to store swapd's data within"`

	LogDir      string `long:"logdir" description:"Directory to log output"`
	LogLevel    string `long:"loglevel" description:"Logging level name (trace, debug, info, warn, error, critical); fusiond does not apply it, subsystems log at info"`
	MaxLogFiles int    `long:"maxlogfiles" description:"Maximum log files to keep (0 for no rotation)"`
	MaxLogSize  int    `long:"maxlogsize" description:"Maximum log file size in MB"`

	RPCListen     string `long:"rpclisten" description:"Address to listen for gRPC connections"`
	MetricsListen string `long:"metricslisten" description:"Address to listen for Prometheus scrapes"`

	StorageBackend string `long:"storagebackend" description:"Storage backend to use: bolt or postgres"`
	PostgresDSN    string `long:"postgresdsn" description:"Postgres connection string, required if storagebackend=postgres"`

	EVMRPCEndpoint  string `long:"evmrpcendpoint" description:"JSON-RPC endpoint of the EVM-side chain"`
	NEARRPCEndpoint string `long:"nearrpcendpoint" description:"JSON-RPC endpoint of the NEAR-side chain"`

	SecretTTLSecs   uint64 `long:"secretttlsecs" description:"TTL in seconds for secret registry entries, revealed or not; fusiond does not read it"`
	ClaimMaxElapsed string `long:"claimmaxelapsed" description:"Maximum duration the claim executor retries a single counter-claim before giving up"`
	EventBufferSize int    `long:"eventbuffersize" description:"Event pipeline ingress buffer capacity"`
}

// DefaultConfig returns a Config populated with swapd's defaults, before
// any config file or command-line flags are applied.
func DefaultConfig() Config {
	dataDir := defaultDataDir()

	return Config{
		DataDir:         dataDir,
		LogDir:          filepath.Join(dataDir, "logs"),
		LogLevel:        defaultLogLevel,
		MaxLogFiles:     3,
		MaxLogSize:      10,
		RPCListen:       defaultRPCListenAddr,
		MetricsListen:   defaultMetricsAddr,
		StorageBackend:  defaultStorageBackend,
		SecretTTLSecs:   defaultSecretTTLSecs,
		ClaimMaxElapsed: defaultClaimMaxElapsed,
		EventBufferSize: defaultEventBufferSize,
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return defaultDataDirname
	}
	return filepath.Join(home, ".swapd", defaultDataDirname)
}

// LoadConfig parses args (typically os.Args[1:]) against a config file
// (if one exists at the default or flag-specified path) and then applies
// any flags actually given on the command line over the file's values.
func LoadConfig(args []string) (*Config, error) {
	cfg := DefaultConfig()

	preCfg := cfg
	preParser := flags.NewParser(&preCfg, flags.Default)
	if _, err := preParser.ParseArgs(args); err != nil {
		if flagErr, ok := err.(*flags.Error); ok && flagErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		return nil, err
	}

	configFile := preCfg.ConfigFile
	if configFile == "" {
		configFile = filepath.Join(cfg.DataDir, defaultConfigFilename)
	}

	if fileExists(configFile) {
		fileParser := flags.NewParser(&cfg, flags.Default)
		if err := flags.NewIniParser(fileParser).ParseFile(configFile); err != nil {
			return nil, fmt.Errorf("fusionconfig: parse config file: %w", err)
		}
	}

	parser := flags.NewParser(&cfg, flags.Default)
	if _, err := parser.ParseArgs(args); err != nil {
		return nil, err
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	switch cfg.StorageBackend {
	case "bolt", "postgres":
	default:
		return fmt.Errorf("fusionconfig: unknown storagebackend %q", cfg.StorageBackend)
	}

	if cfg.StorageBackend == "postgres" && cfg.PostgresDSN == "" {
		return fmt.Errorf("fusionconfig: postgresdsn is required when storagebackend=postgres")
	}

	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
