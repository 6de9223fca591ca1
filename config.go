package lnkeys

import (
	"errors"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	flags "github.com/jessevdk/go-flags"
	"github.com/lightningnetwork/lnkeys/build"
	"github.com/lightningnetwork/lnkeys/keychain"
	"github.com/lightningnetwork/lnkeys/keystore"
	"github.com/lightningnetwork/lnkeys/kvstore"
)

const (
	// DefaultConfigFilename is the name of the configuration file inside
	// the lnkeys directory.
	DefaultConfigFilename = "lnkeys.conf"

	defaultDataDirname  = "data"
	defaultLogDirname   = "logs"
	defaultLogFilename  = "lnkeys.log"
	defaultLogLevel     = "info"
	defaultNetwork      = "mainnet"
	defaultNamespace    = "lnkeys"
	defaultMaxLogFiles  = 3
	defaultMaxLogFileMB = 10

	// BackendBolt stores records in a bbolt database.
	BackendBolt = "bolt"

	// BackendFile stores records in a single JSON document.
	BackendFile = "file"

	// BackendMemory keeps records in memory only.
	BackendMemory = "memory"
)

var (
	// DefaultLnkeysDir is the default directory where lnkeys keeps its
	// configuration file, data and logs. This is a directory in the
	// user's application data, for example:
	//   C:\Users\<username>\AppData\Local\Lnkeys on Windows
	//   ~/.lnkeys on Linux
	//   ~/Library/Application Support/Lnkeys on MacOS
	DefaultLnkeysDir = btcutil.AppDataDir("lnkeys", false)

	// DefaultConfigFile is the default full path of the configuration
	// file.
	DefaultConfigFile = filepath.Join(DefaultLnkeysDir, DefaultConfigFilename)

	defaultDataDir = filepath.Join(DefaultLnkeysDir, defaultDataDirname)
	defaultLogDir  = filepath.Join(DefaultLnkeysDir, defaultLogDirname)

	// netParams maps the accepted network names to their parameters.
	netParams = map[string]*chaincfg.Params{
		"mainnet": &chaincfg.MainNetParams,
		"testnet": &chaincfg.TestNet3Params,
		"regtest": &chaincfg.RegressionNetParams,
		"simnet":  &chaincfg.SimNetParams,
		"signet":  &chaincfg.SigNetParams,
	}
)

// KDFConfig selects the key stretching function used to seal new records.
// Records written with other parameters stay readable.
type KDFConfig struct {
	Type string `long:"type" description:"Key derivation function for new records {argon2id, scrypt, legacy-sha256}"`

	Iterations uint32 `long:"iterations" description:"Iteration count of the legacy SHA-256 KDF"`

	ScryptN uint32 `long:"scrypt-n" description:"scrypt CPU/memory cost, a power of two"`
	ScryptR uint32 `long:"scrypt-r" description:"scrypt block size"`
	ScryptP uint32 `long:"scrypt-p" description:"scrypt parallelism"`

	Argon2Time    uint32 `long:"argon2-time" description:"Number of Argon2id passes"`
	Argon2Memory  uint32 `long:"argon2-memory" description:"Argon2id memory in KiB"`
	Argon2Threads uint32 `long:"argon2-threads" description:"Argon2id parallelism"`
}

// Params converts the configuration into keystore parameters.
func (k *KDFConfig) Params() (keystore.KDFParams, error) {
	kdfType, err := keystore.ParseKDFType(k.Type)
	if err != nil {
		return keystore.KDFParams{}, err
	}

	var params keystore.KDFParams
	switch kdfType {
	case keystore.KDFLegacySHA256:
		params = keystore.LegacyParams(k.Iterations)

	case keystore.KDFScrypt:
		params = keystore.ScryptParams(k.ScryptN, k.ScryptR, k.ScryptP)

	case keystore.KDFArgon2id:
		params = keystore.Argon2idParams(
			k.Argon2Time, k.Argon2Memory, k.Argon2Threads,
		)
	}

	if err := params.Validate(); err != nil {
		return keystore.KDFParams{}, err
	}

	return params, nil
}

// Config defines the configuration options for lnkeys.
//
// See LoadConfig for further details regarding the configuration
// loading+parsing process.
type Config struct {
	LnkeysDir  string `long:"lnkeysdir" description:"The base directory that contains lnkeys' data, logs, configuration file, etc."`
	ConfigFile string `short:"C" long:"configfile" description:"Path to configuration file"`
	DataDir    string `short:"b" long:"datadir" description:"The directory to store lnkeys' data within"`

	LogDir         string `long:"logdir" description:"Directory to log output."`
	MaxLogFiles    int    `long:"maxlogfiles" description:"Maximum logfiles to keep (0 for no rotation)"`
	MaxLogFileSize int    `long:"maxlogfilesize" description:"Maximum logfile size in MB"`
	NoLogFile      bool   `long:"nologfile" description:"Only log to the console"`
	DebugLevel     string `short:"d" long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems"`

	Network string `long:"network" description:"The network derived keys are meant for" choice:"mainnet" choice:"testnet" choice:"regtest" choice:"simnet" choice:"signet"`

	Backend   string        `long:"backend" description:"Where encrypted records are kept" choice:"bolt" choice:"file" choice:"memory"`
	DBTimeout time.Duration `long:"dbtimeout" description:"How long to wait for the database lock"`
	Namespace string        `long:"namespace" description:"Bucket holding this store's records inside the database"`

	KDF *KDFConfig `group:"kdf" namespace:"kdf"`

	Cipher    string `long:"cipher" description:"AEAD used to seal new records {aes-256-gcm, xchacha20-poly1305}"`
	PathStyle string `long:"pathstyle" description:"Which BIP0044 levels are hardened {bip44, unhardened}"`

	// The following are set by ValidateConfig.
	NetParams   *chaincfg.Params     `no-flag:"true"`
	KDFParams   keystore.KDFParams   `no-flag:"true"`
	CipherSuite keystore.CipherSuite `no-flag:"true"`
	Style       keychain.PathStyle   `no-flag:"true"`
}

// DefaultConfig returns all default values for the Config struct.
func DefaultConfig() Config {
	return Config{
		LnkeysDir:      DefaultLnkeysDir,
		ConfigFile:     DefaultConfigFile,
		DataDir:        defaultDataDir,
		LogDir:         defaultLogDir,
		MaxLogFiles:    defaultMaxLogFiles,
		MaxLogFileSize: defaultMaxLogFileMB,
		DebugLevel:     defaultLogLevel,
		Network:        defaultNetwork,
		Backend:        BackendBolt,
		DBTimeout:      kvstore.DefaultDBTimeout,
		Namespace:      defaultNamespace,
		KDF: &KDFConfig{
			Type:          keystore.KDFArgon2id.String(),
			Iterations:    keystore.DefaultLegacyIterations,
			ScryptN:       keystore.DefaultScryptN,
			ScryptR:       keystore.DefaultScryptR,
			ScryptP:       keystore.DefaultScryptP,
			Argon2Time:    keystore.DefaultArgon2Time,
			Argon2Memory:  keystore.DefaultArgon2Memory,
			Argon2Threads: keystore.DefaultArgon2Threads,
		},
		Cipher:    keystore.CipherAES256GCM.String(),
		PathStyle: keychain.PathStyleBIP44.String(),
	}
}

// LoadConfig initializes and parses the config using a config file and
// command line options.
//
// The configuration proceeds as follows:
//  1. Start with preCfg, usually DefaultConfig with the directory options
//     given on the command line applied
//  2. Load the configuration file overwriting defaults with any specified
//     options
//  3. Apply the command line overrides so they take precedence
func LoadConfig(preCfg Config, overrides ...func(*Config)) (*Config,
	error) {

	// If the config file path has not been modified by the user, then
	// we'll use the default config file path. However, if the user has
	// modified their lnkeysdir, then we should assume they intend to use
	// the config file within it.
	configFileDir := CleanAndExpandPath(preCfg.LnkeysDir)
	configFilePath := CleanAndExpandPath(preCfg.ConfigFile)
	if configFileDir != DefaultLnkeysDir {
		if configFilePath == DefaultConfigFile {
			configFilePath = filepath.Join(
				configFileDir, DefaultConfigFilename,
			)
		}
	}

	// Next, load any additional configuration options from the file.
	var configFileError error
	cfg := preCfg
	if err := flags.IniParse(configFilePath, &cfg); err != nil {
		// If it's a parsing related error, then we'll return
		// immediately, otherwise we can proceed as possibly the config
		// file doesn't exist which is OK.
		var iniErr *flags.IniError
		if errors.As(err, &iniErr) {
			return nil, err
		}

		configFileError = err
	}

	// Finally, apply the command line options again to ensure they take
	// precedence.
	for _, override := range overrides {
		override(&cfg)
	}

	// Make sure everything we just loaded makes sense.
	cleanCfg, err := ValidateConfig(cfg)
	if err != nil {
		return nil, err
	}

	// Warn about a missing config file only after all other configuration
	// is done.
	if configFileError != nil {
		lnksLog.Debugf("Config file not loaded: %v", configFileError)
	}

	return cleanCfg, nil
}

// ValidateConfig checks the given configuration to be sane. This makes sure
// no illegal values or combination of values are set. All file system paths
// are normalized. The cleaned up config is returned on success.
func ValidateConfig(cfg Config) (*Config, error) {
	// If the provided lnkeys directory is not the default, we'll modify
	// the path to all of the files and directories that will live within
	// it.
	lnkeysDir := CleanAndExpandPath(cfg.LnkeysDir)
	if lnkeysDir != DefaultLnkeysDir {
		if cfg.DataDir == defaultDataDir {
			cfg.DataDir = filepath.Join(lnkeysDir, defaultDataDirname)
		}
		if cfg.LogDir == defaultLogDir {
			cfg.LogDir = filepath.Join(lnkeysDir, defaultLogDirname)
		}
	}

	cfg.LnkeysDir = lnkeysDir
	cfg.ConfigFile = CleanAndExpandPath(cfg.ConfigFile)
	cfg.DataDir = CleanAndExpandPath(cfg.DataDir)
	cfg.LogDir = CleanAndExpandPath(cfg.LogDir)

	if cfg.MaxLogFiles < 0 {
		return nil, fmt.Errorf("maxlogfiles must not be negative, "+
			"got %d", cfg.MaxLogFiles)
	}
	if cfg.MaxLogFileSize <= 0 {
		return nil, fmt.Errorf("maxlogfilesize must be positive, "+
			"got %d", cfg.MaxLogFileSize)
	}

	params, ok := netParams[strings.ToLower(cfg.Network)]
	if !ok {
		return nil, fmt.Errorf("unknown network %q", cfg.Network)
	}
	cfg.NetParams = params

	switch cfg.Backend {
	case BackendBolt, BackendFile, BackendMemory:
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}

	if cfg.Backend == BackendBolt {
		if cfg.Namespace == "" {
			return nil, kvstore.ErrNamespaceRequired
		}
		if cfg.DBTimeout <= 0 {
			return nil, fmt.Errorf("dbtimeout must be positive, "+
				"got %v", cfg.DBTimeout)
		}
	}

	if cfg.KDF == nil {
		cfg.KDF = DefaultConfig().KDF
	}
	kdfParams, err := cfg.KDF.Params()
	if err != nil {
		return nil, fmt.Errorf("invalid kdf options: %w", err)
	}
	cfg.KDFParams = kdfParams

	cfg.CipherSuite, err = keystore.ParseCipherSuite(cfg.Cipher)
	if err != nil {
		return nil, err
	}

	cfg.Style, err = keychain.ParsePathStyle(cfg.PathStyle)
	if err != nil {
		return nil, err
	}

	// Validate the debug level against the registered subsystems without
	// applying it yet.
	if err := build.ParseAndSetDebugLevels(
		cfg.DebugLevel, build.SubLoggers(nopLoggers()),
	); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Mainnet reports whether keys are meant for the main network.
func (c *Config) Mainnet() bool {
	return c.NetParams.Net == chaincfg.MainNetParams.Net
}

// LogFile returns the path of the rotated log file.
func (c *Config) LogFile() string {
	return filepath.Join(c.LogDir, c.NetParams.Name, defaultLogFilename)
}

// WriteConfigFile writes the configuration, with every option commented and
// defaults included, to path. An existing file is left alone.
func WriteConfigFile(cfg *Config, path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file %v already exists", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	parser := flags.NewParser(cfg, flags.Default)
	iniParser := flags.NewIniParser(parser)

	return iniParser.WriteFile(
		path, flags.IniIncludeDefaults|flags.IniIncludeComments|
			flags.IniCommentDefaults,
	)
}

// CleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
// This function is taken from https://github.com/btcsuite/btcd
func CleanAndExpandPath(path string) string {
	if path == "" {
		return ""
	}

	// Expand initial ~ to OS specific home directory.
	if strings.HasPrefix(path, "~") {
		var homeDir string
		u, err := user.Current()
		if err == nil {
			homeDir = u.HomeDir
		} else {
			homeDir = os.Getenv("HOME")
		}

		path = strings.Replace(path, "~", homeDir, 1)
	}

	// NOTE: The os.ExpandEnv doesn't work with Windows-style %VARIABLE%,
	// but the variables can still be expanded via POSIX-style $VARIABLE.
	return filepath.Clean(os.ExpandEnv(path))
}
