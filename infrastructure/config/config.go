// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
	"github.com/utxonode/chaind/domain/consensus"
	"github.com/utxonode/chaind/infrastructure/db/drivers"
	"github.com/utxonode/chaind/infrastructure/logger"
	"github.com/utxonode/chaind/version"
)

const (
	defaultConfigFilename = "chaind.conf"
	defaultDataDirname    = "data"
	defaultLogLevel       = "info"
	defaultLogDirname     = "logs"
	defaultLogFilename    = "chaind.log"
	defaultErrLogFilename = "chaind_err.log"
	defaultDbType         = drivers.LevelDB
	defaultDbCacheSizeMiB = 256
)

var (
	// DefaultAppDir is the default home directory for chaind.
	DefaultAppDir = btcutil.AppDataDir("chaind", false)

	defaultConfigFile = filepath.Join(DefaultAppDir, defaultConfigFilename)
	defaultDataDir    = filepath.Join(DefaultAppDir, defaultDataDirname)
	defaultLogDir     = filepath.Join(DefaultAppDir, defaultLogDirname)
)

// Flags defines the configuration options for chaind.
//
// See loadConfig for details on the configuration load process.
type Flags struct {
	ShowVersion     bool   `short:"V" long:"version" description:"Display version information and exit"`
	ConfigFile      string `short:"C" long:"configfile" description:"Path to configuration file"`
	DataDir         string `short:"b" long:"datadir" description:"Directory to store data"`
	LogDir          string `long:"logdir" description:"Directory to log output."`
	DebugLevel      string `short:"d" long:"loglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems -- Use show to list available subsystems"`
	DbType          string `long:"dbtype" description:"Database backend to use for the block index, blocks and ledger {leveldb, badger}"`
	DbCacheSizeMiB  int    `long:"dbcachesize" description:"Size of the database cache in MiB"`
	UTXOCacheSize   int    `long:"utxocachesize" description:"Number of ledger coins held in memory before they are flushed to the database"`
	BlockCacheSize  int    `long:"blockcachesize" description:"Number of recently used blocks held in memory"`
	ScriptThreads   int    `long:"scriptthreads" description:"Number of goroutines verifying scripts, 0 for one per CPU"`
	SigCacheMaxSize uint   `long:"sigcachemaxsize" description:"The maximum number of entries in the signature verification cache"`
	ImportFile      string `long:"importfile" description:"Import the serialized blocks of the given file on startup"`
	MetricsListen   string `long:"metricslisten" description:"Serve prometheus metrics and pprof on the given interface/port (eg. localhost:9090)"`
	NetworkFlags
}

// Config defines the configuration options for chaind.
//
// See loadConfig for details on the configuration load process.
type Config struct {
	*Flags
}

// ConsensusConfig returns the consensus settings of cfg.
func (cfg *Config) ConsensusConfig() *consensus.Config {
	consensusConfig := consensus.DefaultConfig(cfg.NetParams())
	consensusConfig.UTXOCacheSize = cfg.UTXOCacheSize
	consensusConfig.BlockCacheSize = cfg.BlockCacheSize
	consensusConfig.ScriptThreads = cfg.ScriptThreads
	consensusConfig.SigCacheSize = cfg.SigCacheMaxSize
	return consensusConfig
}

// DatabasePath returns the directory of the database of the active network.
func (cfg *Config) DatabasePath() string {
	return filepath.Join(cfg.DataDir, cfg.DbType)
}

// cleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	// Expand initial ~ to OS specific home directory.
	if strings.HasPrefix(path, "~") {
		homeDir := filepath.Dir(DefaultAppDir)
		path = strings.Replace(path, "~", homeDir, 1)
	}

	// NOTE: The os.ExpandEnv doesn't work with Windows-style %VARIABLE%,
	// but the variables can still be expanded via POSIX-style $VARIABLE.
	return filepath.Clean(os.ExpandEnv(path))
}

// validDbType returns whether or not dbType is a supported database type.
func validDbType(dbType string) bool {
	for _, knownType := range drivers.SupportedDrivers() {
		if dbType == knownType {
			return true
		}
	}
	return false
}

func defaultFlags() *Flags {
	return &Flags{
		ConfigFile:      defaultConfigFile,
		DataDir:         defaultDataDir,
		LogDir:          defaultLogDir,
		DebugLevel:      defaultLogLevel,
		DbType:          defaultDbType,
		DbCacheSizeMiB:  defaultDbCacheSizeMiB,
		UTXOCacheSize:   consensus.DefaultUTXOCacheSize,
		BlockCacheSize:  consensus.DefaultBlockCacheSize,
		SigCacheMaxSize: consensus.DefaultSigCacheSize,
	}
}

// LoadConfig initializes and parses the config using a config file and
// command line options, and starts logging to the configured log
// directory.
func LoadConfig() (*Config, error) {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		return nil, err
	}

	// Special show command to list supported subsystems and exit.
	if cfg.DebugLevel == "show" {
		fmt.Println("Supported subsystems", logger.SupportedSubsystems())
		os.Exit(0)
	}

	// Initialize log rotation. After log rotation has been initialized, the
	// logger variables may be used.
	logger.InitLog(filepath.Join(cfg.LogDir, defaultLogFilename), filepath.Join(cfg.LogDir, defaultErrLogFilename))

	// Parse, validate, and set debug log level(s).
	err = logger.ParseAndSetLogLevels(cfg.DebugLevel)
	if err != nil {
		err := errors.Errorf("LoadConfig: %s", err)
		fmt.Fprintln(os.Stderr, err)
		return nil, err
	}
	return cfg, nil
}

// loadConfig parses the config from args.
//
// The configuration proceeds as follows:
//  1. Start with a default config with sane settings
//  2. Pre-parse the command line to check for an alternative config file
//  3. Load configuration file overwriting defaults with any specified options
//  4. Parse CLI options and overwrite/add any specified options
//
// The above results in chaind functioning properly without any config settings
// while still allowing the user to override settings with config files and
// command line options. Command line options always take precedence.
func loadConfig(args []string) (*Config, error) {
	cfgFlags := defaultFlags()

	// Pre-parse the command line options to see if an alternative config
	// file or the version flag was specified. Any errors aside from the
	// help message error can be ignored here since they will be caught by
	// the final parse below.
	preCfg := *cfgFlags
	preParser := flags.NewParser(&preCfg, flags.HelpFlag)
	_, err := preParser.ParseArgs(args)
	if err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			fmt.Fprintln(os.Stderr, err)
			return nil, err
		}
	}

	// Show the version and exit if the version flag was specified.
	appName := filepath.Base(os.Args[0])
	appName = strings.TrimSuffix(appName, filepath.Ext(appName))
	usageMessage := fmt.Sprintf("Use %s -h to show usage", appName)
	if preCfg.ShowVersion {
		fmt.Println(appName, "version", version.Version())
		os.Exit(0)
	}

	// Load additional config from file. A missing file is only an error
	// when it was asked for explicitly.
	parser := flags.NewParser(cfgFlags, flags.Default)
	err = flags.NewIniParser(parser).ParseFile(preCfg.ConfigFile)
	if err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) || preCfg.ConfigFile != defaultConfigFile {
			fmt.Fprintf(os.Stderr, "Error parsing config file: %s\n", err)
			fmt.Fprintln(os.Stderr, usageMessage)
			return nil, err
		}
	}

	// Parse command line options again to ensure they take precedence.
	_, err = parser.ParseArgs(args)
	if err != nil {
		var flagsErr *flags.Error
		if !errors.As(err, &flagsErr) || flagsErr.Type != flags.ErrHelp {
			fmt.Fprintln(os.Stderr, usageMessage)
		}
		return nil, err
	}

	cfg := &Config{Flags: cfgFlags}
	err = cfg.validate()
	if err != nil {
		err := errors.Errorf("loadConfig: %s", err)
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, usageMessage)
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) validate() error {
	err := cfg.ResolveNetwork()
	if err != nil {
		return err
	}

	// Append the network type to the data and log directories so they
	// are "namespaced" per network.
	cfg.DataDir = filepath.Join(cleanAndExpandPath(cfg.DataDir), cfg.NetParams().Name)
	cfg.LogDir = filepath.Join(cleanAndExpandPath(cfg.LogDir), cfg.NetParams().Name)

	if !validDbType(cfg.DbType) {
		return errors.Errorf("the specified database type [%s] is invalid -- "+
			"supported types %s", cfg.DbType, drivers.SupportedDrivers())
	}
	if cfg.DbCacheSizeMiB <= 0 {
		return errors.Errorf("the dbcachesize option must be positive -- parsed [%d]", cfg.DbCacheSizeMiB)
	}
	if cfg.UTXOCacheSize <= 0 {
		return errors.Errorf("the utxocachesize option must be positive -- parsed [%d]", cfg.UTXOCacheSize)
	}
	if cfg.BlockCacheSize <= 0 {
		return errors.Errorf("the blockcachesize option must be positive -- parsed [%d]", cfg.BlockCacheSize)
	}
	if cfg.ScriptThreads < 0 {
		return errors.Errorf("the scriptthreads option may not be negative -- parsed [%d]", cfg.ScriptThreads)
	}

	if cfg.ImportFile != "" {
		cfg.ImportFile = cleanAndExpandPath(cfg.ImportFile)
	}
	if cfg.MetricsListen != "" {
		_, _, err := net.SplitHostPort(cfg.MetricsListen)
		if err != nil {
			return errors.Wrapf(err, "invalid metricslisten %s", cfg.MetricsListen)
		}
	}
	return nil
}
