package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/mhr-212/Healthcare-Data-Warehouse/internal/config"
	"github.com/mhr-212/Healthcare-Data-Warehouse/pkg/constants"
)

type Flags struct {
	ConfigFile string
	EnvFile    string
	Port       int
	Host       string
	LogLevel   string
	LogFormat  string
	TLSCert    string
	TLSKey     string
	Version    bool

	set map[string]bool
}

func ParseFlags() *Flags {
	f := &Flags{}

	flag.StringVar(&f.ConfigFile, "config", "", "Path to configuration file")
	flag.StringVar(&f.EnvFile, "env-file", ".env", "Path to a .env file loaded before the configuration")
	flag.IntVar(&f.Port, "port", constants.DefaultPort, "Server port")
	flag.StringVar(&f.Host, "host", constants.DefaultHost, "Server host")
	flag.StringVar(&f.LogLevel, "log-level", constants.DefaultLogLevel, "Log level (debug, info, warn, error)")
	flag.StringVar(&f.LogFormat, "log-format", constants.DefaultLogFormat, "Log format (json, text)")
	flag.StringVar(&f.TLSCert, "tls-cert", "", "Path to TLS certificate")
	flag.StringVar(&f.TLSKey, "tls-key", "", "Path to TLS key")
	flag.BoolVar(&f.Version, "version", false, "Show version information")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\n%s\n\n", constants.AppDescription)
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	if f.Version {
		currentBuildInfo().print(os.Stdout)
		os.Exit(0)
	}

	f.set = make(map[string]bool)
	flag.Visit(func(fl *flag.Flag) { f.set[fl.Name] = true })

	return f
}

// Apply overrides cfg with the flags given on the command line.
func (f *Flags) Apply(cfg *config.Config) {
	if f.set["port"] {
		cfg.Server.Port = f.Port
	}
	if f.set["host"] {
		cfg.Server.Host = f.Host
	}
	if f.set["log-level"] {
		cfg.Logging.Level = f.LogLevel
	}
	if f.set["log-format"] {
		cfg.Logging.Format = f.LogFormat
	}
}
