package config

import (
	"flag"
	"io"
	"time"

	"github.com/dmitrijs2005/applock/internal/flagx"
)

// parseFlags applies the CLI flags found in args:
//
//	-a string   address and port of the records server
//	-d string   path of the local SQLite database
//	-p string   principal ID; enables the remote side
//	-i int      monitor interval in seconds
//	-l string   log level
func parseFlags(cfg *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{"-a", "-d", "-p", "-i", "-l"})

	fs := flag.NewFlagSet("cli", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.ServerEndpointAddr, "a", cfg.ServerEndpointAddr, "address and port to access server")
	fs.StringVar(&cfg.DatabasePath, "d", cfg.DatabasePath, "local database path")
	fs.StringVar(&cfg.PrincipalID, "p", cfg.PrincipalID, "principal ID")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level")
	interval := fs.Int("i", int(cfg.MonitorInterval.Seconds()), "monitor interval (in seconds)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	fs.Visit(func(f *flag.Flag) {
		if f.Name == "i" {
			cfg.MonitorInterval = time.Duration(*interval) * time.Second
		}
	})
	return nil
}
