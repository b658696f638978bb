// Command rxsearch is the drug search service CLI.
//
// Usage:
//
//	rxsearch serve --config rxsearch.yaml
//	rxsearch load --config rxsearch.yaml
//	rxsearch validate --config rxsearch.yaml
package main

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/alecthomas/kong"

	"github.com/medscout/rxsearch/pkg/config"
)

// CLI defines the command-line interface.
type CLI struct {
	Version  VersionCmd  `cmd:"" help:"Show version information."`
	Serve    ServeCmd    `cmd:"" help:"Start the search API server."`
	Load     LoadCmd     `cmd:"" help:"Bulk-load drug documents into the index."`
	Validate ValidateCmd `cmd:"" help:"Validate configuration file."`

	Config string `short:"c" help:"Path to config file." type:"path" default:"rxsearch.yaml"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("rxsearch version %s\n", version)
	return nil
}

// loadConfig reads, expands and validates the config file.
func loadConfig(path string) (*config.Config, error) {
	loader, err := config.NewLoader(config.LoaderOptions{Path: path})
	if err != nil {
		return nil, err
	}
	return loader.Load()
}

func main() {
	_ = config.LoadEnvFiles()

	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("rxsearch"),
		kong.Description("rxsearch - clinician drug search service"),
		kong.UsageOnError(),
	)

	if err := ctx.Run(&cli); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
