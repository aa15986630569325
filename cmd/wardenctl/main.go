package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/platinummonkey/warden/pkg/cli"
)

func main() {
	configFile := flag.String("config", "", "Path to a YAML config file (default $WARDEN_CONFIG_FILE)")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: wardenctl [-config file] <command> [args]\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	// Create root command
	rootCmd := cli.NewRootCommand(cli.ConfigOpener(*configFile), os.Stdout)

	// Execute command
	if err := rootCmd.Dispatch(flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
