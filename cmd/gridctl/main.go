package main

import (
	"fmt"
	"os"
)

var version = "dev"

var (
	configPath string
	topoPath   string
)

func init() {
	configPath = envOrDefault("GRIDCTL_CONFIG", "configs/gridstored.yaml")
	topoPath = envOrDefault("GRIDCTL_OLD_TOPOLOGY", "")
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	args := os.Args[1:]
	for len(args) > 0 && len(args[0]) > 0 && args[0][0] == '-' {
		switch args[0] {
		case "--config":
			if len(args) < 2 {
				fatal("--config requires a value")
			}
			configPath = args[1]
			args = args[2:]
		case "--old-topology":
			if len(args) < 2 {
				fatal("--old-topology requires a value")
			}
			topoPath = args[1]
			args = args[2:]
		case "--version", "-v":
			fmt.Printf("gridctl %s\n", version)
			os.Exit(0)
		case "--help", "-h":
			printUsage()
			os.Exit(0)
		default:
			fatal("unknown flag: " + args[0])
		}
	}

	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	cmd := args[0]
	cmdArgs := args[1:]

	switch cmd {
	case "migrate":
		runMigrate(cmdArgs)
	case "object":
		runObject(cmdArgs)
	case "version":
		fmt.Printf("gridctl %s\n", version)
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Usage: gridctl [flags] <command> <subcommand> [args]

Global Flags:
  --config <path>         Node config file (default: $GRIDCTL_CONFIG or configs/gridstored.yaml)
  --old-topology <path>   Previous topology snapshot, required by "migrate start"
  --version, -v           Show version

Commands:
  migrate    start | status                   Run and inspect a topology migration
  object     put | get | head | rm             Put/get/head/delete directly against local disks
  version    Show version
  help       Show this help`)
}

func fatal(msg string) {
	fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	os.Exit(1)
}
