// Package main provides the querygrid operator CLI.
// Usage: gridctl migrate [up|down|status]
//        gridctl seed --count 500
//        gridctl token --user ann --roles viewer --admin
//        gridctl purge
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"querygrid/internal/config"
	"querygrid/pkg/logger"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx := context.Background()

	var err error
	switch os.Args[1] {
	case "migrate":
		err = migrate(os.Args[2:])
	case "seed":
		err = seed(ctx, os.Args[2:])
	case "token":
		err = token(os.Args[2:])
	case "purge":
		err = purge(ctx, os.Args[2:])
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`querygrid operator CLI

Usage:
  gridctl <command> [options]

Commands:
  migrate   Run goose migrations from db/migrations (up, down, status)
  seed      Fill the demo_people table behind core.People
  token     Issue a bearer token for a user
  purge     Expire untouched selections once
  help      Show this help

Every command accepts --config <file>; QUERYGRID_* variables override it.`)
}

// command parses args into a flag set that always carries --config.
type command struct {
	*flag.FlagSet
	configPath *string
}

func newCommand(name string) command {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	return command{FlagSet: fs, configPath: fs.String("config", "", "path to a YAML config file")}
}

func (c command) load(args []string) (*config.Config, error) {
	if err := c.Parse(args); err != nil {
		return nil, err
	}
	return config.Load(*c.configPath)
}

func newLogger(cfg *config.Config) *logger.Logger {
	log, err := logger.New(logger.Config{Level: cfg.Log.Level, Development: true})
	if err != nil {
		return logger.Default()
	}
	return log
}

func migrate(args []string) error {
	cmd := newCommand("migrate")
	dir := cmd.String("dir", "db/migrations", "migrations directory")
	cfg, err := cmd.load(args)
	if err != nil {
		return err
	}

	action := "up"
	if cmd.NArg() > 0 {
		action = cmd.Arg(0)
	}
	switch action {
	case "up", "down", "status", "redo":
	default:
		return fmt.Errorf("unknown migrate action %q", action)
	}

	fmt.Printf("Running goose %s on %s...\n", action, redact(cfg.Database.DSN))
	goose := exec.Command("goose", "-dir", *dir, "postgres", cfg.Database.DSN, action)
	goose.Stdout = os.Stdout
	goose.Stderr = os.Stderr
	if err := goose.Run(); err != nil {
		return fmt.Errorf("goose %s: %w", action, err)
	}
	fmt.Println("✓ Done")
	return nil
}

// redact hides the password of a postgres URL.
func redact(dsn string) string {
	at := strings.LastIndex(dsn, "@")
	scheme := strings.Index(dsn, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return dsn
	}
	creds := dsn[scheme+3 : at]
	if colon := strings.Index(creds, ":"); colon >= 0 {
		creds = creds[:colon] + ":***"
	}
	return dsn[:scheme+3] + creds + dsn[at:]
}
