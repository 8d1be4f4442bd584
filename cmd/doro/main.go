package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"dorogallery/internal/config"
)

const usageText = `Usage: doro [-config dir] <command> [args]

Commands:
  list      [-sort s] [-search q] [-tags a,b] [-pages n]
  get       <id>
  like      <id>
  dislike   <id>
  describe  <id> <text...>
  tag       <id> <t1,t2...>
  upload    [-content text] [-tags a,b] <file>
  delete    <id>
  tags
  download  [-out dir] <id...>
  bot       run the Telegram bot
`

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(argv []string) int {
	fs := flag.NewFlagSet("doro", flag.ContinueOnError)
	configDir := fs.String("config", "./configs", "directory holding config.yaml")
	fs.Usage = func() { fmt.Fprint(os.Stderr, usageText) }
	if err := fs.Parse(argv); err != nil {
		return 2
	}
	args := fs.Args()
	if len(args) == 0 {
		fs.Usage()
		return 2
	}

	// --- Configuration Loading ---
	cfg, err := config.LoadConfig(*configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		return 1
	}

	// --- Logger Setup ---
	log := newLogger(cfg.LogLevel)
	log.WithFields(logrus.Fields{
		"api_base_url":  cfg.APIBaseURL,
		"badgerdb_path": cfg.BadgerDBPath,
	}).Debug("Configuration loaded successfully")

	// --- Initialize Components ---
	a, err := newApp(cfg, log, os.Stdout, os.Stderr)
	if err != nil {
		log.WithError(err).Error("Failed to initialize")
		return 1
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.dispatch(ctx, args[0], args[1:]); err != nil {
		log.WithError(err).WithField("command", args[0]).Error("Command failed")
		return 1
	}
	return 0
}

// newLogger writes JSON to stderr so command output on stdout stays clean.
func newLogger(level string) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	log.SetOutput(os.Stderr)
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)
	return log
}
