// Command alphaminer is a CPU mining client for the Alephium network.
// It connects to a mining node over TCP, solves proof-of-work jobs
// across a pool of worker goroutines, and submits qualifying nonces
// back to the node.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	flags "github.com/jessevdk/go-flags"

	"github.com/alephium/alphaminer/internal/config"
	"github.com/alephium/alphaminer/internal/logging"
	"github.com/alephium/alphaminer/internal/miner"
)

// options mirrors config.Config as CLI flags, following the same
// go-flags struct-tag layout the pack's decred-lineage daemons use.
type options struct {
	IP       string `long:"ip" description:"mining node IP address" default:"127.0.0.1"`
	Port     int    `long:"port" description:"mining node TCP port" default:"10973"`
	Type     string `long:"type" description:"miner type (cpu is the only implementation)" default:"cpu"`
	Workers  int    `long:"worker" description:"number of CPU worker goroutines (default: detected core count)"`
	LogLevel string `long:"loglevel" description:"logging level (trace/debug/info/warn/error/critical/off)" default:"info"`
	LogFile  string `long:"logfile" description:"rotate logs to this path in addition to stdout"`
	Journal  string `long:"journal" description:"path to an optional bbolt crash-forensics journal; disabled if unset"`
}

func main() {
	os.Exit(run())
}

func run() int {
	var opts options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			return 0
		}
		return 1
	}

	cfg := config.Default()
	cfg.IP = opts.IP
	cfg.Port = opts.Port
	cfg.Type = config.MinerType(opts.Type)
	cfg.LogLevel = opts.LogLevel
	cfg.JournalPath = opts.Journal
	if opts.Workers > 0 {
		cfg.Workers = opts.Workers
	}

	if opts.LogFile != "" {
		closeRotator, err := logging.InitLogRotator(opts.LogFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "alphaminer: %v\n", err)
			return 1
		}
		defer closeRotator()
	}

	lvl, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "alphaminer: %v\n", err)
		return 1
	}
	logging.SetLevels(lvl)

	log := logging.SubLogger("MAIN")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Infof("received %v, shutting down", sig)
		cancel()
	}()

	if err := miner.Run(ctx, cfg); err != nil {
		log.Errorf("fatal: %v", err)
		return 1
	}
	return 0
}
