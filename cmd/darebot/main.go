package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	darebotcmd "github.com/H3nryK/Darely/internal/cmd/darebot"
)

func main() {
	cfg, err := darebotcmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[DAREBOT] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := darebotcmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}
