// Command authd serves the sessionauth engine over HTTP.
//
// Configuration is read from the YAML file named by -config and overridden
// by AUTHD_* environment variables. AUTHD_JWT_KEY holds the hex-encoded
// signing key and is required.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	configPath := flag.String("config", os.Getenv("AUTHD_CONFIG"), "path to YAML config file")
	flag.Parse()

	fc, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	logger := newLogger(fc.Log.Level, os.Stdout)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, fc, logger)
	if err != nil {
		return err
	}
	return a.run(ctx)
}
