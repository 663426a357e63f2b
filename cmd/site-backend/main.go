// -----------------------------------------------------------------------
// Site Backend - Main Entry Point
// -----------------------------------------------------------------------
//
// Package main implements the application entry point and lifecycle
// orchestration for the personal site backend. It loads configuration,
// builds every cache, starts the background refresh work and the HTTP
// server, then waits for a shutdown signal.
//
// -----------------------------------------------------------------------

package main

import (
	"os"

	"github.com/afreidah/personal-site-backend/internal/app"
)

func main() {
	cfg := app.MustLoadConfig(os.Args[1:])

	services := app.MustNewServices(cfg)

	srv := app.SetupHTTPServer(cfg, services)

	cancelBackground := app.StartBackground(services)

	app.StartHTTPServer(srv, cfg)

	app.WaitForShutdown(srv, services, cancelBackground)
}
