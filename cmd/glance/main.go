package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"glance/internal"
	"glance/internal/pkg/geoip"
)

func main() {
	app, err := internal.NewApp()
	if err != nil {
		log.Fatalf("Failed to create app: %v", err)
	}

	go func() {
		if err := app.Start(); err != nil {
			log.Fatalf("Server stopped: %v", err)
		}
	}()

	waitForShutdownSignal(app)
}

// waitForShutdownSignal blocks until a termination signal arrives, then
// drains in-flight requests. SIGHUP reloads the GeoLite2 database in place
// so a freshly downloaded file takes effect without a restart.
func waitForShutdownSignal(app *internal.Application) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for sig := range sigChan {
		if sig == syscall.SIGHUP {
			log.Println("Received SIGHUP, reloading GeoIP database")
			geoip.ReloadGeoDB()
			continue
		}
		log.Printf("Received signal: %v", sig)
		break
	}

	if err := app.Shutdown(); err != nil {
		log.Printf("Error during shutdown: %v", err)
		os.Exit(1)
	}

	log.Println("Shutdown complete")
}
