package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/osokin-dev/gatehouse/internal/gateway"
	"github.com/osokin-dev/gatehouse/internal/gateway/config"
)

func main() {
	cfg := config.LoadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := gateway.NewApp(cfg)
	if err != nil {
		log.Printf("%v", err)
		return
	}

	go func() {
		if err := app.Run(ctx); err != nil {
			log.Printf("http server failed: %v", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
