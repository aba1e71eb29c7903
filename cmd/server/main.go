// Command server runs the paperchat API: PDF upload and ingestion,
// multi-strategy chunk retrieval, and adaptive explanation sessions.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"paperchat/internal/bootstrap"
	httptransport "paperchat/internal/transport/http"
)

func main() {
	ctx := context.Background()

	app, err := bootstrap.New(ctx)
	if err != nil {
		log.Fatalf("bootstrap failed: %v", err)
	}
	defer func() {
		if err := app.Close(); err != nil {
			log.Printf("close resources failed: %v", err)
		}
	}()

	// Document ingestion runs async when the broker is up, inline
	// otherwise; uploads succeed either way.
	if app.IngestWorker != nil {
		if err := app.IngestWorker.Start(ctx); err != nil {
			log.Fatalf("start ingest worker failed: %v", err)
		}
		log.Printf("document ingestion: async via queue %q", app.Config.RabbitMQ.IngestQueue)
	} else {
		log.Printf("document ingestion: inline (broker unavailable)")
	}

	router := httptransport.NewRouter(app)
	server := &http.Server{
		Addr:              app.Config.HTTPAddr(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("paperchat serving on %s (embedding model %s)", server.Addr, app.AI.EmbeddingModel())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	waitForShutdown(server, app)
}

// waitForShutdown drains in dependency order: stop accepting HTTP traffic
// first, then the ingest worker, so an in-flight upload can still enqueue
// its job before the consumer goes away. app.Close handles the rest.
func waitForShutdown(server *http.Server, app *bootstrap.App) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown failed: %v", err)
	}
	if app.IngestWorker != nil {
		app.IngestWorker.Close()
	}
}
