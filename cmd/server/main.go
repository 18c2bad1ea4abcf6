package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"cloud.google.com/go/firestore"
	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/stackfin/backend/internal/api"
	"github.com/stackfin/backend/internal/config"
	"github.com/stackfin/backend/internal/merchant"
	"github.com/stackfin/backend/internal/service"
	"github.com/stackfin/backend/internal/store"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	var storeImpl store.Store
	switch cfg.Store.Backend {
	case "memory":
		log.Println("Using in-memory store for local development")
		storeImpl = store.NewMemoryStore()
	case "sqlite":
		log.Printf("Using sqlite store at %s", cfg.Store.SQLitePath)
		storeImpl, err = store.OpenSQLite(cfg.Store.SQLitePath)
		if err != nil {
			log.Fatalf("Failed to open sqlite store: %v", err)
		}
	case "firestore":
		firestoreClient, err := firestore.NewClient(ctx, cfg.Store.FirestoreProject)
		if err != nil {
			log.Fatalf("Failed to create Firestore client: %v", err)
		}
		storeImpl = store.NewFirestoreStore(firestoreClient)
	}
	defer storeImpl.Close()

	// Config aliases layer on top of the built-in table.
	aliases := merchant.DefaultAliases()
	for k, v := range cfg.Merchant.Aliases {
		aliases[k] = v
	}
	normalizer := merchant.NewNormalizer(aliases)

	svc := service.NewCoachService(storeImpl, normalizer,
		service.WithLookbacks(cfg.Forecast.DetectionLookbackDays, cfg.Forecast.HistoryLookbackDays))

	mux := http.NewServeMux()
	api.NewHandler(svc).Register(mux)

	c := cors.New(cors.Options{
		AllowedOrigins: []string{
			"http://localhost:1234",
			"http://127.0.0.1:1234",
		},
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodOptions,
		},
		AllowedHeaders: []string{
			"Accept",
			"Authorization",
			"Content-Type",
			"User-Agent",
		},
		AllowCredentials: true,
	})
	handler := c.Handler(mux)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: h2c.NewHandler(handler, &http2.Server{}),
	}

	log.Printf("Starting server on port %s (store=%s)", cfg.Server.Port, cfg.Store.Backend)
	if err := srv.ListenAndServe(); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
