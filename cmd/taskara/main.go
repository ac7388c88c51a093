// Taskara's task lifecycle and review server — the HTTP front door to the
// Task Aggregate, the Review Engine, and Benchmark/Eval orchestration.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/agentsea/taskara/pkg/annotation"
	"github.com/agentsea/taskara/pkg/api"
	"github.com/agentsea/taskara/pkg/benchmark"
	"github.com/agentsea/taskara/pkg/database"
	"github.com/agentsea/taskara/pkg/episode"
	"github.com/agentsea/taskara/pkg/episodestore"
	"github.com/agentsea/taskara/pkg/eventbus"
	"github.com/agentsea/taskara/pkg/promptstore"
	"github.com/agentsea/taskara/pkg/remote"
	"github.com/agentsea/taskara/pkg/review"
	"github.com/agentsea/taskara/pkg/reviewstore"
	"github.com/agentsea/taskara/pkg/store"
	"github.com/agentsea/taskara/pkg/task"
	"github.com/agentsea/taskara/pkg/threadstore"
	"github.com/agentsea/taskara/pkg/vault"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded, continuing with existing environment: %v", err)
	}

	ctx := context.Background()

	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		log.Fatalf("failed to load database config: %v", err)
	}
	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			log.Printf("error closing database client: %v", err)
		}
	}()
	log.Println("connected to PostgreSQL")

	key, err := vault.LoadKey()
	if err != nil {
		log.Fatalf("failed to load encryption key: %v", err)
	}
	v, err := vault.New(key)
	if err != nil {
		log.Fatalf("failed to construct vault: %v", err)
	}

	db := dbClient.DB()
	coreStore := store.New(db)
	threads := threadstore.New(db)
	prompts := promptstore.New(db)
	episodes := episodestore.New(db)
	reviews := reviewstore.New(db)

	engine := review.New(coreStore, reviews, episodes)

	opts := []task.Option{
		task.WithAuthTokenFallback(os.Getenv("HUB_API_KEY")),
	}
	if os.Getenv("HUB_API_KEY") != "" {
		opts = append(opts, task.WithRemoteClient(remote.New(30*time.Second)))
	}
	if addr := os.Getenv("REDIS_CACHE_STORAGE"); addr != "" {
		publisher := eventbus.New(addr)
		defer publisher.Close()
		opts = append(opts, task.WithEventPublisher(publisher))
	}

	tasks := task.New(coreStore, threads, prompts, episodes, reviews, engine, v, opts...)
	episodeSvc := episode.New(episodes, reviews, nil)
	benchmarks := benchmark.New(coreStore, tasks, nil, nil)
	annotations := annotation.New(episodes, reviews, nil, nil)

	noAuth := getEnv("TASK_SERVER_NO_AUTH", "") != ""
	server := api.NewServer(dbClient, tasks, episodeSvc, benchmarks, annotations, engine, noAuth)

	port := getEnv("TASK_SERVER_PORT", "8080")
	addr := ":" + port

	errCh := make(chan error, 1)
	go func() {
		log.Printf("taskara listening on %s", addr)
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log.Fatalf("server error: %v", err)
	case <-sig:
		log.Println("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("error during shutdown: %v", err)
	}
}
