// Command devserver runs the in-memory chat API and socket for local work.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hemeroteca/internal/cache"
	"hemeroteca/internal/devserver"
	"hemeroteca/internal/observability"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:8375", "Listen address")
	users := flag.Int("users", 4, "Number of seeded users")
	history := flag.Int("history", 45, "Messages in the seeded direct conversation")
	redisAddr := flag.String("redis", "", "Redis address for socket tickets (in-memory when empty)")
	secret := flag.String("secret", "dev-secret-change-me", "JWT signing secret")
	flag.Parse()

	observability.SetupLogger("development", "info")

	cfg := devserver.Config{JWTSecret: *secret}
	if *redisAddr != "" {
		cfg.Redis = cache.InitRedis(*redisAddr)
	}
	srv := devserver.New(cfg)
	seed := srv.Seed(*users, *history)

	for _, u := range seed.Users {
		tok, err := srv.Token(u.ID)
		if err != nil {
			log.Fatalf("Failed to sign token: %v", err)
		}
		log.Printf("user %s (%s): %s", u.ID, u.Username, tok)
	}
	log.Printf("direct conversation %s, group %s (%q)", seed.Direct.ID, seed.Group.ID, seed.Group.Name)

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	}()

	if err := srv.Listen(*addr); err != nil {
		log.Fatal(err)
	}
}
