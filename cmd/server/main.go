package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/redis/go-redis/v9"

	"github.com/huddleup/identity/auth"
	"github.com/huddleup/identity/authcode"
	clientsinmemory "github.com/huddleup/identity/clients/repoinmemory"
	"github.com/huddleup/identity/internal/config"
	"github.com/huddleup/identity/ratelimit"
	"github.com/huddleup/identity/replay"
	"github.com/huddleup/identity/server"
	"github.com/huddleup/identity/sessions"
	"github.com/huddleup/identity/tenants"
	tenantsinmemory "github.com/huddleup/identity/tenants/repoinmemory"
	"github.com/huddleup/identity/token"
	"github.com/huddleup/identity/token/keys"
	"github.com/huddleup/identity/users/repofake"
)

func main() {
	for {
		if err := run(); err != nil {
			log.Fatalf("Error running server: %s\n", err)
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Printf("Server stopped\n")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic: %v\n", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	displayAppname(c.GetAppName())

	authService, tenantRepo, err := buildAuthorizationService(c)
	if err != nil {
		return fmt.Errorf("buildAuthorizationService %w", err)
	}

	srv, err := server.New(c, authService, tenantRepo)
	if err != nil {
		return fmt.Errorf("server.New %w", err)
	}

	httpServer := &http.Server{Addr: c.GetPort(), Handler: srv}
	go listenAndServe(httpServer)
	waitForStopSignal()
	returnError = shutdown(httpServer)
	return returnError
}

func buildAuthorizationService(c config.Config) (*auth.AuthorizationService, tenants.Repo, error) {
	tenantRepo := tenantsinmemory.New()
	clientRepo := clientsinmemory.New()
	userRepo := repofake.NewFakeUserRepo()

	keyring := keys.NewKeyring()
	if err := registerSystemTenant(c, tenantRepo, keyring); err != nil {
		return nil, nil, fmt.Errorf("registerSystemTenant %w", err)
	}

	codec, err := authcode.NewCodec(tenantRepo, keyring)
	if err != nil {
		return nil, nil, fmt.Errorf("authcode.NewCodec %w", err)
	}

	tokenManager, err := token.New(tenantRepo, keyring,
		token.WithTokenExpiry(c.GetDefaultAccessTokenExpiry(), c.GetDefaultIDTokenExpiry()))
	if err != nil {
		return nil, nil, fmt.Errorf("token.New %w", err)
	}

	guard, limiter := buildStores(c)

	authService, err := auth.NewAuthorizationService(
		auth.Repos{
			Users:     userRepo,
			Sessions:  sessions.NewInMemoryStore(),
			Bootstrap: sessions.NewInMemoryBootstrapStore(),
			Clients:   clientRepo,
			Tenants:   tenantRepo,
		},
		codec,
		tokenManager,
		guard,
		limiter,
		keyring,
		auth.WithSessionTTL(c.GetMaxSessionAge()),
		auth.WithBootstrapTTL(c.GetBootstrapTokenLifetime()),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("auth.NewAuthorizationService %w", err)
	}
	return authService, tenantRepo, nil
}

// buildStores picks Redis-backed replay and rate-limit stores when REDIS_ADDR
// is set, in-process stores otherwise. A single instance is correct with the
// in-process stores; multiple instances need Redis.
func buildStores(c config.Config) (replay.Guard, ratelimit.Limiter) {
	redisAddr := c.GetRedisAddr()
	if redisAddr == "" {
		return replay.NewMemoryGuard(), ratelimit.NewMemoryLimiter(c.GetTokenRateLimit(), c.GetTokenRateWindow())
	}
	client := redis.NewClient(&redis.Options{Addr: redisAddr})
	return replay.NewRedisGuard(client, "authz:"),
		ratelimit.NewRedisLimiter(client, "authz:", c.GetTokenRateLimit(), c.GetTokenRateWindow())
}

func registerSystemTenant(c config.Config, tenantRepo tenants.Repo, keyring *keys.Keyring) error {
	tenantID := c.GetSystemTenantID()
	keyPair, err := keys.GenerateRSAKeyPair(tenantID+"-key-1", 2048)
	if err != nil {
		return fmt.Errorf("keys.GenerateRSAKeyPair %w", err)
	}
	keyring.Register(tenantID, keys.NewKeyPairSigner(keyPair))

	return tenantRepo.Upsert(&tenants.Tenant{
		ID:       tenantID,
		Name:     c.GetAppName(),
		Domain:   c.GetBaseURL(),
		Issuer:   c.GetBaseURL(),
		Audience: c.GetBaseURL(),
		KeyID:    keyPair.KeyID,
	})
}

func listenAndServe(server *http.Server) error {
	log.Printf("Server listening on %s\n", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
