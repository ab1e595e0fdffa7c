package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"couponhub/internal/catalog"
	"couponhub/internal/clipped"
	"couponhub/internal/events"
	"couponhub/internal/provider"
	"couponhub/internal/session"
	"couponhub/pkg/kvstore"
	"couponhub/pkg/utils"
)

func main() {
	configPath := flag.String("config", os.Getenv("COUPONHUB_CONFIG"), "path to yaml config")
	flag.Parse()

	cfg, err := utils.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	var kv *kvstore.Store
	if cfg.Storage.Path != "" {
		kv, err = kvstore.Open(cfg.Storage.Path)
		if err != nil {
			log.Fatalf("storage: %v", err)
		}
	} else {
		log.Println("no storage path configured; identity will not survive restarts")
		kv = kvstore.NewMemory()
	}

	router := gin.Default()

	// Optional: avoid “trusted all proxies” warning
	_ = router.SetTrustedProxies([]string{"127.0.0.1"})

	// Start the event fan-out first (so you notice binding errors early)
	hub := events.NewHub()
	router.GET("/ws", events.WSHandler(hub))
	tcpSrv := events.NewServer(cfg.Server.EventAddr, hub)
	bus := events.NewBus(hub)

	transport := provider.NewTransport(cfg.Provider.APIBaseURL, cfg.Provider.APIKey, time.Duration(cfg.Provider.Timeout))
	sessions := session.NewManager(transport, kv, bus, cfg.Provider)

	gateway, err := provider.New(cfg.Provider, sessions, bus)
	if err != nil {
		log.Fatalf("provider: %v", err)
	}

	loader := catalog.NewLoader(gateway, bus)
	catalog.NewHandler(loader).RegisterRoutes(router.Group("/catalog"))

	cache := clipped.NewCache(gateway, bus, clipped.SweepPolicy(cfg.Sweep.Policy))
	loader.OnPage(cache.SyncPage)
	sweeper := clipped.NewSweeper(cache)
	if err := sweeper.Start(cfg.Sweep.Schedule); err != nil {
		log.Fatalf("sweeper: %v", err)
	}
	defer sweeper.Stop()

	tokenSvc := session.TokenService{
		Secret:   []byte(cfg.Auth.JWTSecret),
		Issuer:   cfg.Auth.JWTIssuer,
		Duration: time.Duration(cfg.Auth.JWTDuration),
	}
	session.NewHandler(sessions, tokenSvc).RegisterRoutes(router.Group("/auth"))

	protected := router.Group("/coupons")
	protected.Use(session.AuthMiddleware(tokenSvc))
	clipped.NewHandler(cache, sessions).RegisterRoutes(protected)

	router.GET("/health", func(c *gin.Context) {
		stats := hub.Stats()
		c.JSON(http.StatusOK, gin.H{
			"status":      "ok",
			"mode":        cfg.Provider.Mode,
			"phase":       sessions.Phase(),
			"clipped":     cache.State(),
			"tcp_clients": stats.TCPClients,
			"ws_clients":  stats.WSClients,
		})
	})

	// warm the clipped set when tokens survived a restart
	if sessions.HasTokens() {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			cache.Load(ctx)
		}()
	}

	httpSrv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: router,
	}

	errCh := make(chan error, 2)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := tcpSrv.Run(); err != nil {
			errCh <- err
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Printf("HTTP API server listening on %s", cfg.Server.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("shutdown signal received: %s", sig)
	case err := <-errCh:
		log.Printf("server error: %v", err)
	}

	log.Println("shutting down servers")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown error: %v", err)
	}
	if err := tcpSrv.Close(); err != nil {
		log.Printf("tcp shutdown error: %v", err)
	}

	wg.Wait()
	log.Println("servers stopped")
}
