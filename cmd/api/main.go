package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/crypto-canvas/backend/internal/config"
	"github.com/zhouzirui/crypto-canvas/backend/internal/handler"
	"github.com/zhouzirui/crypto-canvas/backend/internal/model/market"
	"github.com/zhouzirui/crypto-canvas/backend/internal/service/ai"
	"github.com/zhouzirui/crypto-canvas/backend/internal/service/assistant"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

// run 组装依赖并阻塞到服务退出，返回前执行全部清理。
func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	marketStore := market.NewMemoryStore(market.Seed())
	policy := buildPolicy(ctx, cfg, marketStore)

	assistantSvc := assistant.NewService(policy, assistant.Options{
		Delay:         cfg.Assistant.ResponseDelay,
		Timeout:       cfg.Assistant.ResponderTimeout,
		RetryAttempts: cfg.Assistant.RetryAttempts,
		RetryBackoff:  cfg.Assistant.RetryBackoff,
	})
	defer assistantSvc.Close()

	router := handler.NewRouter(marketStore, assistantSvc, cfg.Server.StreamHeartbeat)

	return startServer(ctx, cfg.Server, router)
}

// buildPolicy 根据配置选择助手回复策略，LLM 不可用时回退到关键词策略。
func buildPolicy(ctx context.Context, cfg *config.Config, store market.Store) assistant.ResponsePolicy {
	canned := assistant.NewCannedPolicy(nil)

	switch cfg.Assistant.Policy {
	case config.PolicyRandom:
		log.Println("assistant policy: random canned replies")
		return canned
	case config.PolicyLLM:
		if !cfg.AI.Enabled() {
			log.Println("Ark 凭证未配置，回退到关键词回复策略")
			break
		}
		llmPolicy, err := ai.NewPolicy(ctx, store, cfg.AI)
		if err != nil {
			log.Printf("warning: failed to initialize AI policy: %v", err)
			log.Println("continuing with keyword replies - 请检查 Ark 模型相关环境变量")
			break
		}
		log.Println("AI policy initialized successfully")
		return llmPolicy
	}

	log.Println("assistant policy: keyword replies")
	return assistant.NewKeywordPolicy(canned)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) error {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("CryptoCanvas backend listening on %s", addr)
	return runServer(ctx, srv)
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
