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

	"github.com/voxgate/voxgate/internal/agent"
	"github.com/voxgate/voxgate/internal/config"
	"github.com/voxgate/voxgate/internal/history"
	"github.com/voxgate/voxgate/internal/httpapi"
	"github.com/voxgate/voxgate/internal/media"
	"github.com/voxgate/voxgate/internal/observability"
	"github.com/voxgate/voxgate/internal/relay"
	"github.com/voxgate/voxgate/internal/roomapi"
	"github.com/voxgate/voxgate/internal/rooms"
	"github.com/voxgate/voxgate/internal/supervisor"
	"github.com/voxgate/voxgate/internal/token"
)

// hubPublisher forwards pipeline events to connected stream clients.
type hubPublisher struct {
	hub     *relay.Hub
	metrics *observability.Metrics
}

func (p hubPublisher) Publish(event any) {
	_, dropped := p.hub.Publish(event)
	p.metrics.RelayEvents.WithLabelValues("published").Inc()
	if dropped > 0 {
		p.metrics.RelayEvents.WithLabelValues("dropped_subscriber").Add(float64(dropped))
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	store, err := history.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("history store init failed: %v", err)
	}
	defer store.Close()

	issuer := token.NewIssuer(cfg.LiveKitAPIKey, cfg.LiveKitAPISecret, cfg.TokenTTL)
	roomService := roomapi.NewClient(cfg.LiveKitURL, issuer)
	agentProc := supervisor.New(cfg.AgentCommand, cfg.AgentSettleDelay, cfg.AgentStopTimeout)
	hub := relay.NewHub(cfg.SubscriberBuffer)
	publisher := hubPublisher{hub: hub, metrics: metrics}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()

	runWorker := func(wctx context.Context, roomName, userIdentity string) error {
		stt := agent.NewAssemblyAISTT(agent.AssemblyAIConfig{APIKey: cfg.AssemblyAIAPIKey})
		llm, err := agent.NewOpenAILLM(cfg.OpenAIAPIKey, cfg.LLMModel)
		if err != nil {
			return err
		}
		tts := agent.NewRimeTTS(agent.RimeConfig{APIKey: cfg.RimeAPIKey})

		agentToken, err := issuer.ParticipantToken("agent_"+roomName, "Assistant", roomName)
		if err != nil {
			return fmt.Errorf("agent token: %w", err)
		}
		room, err := media.Join(wctx, cfg.LiveKitURL, agentToken)
		if err != nil {
			return fmt.Errorf("join room %s: %w", roomName, err)
		}
		defer room.Close()

		pipeline := agent.NewPipeline(agent.Options{
			RoomName:          roomName,
			UserIdentity:      userIdentity,
			Instructions:      "You are a helpful voice AI assistant.",
			VAD:               true,
			TurnDetection:     "multilingual",
			NoiseCancellation: "BVC",
		}, stt, llm, tts, publisher, store)
		return pipeline.Run(wctx, room)
	}

	sessions := rooms.NewManager(runCtx, roomService, issuer, runWorker, cfg.LiveKitURL)
	sessions.SetRoomServiceErrorHook(func(operation string) {
		metrics.RoomServiceErrors.WithLabelValues(operation).Inc()
	})

	api := httpapi.New(cfg, agentProc, sessions, hub, metrics)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	sessions.Shutdown(shutdownCtx)
	if agentProc.Stop() == supervisor.OutcomeStopped {
		log.Printf("agent process stopped")
	}
	runCancel()
	log.Printf("shutdown complete")
}
