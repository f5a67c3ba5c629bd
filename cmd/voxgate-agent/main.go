package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/voxgate/voxgate/internal/agent"
	"github.com/voxgate/voxgate/internal/config"
	"github.com/voxgate/voxgate/internal/history"
	"github.com/voxgate/voxgate/internal/media"
	"github.com/voxgate/voxgate/internal/token"
)

// controlPlanePublisher posts pipeline events back to the control plane,
// which fans them out to its stream subscribers. Delivery is best-effort:
// a failed post is logged and the pipeline keeps going.
type controlPlanePublisher struct {
	url    string
	client *http.Client
}

func newControlPlanePublisher(baseURL string) *controlPlanePublisher {
	return &controlPlanePublisher{
		url:    strings.TrimRight(baseURL, "/") + "/api/agent/data",
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

func (p *controlPlanePublisher) Publish(event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("publish: marshal event: %v", err)
		return
	}
	res, err := p.client.Post(p.url, "application/json", bytes.NewReader(payload))
	if err != nil {
		log.Printf("publish: %v", err)
		return
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		log.Printf("publish: control plane status %d", res.StatusCode)
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	roomName := cfg.DefaultRoomName
	if len(os.Args) > 1 && strings.TrimSpace(os.Args[1]) != "" {
		roomName = os.Args[1]
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Printf("shutdown signal received")
		cancel()
	}()

	store, err := history.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("history store init failed: %v", err)
	}
	defer store.Close()

	llm, err := agent.NewOpenAILLM(cfg.OpenAIAPIKey, cfg.LLMModel)
	if err != nil {
		log.Fatalf("llm init failed: %v", err)
	}
	stt := agent.NewAssemblyAISTT(agent.AssemblyAIConfig{APIKey: cfg.AssemblyAIAPIKey})
	tts := agent.NewRimeTTS(agent.RimeConfig{APIKey: cfg.RimeAPIKey})

	issuer := token.NewIssuer(cfg.LiveKitAPIKey, cfg.LiveKitAPISecret, cfg.TokenTTL)
	agentToken, err := issuer.ParticipantToken("agent_"+roomName, "Assistant", roomName)
	if err != nil {
		log.Fatalf("agent token: %v", err)
	}

	room, err := media.Join(ctx, cfg.LiveKitURL, agentToken)
	if err != nil {
		log.Fatalf("join room %s: %v", roomName, err)
	}
	defer room.Close()
	log.Printf("agent joined room %s", roomName)

	pipeline := agent.NewPipeline(agent.Options{
		RoomName:          roomName,
		Instructions:      "You are a helpful voice AI assistant.",
		VAD:               true,
		TurnDetection:     "multilingual",
		NoiseCancellation: "BVC",
	}, stt, llm, tts, newControlPlanePublisher(cfg.ControlPlaneURL), store)

	if err := pipeline.Run(ctx, room); err != nil {
		log.Fatalf("pipeline exited: %v", err)
	}
	log.Printf("agent stopped")
}
