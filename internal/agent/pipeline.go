package agent

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/voxgate/voxgate/internal/history"
	"github.com/voxgate/voxgate/internal/protocol"
)

// Options fixes the pipeline wiring for one room. VAD, turn detection and
// noise cancellation are opaque capabilities selected by name; they run
// behind the providers, not here.
type Options struct {
	RoomName          string
	UserIdentity      string
	Instructions      string
	Greeting          string
	VAD               bool
	TurnDetection     string
	NoiseCancellation string
	HistoryLimit      int
}

const defaultGreeting = "Greet the user and offer your assistance."

// Pipeline wires one media room to the fixed chain of external
// capabilities: gated audio in, transcripts through the language model,
// synthesized speech back out. Events flow to the publisher; small JSON
// control messages arrive over the room's data channel.
type Pipeline struct {
	opts      Options
	stt       STT
	llm       LLM
	tts       TTS
	publisher Publisher
	store     history.Store

	mu           sync.Mutex
	instructions string
}

func NewPipeline(opts Options, stt STT, llm LLM, tts TTS, publisher Publisher, store history.Store) *Pipeline {
	if opts.Greeting == "" {
		opts.Greeting = defaultGreeting
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 50
	}
	if opts.UserIdentity == "" {
		opts.UserIdentity = "user"
	}
	return &Pipeline{
		opts:         opts,
		stt:          stt,
		llm:          llm,
		tts:          tts,
		publisher:    publisher,
		store:        store,
		instructions: opts.Instructions,
	}
}

// Run drives the session until the context is cancelled or the room
// connection drops. The caller owns the room lifecycle.
func (p *Pipeline) Run(ctx context.Context, room RoomConn) error {
	stream, transcripts, err := p.stt.Start(ctx)
	if err != nil {
		return err
	}
	defer stream.Close()

	// Proactive greeting before listening.
	if err := p.respond(ctx, room, p.opts.Greeting, false); err != nil {
		log.Printf("pipeline %s: greeting failed: %v", p.opts.RoomName, err)
	}
	p.publish(protocol.AgentReady{Type: protocol.TypeAgentReady, Message: "Voice agent is ready and listening"})

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-room.Done():
			return nil
		case pcm, ok := <-room.Audio():
			if !ok {
				return nil
			}
			if err := stream.SendAudio(ctx, pcm); err != nil {
				return err
			}
		case ev, ok := <-transcripts:
			if !ok {
				return nil
			}
			if !ev.Final || ev.Text == "" {
				continue
			}
			p.handleUtterance(ctx, room, ev.Text)
		case pkt, ok := <-room.Data():
			if !ok {
				return nil
			}
			p.handleControl(ctx, room, pkt.Payload)
		}
	}
}

func (p *Pipeline) handleUtterance(ctx context.Context, room RoomConn, text string) {
	p.saveTurn(ctx, "user", text)
	p.publish(protocol.NewTranscript(text, p.opts.UserIdentity))

	if err := p.respond(ctx, room, text, true); err != nil {
		log.Printf("pipeline %s: reply failed: %v", p.opts.RoomName, err)
	}
}

// respond produces one assistant turn: language model, then synthesis, with
// speech markers around the audio.
func (p *Pipeline) respond(ctx context.Context, room RoomConn, userText string, withHistory bool) error {
	var turns []ChatTurn
	if withHistory {
		turns = p.recentTurns(ctx)
	}

	reply, err := p.llm.Reply(ctx, p.currentInstructions(), turns, userText)
	if err != nil {
		return err
	}
	if reply == "" {
		return nil
	}

	p.saveTurn(ctx, "assistant", reply)
	p.publish(protocol.NewSpeechMarker(protocol.TypeAgentSpeechStarted))
	p.publish(protocol.NewTranscript(reply, "assistant"))
	_ = room.PublishData(protocol.NewTranscript(reply, "assistant"))

	audio, err := p.tts.Synthesize(ctx, reply)
	if err != nil {
		p.publish(protocol.NewSpeechMarker(protocol.TypeAgentSpeechFinished))
		return err
	}
	if err := room.PublishAudio(audio); err != nil {
		p.publish(protocol.NewSpeechMarker(protocol.TypeAgentSpeechFinished))
		return err
	}
	p.publish(protocol.NewSpeechMarker(protocol.TypeAgentSpeechFinished))
	return nil
}

// handleControl serves small in-band requests. Unknown types are ignored;
// malformed payloads are logged and never propagated.
func (p *Pipeline) handleControl(ctx context.Context, room RoomConn, raw []byte) {
	msg, err := protocol.ParseControlMessage(raw)
	if err != nil {
		if !errors.Is(err, protocol.ErrUnknownControl) {
			log.Printf("pipeline %s: bad control message: %v", p.opts.RoomName, err)
		}
		return
	}

	switch m := msg.(type) {
	case protocol.UpdateInstructions:
		p.mu.Lock()
		p.instructions = m.Instructions
		p.mu.Unlock()
		_ = room.PublishData(protocol.InstructionsUpdated{
			Type:         protocol.TypeInstructionsUpdated,
			Instructions: m.Instructions,
		})
	case protocol.Envelope:
		switch m.Type {
		case protocol.TypeGetStatus:
			_ = room.PublishData(protocol.StatusResponse{
				Type:   protocol.TypeStatusResponse,
				Status: "active",
				SessionData: map[string]any{
					"room_name":          p.opts.RoomName,
					"vad":                p.opts.VAD,
					"turn_detection":     p.opts.TurnDetection,
					"noise_cancellation": p.opts.NoiseCancellation,
				},
			})
		case protocol.TypeGetConversationHistory:
			_ = room.PublishData(protocol.ConversationHistory{
				Type:    protocol.TypeConversationHistory,
				History: p.historyTurns(ctx),
			})
		}
	}
}

func (p *Pipeline) currentInstructions() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.instructions
}

func (p *Pipeline) saveTurn(ctx context.Context, role, content string) {
	if p.store == nil {
		return
	}
	err := p.store.SaveTurn(ctx, history.Turn{
		RoomName: p.opts.RoomName,
		Role:     role,
		Content:  content,
	})
	if err != nil {
		log.Printf("pipeline %s: save turn: %v", p.opts.RoomName, err)
	}
}

func (p *Pipeline) recentTurns(ctx context.Context) []ChatTurn {
	if p.store == nil {
		return nil
	}
	turns, err := p.store.RoomHistory(ctx, p.opts.RoomName, p.opts.HistoryLimit)
	if err != nil {
		log.Printf("pipeline %s: load history: %v", p.opts.RoomName, err)
		return nil
	}
	out := make([]ChatTurn, 0, len(turns))
	for _, t := range turns {
		out = append(out, ChatTurn{Role: t.Role, Content: t.Content})
	}
	return out
}

func (p *Pipeline) historyTurns(ctx context.Context) []protocol.HistoryTurn {
	if p.store == nil {
		return nil
	}
	turns, err := p.store.RoomHistory(ctx, p.opts.RoomName, p.opts.HistoryLimit)
	if err != nil {
		log.Printf("pipeline %s: load history: %v", p.opts.RoomName, err)
		return nil
	}
	out := make([]protocol.HistoryTurn, 0, len(turns))
	for _, t := range turns {
		out = append(out, protocol.HistoryTurn{
			Role:      t.Role,
			Content:   t.Content,
			Timestamp: float64(t.CreatedAt.UnixNano()) / 1e9,
		})
	}
	return out
}

func (p *Pipeline) publish(event any) {
	if p.publisher != nil {
		p.publisher.Publish(event)
	}
}
