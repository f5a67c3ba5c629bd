package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/voxgate/voxgate/internal/history"
	"github.com/voxgate/voxgate/internal/media"
	"github.com/voxgate/voxgate/internal/protocol"
)

type fakeStream struct{ audio [][]byte }

func (f *fakeStream) SendAudio(_ context.Context, pcm []byte) error {
	f.audio = append(f.audio, pcm)
	return nil
}
func (f *fakeStream) Close() error { return nil }

type fakeSTT struct {
	stream *fakeStream
	events chan TranscriptEvent
}

func (f *fakeSTT) Start(context.Context) (STTStream, <-chan TranscriptEvent, error) {
	return f.stream, f.events, nil
}

type fakeLLM struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeLLM) Reply(_ context.Context, _ string, _ []ChatTurn, userText string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, userText)
	return "reply to: " + userText, nil
}

type fakeTTS struct{}

func (fakeTTS) Synthesize(_ context.Context, text string) ([]byte, error) {
	return []byte("pcm:" + text), nil
}

type capturePublisher struct {
	mu     sync.Mutex
	events []any
}

func (c *capturePublisher) Publish(event any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *capturePublisher) snapshot() []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]any(nil), c.events...)
}

type fakeRoom struct {
	mu    sync.Mutex
	sent  []any
	audio [][]byte

	dataCh  chan media.DataPacket
	audioCh chan []byte
	done    chan struct{}
}

func newFakeRoom() *fakeRoom {
	return &fakeRoom{
		dataCh:  make(chan media.DataPacket, 8),
		audioCh: make(chan []byte, 8),
		done:    make(chan struct{}),
	}
}

func (r *fakeRoom) PublishData(v any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, v)
	return nil
}

func (r *fakeRoom) PublishAudio(pcm []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audio = append(r.audio, pcm)
	return nil
}

func (r *fakeRoom) Data() <-chan media.DataPacket { return r.dataCh }
func (r *fakeRoom) Audio() <-chan []byte          { return r.audioCh }
func (r *fakeRoom) Done() <-chan struct{}         { return r.done }
func (r *fakeRoom) Close() error                  { return nil }

func (r *fakeRoom) sentData() []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]any(nil), r.sent...)
}

func startPipeline(t *testing.T) (*Pipeline, *fakeRoom, *fakeSTT, *fakeLLM, *capturePublisher, func()) {
	t.Helper()
	stt := &fakeSTT{stream: &fakeStream{}, events: make(chan TranscriptEvent, 8)}
	llm := &fakeLLM{}
	pub := &capturePublisher{}
	room := newFakeRoom()
	store := history.NewInMemoryStore()

	p := NewPipeline(Options{
		RoomName:      "voice_room_test",
		UserIdentity:  "user_ab12cd34",
		Instructions:  "You are a helpful voice AI assistant.",
		VAD:           true,
		TurnDetection: "multilingual",
	}, stt, llm, fakeTTS{}, pub, store)

	ctx, cancel := context.WithCancel(context.Background())
	doneRun := make(chan struct{})
	go func() {
		defer close(doneRun)
		_ = p.Run(ctx, room)
	}()
	cleanup := func() {
		cancel()
		<-doneRun
	}
	return p, room, stt, llm, pub, cleanup
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within deadline")
}

func TestPipelineGreetsOnStart(t *testing.T) {
	_, _, _, llm, pub, cleanup := startPipeline(t)
	defer cleanup()

	waitFor(t, func() bool {
		for _, e := range pub.snapshot() {
			if r, ok := e.(protocol.AgentReady); ok && r.Type == protocol.TypeAgentReady {
				return true
			}
		}
		return false
	})

	llm.mu.Lock()
	defer llm.mu.Unlock()
	if len(llm.calls) == 0 || llm.calls[0] != defaultGreeting {
		t.Fatalf("greeting call = %v", llm.calls)
	}
}

func TestPipelineRepliesToFinalTranscript(t *testing.T) {
	_, room, stt, _, pub, cleanup := startPipeline(t)
	defer cleanup()

	stt.events <- TranscriptEvent{Text: "partial", Final: false}
	stt.events <- TranscriptEvent{Text: "what time is it", Final: true}

	waitFor(t, func() bool {
		started, finished := false, false
		for _, e := range pub.snapshot() {
			if m, ok := e.(protocol.SpeechMarker); ok {
				switch m.Type {
				case protocol.TypeAgentSpeechStarted:
					started = true
				case protocol.TypeAgentSpeechFinished:
					finished = true
				}
			}
		}
		return started && finished
	})

	var userSeen, assistantSeen bool
	for _, e := range pub.snapshot() {
		tr, ok := e.(protocol.Transcript)
		if !ok {
			continue
		}
		if tr.Participant == "user_ab12cd34" && tr.Text == "what time is it" {
			userSeen = true
		}
		if tr.Participant == "assistant" && tr.Text == "reply to: what time is it" {
			assistantSeen = true
		}
	}
	if !userSeen || !assistantSeen {
		t.Fatalf("transcripts missing: user=%v assistant=%v", userSeen, assistantSeen)
	}

	waitFor(t, func() bool {
		room.mu.Lock()
		defer room.mu.Unlock()
		return len(room.audio) >= 2 // greeting + reply
	})
}

func TestPipelineGetStatusControl(t *testing.T) {
	_, room, _, _, _, cleanup := startPipeline(t)
	defer cleanup()

	room.dataCh <- media.DataPacket{Participant: "user_ab12cd34", Payload: json.RawMessage(`{"type":"get_status"}`)}

	waitFor(t, func() bool {
		for _, v := range room.sentData() {
			if sr, ok := v.(protocol.StatusResponse); ok && sr.Status == "active" {
				return sr.SessionData["room_name"] == "voice_room_test"
			}
		}
		return false
	})
}

func TestPipelineUpdateInstructions(t *testing.T) {
	p, room, _, _, _, cleanup := startPipeline(t)
	defer cleanup()

	room.dataCh <- media.DataPacket{Payload: json.RawMessage(`{"type":"update_instructions","instructions":"Be terse."}`)}

	waitFor(t, func() bool {
		for _, v := range room.sentData() {
			if u, ok := v.(protocol.InstructionsUpdated); ok {
				return u.Instructions == "Be terse."
			}
		}
		return false
	})
	if got := p.currentInstructions(); got != "Be terse." {
		t.Fatalf("instructions = %q", got)
	}
}

func TestPipelineIgnoresUnknownAndMalformedControl(t *testing.T) {
	_, room, stt, _, pub, cleanup := startPipeline(t)
	defer cleanup()

	room.dataCh <- media.DataPacket{Payload: json.RawMessage(`{"type":"do_something_else"}`)}
	room.dataCh <- media.DataPacket{Payload: json.RawMessage(`{broken`)}

	// Pipeline keeps serving after bad control traffic.
	stt.events <- TranscriptEvent{Text: "still alive", Final: true}
	waitFor(t, func() bool {
		for _, e := range pub.snapshot() {
			if tr, ok := e.(protocol.Transcript); ok && tr.Text == "still alive" {
				return true
			}
		}
		return false
	})
}

func TestPipelineConversationHistoryControl(t *testing.T) {
	_, room, stt, _, _, cleanup := startPipeline(t)
	defer cleanup()

	for i := 0; i < 2; i++ {
		stt.events <- TranscriptEvent{Text: fmt.Sprintf("utterance %d", i), Final: true}
	}
	waitFor(t, func() bool {
		room.mu.Lock()
		defer room.mu.Unlock()
		return len(room.audio) >= 3 // greeting + two replies
	})

	room.dataCh <- media.DataPacket{Payload: json.RawMessage(`{"type":"get_conversation_history"}`)}
	waitFor(t, func() bool {
		for _, v := range room.sentData() {
			if h, ok := v.(protocol.ConversationHistory); ok {
				return len(h.History) >= 4 // user+assistant per utterance
			}
		}
		return false
	})
}
