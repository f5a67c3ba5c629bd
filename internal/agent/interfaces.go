package agent

import (
	"context"

	"github.com/voxgate/voxgate/internal/media"
)

// TranscriptEvent is emitted by the STT stream. Final marks a committed
// utterance; the turn detector behind the provider decides when to commit.
type TranscriptEvent struct {
	Text  string
	Final bool
}

// STTStream accepts gated audio for one session.
type STTStream interface {
	SendAudio(ctx context.Context, pcm []byte) error
	Close() error
}

// STT opens a streaming speech-to-text session.
type STT interface {
	Start(ctx context.Context) (STTStream, <-chan TranscriptEvent, error)
}

// LLM produces one assistant reply from instructions and the conversation
// so far.
type LLM interface {
	Reply(ctx context.Context, instructions string, turns []ChatTurn, userText string) (string, error)
}

// ChatTurn is one prior exchange handed to the language model.
type ChatTurn struct {
	Role    string
	Content string
}

// TTS renders reply text to audio.
type TTS interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Publisher delivers pipeline events toward connected frontend clients.
type Publisher interface {
	Publish(event any)
}

// RoomConn is the media room attachment the pipeline drives. *media.Room
// satisfies it; tests substitute fakes.
type RoomConn interface {
	PublishData(v any) error
	PublishAudio(pcm []byte) error
	Data() <-chan media.DataPacket
	Audio() <-chan []byte
	Done() <-chan struct{}
	Close() error
}
