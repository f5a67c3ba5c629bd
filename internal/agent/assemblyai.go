package agent

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

// AssemblyAIConfig configures the realtime transcription session.
type AssemblyAIConfig struct {
	APIKey     string
	WSBaseURL  string
	SampleRate int
}

// AssemblyAISTT streams audio to AssemblyAI's realtime endpoint and emits
// partial and final transcripts.
type AssemblyAISTT struct {
	cfg AssemblyAIConfig
}

func NewAssemblyAISTT(cfg AssemblyAIConfig) *AssemblyAISTT {
	if strings.TrimSpace(cfg.WSBaseURL) == "" {
		cfg.WSBaseURL = "wss://api.assemblyai.com"
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	return &AssemblyAISTT{cfg: cfg}
}

func (p *AssemblyAISTT) Start(ctx context.Context) (STTStream, <-chan TranscriptEvent, error) {
	if strings.TrimSpace(p.cfg.APIKey) == "" {
		return nil, nil, fmt.Errorf("assemblyai: api key is not configured")
	}

	u, err := url.Parse(strings.TrimRight(p.cfg.WSBaseURL, "/") + "/v2/realtime/ws")
	if err != nil {
		return nil, nil, err
	}
	q := u.Query()
	q.Set("sample_rate", fmt.Sprintf("%d", p.cfg.SampleRate))
	u.RawQuery = q.Encode()

	headers := http.Header{}
	headers.Set("Authorization", p.cfg.APIKey)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), headers)
	if err != nil {
		return nil, nil, fmt.Errorf("dial stt websocket: %w", err)
	}

	events := make(chan TranscriptEvent, 64)
	s := &assemblySession{conn: conn, events: events}
	go s.readLoop()
	return s, events, nil
}

type assemblySession struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
	events    chan TranscriptEvent
}

func (s *assemblySession) SendAudio(_ context.Context, pcm []byte) error {
	payload := map[string]any{
		"audio_data": base64.StdEncoding.EncodeToString(pcm),
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(payload)
}

// readLoop is the sole closer of s.events: Close only tears down the
// socket, and the resulting read error unwinds the loop here.
func (s *assemblySession) readLoop() {
	defer close(s.events)
	defer s.closeSocket()
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		var raw struct {
			MessageType string `json:"message_type"`
			Text        string `json:"text"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			continue
		}
		switch raw.MessageType {
		case "PartialTranscript":
			if raw.Text != "" {
				s.emit(TranscriptEvent{Text: raw.Text})
			}
		case "FinalTranscript":
			if raw.Text != "" {
				s.emit(TranscriptEvent{Text: raw.Text, Final: true})
			}
		case "SessionBegins", "SessionTerminated":
			// control events, nothing to forward
		}
	}
}

// emit hands a transcript to the consumer without blocking. A consumer
// that stopped reading loses the backlog rather than wedging the loop.
func (s *assemblySession) emit(ev TranscriptEvent) {
	select {
	case s.events <- ev:
	default:
	}
}

func (s *assemblySession) Close() error {
	s.writeMu.Lock()
	_ = s.conn.WriteJSON(map[string]bool{"terminate_session": true})
	s.writeMu.Unlock()
	s.closeSocket()
	return nil
}

func (s *assemblySession) closeSocket() {
	s.closeOnce.Do(func() {
		_ = s.conn.Close()
	})
}
