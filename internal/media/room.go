package media

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

// DataPacket is one in-band message received over the room's data channel.
type DataPacket struct {
	Participant string
	Payload     json.RawMessage
}

// frame is the wire envelope exchanged with the media server. The transport
// beyond this envelope is the server's concern.
type frame struct {
	Type        string          `json:"type"`
	Participant string          `json:"participant,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Audio       string          `json:"audio,omitempty"`
}

// Room is a websocket connection to one media room, carrying data packets
// and raw audio frames. The caller owns the lifecycle: Join then Close.
type Room struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once

	data  chan DataPacket
	audio chan []byte
	done  chan struct{}
}

// Join connects to the room endpoint with a signed participant token.
func Join(ctx context.Context, serverURL, accessToken string) (*Room, error) {
	if strings.TrimSpace(serverURL) == "" {
		return nil, fmt.Errorf("media server URL is not configured")
	}
	u, err := url.Parse(strings.TrimRight(serverURL, "/") + "/rtc")
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("access_token", accessToken)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), http.Header{})
	if err != nil {
		return nil, fmt.Errorf("dial room websocket: %w", err)
	}

	r := &Room{
		conn:  conn,
		data:  make(chan DataPacket, 64),
		audio: make(chan []byte, 256),
		done:  make(chan struct{}),
	}
	go r.readLoop()
	return r, nil
}

func (r *Room) readLoop() {
	defer r.close()
	for {
		_, raw, err := r.conn.ReadMessage()
		if err != nil {
			return
		}
		var f frame
		if err := json.Unmarshal(raw, &f); err != nil {
			continue
		}
		switch f.Type {
		case "data":
			select {
			case r.data <- DataPacket{Participant: f.Participant, Payload: f.Payload}:
			default:
				// Slow consumer; drop rather than stall the socket.
			}
		case "audio":
			pcm, err := base64.StdEncoding.DecodeString(f.Audio)
			if err != nil {
				continue
			}
			select {
			case r.audio <- pcm:
			default:
			}
		}
	}
}

// PublishData sends one JSON message over the room's data channel.
func (r *Room) PublishData(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal data packet: %w", err)
	}
	return r.writeJSON(frame{Type: "data", Payload: payload})
}

// PublishAudio sends one raw audio frame to the room.
func (r *Room) PublishAudio(pcm []byte) error {
	return r.writeJSON(frame{Type: "audio", Audio: base64.StdEncoding.EncodeToString(pcm)})
}

func (r *Room) writeJSON(f frame) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	return r.conn.WriteJSON(f)
}

// Data returns inbound data-channel packets.
func (r *Room) Data() <-chan DataPacket { return r.data }

// Audio returns inbound audio frames.
func (r *Room) Audio() <-chan []byte { return r.audio }

// Done is closed once the connection is gone.
func (r *Room) Done() <-chan struct{} { return r.done }

func (r *Room) Close() error {
	r.close()
	return nil
}

func (r *Room) close() {
	r.closeOnce.Do(func() {
		_ = r.conn.Close()
		close(r.done)
	})
}
