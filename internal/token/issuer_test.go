package token

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestParticipantTokenGrants(t *testing.T) {
	iss := NewIssuer("devkey", "devsecret", time.Hour)
	signed, err := iss.ParticipantToken("user_ab12cd34", "Alice", "voice_room_ab12cd34")
	if err != nil {
		t.Fatalf("ParticipantToken() error = %v", err)
	}
	if signed == "" {
		t.Fatalf("empty token")
	}

	var claims Claims
	parsed, err := jwt.ParseWithClaims(signed, &claims, func(*jwt.Token) (any, error) {
		return []byte("devsecret"), nil
	})
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if !parsed.Valid {
		t.Fatalf("token not valid")
	}

	if claims.Subject != "user_ab12cd34" {
		t.Fatalf("subject = %q", claims.Subject)
	}
	if claims.Name != "Alice" {
		t.Fatalf("name = %q", claims.Name)
	}
	g := claims.Video
	if g.Room != "voice_room_ab12cd34" || !g.RoomJoin || !g.CanPublish || !g.CanSubscribe || !g.CanPublishData {
		t.Fatalf("unexpected grant: %+v", g)
	}

	ttl := time.Until(claims.ExpiresAt.Time)
	if ttl < 55*time.Minute || ttl > 65*time.Minute {
		t.Fatalf("expiry out of range: %v", ttl)
	}
}

func TestAdminTokenGrants(t *testing.T) {
	iss := NewIssuer("devkey", "devsecret", 0)
	signed, err := iss.AdminToken()
	if err != nil {
		t.Fatalf("AdminToken() error = %v", err)
	}

	var claims Claims
	if _, err := jwt.ParseWithClaims(signed, &claims, func(*jwt.Token) (any, error) {
		return []byte("devsecret"), nil
	}); err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if !claims.Video.RoomCreate || !claims.Video.RoomAdmin {
		t.Fatalf("unexpected grant: %+v", claims.Video)
	}
}

func TestMissingCredentials(t *testing.T) {
	iss := NewIssuer("", "", time.Hour)
	if _, err := iss.ParticipantToken("id", "name", "room"); !errors.Is(err, ErrMissingCredentials) {
		t.Fatalf("err = %v, want ErrMissingCredentials", err)
	}
}
