package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTTL is the access token lifetime when none is configured.
const DefaultTTL = time.Hour

// ErrMissingCredentials is returned when the signing key pair is unset.
// There is no retry: this is a configuration error.
var ErrMissingCredentials = errors.New("token: api key and secret are required")

// VideoGrant describes the room capabilities embedded in an access token.
// Field names follow the media server's claim format.
type VideoGrant struct {
	Room           string `json:"room,omitempty"`
	RoomJoin       bool   `json:"roomJoin,omitempty"`
	RoomCreate     bool   `json:"roomCreate,omitempty"`
	RoomAdmin      bool   `json:"roomAdmin,omitempty"`
	CanPublish     bool   `json:"canPublish,omitempty"`
	CanSubscribe   bool   `json:"canSubscribe,omitempty"`
	CanPublishData bool   `json:"canPublishData,omitempty"`
}

// Claims is the JWT payload: registered claims plus the video grant and a
// display name.
type Claims struct {
	jwt.RegisteredClaims
	Name  string     `json:"name,omitempty"`
	Video VideoGrant `json:"video"`
}

// Issuer signs access tokens with the media server API key pair.
type Issuer struct {
	apiKey    string
	apiSecret string
	ttl       time.Duration
}

func NewIssuer(apiKey, apiSecret string, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Issuer{apiKey: apiKey, apiSecret: apiSecret, ttl: ttl}
}

// ParticipantToken issues a credential granting join, publish, subscribe and
// data-publish rights on one room. Tokens are immutable once issued and
// expire after the configured TTL; there is no revocation.
func (i *Issuer) ParticipantToken(identity, name, roomName string) (string, error) {
	return i.sign(identity, name, VideoGrant{
		Room:           roomName,
		RoomJoin:       true,
		CanPublish:     true,
		CanSubscribe:   true,
		CanPublishData: true,
	})
}

// AdminToken issues a short-lived credential for room service API calls.
func (i *Issuer) AdminToken() (string, error) {
	return i.sign(i.apiKey, "", VideoGrant{
		RoomCreate: true,
		RoomAdmin:  true,
	})
}

func (i *Issuer) sign(identity, name string, grant VideoGrant) (string, error) {
	if i.apiKey == "" || i.apiSecret == "" {
		return "", ErrMissingCredentials
	}

	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.apiKey,
			Subject:   identity,
			ID:        identity,
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
		Name:  name,
		Video: grant,
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString([]byte(i.apiSecret))
}
