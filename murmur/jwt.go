package murmur

import (
	"errors"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
)

// The identity carried by a session token. The backend signs and verifies the
// token; on the client it is parsed unverified to surface the principal and
// username without a round trip.
type Session struct {
	Token     string
	Principal Principal
	Username  string
	ExpiresAt time.Time
}

func (self *Session) Expired() bool {
	if self.ExpiresAt.IsZero() {
		return false
	}
	return self.ExpiresAt.Before(time.Now())
}

func ParseSessionToken(token string) (*Session, error) {
	parser := gojwt.NewParser()
	parsed, _, err := parser.ParseUnverified(token, gojwt.MapClaims{})
	if err != nil {
		return nil, err
	}

	claims := parsed.Claims.(gojwt.MapClaims)

	session := &Session{
		Token: token,
	}

	if sub, ok := claims["sub"]; ok {
		if subStr, ok := sub.(string); ok {
			if principal, err := ParsePrincipal(subStr); err == nil {
				session.Principal = principal
			}
		}
	}
	if username, ok := claims["username"]; ok {
		if usernameStr, ok := username.(string); ok {
			session.Username = usernameStr
		}
	}
	if exp, ok := claims["exp"]; ok {
		if expFloat, ok := exp.(float64); ok {
			session.ExpiresAt = time.Unix(int64(expFloat), 0)
		}
	}

	if session.Principal == "" {
		return nil, errors.New("session token has no subject")
	}

	return session, nil
}
