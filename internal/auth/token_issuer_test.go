package auth

import (
	"testing"
	"time"
)

func TestTokenIssuerRoundTripsThroughValidator(t *testing.T) {
	issuer, err := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte(testSessionSigningSecret),
		Issuer:        testSessionIssuer,
		TokenTTL:      30 * time.Minute,
		Clock:         testClockNow,
	})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}

	signed, expiresAt, err := issuer.IssueSessionToken(SessionClaims{
		UserID:    testSessionUserID,
		UserName:  testSessionUserName,
		UserRoles: []string{"moderator"},
	})
	if err != nil {
		t.Fatalf("expected successful issuance: %v", err)
	}
	if !expiresAt.Equal(testClockNow().Add(30 * time.Minute)) {
		t.Fatalf("unexpected expiry %s", expiresAt)
	}

	claims, err := newTestValidator(t).ValidateToken(signed)
	if err != nil {
		t.Fatalf("issued token failed validation: %v", err)
	}
	if claims.Subject != testSessionUserID || !claims.HasRole("moderator") || claims.UserName != testSessionUserName {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestTokenIssuerRequiresUserID(t *testing.T) {
	issuer, err := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte(testSessionSigningSecret),
		Issuer:        testSessionIssuer,
		TokenTTL:      time.Minute,
	})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}
	if _, _, err := issuer.IssueSessionToken(SessionClaims{}); err == nil {
		t.Fatalf("expected missing subject error")
	}
}

func TestNewTokenIssuerValidatesConfig(t *testing.T) {
	cases := map[string]TokenIssuerConfig{
		"secret": {Issuer: testSessionIssuer, TokenTTL: time.Minute},
		"issuer": {SigningSecret: []byte("secret"), Issuer: " ", TokenTTL: time.Minute},
		"ttl":    {SigningSecret: []byte("secret"), Issuer: testSessionIssuer},
	}
	for name, cfg := range cases {
		if _, err := NewTokenIssuer(cfg); err == nil {
			t.Fatalf("%s: expected constructor error", name)
		}
	}
}
