package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/groupbuy-backend/pkg/config"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{Secret: "secret", Issuer: "groupbuy", ExpirationMinutes: 30}
}

func TestMintAndParseAccessToken(t *testing.T) {
	cfg := testJWTConfig()
	now := time.Now().UTC()
	actor := Actor{UserID: uuid.New(), OrganizationID: uuid.New()}

	token, err := MintAccessToken(cfg, now, actor)
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}

	claims, err := ParseAccessToken(cfg, token)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}
	if claims.Actor() != actor {
		t.Fatalf("expected actor %+v, got %+v", actor, claims.Actor())
	}
	if claims.Issuer != cfg.Issuer {
		t.Fatalf("expected issuer %s, got %s", cfg.Issuer, claims.Issuer)
	}

	exp := now.Add(30 * time.Minute)
	diff := claims.ExpiresAt.Sub(exp)
	if diff < 0 {
		diff = -diff
	}
	if diff >= time.Second {
		t.Fatalf("expected exp roughly %v, got %v", exp, claims.ExpiresAt.UTC())
	}
}

func TestParseAccessTokenInvalidSignature(t *testing.T) {
	cfg := testJWTConfig()
	token, err := MintAccessToken(cfg, time.Now(), Actor{UserID: uuid.New(), OrganizationID: uuid.New()})
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}
	if _, err := ParseAccessToken(cfg, token+"x"); err == nil {
		t.Fatal("expected invalid signature error")
	}
}

func TestParseAccessTokenExpired(t *testing.T) {
	cfg := testJWTConfig()
	token, err := MintAccessToken(cfg, time.Now().Add(-time.Hour), Actor{UserID: uuid.New(), OrganizationID: uuid.New()})
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}
	_, err = ParseAccessToken(cfg, token)
	if err == nil || !strings.Contains(err.Error(), "expired") {
		t.Fatalf("expected expiration error, got %v", err)
	}
}

func TestMintAccessTokenRequiresOrganization(t *testing.T) {
	if _, err := MintAccessToken(testJWTConfig(), time.Now(), Actor{UserID: uuid.New()}); err == nil {
		t.Fatal("expected missing organization error")
	}
}

func TestActorOwns(t *testing.T) {
	org := uuid.New()
	actor := Actor{UserID: uuid.New(), OrganizationID: org}
	if !actor.Owns(org) {
		t.Fatal("expected actor to own its organization")
	}
	if actor.Owns(uuid.New()) {
		t.Fatal("expected actor not to own another organization")
	}
	if (Actor{}).Owns(uuid.Nil) {
		t.Fatal("empty actor must not own the nil organization")
	}
}
