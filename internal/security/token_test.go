package security

import (
	"testing"
	"time"
)

func TestAccessToken_RoundTrip(t *testing.T) {
	token, err := GenerateAccessToken("secret", "a81bc81b-dead-4e5d-abff-90865d1e13b1", time.Hour)
	if err != nil {
		t.Fatalf("GenerateAccessToken failed: %v", err)
	}

	claims, err := ParseAccessToken(token, "secret")
	if err != nil {
		t.Fatalf("ParseAccessToken failed: %v", err)
	}
	if claims.UserID != "a81bc81b-dead-4e5d-abff-90865d1e13b1" {
		t.Errorf("Unexpected user id %q", claims.UserID)
	}
}

func TestAccessToken_WrongSecret(t *testing.T) {
	token, err := GenerateAccessToken("secret", "user-1", time.Hour)
	if err != nil {
		t.Fatalf("GenerateAccessToken failed: %v", err)
	}

	if _, err := ParseAccessToken(token, "other secret"); err == nil {
		t.Error("Expected an error for a token signed with a different secret")
	}
}

func TestAccessToken_Expired(t *testing.T) {
	token, err := GenerateAccessToken("secret", "user-1", -time.Minute)
	if err != nil {
		t.Fatalf("GenerateAccessToken failed: %v", err)
	}

	if _, err := ParseAccessToken(token, "secret"); err == nil {
		t.Error("Expected an error for an expired token")
	}
}

func TestAccessToken_Garbage(t *testing.T) {
	if _, err := ParseAccessToken("not-a-jwt", "secret"); err == nil {
		t.Error("Expected an error for a malformed token")
	}
}
