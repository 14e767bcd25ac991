package jwt

import (
	"strings"
	"testing"
)

func TestGenerateAndValidate(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	token, err := GenerateJWT(42, "asha@example.com", "user")
	if err != nil {
		t.Fatalf("GenerateJWT: %v", err)
	}
	userId, email, role, err := ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if userId != 42 || email != "asha@example.com" || role != "user" {
		t.Errorf("claims = %d/%q/%q", userId, email, role)
	}
}

func TestValidateTamperedToken(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	token, err := GenerateJWT(42, "asha@example.com", "user")
	if err != nil {
		t.Fatalf("GenerateJWT: %v", err)
	}
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("unexpected token shape: %q", token)
	}
	tampered := parts[0] + "." + parts[1] + "." + "AAAA" + parts[2][4:]
	if _, _, _, err := ValidateToken(tampered); err == nil {
		t.Error("tampered signature should not validate")
	}
}

func TestValidateWrongSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	token, err := GenerateJWT(42, "asha@example.com", "admin")
	if err != nil {
		t.Fatalf("GenerateJWT: %v", err)
	}

	t.Setenv("JWT_SECRET", "other-secret")
	if _, _, _, err := ValidateToken(token); err == nil {
		t.Error("token signed with another secret should not validate")
	}
}
