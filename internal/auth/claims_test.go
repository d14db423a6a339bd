package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret-key-for-jwt-signing-0123456789"

func TestGenerateAndParseAccessToken(t *testing.T) {
	token, err := GenerateAccessToken("ops", RoleOperator, testSecret, 15*time.Minute)
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}

	claims, err := ParseToken(token, testSecret)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.Subject != "ops" {
		t.Errorf("Subject = %q, want ops", claims.Subject)
	}
	if claims.Role != RoleOperator {
		t.Errorf("Role = %q, want %q", claims.Role, RoleOperator)
	}
	if claims.ID == "" {
		t.Error("JTI should not be empty")
	}
}

func TestGenerateAccessTokenValidation(t *testing.T) {
	if _, err := GenerateAccessToken("", RoleAdmin, testSecret, 0); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("empty subject error = %v, want ErrTokenInvalid", err)
	}
	if _, err := GenerateAccessToken("ops", Role("root"), testSecret, 0); !errors.Is(err, ErrInvalidRole) {
		t.Errorf("bad role error = %v, want ErrInvalidRole", err)
	}
}

func TestGenerateAccessTokenDefaultTTL(t *testing.T) {
	token, err := GenerateAccessToken("ops", RoleViewer, testSecret, 0)
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}
	claims, err := ParseToken(token, testSecret)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}

	diff := claims.ExpiresAt.Time.Sub(time.Now().Add(defaultTTL))
	if diff < -time.Minute || diff > time.Minute {
		t.Errorf("default TTL off by %v", diff)
	}
}

func TestParseTokenRejects(t *testing.T) {
	valid, err := GenerateAccessToken("ops", RoleAdmin, testSecret, time.Minute)
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}

	sign := func(claims CustomClaims, method jwt.SigningMethod, key any) string {
		t.Helper()
		s, err := jwt.NewWithClaims(method, claims).SignedString(key)
		if err != nil {
			t.Fatalf("signing: %v", err)
		}
		return s
	}

	now := time.Now()
	expired := sign(CustomClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "ops",
			ExpiresAt: jwt.NewNumericDate(now.Add(-time.Minute)),
		},
		Role: RoleAdmin,
	}, jwt.SigningMethodHS256, []byte(testSecret))

	noRole := sign(CustomClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "ops", ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute))},
	}, jwt.SigningMethodHS256, []byte(testSecret))

	hs512 := sign(CustomClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "ops", ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute))},
		Role:             RoleAdmin,
	}, jwt.SigningMethodHS512, []byte(testSecret))

	tests := []struct {
		name   string
		token  string
		secret string
	}{
		{"empty", "", testSecret},
		{"garbage", "not-a-valid-jwt", testSecret},
		{"wrong secret", valid, "another-secret-another-secret-xx"},
		{"expired", expired, testSecret},
		{"missing role", noRole, testSecret},
		{"wrong algorithm", hs512, testSecret},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseToken(tt.token, tt.secret); !errors.Is(err, ErrTokenInvalid) {
				t.Errorf("ParseToken() error = %v, want ErrTokenInvalid", err)
			}
		})
	}
}

func TestHasPermission(t *testing.T) {
	tests := []struct {
		role Role
		perm Permission
		want bool
	}{
		{RoleViewer, PermChargerRead, true},
		{RoleViewer, PermChargerCommand, false},
		{RoleOperator, PermChargerCommand, true},
		{RoleOperator, PermSystemAdmin, false},
		{RoleAdmin, PermSystemAdmin, true},
		{Role("panel"), PermChargerRead, false},
	}
	for _, tt := range tests {
		if got := HasPermission(tt.role, tt.perm); got != tt.want {
			t.Errorf("HasPermission(%s, %s) = %v, want %v", tt.role, tt.perm, got, tt.want)
		}
	}
}
