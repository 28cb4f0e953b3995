package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("test-key"))
	require.NoError(t, err)
	return signed
}

func TestExtractTokenFromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer abc.def.ghi")

	token, err := ExtractTokenFromRequest(req)
	assert.NoError(t, err)
	assert.Equal(t, "abc.def.ghi", token)

	// Missing header
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	_, err = ExtractTokenFromRequest(req)
	assert.Error(t, err)

	// Wrong scheme
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Basic abc")
	_, err = ExtractTokenFromRequest(req)
	assert.Error(t, err)
}

func TestExtractUserIDFromJWT(t *testing.T) {
	token := signedToken(t, jwt.MapClaims{"sub": "user-42", "iss": "https://auth.turistar.com.br/realms/turistar"})

	sub, err := ExtractUserIDFromJWT(token)
	assert.NoError(t, err)
	assert.Equal(t, "user-42", sub)
}

func TestExtractUserIDFromJWTErrors(t *testing.T) {
	// No subject claim
	token := signedToken(t, jwt.MapClaims{"iss": "https://auth.turistar.com.br/realms/turistar"})
	_, err := ExtractUserIDFromJWT(token)
	assert.Error(t, err)

	// Empty subject
	token = signedToken(t, jwt.MapClaims{"sub": ""})
	_, err = ExtractUserIDFromJWT(token)
	assert.Error(t, err)

	// Not a JWT at all
	_, err = ExtractUserIDFromJWT("garbage")
	assert.Error(t, err)

	_, err = ExtractUserIDFromJWT("")
	assert.Error(t, err)
}
