package mercadopago_test

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"

	"ms-booking/internal/payment/mercadopago"

	"github.com/stretchr/testify/assert"
)

func signManifest(secret, dataID, requestID, ts string) string {
	manifest := fmt.Sprintf("id:%s;request-id:%s;ts:%s;", dataID, requestID, ts)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(manifest))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignatureValid(t *testing.T) {
	secret := "webhook-secret"
	sig := signManifest(secret, "12345", "req-abc", "1700000000")
	header := fmt.Sprintf("ts=1700000000,v1=%s", sig)

	err := mercadopago.VerifySignature(secret, header, "req-abc", "12345")
	assert.NoError(t, err)
}

func TestVerifySignatureLowercasesDataID(t *testing.T) {
	// The provider computes the manifest over the lowercased data id
	secret := "webhook-secret"
	sig := signManifest(secret, "abc123", "req-abc", "1700000000")
	header := fmt.Sprintf("ts=1700000000,v1=%s", sig)

	err := mercadopago.VerifySignature(secret, header, "req-abc", "ABC123")
	assert.NoError(t, err)
}

func TestVerifySignatureTampered(t *testing.T) {
	secret := "webhook-secret"
	sig := signManifest(secret, "12345", "req-abc", "1700000000")
	header := fmt.Sprintf("ts=1700000000,v1=%s", sig)

	// Different payment id than the one signed
	err := mercadopago.VerifySignature(secret, header, "req-abc", "99999")
	assert.ErrorIs(t, err, mercadopago.ErrBadSignature)

	// Different secret
	err = mercadopago.VerifySignature("wrong-secret", header, "req-abc", "12345")
	assert.ErrorIs(t, err, mercadopago.ErrBadSignature)

	// Different timestamp than the one signed
	header = fmt.Sprintf("ts=1700009999,v1=%s", sig)
	err = mercadopago.VerifySignature(secret, header, "req-abc", "12345")
	assert.ErrorIs(t, err, mercadopago.ErrBadSignature)
}

func TestVerifySignatureMissingHeader(t *testing.T) {
	err := mercadopago.VerifySignature("secret", "", "req-abc", "12345")
	assert.ErrorIs(t, err, mercadopago.ErrMissingSignature)
}

func TestVerifySignatureMalformedHeader(t *testing.T) {
	err := mercadopago.VerifySignature("secret", "garbage", "req-abc", "12345")
	assert.ErrorIs(t, err, mercadopago.ErrBadSignature)

	err = mercadopago.VerifySignature("secret", "ts=1700000000", "req-abc", "12345")
	assert.ErrorIs(t, err, mercadopago.ErrBadSignature)

	err = mercadopago.VerifySignature("secret", "v1=abcdef", "req-abc", "12345")
	assert.ErrorIs(t, err, mercadopago.ErrBadSignature)
}
