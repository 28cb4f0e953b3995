package mercadopago

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMissingSignature = errors.New("missing x-signature header")
	ErrBadSignature     = errors.New("webhook signature verification failed")
)

// VerifySignature checks the x-signature header Mercado Pago sends with every
// webhook delivery. The header carries "ts=<unix>,v1=<hex hmac>" and the HMAC
// is computed over the manifest "id:<dataID>;request-id:<requestID>;ts:<ts>;"
// with the webhook secret. Verification happens before any ledger lookup.
func VerifySignature(secret, signatureHeader, requestID, dataID string) error {
	if signatureHeader == "" {
		return ErrMissingSignature
	}

	var ts, v1 string
	for _, part := range strings.Split(signatureHeader, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "ts":
			ts = kv[1]
		case "v1":
			v1 = kv[1]
		}
	}
	if ts == "" || v1 == "" {
		return fmt.Errorf("%w: malformed header", ErrBadSignature)
	}

	manifest := fmt.Sprintf("id:%s;request-id:%s;ts:%s;", strings.ToLower(dataID), requestID, ts)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(manifest))
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(v1)) {
		return ErrBadSignature
	}
	return nil
}
