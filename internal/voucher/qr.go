package voucher

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"time"

	"ms-booking/internal/models"

	"github.com/skip2/go-qrcode"
)

// Generator produces the encrypted QR voucher attached to a booking when it
// confirms. Partners scan the voucher at the venue to validate attendance.
type Generator struct {
	secret []byte
}

func NewGenerator(secret string) *Generator {
	hashed := sha256.Sum256([]byte(secret)) // normalize to 32 bytes
	return &Generator{secret: hashed[:]}
}

type voucherClaims struct {
	BookingID string             `json:"booking_id"`
	Kind      models.BookingKind `json:"kind"`
	UserID    string             `json:"user_id"`
	AssetName string             `json:"asset_name"`
	Date      time.Time          `json:"date"`
	IssuedAt  time.Time          `json:"issued_at"`
}

// GenerateEncryptedQR builds the voucher PNG for a confirmed booking.
func (g *Generator) GenerateEncryptedQR(b models.Booking) ([]byte, error) {
	claims := voucherClaims{
		BookingID: b.BookingID,
		Kind:      b.Kind,
		UserID:    b.UserID,
		AssetName: b.AssetName,
		Date:      b.ScheduledFor,
		IssuedAt:  time.Now().UTC(),
	}

	data, err := json.Marshal(claims)
	if err != nil {
		return nil, err
	}

	encrypted, err := encryptAES(data, g.secret)
	if err != nil {
		return nil, err
	}

	return qrcode.Encode(encrypted, qrcode.Medium, 256)
}

func encryptAES(data []byte, key []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	ciphertext := make([]byte, aes.BlockSize+len(data))
	iv := ciphertext[:aes.BlockSize]

	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", err
	}

	stream := cipher.NewCFBEncrypter(block, iv)
	stream.XORKeyStream(ciphertext[aes.BlockSize:], data)

	return base64.URLEncoding.EncodeToString(ciphertext), nil
}
