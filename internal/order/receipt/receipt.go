package receipt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"time"

	"github.com/skip2/go-qrcode"

	"ms-docservices/internal/models"
	"ms-docservices/internal/utils"
)

// Payload is what a scanned receipt decrypts to.
type Payload struct {
	ReceiptID string    `json:"receipt_id"`
	OrderID   string    `json:"order_id"`
	ServiceID string    `json:"service_id"`
	Amount    int64     `json:"amount"`
	PaidAt    time.Time `json:"paid_at"`
}

// Generator produces encrypted QR payment receipts for completed payments.
type Generator struct {
	secret []byte
}

func NewGenerator(secret string) *Generator {
	hashed := sha256.Sum256([]byte(secret)) // normalize to 32 bytes
	return &Generator{secret: hashed[:]}
}

// GenerateQR encodes an encrypted receipt payload for the order as a PNG QR
// code. The order must already be paid; callers enforce that.
func (g *Generator) GenerateQR(order models.Order) ([]byte, error) {
	payload := Payload{
		ReceiptID: utils.GenerateReceiptID(order.ID),
		OrderID:   order.ID,
		ServiceID: order.ServiceID,
		Amount:    order.TotalAmount,
		PaidAt:    order.UpdatedAt,
	}

	data, err := json.Marshal(payload)
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
