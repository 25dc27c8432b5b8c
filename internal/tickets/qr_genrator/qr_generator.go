package qr

import (
	"encoding/base64"
	"errors"

	"github.com/skip2/go-qrcode"
)

const defaultSize = 256

type QRGenerator struct {
	size int
}

func NewQRGenerator(size int) *QRGenerator {
	if size <= 0 {
		size = defaultSize
	}
	return &QRGenerator{size: size}
}

// Generate encodes the scan token into a PNG. The token is the order's
// qr_code value and is what the door scanner reads back.
func (q *QRGenerator) Generate(token string) ([]byte, error) {
	if token == "" {
		return nil, errors.New("empty qr token")
	}
	return qrcode.Encode(token, qrcode.Medium, q.size)
}

// DataURI renders the PNG inline for HTML email bodies.
func (q *QRGenerator) DataURI(token string) (string, []byte, error) {
	png, err := q.Generate(token)
	if err != nil {
		return "", nil, err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), png, nil
}
