package labeling

import qrcode "github.com/skip2/go-qrcode"

// Encoder turns a canonical payload string into a scannable image.
type Encoder interface {
	Encode(payload string) ([]byte, error)
}

const defaultQRSize = 256

// QRCodeEncoder renders payloads as PNG QR codes.
type QRCodeEncoder struct {
	size int
}

// NewQRCodeEncoder constructs the encoder. A size of zero or less falls
// back to the default edge length in pixels.
func NewQRCodeEncoder(size int) *QRCodeEncoder {
	if size <= 0 {
		size = defaultQRSize
	}
	return &QRCodeEncoder{size: size}
}

func (e *QRCodeEncoder) Encode(payload string) ([]byte, error) {
	return qrcode.Encode(payload, qrcode.Medium, e.size)
}
