package whatsapp

import (
	"encoding/base64"
	"io"

	"github.com/mdp/qrterminal/v3"
	qrCode "github.com/skip2/go-qrcode"
)

// RenderQRTerminal prints a pairing code as a half-block QR pattern.
func RenderQRTerminal(w io.Writer, code string) {
	qrterminal.GenerateHalfBlock(code, qrterminal.L, w)
}

// QRDataURL encodes a pairing code as a base64 PNG data URL.
func QRDataURL(code string, size int) (string, error) {
	qrPNG, err := qrCode.Encode(code, qrCode.Medium, size)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(qrPNG), nil
}
