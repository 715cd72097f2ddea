package types

import "time"

type RequestSendMessage struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

type ResponseSendMessage struct {
	MessageID string `json:"message_id"`
}

type RequestQR struct {
	Output string
}

type ResponseQR struct {
	QRCode      string    `json:"qr_code"`
	GeneratedAt time.Time `json:"generated_at"`
}
