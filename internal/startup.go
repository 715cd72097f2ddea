package internal

import (
	"context"
	"time"

	"github.com/gdbrns/whatsapp-webhook-relay/pkg/log"
	pkgWhatsApp "github.com/gdbrns/whatsapp-webhook-relay/pkg/whatsapp"
)

const startupConnectTimeout = 60 * time.Second

// Startup opens the WhatsApp session. A failure is logged and the server keeps
// running without a session until a reconnect or restart.
func Startup(manager *pkgWhatsApp.Manager) {
	log.Print(nil).Info("Running Startup Tasks")

	ctx, cancel := context.WithTimeout(context.Background(), startupConnectTimeout)
	defer cancel()

	if err := manager.Connect(ctx); err != nil {
		log.Session(manager.Status().State).WithError(err).Error("Failed to connect to WhatsApp on startup")
		return
	}

	log.Session(manager.Status().State).Info("WhatsApp client started, waiting for the connection to open")
}
