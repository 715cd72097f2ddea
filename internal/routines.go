package internal

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/gdbrns/whatsapp-webhook-relay/pkg/env"
	"github.com/gdbrns/whatsapp-webhook-relay/pkg/log"
	"github.com/gdbrns/whatsapp-webhook-relay/pkg/metrics"
	pkgWhatsApp "github.com/gdbrns/whatsapp-webhook-relay/pkg/whatsapp"
)

type RoutineConfig struct {
	HealthCheckEnabled    bool
	HealthCheckSpec       string
	VersionRefreshEnabled bool
	VersionRefreshSpec    string
	VersionRefreshForce   bool
}

func LoadRoutineConfig() RoutineConfig {
	return RoutineConfig{
		// HEALTH_CHECK_CRON_ENABLED: default true
		HealthCheckEnabled: env.GetEnvBoolOrDefault("HEALTH_CHECK_CRON_ENABLED", true),
		// HEALTH_CHECK_CRON_SPEC: robfig/cron with seconds field, default every 5 minutes
		HealthCheckSpec: env.GetEnvStringOrDefault("HEALTH_CHECK_CRON_SPEC", "0 */5 * * * *"),
		// WHATSAPP_ENABLE_WAVERSION_REFRESH_CRON: default false
		VersionRefreshEnabled: env.GetEnvBoolOrDefault("WHATSAPP_ENABLE_WAVERSION_REFRESH_CRON", false),
		// WHATSAPP_WAVERSION_REFRESH_CRON_SPEC: default daily at 03:00:00
		VersionRefreshSpec:  env.GetEnvStringOrDefault("WHATSAPP_WAVERSION_REFRESH_CRON_SPEC", "0 0 3 * * *"),
		VersionRefreshForce: env.GetEnvBoolOrDefault("WHATSAPP_WAVERSION_REFRESH_CRON_FORCE", false),
	}
}

type sessionReporter interface {
	Status() pkgWhatsApp.Status
}

func Routines(c *cron.Cron, manager *pkgWhatsApp.Manager, cfg RoutineConfig) {
	log.Print(nil).Info("Running Routine Tasks")

	if cfg.HealthCheckEnabled {
		_, err := c.AddFunc(cfg.HealthCheckSpec, func() { checkSession(manager) })
		if err != nil {
			log.Print(nil).WithField("error", err.Error()).Error("Failed to add health check cron job")
		}
	} else {
		log.Print(nil).Info("Health check cron disabled; relying on session events")
	}

	if cfg.VersionRefreshEnabled {
		versions := manager.Versions()
		_, err := c.AddFunc(cfg.VersionRefreshSpec, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			status, refreshed, err := versions.Refresh(ctx, cfg.VersionRefreshForce)
			if err != nil {
				log.Print(nil).WithField("version", status.CurrentVersion).Error("WA Web version refresh failed: " + err.Error())
				return
			}
			log.Print(nil).WithField("version", status.CurrentVersion).WithField("refreshed", refreshed).Info("WA Web version refresh completed")
		})
		if err != nil {
			log.Print(nil).WithField("error", err.Error()).Error("Failed to add WA Web version refresh cron job")
		} else {
			log.Print(nil).WithField("spec", cfg.VersionRefreshSpec).Info("WA Web version refresh cron enabled")
		}
	}

	c.Start()
}

// checkSession logs the session state and keeps the connected gauge in sync.
func checkSession(session sessionReporter) {
	status := session.Status()
	entry := log.Session(status.State).
		WithField("jid", log.MaskJID(status.JID)).
		WithField("reconnects", status.Reconnects)

	if status.Connected {
		metrics.SessionConnected.Set(1)
		entry.Info("Session healthy")
		return
	}

	metrics.SessionConnected.Set(0)
	if status.QRPending {
		entry.Warn("Session waiting for QR pairing")
		return
	}
	entry.Warn("Session unhealthy")
}
