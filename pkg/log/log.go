package log

import (
	"io"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

var logger = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.Formatter = &logrus.TextFormatter{
		TimestampFormat: time.RFC3339,
		FullTimestamp:   true,
		DisableColors:   false,
		ForceColors:     true,
	}
	return l
}

// SetLevel parses a logrus level name. Unknown names leave the level unchanged.
func SetLevel(level string) {
	lvl, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		logger.WithField("level", level).Warn("Unknown log level, keeping " + logger.GetLevel().String())
		return
	}
	logger.SetLevel(lvl)
}

// SetOutput redirects the shared logger, mostly for tests.
func SetOutput(w io.Writer) {
	logger.SetOutput(w)
}

func Print(c *fiber.Ctx) *logrus.Entry {
	if c == nil {
		return logrus.NewEntry(logger)
	}

	remoteIP := c.IP()
	if v := c.Locals("remote_ip"); v != nil {
		if ip, ok := v.(string); ok && ip != "" {
			remoteIP = ip
		}
	}
	fields := logrus.Fields{
		"remote_ip": remoteIP,
		"method":    c.Method(),
		"uri":       c.OriginalURL(),
	}
	if v, ok := c.Locals("request_id").(string); ok && v != "" {
		fields["request_id"] = v
	}
	return logger.WithFields(fields)
}

// Session returns an entry for session lifecycle lines.
func Session(state string) *logrus.Entry {
	return logger.WithFields(logrus.Fields{
		"component": "session",
		"state":     state,
	})
}

// MessageOp returns an entry for outbound message operations.
func MessageOp(c *fiber.Ctx, op string, to string) *logrus.Entry {
	return Print(c).WithFields(logrus.Fields{
		"op": op,
		"to": MaskJID(to),
	})
}

// Webhook returns an entry for webhook deliveries.
func Webhook(deliveryID string, chatID string) *logrus.Entry {
	return logger.WithFields(logrus.Fields{
		"component":   "webhook",
		"delivery_id": deliveryID,
		"chat":        MaskJID(chatID),
	})
}

// MaskJID hides the last four characters of the user part of a JID.
func MaskJID(jid string) string {
	user, server, found := strings.Cut(jid, "@")
	if len(user) < 4 {
		return jid
	}
	masked := user[:len(user)-4] + "xxxx"
	if found {
		return masked + "@" + server
	}
	return masked
}
