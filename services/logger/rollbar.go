package logsvc

import (
	"context"
	"log"

	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"

	"github.com/oasis-elearning/oasis/core"
	"github.com/oasis-elearning/oasis/core/user"
)

// RollbarLogger prints every entry on a standard logger and reports it to Rollbar when enabled.
// A user.User argument becomes the Rollbar person of the item.
type RollbarLogger struct {
	std    *log.Logger
	client *rollbar.Client
}

var _ core.Logger = (*RollbarLogger)(nil)

// NewRollbarLogger reports to Rollbar only when a token is configured outside test mode.
func NewRollbarLogger(std *log.Logger, conf *core.Config) *RollbarLogger {
	client := rollbar.New(conf.RollbarToken, conf.Env, conf.Build, conf.Server.Host, "")
	client.SetEnabled(conf.RollbarToken != "" && !conf.TestMode)
	client.SetStackTracer(errors.StackTracer)
	return &RollbarLogger{std: std, client: client}
}

// Enable toggles the reporting; printing is never disabled.
func (l *RollbarLogger) Enable(enabled bool) {
	l.client.SetEnabled(enabled && l.client.Token() != "")
}

// Close waits for the queued reports to be sent.
func (l *RollbarLogger) Close() {
	l.client.Close()
}

// report keeps the args Rollbar understands (error, extras map) and turns a user.User into the person
// of the item. Other args are only printed.
func (l *RollbarLogger) report(level, msg string, args []interface{}) {
	items := make([]interface{}, 0, len(args)+2)
	items = append(items, msg)
	var person bool
	for _, arg := range args {
		switch a := arg.(type) {
		case error, map[string]interface{}:
			items = append(items, a)
		case user.User:
			if person {
				continue
			}
			ctx := rollbar.NewPersonContext(context.Background(), &rollbar.Person{
				Id:       a.ID,
				Username: a.FullName(),
				Email:    a.Email,
			})
			items = append(items, ctx)
			person = true
		}
	}
	l.client.Log(level, items...)
}

func (l *RollbarLogger) print(level, msg string, args []interface{}) {
	l.std.Printf("[%s] %s", level, msg)
	for _, arg := range args {
		switch a := arg.(type) {
		case user.User:
			l.std.Printf("  user: %s <%s> (%s)", a.ID, a.Email, a.Role)
		case error:
			l.std.Printf("  error: %+v", a)
		default:
			l.std.Printf("  %+v", a)
		}
	}
}

func (l *RollbarLogger) Debug(msg string, args ...interface{}) {
	l.report(rollbar.DEBUG, msg, args)
	l.print("DEBUG", msg, args)
}

func (l *RollbarLogger) Info(msg string, args ...interface{}) {
	l.report(rollbar.INFO, msg, args)
	l.print("INFO", msg, args)
}

func (l *RollbarLogger) Warn(msg string, args ...interface{}) {
	l.report(rollbar.WARN, msg, args)
	l.print("WARN", msg, args)
}

func (l *RollbarLogger) Error(msg string, args ...interface{}) {
	l.report(rollbar.ERR, msg, args)
	l.print("ERROR", msg, args)
}

func (l *RollbarLogger) Fatal(msg string, args ...interface{}) {
	l.report(rollbar.CRIT, msg, args)
	l.print("FATAL", msg, args)
	l.client.Close()
	l.std.Fatal(msg)
}
