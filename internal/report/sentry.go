// Package report forwards errors to Sentry. Every function is a no-op until
// Setup has been called with a DSN.
package report

import (
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/getsentry/sentry-go"
	sentryhttp "github.com/getsentry/sentry-go/http"
)

var enabled bool

// Setup initialises the Sentry client and sets the global scope tags.
func Setup(dsn, env, version string) error {
	if dsn == "" {
		return nil
	}
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: env,
		Release:     "cpfleet@" + version,
	}); err != nil {
		return err
	}
	enabled = true

	sentry.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("app_version", version)
		scope.SetTag("go_version", runtime.Version())
		scope.SetContext("host_info", map[string]interface{}{
			"hostname": hostname(),
		})
	})
	return nil
}

// Flush waits for buffered events to be delivered.
func Flush() {
	if enabled {
		sentry.Flush(2 * time.Second)
	}
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}

// Options carries optional tags and context for one report.
type Options struct {
	Tags         map[string]string
	ExtraContext map[string]interface{}
	Level        sentry.Level
}

// Error reports err with the given options. A nil error is ignored.
func Error(err error, opts Options) {
	if err == nil || !enabled {
		return
	}

	sentry.WithScope(func(scope *sentry.Scope) {
		for k, v := range opts.Tags {
			scope.SetTag(k, v)
		}
		if opts.ExtraContext != nil {
			scope.SetContext("extra", opts.ExtraContext)
		}
		level := opts.Level
		if level == "" {
			level = sentry.LevelError
		}
		scope.SetLevel(level)
		sentry.CaptureException(err)
	})
}

// Middleware recovers panics in next and reports them.
func Middleware(next http.Handler) http.Handler {
	return sentryhttp.New(sentryhttp.Options{
		Repanic:         true,
		WaitForDelivery: false,
		Timeout:         2 * time.Second,
	}).Handle(next)
}
