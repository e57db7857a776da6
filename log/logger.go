// Package log provides structured, per-job logging helpers used throughout
// the pipeline. Loggers are keyed by an opaque job ID (platform:video_id or
// a scheduler/broker correlation ID) rather than an HTTP request ID, but the
// mechanism is otherwise the same one the rest of this codebase's ancestry
// uses: a logfmt logger memoized in a short-lived cache, with secret/URL
// redaction applied to values before they hit the wire.
package log

import (
	"net/url"
	"os"
	"strings"
	"time"

	kitlog "github.com/go-kit/log"
	gocache "github.com/patrickmn/go-cache"
)

var loggerCache *gocache.Cache
var defaultLoggerCacheExpiry = 6 * time.Hour

func init() {
	loggerCache = gocache.New(defaultLoggerCacheExpiry, 10*time.Minute)
}

// AddContext permanently attaches keyvals to the logger for jobID. Future
// calls to Log/LogError for this jobID include this context.
func AddContext(jobID string, keyvals ...interface{}) {
	logger := kitlog.With(getLogger(jobID), redactKeyvals(keyvals...)...)
	if err := loggerCache.Replace(jobID, logger, defaultLoggerCacheExpiry); err != nil {
		_ = logger.Log("msg", "error replacing logger in cache: "+err.Error())
	}
}

// Log emits a logfmt line scoped to jobID.
func Log(jobID string, message string, keyvals ...interface{}) {
	_ = kitlog.With(getLogger(jobID), "msg", message).Log(redactKeyvals(keyvals...)...)
}

// LogNoJob logs in situations with no natural job correlation (e.g. the
// scheduler ticking with nothing queued yet). Use sparingly.
func LogNoJob(message string, keyvals ...interface{}) {
	_ = kitlog.With(newLogger(), "msg", message).Log(redactKeyvals(keyvals...)...)
}

// LogError logs message plus err, scoped to jobID.
func LogError(jobID string, message string, err error, keyvals ...interface{}) {
	withMsg := kitlog.With(getLogger(jobID), "msg", message)
	withErr := kitlog.With(withMsg, "err", err.Error())
	_ = withErr.Log(redactKeyvals(keyvals...)...)
}

func getLogger(jobID string) kitlog.Logger {
	if logger, found := loggerCache.Get(jobID); found {
		return logger.(kitlog.Logger)
	}
	scoped := kitlog.With(newLogger(), "job_id", jobID)
	if err := loggerCache.Add(jobID, scoped, defaultLoggerCacheExpiry); err != nil {
		_ = scoped.Log("msg", "error adding logger to cache", "job_id", jobID, "err", err.Error())
	}
	return scoped
}

func newLogger() kitlog.Logger {
	base := kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(os.Stderr))
	return kitlog.With(base, "ts", kitlog.DefaultTimestampUTC)
}

func redactKeyvals(keyvals ...interface{}) []interface{} {
	var res []interface{}
	for i := range keyvals {
		if i%2 == 1 {
			k, v := keyvals[i-1], keyvals[i]
			res = append(res, k)
			switch s := v.(type) {
			case string:
				res = append(res, RedactURL(s))
			case url.URL:
				res = append(res, s.Redacted())
			case *url.URL:
				if s != nil {
					res = append(res, s.Redacted())
				}
			default:
				res = append(res, v)
			}
		}
	}
	return res
}

// RedactURL strips userinfo/tokens from URL-looking strings before they're logged.
func RedactURL(str string) string {
	lower := strings.ToLower(str)
	if !strings.HasPrefix(lower, "http") {
		return str
	}
	u, err := url.Parse(str)
	if err != nil {
		return "REDACTED"
	}
	return u.Redacted()
}
