package telemetry

import (
	"fmt"
)

// API is where components send their logs and counters. Components take it as
// a dependency so tests can swap in telemetrytest.Recorder and assert on what
// was reported.
type API interface {
	// ReportBroken reports a failure the bumper cannot recover from on its own,
	// ex. a reply form without a posthash or a login that was not accepted.
	//
	// `id` is one of the report_* constants of the calling package, shaped
	// `<component>.<operation>` like `session.reply` or `transport.request`.
	// Details such as the thread id go into params.
	ReportBroken(id string, params ...any)

	// ReportWarning reports something that did not stop the bumper but an
	// operator may want to look at, ex. a retried request or a defaulted delay.
	ReportWarning(id string, params ...any)

	// ReportInfo reports progress, ex. "Bumped <thread>".
	ReportInfo(msg string, params ...any)

	ReportDebug(msg string, params ...any)

	// ReportCount reports the running total of a counter such as `posts` or
	// `bumps`. Values are totals, not increments.
	ReportCount(id string, count int64)
}

// ScopedAPI prefixes every id and message with a namespace, ex. every report
// of the session manager reads "forum_session: ...".
type ScopedAPI struct {
	namespace string
	inner     API
}

func NewScopedAPI(namespace string, inner API) ScopedAPI {
	return ScopedAPI{namespace: namespace, inner: inner}
}

func (s ScopedAPI) ReportBroken(id string, params ...any) {
	s.inner.ReportBroken(fmt.Sprintf("%s: %s", s.namespace, id), params...)
}

func (s ScopedAPI) ReportWarning(id string, params ...any) {
	s.inner.ReportWarning(fmt.Sprintf("%s: %s", s.namespace, id), params...)
}

func (s ScopedAPI) ReportInfo(msg string, params ...any) {
	s.inner.ReportInfo(fmt.Sprintf("%s: %s", s.namespace, msg), params...)
}

func (s ScopedAPI) ReportDebug(msg string, params ...any) {
	s.inner.ReportDebug(fmt.Sprintf("%s: %s", s.namespace, msg), params...)
}

func (s ScopedAPI) ReportCount(id string, count int64) {
	s.inner.ReportCount(fmt.Sprintf("%s: %s", s.namespace, id), count)
}
