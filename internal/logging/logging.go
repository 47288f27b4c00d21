// Package logging builds the process logger: slog to stderr, with errors
// also reported to Rollbar when a token is configured.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/rollbar/rollbar-go"
	rollbarerrors "github.com/rollbar/rollbar-go/errors"
)

// Options configures New.
type Options struct {
	Service      string
	Env          string
	Production   bool
	RollbarToken string
	CodeVersion  string
	Output       io.Writer
}

// New returns the logger and a flush function to call before exit.
func New(opts Options) (*slog.Logger, func()) {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	var h slog.Handler
	if opts.Production {
		h = slog.NewJSONHandler(out, &slog.HandlerOptions{Level: slog.LevelInfo})
	} else {
		h = slog.NewTextHandler(out, &slog.HandlerOptions{Level: slog.LevelDebug})
	}

	flush := func() {}
	if opts.RollbarToken != "" {
		host, _ := os.Hostname()
		client := rollbar.New(opts.RollbarToken, opts.Env, opts.CodeVersion, host, "")
		client.SetStackTracer(rollbarerrors.StackTracer)
		h = NewReportingHandler(h, client)
		flush = client.Wait
	}
	return slog.New(h).With("service", opts.Service), flush
}

// Reporter receives error-level records. *rollbar.Client satisfies it.
type Reporter interface {
	ErrorWithExtras(level string, err error, extras map[string]interface{})
	MessageWithExtras(level string, msg string, extras map[string]interface{})
}

// ReportingHandler forwards error-level records to a Reporter before
// passing them to the wrapped handler.
type ReportingHandler struct {
	slog.Handler
	reporter Reporter
	attrs    []slog.Attr
}

// NewReportingHandler wraps next.
func NewReportingHandler(next slog.Handler, reporter Reporter) *ReportingHandler {
	return &ReportingHandler{Handler: next, reporter: reporter}
}

// Handle implements slog.Handler.
func (h *ReportingHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelError {
		h.report(r)
	}
	return h.Handler.Handle(ctx, r)
}

// WithAttrs implements slog.Handler.
func (h *ReportingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &ReportingHandler{Handler: h.Handler.WithAttrs(attrs), reporter: h.reporter, attrs: merged}
}

// WithGroup implements slog.Handler. Reported extras stay flat.
func (h *ReportingHandler) WithGroup(name string) slog.Handler {
	return &ReportingHandler{Handler: h.Handler.WithGroup(name), reporter: h.reporter, attrs: h.attrs}
}

func (h *ReportingHandler) report(r slog.Record) {
	extras := make(map[string]interface{}, len(h.attrs)+r.NumAttrs()+1)
	var cause error
	collect := func(a slog.Attr) bool {
		v := a.Value.Resolve()
		if err, ok := v.Any().(error); ok && cause == nil {
			cause = err
			return true
		}
		extras[a.Key] = v.Any()
		return true
	}
	for _, a := range h.attrs {
		collect(a)
	}
	r.Attrs(collect)

	level := rollbar.ERR
	if r.Level > slog.LevelError {
		level = rollbar.CRIT
	}
	if cause != nil {
		extras["message"] = r.Message
		h.reporter.ErrorWithExtras(level, cause, extras)
		return
	}
	h.reporter.MessageWithExtras(level, r.Message, extras)
}
