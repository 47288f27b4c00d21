package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type report struct {
	level  string
	err    error
	msg    string
	extras map[string]interface{}
}

type fakeReporter struct {
	reports []report
}

func (f *fakeReporter) ErrorWithExtras(level string, err error, extras map[string]interface{}) {
	f.reports = append(f.reports, report{level: level, err: err, extras: extras})
}

func (f *fakeReporter) MessageWithExtras(level string, msg string, extras map[string]interface{}) {
	f.reports = append(f.reports, report{level: level, msg: msg, extras: extras})
}

func TestReportingHandlerForwardsErrorsOnly(t *testing.T) {
	var buf bytes.Buffer
	rep := &fakeReporter{}
	log := slog.New(NewReportingHandler(slog.NewTextHandler(&buf, nil), rep)).With("service", "worker")

	log.Info("scan started")
	log.Warn("slow query")
	boom := errors.New("boom")
	log.Error("scan failed", "error", boom, "student", "s1")

	require.Len(t, rep.reports, 1)
	got := rep.reports[0]
	assert.Equal(t, "error", got.level)
	assert.Same(t, boom, got.err)
	assert.Equal(t, "scan failed", got.extras["message"])
	assert.Equal(t, "s1", got.extras["student"])
	assert.Equal(t, "worker", got.extras["service"])

	assert.Contains(t, buf.String(), "scan started")
	assert.Contains(t, buf.String(), "scan failed")
}

func TestReportingHandlerMessageWithoutError(t *testing.T) {
	rep := &fakeReporter{}
	log := slog.New(NewReportingHandler(slog.NewTextHandler(&bytes.Buffer{}, nil), rep))

	log.Error("queue unavailable", "queue", "attendance:flagged")

	require.Len(t, rep.reports, 1)
	assert.Equal(t, "queue unavailable", rep.reports[0].msg)
	assert.Nil(t, rep.reports[0].err)
	assert.Equal(t, "attendance:flagged", rep.reports[0].extras["queue"])
}

func TestNewWithoutRollbar(t *testing.T) {
	var buf bytes.Buffer
	log, flush := New(Options{Service: "api", Production: true, Output: &buf})
	defer flush()

	log.Info("listening", "port", "8081")
	assert.Contains(t, buf.String(), `"service":"api"`)
	assert.Contains(t, buf.String(), `"port":"8081"`)
}
