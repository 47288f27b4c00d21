// Package absentee warns students whose absence rate in a section reaches
// a threshold.
package absentee

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"campusattend/internal/attendance"
	"campusattend/internal/metrics"
	"campusattend/internal/notify"
)

// Defaults applied by New for zero Config fields.
const (
	DefaultThresholdPercent = 20.0
	DefaultSchedule         = "0 6 * * *"
	DefaultRetryCooldown    = 5 * time.Minute
)

// ErrScanInProgress is returned by ScanOnce while another scan runs.
var ErrScanInProgress = errors.New("absentee scan already running")

// Stats computes a student's standing in one section.
type Stats interface {
	AttendanceStats(ctx context.Context, studentID, sectionID string) (attendance.AttendanceStats, error)
}

// Deps are the collaborators a Monitor reads from and reports to.
type Deps struct {
	Directory attendance.Directory
	Roster    attendance.Roster
	Catalog   attendance.Catalog
	Stats     Stats
	Notifier  attendance.Notifier
	Clock     clockwork.Clock
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
}

// Config tunes the monitor.
type Config struct {
	ThresholdPercent float64
	// Schedule is a standard five-field cron expression evaluated in UTC.
	Schedule      string
	RetryCooldown time.Duration
}

// Result summarises one scan.
type Result struct {
	Students int
	Sections int
	Warned   int
	Failed   int
}

// Monitor runs absentee scans on a schedule. At most one scan is in
// flight at a time.
type Monitor struct {
	Deps
	cfg      Config
	schedule cron.Schedule
	running  atomic.Bool
	cancel   context.CancelFunc
	done     chan struct{}
}

// New validates cfg and creates a monitor. Call Start or Run to schedule
// scans.
func New(d Deps, cfg Config) (*Monitor, error) {
	if cfg.ThresholdPercent <= 0 {
		cfg.ThresholdPercent = DefaultThresholdPercent
	}
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	if cfg.RetryCooldown <= 0 {
		cfg.RetryCooldown = DefaultRetryCooldown
	}
	sched, err := cron.ParseStandard(cfg.Schedule)
	if err != nil {
		return nil, errors.Wrapf(err, "absentee schedule %q", cfg.Schedule)
	}
	if d.Clock == nil {
		d.Clock = clockwork.NewRealClock()
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	d.Logger = d.Logger.With("component", "absentee")
	return &Monitor{Deps: d, cfg: cfg, schedule: sched, done: make(chan struct{})}, nil
}

// Rate returns the percentage of held sessions neither attended nor
// excused. ok is false when the section held no sessions.
func Rate(st attendance.AttendanceStats) (rate float64, ok bool) {
	if st.Total <= 0 {
		return 0, false
	}
	missed := st.Total - st.Attended - st.Excused
	if missed < 0 {
		missed = 0
	}
	return float64(missed*100) / float64(st.Total), true
}

// Start runs the schedule loop in the background until ctx is cancelled or
// Stop is called.
func (m *Monitor) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)
	go func() {
		defer close(m.done)
		m.Run(ctx)
	}()
	m.Logger.Info("absentee monitor started", "schedule", m.cfg.Schedule,
		"threshold_percent", m.cfg.ThresholdPercent)
}

// Stop signals the loop to exit and waits for it, including any scan
// already in progress.
func (m *Monitor) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	<-m.done
}

// Run blocks, scanning at each scheduled time. Cancellation is observed
// only while waiting; a started scan always runs to completion. A failed
// scan is retried after the cooldown.
func (m *Monitor) Run(ctx context.Context) {
	for {
		now := m.Clock.Now().UTC()
		next := m.schedule.Next(now)
		m.Logger.Debug("next absentee scan", "at", next)
		if !m.sleep(ctx, next.Sub(now)) {
			return
		}
		for {
			_, err := m.ScanOnce(context.WithoutCancel(ctx))
			if err == nil {
				break
			}
			m.Logger.Error("absentee scan failed", "error", err, "retry_in", m.cfg.RetryCooldown)
			if m.Metrics != nil {
				m.Metrics.ScanFailures.Inc()
			}
			if !m.sleep(ctx, m.cfg.RetryCooldown) {
				return
			}
		}
	}
}

func (m *Monitor) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-m.Clock.After(d):
		return true
	}
}

// ScanOnce evaluates every active student's active enrollments and sends a
// warning for each section at or above the threshold. Failures for a single
// student are logged and counted; only a failure to list students aborts
// the scan.
func (m *Monitor) ScanOnce(ctx context.Context) (Result, error) {
	if !m.running.CompareAndSwap(false, true) {
		return Result{}, ErrScanInProgress
	}
	defer m.running.Store(false)

	start := m.Clock.Now()
	students, err := m.Directory.ActiveStudents(ctx)
	if err != nil {
		return Result{}, errors.Wrap(err, "list active students")
	}

	var res Result
	for _, studentID := range students {
		res.Students++
		sections, warned, err := m.scanStudent(ctx, studentID)
		res.Sections += sections
		res.Warned += warned
		if err != nil {
			res.Failed++
			m.Logger.Error("absentee check failed", "student", studentID, "error", err)
			if m.Metrics != nil {
				m.Metrics.StudentFailures.Inc()
			}
		}
	}

	elapsed := m.Clock.Since(start)
	if m.Metrics != nil {
		m.Metrics.ScanDuration.Observe(elapsed.Seconds())
	}
	m.Logger.Info("absentee scan finished", "students", res.Students, "sections", res.Sections,
		"warned", res.Warned, "failed", res.Failed, "elapsed", elapsed)
	return res, nil
}

func (m *Monitor) scanStudent(ctx context.Context, studentID string) (sections, warned int, err error) {
	enrollments, err := m.Roster.ActiveEnrollmentsForStudent(ctx, studentID)
	if err != nil {
		return 0, 0, errors.Wrap(err, "enrollments")
	}
	for _, e := range enrollments {
		st, err := m.Stats.AttendanceStats(ctx, studentID, e.SectionID)
		if err != nil {
			return sections, warned, errors.Wrapf(err, "stats for section %s", e.SectionID)
		}
		rate, ok := Rate(st)
		if !ok {
			continue
		}
		sections++
		if rate < m.cfg.ThresholdPercent {
			continue
		}
		if m.warn(ctx, studentID, e.SectionID, rate) {
			warned++
		}
	}
	return sections, warned, nil
}

// warn sends one warning. Delivery problems are logged, not returned.
func (m *Monitor) warn(ctx context.Context, studentID, sectionID string, rate float64) bool {
	sec, err := m.Catalog.Section(ctx, sectionID)
	if err != nil {
		m.Logger.Warn("section lookup failed, using id in warning", "section", sectionID, "error", err)
		sec = attendance.Section{ID: sectionID, Code: sectionID}
	}
	n := attendance.Notification{
		UserID:            studentID,
		Title:             "Attendance warning",
		Message:           warningText(sec, rate, m.cfg.ThresholdPercent),
		Category:          notify.CategoryAbsentee,
		RelatedEntityType: "section",
		RelatedEntityID:   sectionID,
	}
	if err := m.Notifier.Send(ctx, n); err != nil {
		m.Logger.Error("absentee warning not sent", "student", studentID, "section", sectionID, "error", err)
		return false
	}
	if m.Metrics != nil {
		m.Metrics.Warnings.Inc()
	}
	return true
}

func warningText(sec attendance.Section, rate, threshold float64) string {
	course := sec.CourseCode
	if sec.CourseName != "" {
		course = fmt.Sprintf("%s %s", sec.CourseCode, sec.CourseName)
	}
	if course == "" {
		return fmt.Sprintf("You have missed %.0f%% of the sessions held in section %s. "+
			"The absence limit is %.0f%%.", rate, sec.Code, threshold)
	}
	return fmt.Sprintf("You have missed %.0f%% of the sessions held in %s (section %s). "+
		"The absence limit is %.0f%%.", rate, course, sec.Code, threshold)
}
