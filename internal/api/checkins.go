package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"campusattend/internal/attendance"
	"campusattend/internal/auth"
	"campusattend/internal/notify"
	"campusattend/internal/queue"
)

const publishTimeout = 2 * time.Second

// checkIn records the caller's presence. Flagged check-ins are accepted
// and forwarded to the alerts queue.
func (s *Server) checkIn(c *gin.Context) {
	var in attendance.CheckInAttempt
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	in.StudentID = auth.ActorFrom(c).ID
	in.SessionID = c.Param("id")
	in.IPAddress = c.ClientIP()

	verdict, err := s.deps.Verifier.CheckIn(c.Request.Context(), in)
	if err != nil {
		_, code := classify(err)
		s.deps.Metrics.CheckIns.WithLabelValues(code).Inc()
		s.fail(c, err)
		return
	}

	outcome := "accepted"
	if verdict.Flagged {
		outcome = "flagged"
		s.publishFlagged(c.Request.Context(), verdict.Record)
	}
	s.deps.Metrics.CheckIns.WithLabelValues(outcome).Inc()
	s.deps.Metrics.FraudScore.Observe(float64(verdict.FraudScore))

	c.JSON(http.StatusCreated, verdict)
}

func (s *Server) publishFlagged(ctx context.Context, rec attendance.Record) {
	if s.deps.Alerts == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	msg, err := queue.NewMessage(notify.FlaggedMessageType, notify.FlaggedFromRecord(rec))
	if err == nil {
		err = s.deps.Alerts.Publish(ctx, msg)
	}
	if err != nil {
		s.log.Error("publish flagged check-in failed", "record", rec.ID, "error", err)
	}
}

func (s *Server) myAttendance(c *gin.Context) {
	limit, offset := pagination(c)
	records, err := s.deps.Verifier.History(c.Request.Context(), auth.ActorFrom(c).ID, limit, offset)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records, "limit": limit, "offset": offset})
}
