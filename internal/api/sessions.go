package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"campusattend/internal/attendance"
	"campusattend/internal/auth"
)

// sessionView adds the live check-in token for the session's managers.
type sessionView struct {
	attendance.Session
	Token          string    `json:"check_in_token"`
	TokenExpiresAt time.Time `json:"token_expires_at"`
}

func withToken(sess attendance.Session) sessionView {
	return sessionView{Session: sess, Token: sess.Token, TokenExpiresAt: sess.TokenExpiresAt}
}

func (s *Server) createSession(c *gin.Context) {
	var in attendance.NewSession
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	sess, err := s.deps.Sessions.Create(c.Request.Context(), auth.ActorFrom(c), in)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, withToken(sess))
}

func (s *Server) getSession(c *gin.Context) {
	sess, err := s.deps.Sessions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	if attendance.CanManage(auth.ActorFrom(c), sess) {
		c.JSON(http.StatusOK, withToken(sess))
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (s *Server) openSession(c *gin.Context) {
	sess, err := s.deps.Sessions.Open(c.Request.Context(), auth.ActorFrom(c), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, withToken(sess))
}

func (s *Server) rotateToken(c *gin.Context) {
	sess, err := s.deps.Sessions.RotateToken(c.Request.Context(), auth.ActorFrom(c), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, withToken(sess))
}

func (s *Server) closeSession(c *gin.Context) {
	sess, err := s.deps.Sessions.Close(c.Request.Context(), auth.ActorFrom(c), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (s *Server) sessionRecords(c *gin.Context) {
	records, err := s.deps.Sessions.Records(c.Request.Context(), auth.ActorFrom(c), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

func (s *Server) sectionSessions(c *gin.Context) {
	sessions, err := s.deps.Sessions.ListBySection(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

func (s *Server) mySessions(c *gin.Context) {
	sessions, err := s.deps.Sessions.ListByInstructor(c.Request.Context(), auth.ActorFrom(c).ID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}
