package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/valtrilabs/cafe-backend/middlewares"
	"github.com/valtrilabs/cafe-backend/services"
	"github.com/valtrilabs/cafe-backend/utils"
)

type SessionController struct {
	Sessions *services.SessionService
}

func NewSessionController(sessions *services.SessionService) *SessionController {
	return &SessionController{Sessions: sessions}
}

// CreateSession -> start a new ordering cycle for a table (QR scan)
func (sc *SessionController) CreateSession(c *gin.Context) {
	var req struct {
		TableNumber int `json:"table_number"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	session, err := sc.Sessions.CreateSession(c.Request.Context(), req.TableNumber)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	utils.RespondJSON(c, http.StatusCreated, "Session created", gin.H{
		"token":        session.Token,
		"table_number": session.TableNumber,
		"expires_at":   session.CreatedAt.Add(sc.Sessions.TTL()),
	})
}

func (sc *SessionController) ValidateSession(c *gin.Context) {
	session, err := sc.Sessions.ValidateSession(c.Request.Context(), middlewares.SessionToken(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Session is valid", gin.H{
		"table_number": session.TableNumber,
	})
}

// SessionStatus -> active, consumed or inactive
func (sc *SessionController) SessionStatus(c *gin.Context) {
	status, err := sc.Sessions.SessionStatus(c.Request.Context(), middlewares.SessionToken(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Session status", gin.H{"status": status})
}

func (sc *SessionController) InvalidateSession(c *gin.Context) {
	if err := sc.Sessions.InvalidateSession(c.Request.Context(), c.Param("token")); err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Session closed", nil)
}
