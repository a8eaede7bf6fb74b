package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/valtrilabs/cafe-backend/services"
	"github.com/valtrilabs/cafe-backend/utils"
)

type StaffCallController struct {
	Calls *services.StaffCallService
}

func NewStaffCallController(calls *services.StaffCallService) *StaffCallController {
	return &StaffCallController{Calls: calls}
}

func (sc *StaffCallController) CallStaff(c *gin.Context) {
	var req struct {
		TableNumber int `json:"table_number"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	call, err := sc.Calls.Create(c.Request.Context(), req.TableNumber)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusCreated, "Staff has been notified", call)
}

func (sc *StaffCallController) ListPending(c *gin.Context) {
	calls, err := sc.Calls.ListPending(c.Request.Context())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Pending staff calls", calls)
}

func (sc *StaffCallController) Resolve(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	call, err := sc.Calls.Resolve(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Staff call resolved", call)
}
