package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/valtrilabs/cafe-backend/services"
	"github.com/valtrilabs/cafe-backend/utils"
)

type AdminController struct {
	Floor *services.FloorService
}

func NewAdminController(floor *services.FloorService) *AdminController {
	return &AdminController{Floor: floor}
}

// GetFloorOverview -> which tables are seated and where their orders stand
func (ac *AdminController) GetFloorOverview(c *gin.Context) {
	overview, err := ac.Floor.Overview(c.Request.Context())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Floor overview", overview)
}
