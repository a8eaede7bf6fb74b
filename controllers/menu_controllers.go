package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/valtrilabs/cafe-backend/services"
	"github.com/valtrilabs/cafe-backend/utils"
)

type MenuController struct {
	Menu *services.GormMenuLookup
}

func NewMenuController(menu *services.GormMenuLookup) *MenuController {
	return &MenuController{Menu: menu}
}

// GetMenu -> available items only, ?all=true includes sold-out ones
func (mc *MenuController) GetMenu(c *gin.Context) {
	items, err := mc.Menu.List(c.Request.Context(), c.Query("all") != "true")
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "List of menus", items)
}
