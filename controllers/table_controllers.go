package controllers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/valtrilabs/cafe-backend/services"
	"github.com/valtrilabs/cafe-backend/utils"
)

const (
	defaultQRSize = 256
	maxQRSize     = 1024
)

type TableController struct {
	Tables  *services.TableRegistry
	BaseURL string
}

func NewTableController(tables *services.TableRegistry, baseURL string) *TableController {
	return &TableController{Tables: tables, BaseURL: baseURL}
}

func (tc *TableController) GetAllTables(c *gin.Context) {
	utils.RespondJSON(c, http.StatusOK, "List of tables", gin.H{
		"count":  tc.Tables.Count(),
		"tables": tc.Tables.Tables(),
	})
}

// TableQRCode -> PNG linking to the scan page of a table, ?size=pixels
func (tc *TableController) TableQRCode(c *gin.Context) {
	table, err := strconv.Atoi(c.Param("table"))
	if err != nil || !tc.Tables.IsValid(table) {
		respondServiceError(c, services.ErrInvalidTable)
		return
	}

	size := defaultQRSize
	if raw := c.Query("size"); raw != "" {
		size, err = strconv.Atoi(raw)
		if err != nil || size < 64 || size > maxQRSize {
			respondBindError(c, fmt.Errorf("size must be between 64 and %d", maxQRSize))
			return
		}
	}

	png, err := utils.GenerateQRCode(utils.TableScanURL(tc.BaseURL, table), size)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=table-%d.png", table))
	c.Data(http.StatusOK, "image/png", png)
}
