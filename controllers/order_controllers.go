package controllers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/valtrilabs/cafe-backend/middlewares"
	"github.com/valtrilabs/cafe-backend/models"
	"github.com/valtrilabs/cafe-backend/services"
	"github.com/valtrilabs/cafe-backend/utils"
)

type OrderController struct {
	Orders *services.OrderService
}

func NewOrderController(orders *services.OrderService) *OrderController {
	return &OrderController{Orders: orders}
}

// PlaceOrder -> customer submits the cart for the table behind the session token
func (oc *OrderController) PlaceOrder(c *gin.Context) {
	var req struct {
		TableNumber int                       `json:"table_number"`
		Items       []services.OrderItemInput `json:"items"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	order, err := oc.Orders.PlaceOrder(c.Request.Context(), services.PlaceOrderInput{
		TableNumber: req.TableNumber,
		Items:       req.Items,
		Token:       middlewares.SessionToken(c),
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}

	utils.RespondJSON(c, http.StatusCreated, "Order placed", gin.H{
		"order_number": order.OrderNumber,
		"order":        order,
	})
}

// CurrentOrder -> the order placed with this session, if any
func (oc *OrderController) CurrentOrder(c *gin.Context) {
	order, repaired, err := oc.Orders.CurrentOrder(c.Request.Context(), middlewares.SessionToken(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Current order", gin.H{
		"order":         order,
		"link_repaired": repaired,
	})
}

// ListOrders -> ?status=Pending,Prepared&table=3
func (oc *OrderController) ListOrders(c *gin.Context) {
	var filter services.OrderFilter
	if raw := c.Query("status"); raw != "" {
		for _, name := range strings.Split(raw, ",") {
			st, err := models.ParseOrderStatus(strings.TrimSpace(name))
			if err != nil {
				respondServiceError(c, services.ErrInvalidStatus)
				return
			}
			filter.Statuses = append(filter.Statuses, st)
		}
	}
	if raw := c.Query("table"); raw != "" {
		table, err := strconv.Atoi(raw)
		if err != nil {
			respondBindError(c, errors.New("invalid table"))
			return
		}
		filter.TableNumber = table
	}

	orders, err := oc.Orders.ListOrders(c.Request.Context(), filter)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "List of orders", orders)
}

func (oc *OrderController) GetOrder(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	order, err := oc.Orders.GetOrder(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Order detail", order)
}

// UpdateStatus -> staff moves an order forward
func (oc *OrderController) UpdateStatus(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Status        string `json:"status" binding:"required"`
		PaymentMethod string `json:"payment_method" binding:"omitempty,payment_method"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	order, err := oc.Orders.UpdateOrderStatus(c.Request.Context(), id, req.Status, req.PaymentMethod)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Order status updated", order)
}

// MarkPaid -> shortcut for status=Paid; the body may be omitted when the
// order already carries a payment method
func (oc *OrderController) MarkPaid(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req struct {
		PaymentMethod string `json:"payment_method" binding:"omitempty,payment_method"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		respondBindError(c, err)
		return
	}

	order, err := oc.Orders.MarkPaid(c.Request.Context(), id, req.PaymentMethod)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Order marked as paid", order)
}

func (oc *OrderController) CancelOrder(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := oc.Orders.CancelOrder(c.Request.Context(), id); err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Order cancelled", nil)
}
