package router

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/valtrilabs/cafe-backend/controllers"
	"github.com/valtrilabs/cafe-backend/kds"
	"github.com/valtrilabs/cafe-backend/middlewares"
	"github.com/valtrilabs/cafe-backend/models"
	"github.com/valtrilabs/cafe-backend/services"
	"github.com/valtrilabs/cafe-backend/utils"
	"gorm.io/gorm"
)

// Deps is everything the HTTP layer needs.
type Deps struct {
	DB         *gorm.DB
	Tables     *services.TableRegistry
	Sessions   *services.SessionService
	Orders     *services.OrderService
	Menu       *services.GormMenuLookup
	StaffCalls *services.StaffCallService
	Floor      *services.FloorService
	Hub        *kds.Hub
	Signer     *utils.JWTSigner

	PublicBaseURL string
	CORSOrigins   []string
	// IPRateLimit caps requests per client IP per minute; 0 disables it.
	IPRateLimit int
}

func SetupRouter(d Deps) *gin.Engine {
	registerValidators()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddlewares(d.CORSOrigins))
	r.Use(middlewares.LoggerMiddleware())
	if d.IPRateLimit > 0 {
		r.Use(middlewares.NewRateLimiter(d.IPRateLimit, time.Minute).RateLimit())
	}

	sessionCtrl := controllers.NewSessionController(d.Sessions)
	orderCtrl := controllers.NewOrderController(d.Orders)
	tableCtrl := controllers.NewTableController(d.Tables, d.PublicBaseURL)
	menuCtrl := controllers.NewMenuController(d.Menu)
	callCtrl := controllers.NewStaffCallController(d.StaffCalls)
	userCtrl := controllers.NewUserController(d.DB, d.Signer)
	adminCtrl := controllers.NewAdminController(d.Floor)
	kdsCtrl := controllers.NewKDSController(d.Hub)

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	// customer endpoints, authenticated by the table session token
	r.GET("/tables", tableCtrl.GetAllTables)
	r.GET("/menu", menuCtrl.GetMenu)
	r.POST("/sessions", sessionCtrl.CreateSession)
	r.DELETE("/sessions/:token", sessionCtrl.InvalidateSession)
	r.POST("/staff-calls", callCtrl.CallStaff)

	withToken := r.Group("/")
	withToken.Use(middlewares.RequireSessionToken())
	{
		withToken.GET("/sessions/validate", sessionCtrl.ValidateSession)
		withToken.GET("/sessions/status", sessionCtrl.SessionStatus)
		withToken.POST("/orders", orderCtrl.PlaceOrder)
		withToken.GET("/orders/current", orderCtrl.CurrentOrder)
	}

	r.POST("/login", middlewares.NewStrictRateLimiter(), userCtrl.Login)

	auth := r.Group("/admin")
	auth.Use(middlewares.AuthMiddleware(d.Signer))
	{
		auth.GET("/profile", userCtrl.GetProfile)
		auth.GET("/floor", adminCtrl.GetFloorOverview)

		staff := auth.Group("/")
		staff.Use(middlewares.RequireRole(models.RoleStaff))
		{
			staff.GET("/orders", orderCtrl.ListOrders)
			staff.GET("/orders/:id", orderCtrl.GetOrder)
			staff.PUT("/orders/:id/status", orderCtrl.UpdateStatus)
			staff.PUT("/orders/:id/mark-paid", orderCtrl.MarkPaid)
			staff.DELETE("/orders/:id", orderCtrl.CancelOrder)
			staff.DELETE("/sessions/:token", sessionCtrl.InvalidateSession)
			staff.GET("/staff-calls", callCtrl.ListPending)
			staff.PUT("/staff-calls/:id", callCtrl.Resolve)
			staff.GET("/tables/:table/qr", tableCtrl.TableQRCode)
			staff.GET("/kds/ws", kdsCtrl.KDSHandler)
		}

		admin := auth.Group("/")
		admin.Use(middlewares.RequireRole(models.RoleAdmin))
		{
			admin.POST("/users", userCtrl.CreateUser)
		}
	}

	return r
}

var validatorsOnce sync.Once

// registerValidators adds the payment_method binding tag.
func registerValidators() {
	validatorsOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		err := v.RegisterValidation("payment_method", func(fl validator.FieldLevel) bool {
			_, err := models.ParsePaymentMethod(fl.Field().String())
			return err == nil
		})
		if err != nil {
			utils.ErrorLogger.Printf("Failed to register payment_method validator: %v", err)
		}
	})
}
