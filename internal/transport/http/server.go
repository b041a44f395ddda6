package http

import (
	"github.com/gin-gonic/gin"

	"listenline/internal/bootstrap"
	"listenline/internal/model"
	"listenline/internal/transport/http/handler"
	"listenline/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)

	authHandler := handler.NewAuthHandler(app.AuthService)
	queueHandler := handler.NewQueueHandler(app.MatchingService)
	sessionHandler := handler.NewSessionHandler(app.SessionService, app.ConversationService)

	secret := app.Config.Auth.JWTSecret

	v1 := router.Group("/api/v1")
	authGroup := v1.Group("/auth")
	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/login", authHandler.Login)
	authGroup.GET("/me", middleware.AuthJWT(secret), authHandler.Me)

	supportGroup := v1.Group("/support")
	supportGroup.Use(middleware.AuthJWT(secret))
	supportGroup.POST("/requests", queueHandler.SubmitRequest)
	supportGroup.DELETE("/requests/:id", queueHandler.CancelRequest)

	counsellorGroup := supportGroup.Group("")
	counsellorGroup.Use(middleware.RequireRole(model.RoleCounsellor, model.RoleAdmin))
	counsellorGroup.GET("/queue", queueHandler.ListQueue)
	counsellorGroup.POST("/requests/:id/claim", queueHandler.ClaimRequest)

	sessionGroup := v1.Group("/sessions")
	sessionGroup.Use(middleware.AuthJWT(secret))
	sessionGroup.GET("/active", sessionHandler.GetActive)
	sessionGroup.POST("/:id/end", sessionHandler.EndSession)
	sessionGroup.POST("/:id/heartbeat", sessionHandler.Heartbeat)
	sessionGroup.POST("/:id/messages", sessionHandler.SendMessage)
	sessionGroup.GET("/:id/messages", sessionHandler.ListMessages)

	return router
}
