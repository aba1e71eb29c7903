package http

import (
	"github.com/gin-gonic/gin"

	"paperchat/internal/bootstrap"
	"paperchat/internal/transport/http/handler"
	"paperchat/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)

	authHandler := handler.NewAuthHandler(app.AuthService)
	documentHandler := handler.NewDocumentHandler(app.DocumentService, app.ChatService)
	chatHandler := handler.NewChatHandler(app.ChatService)

	jwtSecret := app.Config.Auth.JWTSecret

	v1 := router.Group("/api/v1")
	authGroup := v1.Group("/auth")
	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/login", authHandler.Login)
	authGroup.GET("/me", middleware.AuthJWT(jwtSecret), authHandler.Me)
	authGroup.PUT("/education-level", middleware.AuthJWT(jwtSecret), authHandler.UpdateEducationLevel)

	docGroup := v1.Group("/documents")
	docGroup.Use(middleware.AuthJWT(jwtSecret))
	docGroup.POST("", documentHandler.Upload)
	docGroup.GET("", documentHandler.List)
	docGroup.GET("/:id/status", documentHandler.Status)
	docGroup.DELETE("/:id", documentHandler.Delete)
	docGroup.POST("/:id/search", documentHandler.Search)

	chatGroup := v1.Group("/chat")
	chatGroup.Use(middleware.AuthJWT(jwtSecret))
	chatGroup.POST("/sessions", chatHandler.CreateSession)
	chatGroup.GET("/sessions", chatHandler.ListSessions)
	chatGroup.DELETE("/sessions/:id", chatHandler.DeleteSession)
	chatGroup.POST("/sessions/:id/messages", chatHandler.SendMessage)
	chatGroup.GET("/sessions/:id/history", chatHandler.GetHistory)

	return router
}
