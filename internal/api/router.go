package api

import (
	"net/http"
	"time"

	"github.com/Efasquel/tracker/internal/auth"
	"github.com/Efasquel/tracker/internal/metrics"
	"github.com/Efasquel/tracker/internal/response"
	"github.com/gin-gonic/gin"
)

// NewRouter builds the gin engine serving the tracker API. storeTimeout
// bounds every request's store calls; zero disables the bound.
func NewRouter(app App, storeTimeout time.Duration) *gin.Engine {
	r := gin.New()
	r.Use(RequestIDMiddleware(), RecoveryMiddleware(app.Logger()), AccessLogMiddleware(app.Logger()), metrics.Middleware())
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, response.NotFound("Route not found"))
	})

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, response.Message("Welcome to Tracker."))
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group("/api", StoreTimeoutMiddleware(storeTimeout))
	api.POST("/login", Login(app))
	api.POST("/user", CreateUser(app))

	protected := api.Group("", auth.AuthMiddleware(app.Tokens(), app.Logger()))
	protected.GET("/user/:id", GetUser(app))
	protected.DELETE("/user/:id", DeleteUser(app))
	protected.PATCH("/user/:id", UpdateUser(app))
	protected.POST("/user/:id/habit", CreateHabit(app))
	protected.DELETE("/user/:id/habit/:habitId", UnfollowHabit(app))
	protected.PATCH("/user/:id/habit/:habitId", SetHabitActive(app))
	protected.POST("/user/:id/habit/:habitId/track", TrackHabit(app))
	protected.GET("/user/:id/habit/:habitId/logs", GetHabitLog(app))
	protected.GET("/user/:id/score", GetScore(app))
	protected.PATCH("/habit/:habitId", UpdateHabit(app))

	return r
}
