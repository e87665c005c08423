package api

import (
	"github.com/Efasquel/tracker/internal/response"
	"github.com/Efasquel/tracker/internal/service"
	"github.com/gin-gonic/gin"
)

func Login(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req service.LoginRequest
		if !bindJSON(c, app.Logger(), &req) {
			return
		}

		token, err := service.Login(c.Request.Context(), app.Store(), app.Tokens(), &req)
		if err != nil {
			HandleError(c, app.Logger(), err, "Login failed")
			return
		}

		HandleSuccess(c, app.Logger(), response.Login(token))
	}
}
