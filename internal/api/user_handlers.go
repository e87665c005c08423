package api

import (
	"github.com/Efasquel/tracker/internal/response"
	"github.com/Efasquel/tracker/internal/service"
	"github.com/gin-gonic/gin"
)

func CreateUser(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req service.RegisterRequest
		if !bindJSON(c, app.Logger(), &req) {
			return
		}

		user, err := service.Register(c.Request.Context(), app.Store(), &req)
		if err != nil {
			HandleError(c, app.Logger(), err, "Failed to create user")
			return
		}

		app.Logger().Infof("User %q successfully created.", user.Name)
		HandleSuccess(c, app.Logger(), user.Public())
	}
}

func GetUser(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := service.GetUser(c.Request.Context(), app.Store(), c.Param("id"))
		if err != nil {
			HandleError(c, app.Logger(), err, "Failed to fetch user")
			return
		}

		HandleSuccess(c, app.Logger(), user.Public())
	}
}

func DeleteUser(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := service.DeleteUser(c.Request.Context(), app.Store(), app.Store(), c.Param("id")); err != nil {
			HandleError(c, app.Logger(), err, "Failed to delete user")
			return
		}

		HandleSuccess(c, app.Logger(), response.Message("User successfully deleted."))
	}
}

func UpdateUser(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req service.UpdateUserRequest
		if !bindJSON(c, app.Logger(), &req) {
			return
		}

		user, err := service.UpdateUser(c.Request.Context(), app.Store(), c.Param("id"), &req)
		if err != nil {
			HandleError(c, app.Logger(), err, "Failed to update user")
			return
		}

		HandleSuccess(c, app.Logger(), user.Public())
	}
}
