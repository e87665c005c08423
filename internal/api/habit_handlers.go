package api

import (
	"github.com/Efasquel/tracker/internal/auth"
	"github.com/Efasquel/tracker/internal/metrics"
	"github.com/Efasquel/tracker/internal/response"
	"github.com/Efasquel/tracker/internal/service"
	"github.com/gin-gonic/gin"
)

func CreateHabit(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req service.CreateHabitRequest
		if !bindJSON(c, app.Logger(), &req) {
			return
		}

		userID := c.Param("id")
		createdBy := auth.CallerID(c)
		habit, err := service.CreateHabitForUser(c.Request.Context(), app.Store(), userID, createdBy, &req)
		if err != nil {
			HandleError(c, app.Logger(), err, "Missing or invalid fields in the request")
			return
		}

		app.Logger().Infof("Habit (id=%s) created and added to user (id=%s) as requested by %s.", habit.ID, userID, createdBy)
		HandleSuccess(c, app.Logger(), response.HabitCreated(habit))
	}
}

func UnfollowHabit(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := service.UnfollowHabit(c.Request.Context(), app.Store(), c.Param("id"), c.Param("habitId")); err != nil {
			HandleError(c, app.Logger(), err, "Failed to remove habit from user")
			return
		}

		HandleSuccess(c, app.Logger(), response.Message("Habit successfully removed from user."))
	}
}

func SetHabitActive(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req service.SetActiveRequest
		if !bindJSON(c, app.Logger(), &req) {
			return
		}

		user, err := service.SetHabitActive(c.Request.Context(), app.Store(), c.Param("id"), c.Param("habitId"), &req)
		if err != nil {
			HandleError(c, app.Logger(), err, "Missing or invalid fields in the request")
			return
		}

		HandleSuccess(c, app.Logger(), user.Public())
	}
}

func TrackHabit(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req service.TrackRequest
		if !bindJSON(c, app.Logger(), &req) {
			return
		}

		store := app.Store()
		entry, err := service.TrackCompletion(c.Request.Context(), store, store, store, c.Param("id"), c.Param("habitId"), &req)
		if err != nil {
			HandleError(c, app.Logger(), err, "Missing or invalid fields in the request")
			return
		}

		metrics.RecordCompletion(entry.IsCompleted)
		HandleSuccess(c, app.Logger(), response.Message("Habit successfully tracked."))
	}
}

func GetHabitLog(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		l, err := service.GetHabitLog(c.Request.Context(), app.Store(), c.Param("id"), c.Param("habitId"))
		if err != nil {
			HandleError(c, app.Logger(), err, "Failed to fetch habit log")
			return
		}

		HandleSuccess(c, app.Logger(), l)
	}
}

func GetScore(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		store := app.Store()
		score, err := service.ComputeScore(c.Request.Context(), store, store, store, c.Param("id"))
		if err != nil {
			HandleError(c, app.Logger(), err, "Missing or invalid fields in the request")
			return
		}

		HandleSuccess(c, app.Logger(), score)
	}
}

func UpdateHabit(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req service.UpdateHabitRequest
		if !bindJSON(c, app.Logger(), &req) {
			return
		}

		habit, err := service.UpdateHabit(c.Request.Context(), app.Store(), c.Param("habitId"), &req)
		if err != nil {
			HandleError(c, app.Logger(), err, "Failed to update habit")
			return
		}

		HandleSuccess(c, app.Logger(), habit)
	}
}
