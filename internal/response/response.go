package response

import "github.com/Efasquel/tracker/internal"

// MessageResponse acknowledges a request that has nothing else to return.
type MessageResponse struct {
	Message string `json:"message"`
}

type LoginResponse struct {
	Message string `json:"message"`
	Token   string `json:"token"`
}

type HabitCreatedResponse struct {
	Message string          `json:"message"`
	Habit   *internal.Habit `json:"habit"`
}

func Message(msg string) MessageResponse {
	return MessageResponse{Message: msg}
}

func Login(token string) LoginResponse {
	return LoginResponse{Message: "Login successful", Token: token}
}

func HabitCreated(habit *internal.Habit) HabitCreatedResponse {
	return HabitCreatedResponse{Message: "Habit successfully added to user.", Habit: habit}
}

// Error is the body of every failed request; it serialises to {"message": msg}.
func Error(status int, msg string) *internal.AppError {
	return internal.NewAppError(status, msg)
}

func NotFound(msg string) *internal.AppError {
	return Error(404, msg)
}

func InternalError() *internal.AppError {
	return Error(500, "Internal Server Error")
}
