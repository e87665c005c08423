package api

import (
	"github.com/Efasquel/tracker/internal"
	"github.com/Efasquel/tracker/internal/auth"
	"github.com/Efasquel/tracker/internal/storage"
)

type App interface {
	Logger() internal.Logger
	Store() storage.Store
	Tokens() auth.TokenProvider
}

// Application is the App wired by cmd/server.
type Application struct {
	logger internal.Logger
	store  storage.Store
	tokens auth.TokenProvider
}

func NewApplication(logger internal.Logger, store storage.Store, tokens auth.TokenProvider) *Application {
	return &Application{logger: logger, store: store, tokens: tokens}
}

func (a *Application) Logger() internal.Logger    { return a.logger }
func (a *Application) Store() storage.Store       { return a.store }
func (a *Application) Tokens() auth.TokenProvider { return a.tokens }

var _ App = (*Application)(nil)
