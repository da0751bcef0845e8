package amm

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/canopy-network/liquidityx/app/amm/controller"
	"github.com/canopy-network/liquidityx/app/amm/types"
	"github.com/canopy-network/liquidityx/pkg/utils"
)

// NewServer builds the HTTP server of app and stores it on app.Server.
func NewServer(app *types.App) error {
	ctler := controller.NewController(app)
	router, err := ctler.NewRouter()
	if err != nil {
		return err
	}

	// use <ip>:<port> to bind to a specific interface or :<port> to bind to all interfaces
	addr := utils.Env("ADDR", ":3000")

	app.Server = &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      90 * time.Second,
	}
	app.Logger.Info("Starting server", zap.String("addr", addr))

	return nil
}
