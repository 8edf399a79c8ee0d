package app

// initDefaultRoutes initializes the applications default routes.
//  These are the routes which always are the same in every application.
//  Things like user api, version, ...
func (app *App) initDefaultRoutes() {
	api := app.web.Group("/")
	if app.config.Webserver.Webservices["version"] {
		api.Get("/version", app.HandleVersion())
	}
	if app.config.Webserver.Webservices["health"] {
		api.Get("/health", app.HandleHealth())
	}
	if app.config.Webserver.Webservices["data"] {
		api.Get("/data", app.HandleData())
	}
	if app.config.Webserver.Webservices["state"] {
		api.Get("/state", app.HandleState())
	}
	if app.config.Webserver.Webservices["control"] {
		api.Post("/start", app.HandleStart())
		api.Post("/stop", app.HandleStop())
		api.Post("/save", app.HandleSave())
		api.Put("/bank/:bank/word/:value", app.HandleBankWord())
		api.Put("/bank/:bank/:state", app.HandleBank())
		api.Put("/bit/:bit/:state", app.HandleBit())
		api.Put("/all/:state", app.HandleAll())
		api.Put("/parameter/:index/:value", app.HandleParameter())
		api.Put("/stream/:stream/word/:value", app.HandleStreamWord())
	}
}
