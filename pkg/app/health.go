package app

import (
	"os"
	"runtime"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/womat/debug"
)

// health is the state of the process and the panel.
type health struct {
	Panel       string `json:"panel"`
	Role        string `json:"role"`
	Variant     string `json:"variant"`
	Running     bool   `json:"running"`
	Sequence    uint64 `json:"sequence"`
	Streams     int    `json:"streams"`
	Lines       int    `json:"lines"`
	GpioDriver  string `json:"gpio"`
	MQTT        bool   `json:"mqtt"`
	Influx      bool   `json:"influx"`
	Goroutines  int    `json:"goroutines"`
	HeapAllocMB uint64 `json:"heapallocmb"`
	SysMemoryMB uint64 `json:"sysmemorymb"`
	Version     string `json:"version"`
	GoVersion   string `json:"goversion"`
	HostName    string `json:"hostname"`
	Time        string `json:"time"`
}

// HandleHealth returns the health of the process and the state of the panel.
func (app *App) HandleHealth() fiber.Handler {
	host, _ := os.Hostname()

	return func(ctx *fiber.Ctx) error {
		debug.InfoLog.Print("web request health")
		return ctx.JSON(app.health(host))
	}
}

func (app *App) health(host string) health {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return health{
		Panel:       app.engine.Role().PanelName(),
		Role:        app.engine.Role().String(),
		Variant:     app.engine.Variant().String(),
		Running:     app.processor.Running(),
		Sequence:    app.processor.Latest().Sequence,
		Streams:     len(app.config.Streams),
		Lines:       app.config.Streams.Lines(),
		GpioDriver:  app.config.Gpio.Driver,
		MQTT:        app.mqtt.Connected(),
		Influx:      app.recorder != nil,
		Goroutines:  runtime.NumGoroutine(),
		HeapAllocMB: m.Alloc >> 20,
		SysMemoryMB: m.Sys >> 20,
		Version:     VERSION,
		GoVersion:   runtime.Version(),
		HostName:    host,
		Time:        time.Now().Format(time.RFC3339),
	}
}
