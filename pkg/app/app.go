package app

import (
	"context"
	"net/url"
	"sync"

	"tadl/pkg/app/config"
	"tadl/pkg/mqtt"
	"tadl/pkg/port"
	"tadl/pkg/processor"
	"tadl/pkg/raspberry"
	"tadl/pkg/recorder"
	"tadl/pkg/ttl"

	"github.com/gofiber/fiber/v2"
	"github.com/womat/debug"
)

// eventQueueSize is the capacity of the incoming line event queue of a sink panel.
const eventQueueSize = 256

// App is the main application struct.
// App is where the application is wired up.
type App struct {
	// web is the fiber web framework instance
	web *fiber.App

	// config is the application configuration
	config *config.Config

	// urlParsed contains the parsed Config.Url parameter
	// and makes it easier to get params out of e.g.
	// url: https://0.0.0.0:7844/?minTls=1.2&bodyLimit=50MB
	urlParsed *url.URL

	// engine holds the line state of the panel
	engine *ttl.Engine
	// params are the per stream host parameters of the word variant
	params *processor.ParameterSet
	// processor runs the processing cycle of engine
	processor *processor.Processor
	// events feeds incoming line events of a sink panel to the processor
	events chan port.Event

	// mqtt is the handler to the mqtt broker
	mqtt *mqtt.Handler
	// lines is the gpio driver of the panel lines, nil if no driver is configured
	lines raspberry.LineIO
	// recorder writes events and snapshots to influxdb, nil if not configured
	recorder *recorder.Recorder

	// ctx ends with Close, cancel stops the processor and the refresh loop
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// restart signals application restart
	restart chan struct{}
	// shutdown signals application shutdown
	shutdown chan struct{}
}

// New checks the Web server URL and initialize the main app structure
func New(config *config.Config) (*App, error) {
	u, err := url.Parse(config.Webserver.URL)
	if err != nil {
		debug.ErrorLog.Printf("Error parsing url %q: %s", config.Webserver.URL, err.Error())
		return &App{}, err
	}

	role, err := ttl.ParseRole(config.Role)
	if err != nil {
		return &App{}, err
	}
	variant, err := ttl.ParseVariant(config.Variant)
	if err != nil {
		return &App{}, err
	}

	ids := make([]port.StreamID, 0, len(config.Streams))
	for _, s := range config.Streams {
		ids = append(ids, s.ID)
	}
	params := processor.NewParameterSet(ids...)

	e := ttl.New(role, variant, params)
	e.UpdateTopology(config.Streams)
	for _, g := range e.GroupOffsets() {
		debug.DebugLog.Printf("stream %d group %q at bit %d", g.Stream, g.Group, g.Offset)
	}

	return &App{
		config:    config,
		urlParsed: u,

		engine: e,
		params: params,
		events: make(chan port.Event, eventQueueSize),

		web:  fiber.New(fiber.Config{DisableStartupMessage: true}),
		mqtt: mqtt.New(),

		restart:  make(chan struct{}),
		shutdown: make(chan struct{}),
	}, nil
}

// Run starts the application.
func (app *App) Run() error {
	if err := app.init(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	app.ctx, app.cancel = ctx, cancel

	go app.mqtt.Service()
	go app.runWebServer()

	app.processor.Start(ctx)

	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		app.refresh(ctx)
	}()

	return nil
}

// init initializes the application.
func (app *App) init() (err error) {
	var sinks []port.Sink

	if app.lines, err = app.openLines(); err != nil {
		debug.ErrorLog.Printf("can't open gpio: %v", err)
		return err
	}
	if app.lines != nil && app.engine.IsEventSource() {
		sinks = append(sinks, app.lines)
	}

	if err = app.mqtt.Connect(app.config.MQTT.Connection, app.config.MQTT.ClientID); err != nil {
		debug.ErrorLog.Printf("can't open mqtt broker %v", err)
		return err
	}
	if app.mqtt.Connected() {
		if app.engine.IsEventSource() {
			sinks = append(sinks, mqtt.Sink{Handler: app.mqtt, Topic: app.eventTopic()})
		} else if err = app.mqtt.Subscribe(app.eventTopic()+"/#", app.handleEventMessage); err != nil {
			debug.ErrorLog.Printf("can't subscribe to line events %v", err)
			return err
		}
	}

	app.recorder, err = recorder.New(recorder.Options{
		Host:         app.config.Influx.URL,
		Token:        app.config.Influx.Token,
		Organization: app.config.Influx.Organization,
		Bucket:       app.config.Influx.Bucket,
		Panel:        app.engine.Role().PanelName(),
	})
	if err != nil {
		debug.ErrorLog.Printf("can't open influx recorder %v", err)
		return err
	}
	if app.recorder != nil && app.engine.IsEventSource() {
		sinks = append(sinks, app.recorder)
	}

	o := processor.Options{
		Interval:  app.config.ProcessInterval,
		QueueSize: app.config.QueueSize,
		BlockSize: app.config.BlockSize,
		Sinks:     sinks,
	}
	if !app.engine.IsEventSource() {
		o.Feed = app.events
	}
	app.processor = processor.New(app.engine, o)

	if err = app.loadState(); err != nil {
		debug.ErrorLog.Printf("can't load panel state %v", err)
	}

	// initRoutes and initDefaultRoutes should be always called last because it may access things like app.api
	// which must be initialized before in initAPI()
	app.initDefaultRoutes()

	return nil
}

// openLines opens the gpio driver and requests the configured lines.
func (app *App) openLines() (raspberry.LineIO, error) {
	g := app.config.Gpio
	if g.Driver == "" || g.Driver == "none" || len(g.Lines) == 0 {
		return nil, nil
	}

	lines, err := raspberry.Open(g.Driver, raspberry.Options{
		Chip:       g.Chip,
		BounceTime: g.BounceTime,
		Terminator: g.Terminator,
	})
	if err != nil {
		return nil, err
	}

	if app.engine.IsEventSource() {
		err = lines.Drive(g.Stream, g.Lines)
	} else {
		err = lines.Watch(g.Stream, g.Lines, app.events)
	}
	if err != nil {
		_ = lines.Close()
		return nil, err
	}
	return lines, nil
}

// handleEventMessage feeds a line event received from the broker to a sink panel.
func (app *App) handleEventMessage(topic string, payload []byte) {
	ev, err := mqtt.ParseEvent(app.eventTopic(), topic, payload)
	if err != nil {
		debug.ErrorLog.Printf("mqtt line event: %v", err)
		return
	}

	select {
	case app.events <- ev:
	default:
		debug.ErrorLog.Printf("event queue full, dropped %v", ev)
	}
}

func (app *App) eventTopic() string {
	return app.config.MQTT.Topic + "/events"
}

func (app *App) stateTopic() string {
	return app.config.MQTT.Topic + "/state"
}

// Restart returns the read only restart channel.
// Restart is used to be able to react on application restart. (see cmd/main.go)
func (app *App) Restart() <-chan struct{} {
	return app.restart
}

// Shutdown returns the read only shutdown channel.
// Shutdown is used to be able to react on application shutdown. (see cmd/main.go)
func (app *App) Shutdown() <-chan struct{} {
	return app.shutdown
}

// Close stops the processing, saves the panel state and releases all resources.
func (app *App) Close() error {
	if app.cancel != nil {
		app.cancel()
		app.wg.Wait()
		_ = app.web.Shutdown()
	}

	if app.processor != nil {
		app.processor.Stop()
		if err := app.saveState(); err != nil {
			debug.ErrorLog.Printf("can't save panel state %v", err)
		}
	}

	if app.recorder != nil {
		_ = app.recorder.Close()
	}
	if app.lines != nil {
		_ = app.lines.Close()
	}
	if app.mqtt != nil {
		_ = app.mqtt.Disconnect()
	}
	return nil
}
