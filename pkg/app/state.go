package app

import (
	"fmt"
	"os"
	"time"

	"tadl/pkg/ttl"

	"github.com/womat/debug"
	"gopkg.in/yaml.v2"
)

// applyTimeout limits the wait for a queued command of a running processor.
const applyTimeout = 2 * time.Second

var errApplyTimeout = fmt.Errorf("command not applied within %v", applyTimeout)

// apply runs fn in the parameter-safe window of the processor and returns its result.
func (app *App) apply(fn func(e *ttl.Engine) error) error {
	res := make(chan error, 1)
	if err := app.processor.Submit(func(e *ttl.Engine) { res <- fn(e) }); err != nil {
		return err
	}

	select {
	case err := <-res:
		return err
	case <-time.After(applyTimeout):
		return errApplyTimeout
	}
}

// persisted returns the persisted records of the engine.
func (app *App) persisted() (p ttl.Persisted, err error) {
	err = app.apply(func(e *ttl.Engine) error {
		p = e.SavePersisted()
		return nil
	})
	return
}

// loadState restores the panel state from the state file.
// A missing state file is not an error.
func (app *App) loadState() error {
	if app.config.StateFile == "" || !app.engine.IsEventSource() {
		return nil
	}

	b, err := os.ReadFile(app.config.StateFile)
	if os.IsNotExist(err) {
		debug.InfoLog.Printf("no panel state file %q", app.config.StateFile)
		return nil
	}
	if err != nil {
		return err
	}

	var p ttl.Persisted
	if err = yaml.Unmarshal(b, &p); err != nil {
		return fmt.Errorf("decode %q: %w", app.config.StateFile, err)
	}

	return app.apply(func(e *ttl.Engine) error {
		skipped := e.LoadPersisted(p)
		if len(skipped) > 0 {
			return fmt.Errorf("%d records of %q skipped: %w", len(skipped), app.config.StateFile, skipped[0])
		}
		debug.InfoLog.Printf("panel state loaded from %q", app.config.StateFile)
		return nil
	})
}

// saveState writes the panel state to the state file.
func (app *App) saveState() error {
	if app.config.StateFile == "" || !app.engine.IsEventSource() {
		return nil
	}

	p, err := app.persisted()
	if err != nil {
		return err
	}

	b, err := yaml.Marshal(p)
	if err != nil {
		return err
	}

	tmp := app.config.StateFile + ".tmp"
	if err = os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	if err = os.Rename(tmp, app.config.StateFile); err != nil {
		return err
	}

	debug.InfoLog.Printf("panel state saved to %q", app.config.StateFile)
	return nil
}
