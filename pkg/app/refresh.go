package app

import (
	"context"
	"encoding/json"
	"time"

	"tadl/pkg/mqtt"
	"tadl/pkg/ttl"

	"github.com/womat/debug"
)

// refresh reads the latest snapshot at the refresh interval and publishes it
// if the panel state changed. It never changes the engine.
func (app *App) refresh(ctx context.Context) {
	ticker := time.NewTicker(app.config.RefreshInterval)
	defer ticker.Stop()

	var last ttl.Snapshot
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		s := app.processor.Latest()
		if s.Sequence == last.Sequence || !changed(last, s) {
			last.Sequence = s.Sequence
			continue
		}
		last = s

		debug.TraceLog.Printf("refresh snapshot %d", s.Sequence)
		app.recorder.Record(s)
		if !app.mqtt.Connected() {
			continue
		}

		payload, err := json.Marshal(newData(s, app.engine.Role(), app.processor.Running()))
		if err != nil {
			debug.ErrorLog.Printf("marshal snapshot: %v", err)
			continue
		}
		app.mqtt.Publish(mqtt.Message{Topic: app.stateTopic(), Payload: payload, Retained: true})
	}
}

// changed reports whether the visible panel state of a and b differs.
func changed(a, b ttl.Snapshot) bool {
	if a.Banks != b.Banks || a.Bits != b.Bits || len(a.Words) != len(b.Words) {
		return true
	}
	for i := range a.Words {
		if a.Words[i] != b.Words[i] {
			return true
		}
	}
	return false
}
