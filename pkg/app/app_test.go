package app

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tadl/pkg/app/config"
	"tadl/pkg/raspberry"
	"tadl/pkg/ttl"
)

var testPins = []int{2, 3, 4, 5, 6, 7, 8, 9}

func newTestApp(t *testing.T, role, stateFile string) *App {
	t.Helper()

	cfg := config.NewConfig()
	cfg.Role = role
	cfg.StateFile = stateFile
	cfg.Gpio.Driver = "emu"
	cfg.Gpio.Lines = testPins
	if err := cfg.LoadConfig(); err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err = a.init(); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func do(t *testing.T, a *App, method, target string) (int, []byte) {
	t.Helper()

	resp, err := a.web.Test(httptest.NewRequest(method, target, nil))
	if err != nil {
		t.Fatalf("%s %s: %v", method, target, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, body
}

func assertStatus(t testing.TB, got, want int) {
	t.Helper()

	if got != want {
		t.Errorf("got status %d want %d", got, want)
	}
}

func getData(t *testing.T, a *App) data {
	t.Helper()

	status, body := do(t, a, http.MethodGet, "/data")
	assertStatus(t, status, http.StatusOK)

	var d data
	if err := json.Unmarshal(body, &d); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	return d
}

func emulator(t *testing.T, a *App) *raspberry.Emulator {
	t.Helper()

	e, ok := a.lines.(*raspberry.Emulator)
	if !ok {
		t.Fatalf("got lines %T want emulator", a.lines)
	}
	return e
}

func TestVersionRoute(t *testing.T) {
	a := newTestApp(t, "source", "")

	status, body := do(t, a, http.MethodGet, "/version")
	assertStatus(t, status, http.StatusOK)
	if !strings.Contains(string(body), MODULE) {
		t.Errorf("got %s want module %s", body, MODULE)
	}
}

func TestHealthRoute(t *testing.T) {
	a := newTestApp(t, "sink", "")

	status, body := do(t, a, http.MethodGet, "/health")
	assertStatus(t, status, http.StatusOK)

	var h health
	if err := json.Unmarshal(body, &h); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if h.Panel != "TTLFrontPanel" || h.Lines != ttl.TotalBits || h.GpioDriver != "emu" || h.MQTT || h.Influx {
		t.Errorf("got health %+v", h)
	}
}

func TestSourceCommands(t *testing.T) {
	a := newTestApp(t, "source", "")

	status, _ := do(t, a, http.MethodPut, "/bank/0/on")
	assertStatus(t, status, http.StatusOK)
	status, _ = do(t, a, http.MethodPut, "/bank/0/word/0x81")
	assertStatus(t, status, http.StatusOK)

	d := getData(t, a)
	if d.Panel != "TTLTogglePanel" {
		t.Errorf("got panel %q", d.Panel)
	}
	if !d.Banks[0].Enabled || d.Banks[0].Value != 0x81 || d.Banks[0].Hex != "0x81" || d.Banks[0].Dec != "129" {
		t.Errorf("got bank %+v", d.Banks[0])
	}
	if d.Banks[1].Hex != "" {
		t.Errorf("disabled bank label %q", d.Banks[1].Hex)
	}
	if !d.Bits[0] || !d.Bits[7] || d.Bits[1] {
		t.Errorf("got bits %v", d.Bits[:8])
	}

	a.processor.Cycle()
	emu := emulator(t, a)
	for i, pin := range testPins {
		want := i == 0 || i == 7
		if emu.Read(pin) != want {
			t.Errorf("pin %d: got %v want %v", pin, emu.Read(pin), want)
		}
	}

	status, _ = do(t, a, http.MethodPut, "/all/off")
	assertStatus(t, status, http.StatusOK)
	a.processor.Cycle()
	if emu.Read(testPins[0]) {
		t.Error("pin should be cleared")
	}
}

func TestCommandErrors(t *testing.T) {
	a := newTestApp(t, "source", "")

	tests := []struct {
		target string
		status int
	}{
		{"/bit/40/on", http.StatusBadRequest},
		{"/bit/x/on", http.StatusBadRequest},
		{"/bit/1/maybe", http.StatusBadRequest},
		{"/bank/4/on", http.StatusBadRequest},
		{"/bank/0/word/256", http.StatusBadRequest},
		{"/parameter/100/1", http.StatusBadRequest},
		{"/stream/9/word/1", http.StatusNotFound},
		{"/parameter/5/1", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			status, _ := do(t, a, http.MethodPut, tt.target)
			assertStatus(t, status, tt.status)
		})
	}

	if !getData(t, a).Bits[1] {
		t.Error("parameter 5 should set bit 1")
	}
}

func TestStreamWord(t *testing.T) {
	a := newTestApp(t, "source", "")

	status, _ := do(t, a, http.MethodPut, "/stream/1/word/0x10")
	assertStatus(t, status, http.StatusOK)

	if w, _ := a.params.Word(1); w != 0x10 {
		t.Errorf("got parameter word %#x want 0x10", w)
	}
	if !getData(t, a).Bits[4] {
		t.Error("bit 4 should follow the word")
	}
}

func TestSinkPanel(t *testing.T) {
	a := newTestApp(t, "sink", "")

	for _, target := range []string{"/bit/1/on", "/bank/0/off", "/all/on"} {
		status, _ := do(t, a, http.MethodPut, target)
		assertStatus(t, status, http.StatusConflict)
	}
	status, _ := do(t, a, http.MethodPost, "/save")
	assertStatus(t, status, http.StatusConflict)

	emulator(t, a).EmuEdge(testPins[2], true)
	a.processor.Cycle()

	d := getData(t, a)
	if d.Panel != "TTLFrontPanel" || !d.Bits[2] || d.Bits[3] {
		t.Errorf("got panel %q bits %v", d.Panel, d.Bits[:8])
	}
	if len(d.Words) != 1 || d.Words[0].Word != 1<<2 {
		t.Errorf("got words %+v", d.Words)
	}
}

func TestStateFile(t *testing.T) {
	name := filepath.Join(t.TempDir(), "state.yaml")

	a := newTestApp(t, "source", name)
	do(t, a, http.MethodPut, "/bank/2/on")
	do(t, a, http.MethodPut, "/bit/5/on")
	status, _ := do(t, a, http.MethodPost, "/save")
	assertStatus(t, status, http.StatusOK)

	if _, err := os.Stat(name); err != nil {
		t.Fatalf("state file: %v", err)
	}

	b := newTestApp(t, "source", name)
	status, body := do(t, b, http.MethodGet, "/state")
	assertStatus(t, status, http.StatusOK)

	var p ttl.Persisted
	if err := json.Unmarshal(body, &p); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if p.Type != "TTLTogglePanel" || len(p.Bits) != ttl.TotalBits || len(p.Banks) != ttl.MaxBanks {
		t.Fatalf("got state %+v", p)
	}
	if !p.Bits[5].State || p.Bits[4].State || !p.Banks[2].Enabled || p.Banks[0].Enabled {
		t.Errorf("got bits %v banks %v", p.Bits[:6], p.Banks)
	}
}

func TestStartStop(t *testing.T) {
	a := newTestApp(t, "source", "")

	status, _ := do(t, a, http.MethodPost, "/start")
	assertStatus(t, status, http.StatusOK)
	if !a.processor.Running() {
		t.Error("processor should run")
	}

	status, _ = do(t, a, http.MethodPut, "/bit/3/on")
	assertStatus(t, status, http.StatusOK)

	status, _ = do(t, a, http.MethodPost, "/stop")
	assertStatus(t, status, http.StatusOK)
	if a.processor.Running() {
		t.Error("processor should be stopped")
	}
	if !getData(t, a).Bits[3] {
		t.Error("bit 3 should be set")
	}
}

func TestChanged(t *testing.T) {
	a := ttl.Snapshot{Sequence: 1, Words: []ttl.WordSnapshot{{Stream: 1, Word: 3}}}
	b := ttl.Snapshot{Sequence: 2, Words: []ttl.WordSnapshot{{Stream: 1, Word: 3}}}

	if changed(a, b) {
		t.Error("sequence alone is no change")
	}
	b.Words[0].Word = 4
	if !changed(a, b) {
		t.Error("word change not detected")
	}
	b = a
	b.Bits[31] = true
	if !changed(a, b) {
		t.Error("bit change not detected")
	}
}
