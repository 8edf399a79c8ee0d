package app

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"tadl/pkg/port"
	"tadl/pkg/processor"
	"tadl/pkg/ttl"

	"github.com/gofiber/fiber/v2"
	"github.com/pkg/errors"
	"github.com/womat/debug"
)

type bankData struct {
	Number  int    `json:"number"`
	Enabled bool   `json:"enabled"`
	Value   uint8  `json:"value"`
	Hex     string `json:"hex"`
	Dec     string `json:"dec"`
}

type wordData struct {
	Stream port.StreamID `json:"stream"`
	Word   uint32        `json:"word"`
	Hex    string        `json:"hex"`
}

// data is the display view of a snapshot.
type data struct {
	Panel    string              `json:"panel"`
	Running  bool                `json:"running"`
	Sequence uint64              `json:"sequence"`
	Banks    []bankData          `json:"banks"`
	Bits     [ttl.TotalBits]bool `json:"bits"`
	Words    []wordData          `json:"words"`
}

func newData(s ttl.Snapshot, role ttl.Role, running bool) data {
	d := data{
		Panel:    role.PanelName(),
		Running:  running,
		Sequence: s.Sequence,
		Bits:     s.Bits,
		Banks:    make([]bankData, ttl.MaxBanks),
		Words:    make([]wordData, 0, len(s.Words)),
	}
	for i := range d.Banks {
		hex, dec := s.BankLabels(i)
		d.Banks[i] = bankData{Number: i, Enabled: s.Banks[i], Value: s.BankValue(i), Hex: hex, Dec: dec}
	}
	for _, w := range s.Words {
		d.Words = append(d.Words, wordData{Stream: w.Stream, Word: w.Word, Hex: fmt.Sprintf("0x%08X", w.Word)})
	}
	return d
}

// runWebServer starts the applications web server and listens for web requests.
//  It's designed to run in a separate go function to not block the main go function.
//  e.g.: go runWebServer()
//  See app.Run()
func (app *App) runWebServer() {
	err := app.web.Listen(app.urlParsed.Host)
	debug.ErrorLog.Print(err)
}

// HandleData returns the latest published snapshot.
func (app *App) HandleData() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		debug.InfoLog.Print("web request data")

		return ctx.JSON(newData(app.processor.Latest(), app.engine.Role(), app.processor.Running()))
	}
}

// HandleState returns the persisted records of the panel.
func (app *App) HandleState() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		debug.InfoLog.Print("web request state")

		p, err := app.persisted()
		if err != nil {
			return reply(ctx, err)
		}
		return ctx.JSON(p)
	}
}

// HandleStart starts the processing cycle.
func (app *App) HandleStart() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		debug.InfoLog.Print("web request start")

		c := app.ctx
		if c == nil {
			c = context.Background()
		}
		app.processor.Start(c)
		return reply(ctx, nil)
	}
}

// HandleStop stops the processing cycle.
func (app *App) HandleStop() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		debug.InfoLog.Print("web request stop")

		app.processor.Stop()
		return reply(ctx, nil)
	}
}

// HandleSave writes the panel state to the state file.
func (app *App) HandleSave() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		debug.InfoLog.Print("web request save")

		if !app.engine.IsEventSource() {
			return reply(ctx, errors.Wrap(ttl.ErrWrongRole, "save"))
		}
		return reply(ctx, app.saveState())
	}
}

// HandleBank enables or disables a bank.
func (app *App) HandleBank() fiber.Handler {
	return app.mutation("bank", func(ctx *fiber.Ctx) (func(*ttl.Engine) error, error) {
		bank, err := intParam(ctx, "bank")
		if err != nil {
			return nil, err
		}
		state, err := stateParam(ctx)
		if err != nil {
			return nil, err
		}
		return func(e *ttl.Engine) error { return e.SetBankEnabled(bank, state) }, nil
	})
}

// HandleBankWord sets the bits of a bank from a decimal, 0x or 0b value.
func (app *App) HandleBankWord() fiber.Handler {
	return app.mutation("bank word", func(ctx *fiber.Ctx) (func(*ttl.Engine) error, error) {
		bank, err := intParam(ctx, "bank")
		if err != nil {
			return nil, err
		}
		v, err := ttl.ParseBankWord(ctx.Params("value"))
		if err != nil {
			return nil, err
		}
		return func(e *ttl.Engine) error { return e.SetBankWord(bank, v) }, nil
	})
}

// HandleBit sets a single line.
func (app *App) HandleBit() fiber.Handler {
	return app.mutation("bit", func(ctx *fiber.Ctx) (func(*ttl.Engine) error, error) {
		bit, err := intParam(ctx, "bit")
		if err != nil {
			return nil, err
		}
		state, err := stateParam(ctx)
		if err != nil {
			return nil, err
		}
		return func(e *ttl.Engine) error { return e.SetBitValue(bit, state) }, nil
	})
}

// HandleAll sets or clears every line of the enabled banks.
func (app *App) HandleAll() fiber.Handler {
	return app.mutation("all", func(ctx *fiber.Ctx) (func(*ttl.Engine) error, error) {
		state, err := stateParam(ctx)
		if err != nil {
			return nil, err
		}
		return func(e *ttl.Engine) error { return e.SetAll(state) }, nil
	})
}

// HandleParameter dispatches a host parameter by its index.
func (app *App) HandleParameter() fiber.Handler {
	return app.mutation("parameter", func(ctx *fiber.Ctx) (func(*ttl.Engine) error, error) {
		index, err := intParam(ctx, "index")
		if err != nil {
			return nil, err
		}
		v, err := strconv.ParseFloat(ctx.Params("value"), 64)
		if err != nil {
			return nil, errors.Wrapf(ttl.ErrOutOfRange, "parameter value %q", ctx.Params("value"))
		}
		return func(e *ttl.Engine) error { return e.SetParameter(index, v) }, nil
	})
}

// HandleStreamWord writes the word parameter of a stream and lets the engine follow it.
func (app *App) HandleStreamWord() fiber.Handler {
	return app.mutation("stream word", func(ctx *fiber.Ctx) (func(*ttl.Engine) error, error) {
		stream, err := strconv.ParseUint(ctx.Params("stream"), 10, 16)
		if err != nil {
			return nil, errors.Wrapf(ttl.ErrOutOfRange, "stream %q", ctx.Params("stream"))
		}
		word, err := strconv.ParseUint(ctx.Params("value"), 0, 32)
		if err != nil {
			return nil, errors.Wrapf(ttl.ErrOutOfRange, "word %q", ctx.Params("value"))
		}

		id := port.StreamID(stream)
		p, ok := app.params.Parameter(id)
		if !ok {
			return nil, errors.Wrapf(ttl.ErrMissingParameter, "stream %d", id)
		}
		return func(e *ttl.Engine) error {
			stored := ttl.WordToParameter(uint32(word))
			p.SetValue(stored)
			return e.ParameterChanged(id, stored)
		}, nil
	})
}

// mutation returns a handler that applies the command built by parse to a source panel.
func (app *App) mutation(name string, parse func(ctx *fiber.Ctx) (func(*ttl.Engine) error, error)) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		debug.InfoLog.Printf("web request %s %s", name, ctx.Path())

		if !app.engine.IsEventSource() {
			return reply(ctx, errors.Wrapf(ttl.ErrWrongRole, "%s on %s panel", name, app.engine.Role()))
		}
		fn, err := parse(ctx)
		if err != nil {
			return reply(ctx, err)
		}
		return reply(ctx, app.apply(fn))
	}
}

func intParam(ctx *fiber.Ctx, name string) (int, error) {
	v, err := strconv.Atoi(ctx.Params(name))
	if err != nil {
		return 0, errors.Wrapf(ttl.ErrOutOfRange, "%s %q", name, ctx.Params(name))
	}
	return v, nil
}

func stateParam(ctx *fiber.Ctx) (bool, error) {
	switch strings.ToLower(ctx.Params("state")) {
	case "1", "on", "true", "set", "enable":
		return true, nil
	case "0", "off", "false", "clear", "disable":
		return false, nil
	default:
		return false, errors.Wrapf(ttl.ErrOutOfRange, "state %q", ctx.Params("state"))
	}
}

// reply answers a command with its result.
func reply(ctx *fiber.Ctx, err error) error {
	if err == nil {
		return ctx.JSON(fiber.Map{"result": "ok"})
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ttl.ErrWrongRole):
		status = http.StatusConflict
	case errors.Is(err, ttl.ErrOutOfRange), errors.Is(err, ttl.ErrUnknownParameterKind):
		status = http.StatusBadRequest
	case errors.Is(err, ttl.ErrStaleTopology), errors.Is(err, ttl.ErrMissingParameter):
		status = http.StatusNotFound
	case errors.Is(err, processor.ErrQueueFull), errors.Is(err, errApplyTimeout):
		status = http.StatusServiceUnavailable
	}

	debug.ErrorLog.Printf("web request %s: %v", ctx.Path(), err)
	return ctx.Status(status).JSON(fiber.Map{"error": err.Error()})
}
