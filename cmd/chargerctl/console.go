package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/chzyer/readline"

	"github.com/nerrad567/gray-logic-charger/internal/bridges/sbrc"
)

// charger is the part of sbrc.Client the console uses.
type charger interface {
	Send(ctx context.Context, cmd string) error
	Store() *sbrc.Store
}

// console runs operator commands against one charger.
type console struct {
	charger charger
	model   sbrc.Model
	modules int
	out     io.Writer

	mu    sync.Mutex
	rl    *readline.Instance
	quiet bool
}

func newConsole(c charger, model sbrc.Model, modules int, out io.Writer) *console {
	return &console{charger: c, model: model, modules: modules, out: out}
}

func (c *console) setReadline(rl *readline.Instance) {
	c.mu.Lock()
	c.rl = rl
	c.mu.Unlock()
}

func (c *console) activeBays() int {
	return c.model.ActiveBays(c.modules)
}

// printf writes one line without corrupting the prompt.
func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rl != nil {
		c.rl.Clean()
	}
	fmt.Fprintf(c.out, format+"\n", args...)
	if c.rl != nil {
		c.rl.Refresh()
	}
}

// printChange is the client's change callback.
func (c *console) printChange(ch sbrc.Change) {
	c.mu.Lock()
	quiet := c.quiet
	c.mu.Unlock()
	if quiet {
		return
	}
	if ch.Kind == sbrc.EntityBay && ch.ID > c.activeBays() {
		return
	}
	c.printf("%-24s %v", ch.Variable, ch.Value)
}

// handle runs one command line and reports whether the console should exit.
func (c *console) handle(ctx context.Context, line string) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return false
	}

	switch strings.ToLower(parts[0]) {
	case "quit", "exit":
		return true

	case "help":
		c.printHelp()

	case "charger":
		ch := c.charger.Store().Charger()
		c.printf("model=%s firmware=%s device_id=%s storage_mode=%t flash=%t",
			ch.Model, ch.FirmwareVersion, ch.DeviceID, ch.StorageMode, ch.Flash)

	case "bays":
		store := c.charger.Store()
		c.printf("%-4s %-16s %6s %-10s %s", "BAY", "STATE", "CHARGE", "TTF", "ERROR")
		for id := 1; id <= c.activeBays(); id++ {
			b := store.Bay(id)
			c.printf("%-4d %-16s %6s %-10s %s", b.ID, b.State, formatCharge(b.Charge), b.TimeToFullString, b.Error)
		}

	case "bay":
		c.printBay(parts[1:])

	case "modules":
		if c.model.Modular {
			c.printf("%s has no module slots", c.model.Label)
			return false
		}
		for _, m := range c.charger.Store().Modules() {
			c.printf("module %d: %s", m.ID, m.Type)
		}

	case "storage":
		if len(parts) != 2 {
			c.printf("usage: storage on|off|toggle")
			return false
		}
		c.execute(ctx, sbrc.CmdSetStorageMode, map[string]any{"mode": parts[1]})

	case "flash":
		c.execute(ctx, sbrc.CmdFlash, nil)

	case "name":
		if len(parts) < 2 {
			c.printf("usage: name <1-8 characters>")
			return false
		}
		c.execute(ctx, sbrc.CmdSetDeviceID, map[string]any{"name": strings.Join(parts[1:], " ")})

	case "refresh":
		c.execute(ctx, sbrc.CmdRefresh, nil)

	case "raw":
		if len(parts) < 2 {
			c.printf("usage: raw <command words>")
			return false
		}
		c.send(ctx, sbrc.Encode(strings.ToUpper(parts[1]), parts[2:]...))

	case "quiet":
		c.mu.Lock()
		c.quiet = !c.quiet
		quiet := c.quiet
		c.mu.Unlock()
		c.printf("change output %s", map[bool]string{true: "off", false: "on"}[quiet])

	default:
		c.printf("unknown command: %s (try 'help')", parts[0])
	}
	return false
}

func (c *console) printBay(args []string) {
	if len(args) != 1 {
		c.printf("usage: bay <1-%d>", c.activeBays())
		return
	}
	id, err := strconv.Atoi(args[0])
	if err != nil || id < 1 || id > c.activeBays() {
		c.printf("bay must be between 1 and %d", c.activeBays())
		return
	}

	b := c.charger.Store().Bay(id)
	c.printf("%s", b.Name)
	c.printf("  detected:      %t", b.Detected)
	c.printf("  state:         %s", b.State)
	c.printf("  charge:        %s", formatCharge(b.Charge))
	c.printf("  time to full:  %s", b.TimeToFullString)
	c.printf("  health:        %s", formatCharge(b.Health))
	c.printf("  cycles:        %d", b.CycleCount)
	c.printf("  temperature:   %dC / %dF", b.TemperatureC, b.TemperatureF)
	c.printf("  capacity:      %d / %d (max %d)", b.CurrentCapacity, b.CurrentCapacityMax, b.CapacityMax)
	c.printf("  error:         %s", b.Error)
}

func (c *console) execute(ctx context.Context, command string, params map[string]any) {
	wire, err := sbrc.BuildCommand(command, params)
	if err != nil {
		c.printf("error: %v", err)
		return
	}
	c.send(ctx, wire)
}

func (c *console) send(ctx context.Context, wire string) {
	if err := c.charger.Send(ctx, wire); err != nil {
		c.printf("error: %v", err)
		return
	}
	c.printf("sent %s", wire)
}

func (c *console) printHelp() {
	c.printf("Commands:")
	c.printf("  charger                 - Show charger state")
	c.printf("  bays                    - Summarise every active bay")
	c.printf("  bay <n>                 - Show one bay in detail")
	c.printf("  modules                 - Show module slots")
	c.printf("  storage on|off|toggle   - Set storage mode")
	c.printf("  flash                   - Blink the charger LEDs")
	c.printf("  name <text>             - Set the device name (1-8 characters)")
	c.printf("  refresh                 - Request a full report")
	c.printf("  raw <verb> <args...>    - Send a raw command")
	c.printf("  quiet                   - Toggle change output")
	c.printf("  quit                    - Exit")
}

// formatCharge renders a percentage, or "-" for the no-data sentinel.
func formatCharge(v int) string {
	if v == sbrc.NoDataByte {
		return "-"
	}
	return strconv.Itoa(v) + "%"
}
