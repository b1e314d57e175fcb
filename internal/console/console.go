package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"codeberg.org/mutker/cryoctl/internal/cryo"
	"codeberg.org/mutker/cryoctl/internal/errors"
	"codeberg.org/mutker/cryoctl/internal/logger"
)

const helpText = `Commands:
  on              enable cooling power
  off             disable cooling power
  target <n>, t   set the temperature setting in Celsius
  status, s       show the current state
  help, ?         show this help
  quit, q         stop the controller and exit
`

// Controller is the part of cryo.Controller the console drives.
type Controller interface {
	UpdateTempSetting(v int) bool
	SetPowerEnable(enabled bool)
	Status() cryo.Status
}

// Console is a line-oriented operator console. It also observes the
// controller and prints cooling transitions.
type Console struct {
	ctrl Controller
	in   io.Reader
	out  io.Writer
	quit func()

	mu sync.Mutex

	// dispatcher goroutine only
	observed   bool
	lastActive bool

	logger logger.Logger
}

// New returns a console reading commands from in and writing to out. quit
// is called when the operator asks to exit.
func New(ctrl Controller, in io.Reader, out io.Writer, quit func()) *Console {
	if quit == nil {
		quit = func() {}
	}

	return &Console{
		ctrl:   ctrl,
		in:     in,
		out:    out,
		quit:   quit,
		logger: logger.Component("console"),
	}
}

// Run processes commands until quit, end of input or ctx is cancelled. End
// of input stops the console only; the process keeps running.
func (c *Console) Run(ctx context.Context) error {
	lines := make(chan string)
	readErr := make(chan error, 1)

	go func() {
		defer close(lines)

		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	c.printf("cryoctl console, type help for commands\n")

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-readErr:
					if err != nil {
						return errors.New().Wrap(errors.ErrTransport, err)
					}
				default:
				}
				c.logger.Debug().Msg("Console input closed")
				return nil
			}
			if c.execute(line) {
				c.quit()
				return nil
			}
		}
	}
}

// execute runs one command line and reports whether the operator quit.
func (c *Console) execute(line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	switch cmd := strings.ToLower(fields[0]); cmd {
	case "on":
		c.ctrl.SetPowerEnable(true)
		c.printf("power on\n")
	case "off":
		c.ctrl.SetPowerEnable(false)
		c.printf("power off\n")
	case "target", "t":
		if len(fields) != 2 {
			c.printf("usage: target <n>\n")
			return false
		}
		c.setTarget(fields[1])
	case "status", "s":
		c.printf("%s\n", FormatStatus(c.ctrl.Status()))
	case "help", "?":
		c.printf("%s", helpText)
	case "quit", "q":
		c.printf("shutting down\n")
		return true
	default:
		c.printf("unknown command %q, type help for commands\n", cmd)
	}

	return false
}

func (c *Console) setTarget(arg string) {
	v, err := strconv.Atoi(arg)
	if err != nil {
		c.printf("invalid temperature %q\n", arg)
		return
	}

	if !c.ctrl.UpdateTempSetting(v) {
		c.printf("temperature %d outside %s\n", v, c.ctrl.Status().Limits)
		return
	}
	c.printf("temperature setting %d C\n", v)
}

// Observe prints cooling transitions.
func (c *Console) Observe(status cryo.Status) {
	first := !c.observed
	c.observed = true

	if status.CoolingActive == c.lastActive && !(first && status.CoolingActive) {
		return
	}
	c.lastActive = status.CoolingActive

	if status.CoolingActive {
		c.printf("cooling on at %s (setting %d C)\n", formatTemp(status.Reading), status.Setting)
		return
	}
	c.printf("cooling off at %s after %s\n", formatTemp(status.Reading), status.ActiveDuration.Round(time.Millisecond))
}

func (c *Console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := fmt.Fprintf(c.out, format, args...); err != nil {
		c.logger.Debug().Err(err).Msg("Console write failed")
	}
}

// FormatStatus renders status as one console line.
func FormatStatus(status cryo.Status) string {
	power := "off"
	if status.PowerEnabled {
		power = "on"
	}

	cooling := "idle"
	if status.CoolingActive {
		cooling = "active for " + status.ActiveDuration.Round(time.Millisecond).String()
	}

	line := fmt.Sprintf("temperature %s  setting %d C %s  power %s  cooling %s  duty %d%%",
		formatTemp(status.Reading), status.Setting, status.Limits, power, cooling, status.Duty)
	if status.SensorFaults > 0 {
		line += fmt.Sprintf("  sensor faults %d", status.SensorFaults)
	}

	return line
}

func formatTemp(r cryo.Reading) string {
	if r.IsZero() {
		return "--"
	}

	return fmt.Sprintf("%.2f C", float64(r.Value))
}
