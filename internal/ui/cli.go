package ui

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"
)

const (
	ansiReset = "\x1b[0m"
	ansiName  = "\x1b[33m"
	ansiSys   = "\x1b[32m"
	ansiWarn  = "\x1b[31m"
)

// CLIDisplay renders chat events as lines on a writer, usually stdout. Lines
// from concurrent callers never interleave.
type CLIDisplay struct {
	out   io.Writer
	color bool
	mu    sync.Mutex
}

func NewCLIDisplay(out io.Writer, color bool) *CLIDisplay {
	if out == nil {
		out = os.Stdout
	}
	return &CLIDisplay{out: out, color: color}
}

func (c *CLIDisplay) ShowMessage(from, text string) {
	if c.color {
		c.println(fmt.Sprintf("%s%s%s: %s", ansiName, from, ansiReset, text))
		return
	}
	c.println(fmt.Sprintf("%s: %s", from, text))
}

func (c *CLIDisplay) ShowSystem(text string) {
	if c.color {
		c.println(fmt.Sprintf("%s> %s%s", ansiSys, text, ansiReset))
		return
	}
	c.println("> " + text)
}

// UpdatePeers is a no-op: line mode already prints join and rename notices.
func (c *CLIDisplay) UpdatePeers([]Presence) {}

func (c *CLIDisplay) ShowNotification(n Notification) {
	level := n.Level
	if level == "" {
		level = LevelWarn
	}
	line := fmt.Sprintf("> %s%s: %s", strings.ToUpper(level[:1]), level[1:], n.Text)
	if c.color {
		c.println(ansiWarn + line + ansiReset)
		return
	}
	c.println(line)
}

func (c *CLIDisplay) println(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, line)
}

// ShouldUseColor determines if ANSI coloring should be enabled for CLI output.
func ShouldUseColor(disable bool) bool {
	if disable {
		return false
	}
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	if runtime.GOOS == "windows" {
		if os.Getenv("WT_SESSION") != "" || os.Getenv("ANSICON") != "" || strings.EqualFold(os.Getenv("ConEmuANSI"), "ON") {
			return true
		}
		return false
	}
	return true
}
