package ui

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

const submitQueueSize = 64

// TUIDisplay renders the room using tview. Submitted input lines are handed
// to send one at a time, in the order they were entered.
type TUIDisplay struct {
	app      *tview.Application
	messages *tview.TextView
	input    *tview.InputField
	peers    *tview.List
	send     func(string)
	lines    chan string
	once     sync.Once
}

func NewTUIDisplay(title string, send func(string)) *TUIDisplay {
	messages := tview.NewTextView().
		SetDynamicColors(true).
		SetRegions(false).
		SetScrollable(true)
	messages.SetBorder(true).SetTitle(title)

	peers := tview.NewList().ShowSecondaryText(false)
	peers.SetBorder(true).SetTitle("Peers")

	input := tview.NewInputField().
		SetLabel("> ").
		SetFieldTextColor(tcell.ColorWhite)

	td := &TUIDisplay{
		app:      tview.NewApplication(),
		messages: messages,
		input:    input,
		peers:    peers,
		send:     send,
		lines:    make(chan string, submitQueueSize),
	}

	input.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter {
			text := input.GetText()
			if strings.TrimSpace(text) != "" {
				td.submit(text)
			}
			input.SetText("")
		}
	})

	body := tview.NewFlex().
		AddItem(messages, 0, 4, false).
		AddItem(peers, 24, 1, false)
	layout := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(body, 0, 1, false).
		AddItem(input, 3, 1, true)

	td.app.SetRoot(layout, true).EnableMouse(true)
	return td
}

// Run blocks until the UI exits, either because ctx was cancelled or the user
// quit with Ctrl-C.
func (t *TUIDisplay) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		t.Stop()
	}()
	go t.sendLoop(ctx)
	return t.app.Run()
}

// submit runs on the UI goroutine and must not block it.
func (t *TUIDisplay) submit(text string) {
	select {
	case t.lines <- text:
	default:
		fmt.Fprintf(t.messages, "[orange]** %s[-] input queue full, line not sent\n", strings.ToUpper(LevelWarn))
	}
}

func (t *TUIDisplay) sendLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case line := <-t.lines:
			t.send(line)
		}
	}
}

func (t *TUIDisplay) Stop() {
	t.once.Do(func() {
		t.app.Stop()
	})
}

func (t *TUIDisplay) ShowMessage(from, text string) {
	line := fmt.Sprintf("[lightgreen]%s[-]: %s\n", tview.Escape(from), tview.Escape(text))
	t.app.QueueUpdateDraw(func() {
		fmt.Fprint(t.messages, line)
	})
}

func (t *TUIDisplay) ShowSystem(text string) {
	line := fmt.Sprintf("[green]> %s[-]\n", tview.Escape(text))
	t.app.QueueUpdateDraw(func() {
		fmt.Fprint(t.messages, line)
	})
}

func (t *TUIDisplay) UpdatePeers(peers []Presence) {
	t.app.QueueUpdateDraw(func() {
		t.peers.Clear()
		for _, p := range peers {
			label := p.Name
			if label == "" {
				label = p.Peer
			}
			t.peers.AddItem(label, "", 0, nil)
		}
	})
}

func (t *TUIDisplay) ShowNotification(n Notification) {
	line := fmt.Sprintf("[orange]** %s[-] %s\n", strings.ToUpper(n.Level), tview.Escape(n.Text))
	t.app.QueueUpdateDraw(func() {
		fmt.Fprint(t.messages, line)
	})
}
