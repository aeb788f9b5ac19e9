package ui

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestTUISendsLinesInSubmitOrder(t *testing.T) {
	var (
		mu   sync.Mutex
		sent []string
	)
	td := NewTUIDisplay("room", func(line string) {
		mu.Lock()
		defer mu.Unlock()
		sent = append(sent, line)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go td.sendLoop(ctx)

	const n = 40
	for i := 0; i < n; i++ {
		td.submit(fmt.Sprintf("line %d", i))
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		got := append([]string(nil), sent...)
		mu.Unlock()
		if len(got) == n {
			for i, line := range got {
				if want := fmt.Sprintf("line %d", i); line != want {
					t.Fatalf("line %d sent out of order: got %q want %q", i, line, want)
				}
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected %d lines, got %d", n, len(got))
		}
		time.Sleep(5 * time.Millisecond)
	}
}
