package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/argus-labs/asyncecs/pkg/asyncecs"
	"github.com/argus-labs/asyncecs/pkg/ecs"
	"github.com/rotisserie/eris"
)

// KeyboardInput buffers key presses until something waits for them.
type KeyboardInput struct {
	Pending []string
	Closed  bool
}

// WaitingForKey marks an entity that wants the next key press.
type WaitingForKey struct{}

func (WaitingForKey) Name() string { return "waiting_for_key" }

// KeyPressed is given to a waiting entity. EOF is set once the input is exhausted.
type KeyPressed struct {
	Key string `json:"key"`
	EOF bool   `json:"eof,omitempty"`
}

func (KeyPressed) Name() string { return "key_pressed" }

// pressKeys hands buffered keys to waiting entities, one key per entity per tick. An entity that
// still holds a key nobody took is skipped so the key isn't overwritten.
func pressKeys(w *ecs.World) error {
	input, ok := ecs.ResourceMut[KeyboardInput](w)
	if !ok {
		return nil
	}
	for _, eid := range ecs.Excluding[WaitingForKey, KeyPressed](w) {
		var pressed KeyPressed
		switch {
		case len(input.Pending) > 0:
			pressed.Key = input.Pending[0]
			input.Pending = input.Pending[1:]
		case input.Closed:
			pressed.EOF = true
		default:
			return nil
		}
		if err := ecs.Remove[WaitingForKey](w, eid); err != nil {
			return eris.Wrap(err, "failed to clear waiting marker")
		}
		if err := ecs.Set(w, eid, pressed); err != nil {
			return eris.Wrap(err, "failed to press key")
		}
	}
	return nil
}

// feedKeys reads one key per line and pushes it into KeyboardInput. It marks the input closed at
// EOF. Reading happens on its own goroutine so a blocked reader doesn't hold up ctx.
func feedKeys(ctx context.Context, aw *asyncecs.AsyncWorld, in io.Reader, bindings Bindings) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(in)
		defer func() {
			readErr <- scanner.Err()
			close(lines)
		}()
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				if err := <-readErr; err != nil {
					return eris.Wrap(err, "failed to read keys")
				}
				return aw.ApplyCommand(func(w *ecs.World) {
					input := mustInput(w)
					input.Closed = true
				})
			}
			key, ok := bindings.Resolve(line)
			if !ok {
				continue
			}
			err := aw.ApplyCommand(func(w *ecs.World) {
				input := mustInput(w)
				input.Pending = append(input.Pending, key)
			})
			if err != nil {
				return err
			}
		}
	}
}

// awaitKeys waits for key presses until the input is exhausted or limit keys were seen. A limit
// of 0 means no limit.
func awaitKeys(ctx context.Context, aw *asyncecs.AsyncWorld, out io.Writer, limit int) error {
	listener, err := aw.SpawnNamed(ctx, "KeyListener")
	if err != nil {
		return err
	}

	for seen := 0; limit == 0 || seen < limit; seen++ {
		pressed, err := asyncecs.InsertWaitRemove[WaitingForKey, KeyPressed](ctx, listener, WaitingForKey{})
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			return err
		}
		if pressed.EOF {
			break
		}
		if _, err := fmt.Fprintf(out, "pressed %s\n", pressed.Key); err != nil {
			return eris.Wrap(err, "failed to write key")
		}
	}
	return nil
}

func mustInput(w *ecs.World) *KeyboardInput {
	if !ecs.HasResource[KeyboardInput](w) {
		ecs.InsertResource(w, KeyboardInput{})
	}
	input, _ := ecs.ResourceMut[KeyboardInput](w)
	return input
}

// normalize trims a raw input line.
func normalize(line string) string {
	return strings.TrimSpace(line)
}
