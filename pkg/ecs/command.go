package ecs

// Command is a deferred world mutation.
type Command func(w *World)

// commandBuffer accumulates deferred commands while a system runs.
type commandBuffer struct {
	commands []Command
}

// push appends a command to the buffer.
func (b *commandBuffer) push(cmd Command) {
	if cmd == nil {
		return
	}
	b.commands = append(b.commands, cmd)
}

// drain returns queued commands and resets the buffer.
func (b *commandBuffer) drain() []Command {
	drained := b.commands
	b.commands = nil
	return drained
}

// Defer queues a command that runs when the current system finishes. Use it to mutate state that
// the running system is iterating over.
func (w *World) Defer(cmd Command) {
	w.deferred.push(cmd)
}

// Flush runs every deferred command in the order it was queued. Commands deferred by a flushed
// command run in the same flush.
func (w *World) Flush() {
	for {
		cmds := w.deferred.drain()
		if len(cmds) == 0 {
			return
		}
		for _, cmd := range cmds {
			cmd(w)
		}
	}
}

// PendingCommands returns the number of deferred commands that haven't been flushed.
func (w *World) PendingCommands() int {
	return len(w.deferred.commands)
}
