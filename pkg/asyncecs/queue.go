package asyncecs

import (
	"cmp"
	"slices"

	"github.com/argus-labs/asyncecs/pkg/assert"
	"github.com/argus-labs/asyncecs/pkg/channel"
	"github.com/argus-labs/asyncecs/pkg/ecs"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

// ErrAlreadyInstalled is returned when Install is called twice on the same world.
var ErrAlreadyInstalled = eris.New("async bridge is already installed")

// operationQueue is the per-world buffer of operations received during the current tick. It is
// empty outside of the Last hook.
type operationQueue struct {
	ops             []Operation
	nextSeq         uint64 // Sequence number of the next operation receiver
	channelCapacity int
	logger          zerolog.Logger
}

// operationReceiver is attached to the marker entity that owns the receiving end of an AsyncWorld.
type operationReceiver struct {
	seq    uint64 // Receivers are drained in ascending seq order
	bridge uuid.UUID
	rx     *channel.Receiver[Operation]
}

func (operationReceiver) Name() string { return "asyncecs.operation_receiver" }

// Install adds the bridge to a world: the operation buffer and wait registry resources, the drain
// and apply systems in Last, and the wait driver in PostUpdate. Install must be called from the
// world goroutine before the world is ticked. New calls it with default options when needed.
func Install(w *ecs.World, opts Options) error {
	if ecs.HasResource[operationQueue](w) {
		return ErrAlreadyInstalled
	}

	cfg, err := loadBridgeConfig()
	if err != nil {
		return eris.Wrap(err, "failed to load bridge config")
	}
	options := newDefaultOptions()
	cfg.applyToOptions(&options)
	options.apply(opts)
	if err := options.validate(); err != nil {
		return eris.Wrap(err, "invalid bridge options")
	}

	log := w.Logger().With().Str("component", "asyncecs").Logger()
	if options.Logger != nil {
		log = *options.Logger
	}

	ecs.InsertResource(w, operationQueue{
		ops:             make([]Operation, 0, options.QueueCapacity),
		nextSeq:         0,
		channelCapacity: options.ChannelCapacity,
		logger:          log,
	})
	ecs.InsertResource(w, newWaitRegistry())

	w.AddSystem(driveWaiters, ecs.WithHook(ecs.PostUpdate), ecs.WithName("asyncecs.drive_waiters"))
	// The drain and apply systems are registered back to back so nothing runs between them.
	w.AddSystem(receiveOperations, ecs.WithHook(ecs.Last), ecs.WithName("asyncecs.receive_operations"))
	w.AddSystem(applyOperations, ecs.WithHook(ecs.Last), ecs.WithName("asyncecs.apply_operations"))
	return nil
}

// receiveOperations drains every operation channel into the operation buffer. Channels are visited
// in the order their AsyncWorld was created. Channels whose senders are all closed are collected by
// despawning their marker entity.
func receiveOperations(w *ecs.World) error {
	queue := mustQueue(w)
	assert.That(len(queue.ops) == 0, "operation buffer must be empty before draining")

	type receiver struct {
		eid ecs.EntityID
		operationReceiver
	}
	receivers := make([]receiver, 0, ecs.Count[operationReceiver](w))
	ecs.Each(w, func(eid ecs.EntityID, r operationReceiver) bool {
		receivers = append(receivers, receiver{eid: eid, operationReceiver: r})
		return true
	})
	slices.SortFunc(receivers, func(a, b receiver) int { return cmp.Compare(a.seq, b.seq) })

	for _, r := range receivers {
		if err := r.rx.DrainInto(&queue.ops); err != nil {
			assert.That(eris.Is(err, channel.ErrClosed), "unexpected drain error: %v", err)
			w.DespawnRecursive(r.eid)
			queue.logger.Debug().Str("bridge", r.bridge.String()).Msg("operation channel closed")
		}
	}
	return nil
}

// applyOperations applies the buffered operations in order and empties the buffer.
func applyOperations(w *ecs.World) error {
	queue := mustQueue(w)
	for i := range queue.ops {
		queue.ops[i].apply(w)
		queue.ops[i] = nil
	}
	queue.ops = queue.ops[:0]
	w.Flush()
	return nil
}

// mustQueue returns the operation buffer of an installed bridge.
func mustQueue(w *ecs.World) *operationQueue {
	queue, ok := ecs.ResourceMut[operationQueue](w)
	assert.That(ok, "async bridge is not installed")
	return queue
}

// logger returns the bridge logger, or the world logger if the bridge isn't installed.
func logger(w *ecs.World) *zerolog.Logger {
	if queue, ok := ecs.ResourceMut[operationQueue](w); ok {
		return &queue.logger
	}
	return w.Logger()
}

// fatal reports a broken bridge invariant and aborts the world goroutine.
func fatal(w *ecs.World, err error) {
	logger(w).Error().Err(err).Msg("async bridge invariant violated")
	panic(err)
}
