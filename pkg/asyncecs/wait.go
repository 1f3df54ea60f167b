package asyncecs

import (
	"slices"

	"github.com/argus-labs/asyncecs/pkg/assert"
	"github.com/argus-labs/asyncecs/pkg/channel"
	"github.com/argus-labs/asyncecs/pkg/ecs"
	"github.com/rotisserie/eris"
)

// WaitKind is the kind of data a WaitFor operation waits for.
type WaitKind uint8

const (
	// WaitComponent waits for a component on a target entity.
	WaitComponent WaitKind = iota + 1
	// WaitResource waits for a resource.
	WaitResource
	// WaitMessage waits for messages.
	WaitMessage
)

// String returns the wait kind name.
func (k WaitKind) String() string {
	switch k {
	case WaitComponent:
		return "Component"
	case WaitResource:
		return "Resource"
	case WaitMessage:
		return "Message"
	default:
		return "Unknown"
	}
}

// waitKey identifies one poll system. Every wait for the same kind and type shares it.
type waitKey struct {
	kind WaitKind
	typ  ecs.TypeKey
}

func (k waitKey) String() string {
	return k.kind.String() + "(" + k.typ.String() + ")"
}

// waitRegistry maps wait keys to their poll systems and tracks which ones the driver runs. Poll
// systems are registered on first use and kept after they go idle.
type waitRegistry struct {
	systems   map[waitKey]ecs.SystemID
	active    []waitKey // Active keys in activation order
	activeSet map[waitKey]struct{}
}

func newWaitRegistry() waitRegistry {
	return waitRegistry{
		systems:   make(map[waitKey]ecs.SystemID),
		active:    make([]waitKey, 0),
		activeSet: make(map[waitKey]struct{}),
	}
}

func (r *waitRegistry) activate(key waitKey) {
	if _, ok := r.activeSet[key]; ok {
		return
	}
	r.activeSet[key] = struct{}{}
	r.active = append(r.active, key)
}

func (r *waitRegistry) deactivate(key waitKey) {
	if _, ok := r.activeSet[key]; !ok {
		return
	}
	delete(r.activeSet, key)
	r.active = slices.DeleteFunc(r.active, func(k waitKey) bool { return k == key })
}

func (r *waitRegistry) isActive(key waitKey) bool {
	_, ok := r.activeSet[key]
	return ok
}

func mustRegistry(w *ecs.World) *waitRegistry {
	registry, ok := ecs.ResourceMut[waitRegistry](w)
	assert.That(ok, "async bridge is not installed")
	return registry
}

// driveWaiters runs every active poll system once.
func driveWaiters(w *ecs.World) error {
	registry := mustRegistry(w)
	// Poll systems deactivate themselves through deferred commands, iterate over a copy anyway.
	keys := slices.Clone(registry.active)
	for _, key := range keys {
		if err := w.RunSystem(registry.systems[key]); err != nil {
			logger(w).Error().Err(err).Stringer("wait", key).Msg("poll system failed")
		}
	}
	return nil
}

// startWaiting registers the poll system of key if needed, activates it, spawns the waiter marker
// entity and polls once so a condition that already holds is delivered right away.
func startWaiting[W ecs.Component](w *ecs.World, key waitKey, waiter W, poll func() ecs.SystemFunc) {
	registry := mustRegistry(w)
	id, ok := registry.systems[key]
	if !ok {
		id = w.RegisterSystem(poll(), ecs.WithName("asyncecs.wait_for_"+key.String()))
		registry.systems[key] = id
	}
	registry.activate(key)

	eid, err := w.Spawn(ecs.Name("WaitingFor(" + key.kind.String() + ")"))
	if err != nil {
		fatal(w, eris.Wrap(err, "failed to spawn waiter"))
	}
	if err := ecs.Set(w, eid, waiter); err != nil {
		fatal(w, eris.Wrap(err, "failed to attach waiter"))
	}

	if err := w.RunSystem(id); err != nil {
		logger(w).Error().Err(err).Stringer("wait", key).Msg("poll system failed")
	}
}

// retire deactivates key when no waiter of type W is left. It runs as a deferred command so poll
// systems never change the active set while the driver iterates over it.
func retire[W ecs.Component](key waitKey) ecs.Command {
	return func(w *ecs.World) {
		if ecs.Count[W](w) == 0 {
			mustRegistry(w).deactivate(key)
		}
	}
}

// offer hands a value to a one-shot waiter and despawns the waiter on success or when nobody is
// listening anymore. Returns true only if the value was delivered.
func offer[T any](w *ecs.World, waiter ecs.EntityID, tx *channel.Sender[T], value T) bool {
	err := tx.Send(value)
	switch {
	case err == nil:
		w.Despawn(waiter)
		return true
	case eris.Is(err, channel.ErrClosed):
		w.Despawn(waiter)
		logger(w).Debug().Uint32("waiter", uint32(waiter)).Msg("waiter stopped listening")
		return false
	default:
		fatal(w, eris.Wrap(err, "one-shot wait delivered twice"))
		return false
	}
}

// -------------------------------------------------------------------------------------------------
// Components
// -------------------------------------------------------------------------------------------------

// componentWaiter waits for T on target. With take set the component is removed from the target
// when it is delivered.
//
// Entity IDs are recycled, so the waiter also remembers the generation target had when the wait
// started. Once that entity is despawned the waiter never delivers, even if a new entity gets the
// same ID; it keeps waiting until its receiver is closed.
type componentWaiter[T ecs.Component] struct {
	target     ecs.EntityID
	generation uint32
	targetGone bool
	deliver    *channel.Sender[T]
	take       bool
}

func (c componentWaiter[T]) targetIsOriginal(w *ecs.World) bool {
	if c.targetGone || !w.Alive(c.target) {
		return false
	}
	return w.Generation(c.target) == c.generation
}

func (componentWaiter[T]) Name() string {
	return "asyncecs.waiting_for_component[" + ecs.TypeOf[T]().String() + "]"
}

// WaitComponentOf builds a WaitFor that delivers the first T found on target through tx.
func WaitComponentOf[T ecs.Component](target ecs.EntityID, tx *channel.Sender[T]) WaitFor {
	return waitForComponent(target, tx, false)
}

// TakeComponentOf builds a WaitFor that delivers the first T found on target through tx and removes
// it from target in the same step.
func TakeComponentOf[T ecs.Component](target ecs.EntityID, tx *channel.Sender[T]) WaitFor {
	return waitForComponent(target, tx, true)
}

func waitForComponent[T ecs.Component](target ecs.EntityID, tx *channel.Sender[T], take bool) WaitFor {
	key := waitKey{kind: WaitComponent, typ: ecs.TypeOf[T]()}
	return WaitFor{
		Kind:   key.kind,
		Type:   key.typ,
		Target: target,
		start: func(w *ecs.World) {
			waiter := componentWaiter[T]{
				target:     target,
				generation: w.Generation(target),
				targetGone: !w.Alive(target),
				deliver:    tx,
				take:       take,
			}
			startWaiting(w, key, waiter, func() ecs.SystemFunc { return pollComponent[T](key) })
		},
	}
}

// pollComponent delivers T to every waiter whose target has it.
func pollComponent[T ecs.Component](key waitKey) ecs.SystemFunc {
	return func(w *ecs.World) error {
		waiters := ecs.With[componentWaiter[T]](w)
		if len(waiters) == 0 {
			w.Defer(retire[componentWaiter[T]](key))
			return nil
		}

		for _, eid := range waiters {
			waiter, err := ecs.Get[componentWaiter[T]](w, eid)
			if err != nil {
				continue
			}
			if waiter.deliver.IsClosed() {
				w.Despawn(eid)
				continue
			}
			if !waiter.targetIsOriginal(w) {
				continue
			}
			value, err := ecs.Get[T](w, waiter.target)
			if err != nil {
				continue
			}
			// The component is only taken once somebody received it.
			if offer(w, eid, waiter.deliver, value) && waiter.take {
				_ = ecs.Remove[T](w, waiter.target)
			}
		}
		return nil
	}
}

// -------------------------------------------------------------------------------------------------
// Resources
// -------------------------------------------------------------------------------------------------

// resourceWaiter waits for the resource T.
type resourceWaiter[T any] struct {
	deliver *channel.Sender[T]
}

func (resourceWaiter[T]) Name() string {
	return "asyncecs.waiting_for_resource[" + ecs.TypeOf[T]().String() + "]"
}

// WaitResourceOf builds a WaitFor that delivers the resource T through tx once it exists.
func WaitResourceOf[T any](tx *channel.Sender[T]) WaitFor {
	key := waitKey{kind: WaitResource, typ: ecs.TypeOf[T]()}
	waiter := resourceWaiter[T]{deliver: tx}
	return WaitFor{
		Kind: key.kind,
		Type: key.typ,
		start: func(w *ecs.World) {
			startWaiting(w, key, waiter, func() ecs.SystemFunc { return pollResource[T](key) })
		},
	}
}

// pollResource delivers T to every waiter if the resource exists.
func pollResource[T any](key waitKey) ecs.SystemFunc {
	return func(w *ecs.World) error {
		waiters := ecs.With[resourceWaiter[T]](w)
		if len(waiters) == 0 {
			w.Defer(retire[resourceWaiter[T]](key))
			return nil
		}

		value, exists := ecs.GetResource[T](w)
		for _, eid := range waiters {
			waiter, err := ecs.Get[resourceWaiter[T]](w, eid)
			if err != nil {
				continue
			}
			if waiter.deliver.IsClosed() {
				w.Despawn(eid)
				continue
			}
			if exists {
				offer(w, eid, waiter.deliver, value)
			}
		}
		return nil
	}
}

// -------------------------------------------------------------------------------------------------
// Messages
// -------------------------------------------------------------------------------------------------

// messageWaiter receives every message of type T until its channel is closed.
type messageWaiter[T any] struct {
	deliver *channel.Sender[T]
}

func (messageWaiter[T]) Name() string {
	return "asyncecs.waiting_for_message[" + ecs.TypeOf[T]().String() + "]"
}

// WaitMessageOf builds a WaitFor that streams every message of type T through tx until the
// receiving end is closed. tx should be unbounded.
func WaitMessageOf[T any](tx *channel.Sender[T]) WaitFor {
	key := waitKey{kind: WaitMessage, typ: ecs.TypeOf[T]()}
	waiter := messageWaiter[T]{deliver: tx}
	return WaitFor{
		Kind: key.kind,
		Type: key.typ,
		start: func(w *ecs.World) {
			startWaiting(w, key, waiter, func() ecs.SystemFunc { return pollMessages[T](key) })
		},
	}
}

// pollMessages reads the messages sent since its previous run and fans each one out to every
// waiter.
func pollMessages[T any](key waitKey) ecs.SystemFunc {
	reader := ecs.NewMessageReader[T]()
	return func(w *ecs.World) error {
		waiters := ecs.With[messageWaiter[T]](w)
		if len(waiters) == 0 {
			w.Defer(retire[messageWaiter[T]](key))
			return nil
		}

		msgs := reader.Read(w)
		for _, eid := range waiters {
			waiter, err := ecs.Get[messageWaiter[T]](w, eid)
			if err != nil {
				continue
			}
			if waiter.deliver.IsClosed() {
				w.Despawn(eid)
				continue
			}
			for _, msg := range msgs {
				err := waiter.deliver.Send(msg)
				if err == nil {
					continue
				}
				if eris.Is(err, channel.ErrClosed) {
					w.Despawn(eid)
					break
				}
				fatal(w, eris.Wrap(err, "message stream is full"))
			}
		}
		return nil
	}
}
