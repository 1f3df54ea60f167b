package asyncecs

import (
	"testing"

	"github.com/argus-labs/asyncecs/pkg/channel"
	"github.com/argus-labs/asyncecs/pkg/ecs"
	"github.com/argus-labs/asyncecs/pkg/testutils"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBridge(t *testing.T) (*ecs.World, *AsyncWorld) {
	t.Helper()
	w := ecs.NewWorld()
	aw, err := New(w)
	require.NoError(t, err)
	return w, aw
}

func tick(t *testing.T, w *ecs.World, n int) {
	t.Helper()
	for range n {
		require.NoError(t, w.Tick())
	}
}

func TestInstall(t *testing.T) {
	t.Parallel()

	w := ecs.NewWorld()
	require.NoError(t, Install(w, Options{QueueCapacity: 32}))
	assert.Equal(t, 32, cap(mustQueue(w).ops))

	err := Install(w, Options{})
	assert.True(t, eris.Is(err, ErrAlreadyInstalled))

	// New reuses the installed bridge.
	_, err = New(w)
	require.NoError(t, err)
	assert.Equal(t, 32, cap(mustQueue(w).ops))

	assert.Error(t, Install(ecs.NewWorld(), Options{ChannelCapacity: -2}))
}

func TestInstall_ConfigFromEnv(t *testing.T) {
	t.Setenv("ASYNCECS_QUEUE_CAPACITY", "64")
	t.Setenv("ASYNCECS_CHANNEL_CAPACITY", "1")

	w := ecs.NewWorld()
	require.NoError(t, Install(w, Options{}))
	assert.Equal(t, 64, cap(mustQueue(w).ops))
	assert.Equal(t, 1, mustQueue(w).channelCapacity)

	t.Setenv("ASYNCECS_QUEUE_CAPACITY", "-1")
	assert.Error(t, Install(ecs.NewWorld(), Options{}))
}

func TestOperations_AppliedOnlyAtTheEndOfATick(t *testing.T) {
	t.Parallel()

	w, aw := newTestBridge(t)
	var hookSaw []bool
	applied := false
	w.AddSystem(func(*ecs.World) error {
		hookSaw = append(hookSaw, applied)
		return nil
	}, ecs.WithHook(ecs.PostUpdate))

	require.NoError(t, aw.ApplyCommand(func(*ecs.World) { applied = true }))
	assert.False(t, applied)

	tick(t, w, 2)
	assert.True(t, applied)
	// Property: operations are applied in Last, after every other hook of the tick.
	assert.Equal(t, []bool{false, true}, hookSaw)
}

// -------------------------------------------------------------------------------------------------
// Model-Based Fuzzing
//
// Several bridges (and clones of them) send numbered commands at random while handles are closed
// and the world ticks at random. The model is the list of commands sent per bridge since the last
// tick plus the live handles of every bridge.
// -------------------------------------------------------------------------------------------------

func TestOperations_ModelBasedFuzz(t *testing.T) {
	t.Parallel()
	prng := testutils.NewRand(t)

	const (
		opsMax  = 1 << 12
		bridges = 4
	)

	type record struct{ bridge, seq int }

	w := ecs.NewWorld()
	var (
		handles [][]*AsyncWorld // Every live handle of every bridge, in creation order
		pending [][]record
		nextSeq []int
		applied []record
	)
	spawnBridges := func() {
		for range bridges {
			aw, err := New(w)
			require.NoError(t, err)
			handles = append(handles, []*AsyncWorld{aw})
			pending = append(pending, nil)
			nextSeq = append(nextSeq, 0)
		}
	}
	liveBridges := func() int {
		n := 0
		for _, hs := range handles {
			if len(hs) > 0 {
				n++
			}
		}
		return n
	}
	spawnBridges()

	for range opsMax {
		switch testutils.RandWeightedOp(prng, bridgeOps) {
		case bridgeSend:
			b := prng.IntN(len(handles))
			if len(handles[b]) == 0 {
				continue
			}
			aw := handles[b][prng.IntN(len(handles[b]))]
			rec := record{bridge: b, seq: nextSeq[b]}
			nextSeq[b]++
			require.NoError(t, aw.ApplyCommand(func(*ecs.World) { applied = append(applied, rec) }))
			pending[b] = append(pending[b], rec)

		case bridgeClone:
			b := prng.IntN(len(handles))
			if len(handles[b]) == 0 {
				continue
			}
			handles[b] = append(handles[b], handles[b][0].Clone())

		case bridgeClose:
			b := prng.IntN(len(handles))
			if len(handles[b]) == 0 {
				continue
			}
			i := prng.IntN(len(handles[b]))
			aw := handles[b][i]
			aw.Close()
			handles[b] = append(handles[b][:i], handles[b][i+1:]...)

			// Property: a closed handle can't be revived by cloning it.
			err := aw.Clone().ApplyCommand(func(*ecs.World) { t.Error("applied through a closed handle") })
			assert.True(t, eris.Is(err, ErrBridgeClosed))

		case bridgeTick:
			before := len(applied)
			require.NoError(t, w.Tick())

			// Property: a tick applies every pending operation exactly once, bridges in creation
			// order and each bridge in send order, including operations sent right before the last
			// handle of a bridge was closed.
			want := []record{}
			for b := range pending {
				want = append(want, pending[b]...)
				pending[b] = nil
			}
			got := append([]record{}, applied[before:]...)
			assert.Equal(t, want, got)

			// Property: the buffer is empty after every tick.
			assert.Empty(t, mustQueue(w).ops)

			// Property: the receiver of a bridge is collected once all its handles are closed.
			assert.Equal(t, liveBridges(), ecs.Count[operationReceiver](w))
			if liveBridges() == 0 {
				spawnBridges()
			}

		default:
			panic("unreachable")
		}
	}
}

type bridgeOp uint8

const (
	bridgeSend  bridgeOp = 65
	bridgeClone bridgeOp = 6
	bridgeClose bridgeOp = 4
	bridgeTick  bridgeOp = 25
)

var bridgeOps = []bridgeOp{bridgeSend, bridgeClone, bridgeClose, bridgeTick}

func TestOperations_DrainIsIdempotent(t *testing.T) {
	t.Parallel()

	w, aw := newTestBridge(t)
	runs := 0
	require.NoError(t, aw.ApplyCommand(func(*ecs.World) { runs++ }))

	tick(t, w, 5)
	assert.Equal(t, 1, runs)
	assert.Empty(t, mustQueue(w).ops)
}

func TestQueue_IsAppliedAsOneUnit(t *testing.T) {
	t.Parallel()

	w := ecs.NewWorld()
	first, err := New(w)
	require.NoError(t, err)
	second, err := New(w)
	require.NoError(t, err)

	var log []string
	record := func(s string) Operation {
		return RawCommand(func(*ecs.World) { log = append(log, s) })
	}

	require.NoError(t, second.Apply(record("second")))
	require.NoError(t, first.Queue(
		record("a"),
		Queue{record("b"), Queue{record("c")}},
		RawCommand(func(*ecs.World) {
			// Sent while the queue is applied, so it lands in the next tick.
			_ = first.Apply(record("late"))
		}),
		record("d"),
	))
	require.NoError(t, first.Apply(record("e")))

	tick(t, w, 1)
	assert.Equal(t, []string{"a", "b", "c", "d", "e", "second"}, log)

	tick(t, w, 1)
	assert.Equal(t, "late", log[len(log)-1])
}

func TestReceiver_IsCollectedOnceEveryHandleIsClosed(t *testing.T) {
	t.Parallel()

	w, aw := newTestBridge(t)
	clone := aw.Clone()
	assert.Equal(t, aw.ID(), clone.ID())
	assert.Equal(t, 1, ecs.Count[operationReceiver](w))
	marker, ok := ecs.FindByName(w, "OperationReceiver")
	require.True(t, ok)

	applied := false
	require.NoError(t, aw.ApplyCommand(func(*ecs.World) { applied = true }))
	aw.Close()
	tick(t, w, 1)
	assert.True(t, applied)
	assert.Equal(t, 1, ecs.Count[operationReceiver](w))

	assert.True(t, eris.Is(aw.Apply(RawCommand(func(*ecs.World) {})), ErrBridgeClosed))

	// Operations sent before the last close are still applied.
	applied = false
	require.NoError(t, clone.ApplyCommand(func(*ecs.World) { applied = true }))
	clone.Close()
	tick(t, w, 1)
	assert.True(t, applied)
	assert.Equal(t, 0, ecs.Count[operationReceiver](w))
	assert.False(t, w.Alive(marker))

	// The receiver is gone, so a clone of a closed handle must not accept operations.
	late := clone.Clone()
	err := late.ApplyCommand(func(*ecs.World) { applied = false })
	assert.True(t, eris.Is(err, ErrBridgeClosed))
	tick(t, w, 1)
	assert.True(t, applied)
}

func TestResultToAClosedReceiverIsFatal(t *testing.T) {
	t.Parallel()

	w, aw := newTestBridge(t)
	tx, rx := channel.NewOneShot[ecs.EntityID]()
	rx.Close()
	require.NoError(t, aw.Apply(SpawnEmpty{Result: tx}))

	assert.Panics(t, func() { _ = w.Tick() })
}

// -------------------------------------------------------------------------------------------------
// Operation semantics
// -------------------------------------------------------------------------------------------------

func TestOperations_Apply(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		testFn func(*testing.T, *ecs.World, *AsyncWorld)
	}{
		{
			name: "spawn variants deliver the entity",
			testFn: func(t *testing.T, w *ecs.World, aw *AsyncWorld) {
				require.NoError(t, ecs.RegisterComponent[testutils.Health](w))

				txEmpty, rxEmpty := channel.NewOneShot[ecs.EntityID]()
				txNamed, rxNamed := channel.NewOneShot[ecs.EntityID]()
				txComps, rxComps := channel.NewOneShot[ecs.EntityID]()
				require.NoError(t, aw.Apply(SpawnEmpty{Result: txEmpty}))
				require.NoError(t, aw.Apply(SpawnNamed{Name: "Frank", Result: txNamed}))
				require.NoError(t, aw.Apply(SpawnWithComponents{
					Components: []ecs.Component{testutils.Health{Value: 3}, testutils.Velocity{X: 1}},
					Result:     txComps,
				}))
				tick(t, w, 1)

				empty, err := rxEmpty.TryRecv()
				require.NoError(t, err)
				assert.True(t, w.Alive(empty))

				named, err := rxNamed.TryRecv()
				require.NoError(t, err)
				name, err := ecs.Get[ecs.Name](w, named)
				require.NoError(t, err)
				assert.Equal(t, ecs.Name("Frank"), name)

				// The unregistered Velocity is skipped, the entity is spawned regardless.
				comps, err := rxComps.TryRecv()
				require.NoError(t, err)
				health, err := ecs.Get[testutils.Health](w, comps)
				require.NoError(t, err)
				assert.Equal(t, 3, health.Value)
				assert.False(t, ecs.Has[testutils.Velocity](w, comps))
			},
		},
		{
			name: "component insert and remove",
			testFn: func(t *testing.T, w *ecs.World, aw *AsyncWorld) {
				eid, err := w.Spawn()
				require.NoError(t, err)
				require.NoError(t, ecs.RegisterComponent[testutils.Label](w))

				require.NoError(t, aw.Queue(
					InsertComponentOf(eid, testutils.Position{X: 1, Y: 1}),
					InsertComponent{Entity: eid, Component: testutils.Label{Text: "erased"}},
					InsertBundle{Entity: eid, Components: []ecs.Component{testutils.Label{Text: "bundle"}}},
				))
				tick(t, w, 1)
				assert.True(t, ecs.Has[testutils.Position](w, eid))
				label, err := ecs.Get[testutils.Label](w, eid)
				require.NoError(t, err)
				assert.Equal(t, "bundle", label.Text)

				require.NoError(t, aw.Queue(
					RemoveComponentOf[testutils.Position](eid),
					RemoveBundle{Entity: eid, Types: []ecs.TypeKey{ecs.TypeOf[testutils.Label]()}},
					// Removing something that isn't there is a no-op.
					RemoveComponentOf[testutils.Health](eid),
				))
				tick(t, w, 1)
				assert.False(t, ecs.Has[testutils.Position](w, eid))
				assert.False(t, ecs.Has[testutils.Label](w, eid))
			},
		},
		{
			name: "despawn is recursive",
			testFn: func(t *testing.T, w *ecs.World, aw *AsyncWorld) {
				root, err := w.Spawn()
				require.NoError(t, err)
				child, err := w.SpawnChild(root)
				require.NoError(t, err)

				require.NoError(t, aw.Despawn(root))
				require.NoError(t, aw.Despawn(root))
				tick(t, w, 1)
				assert.False(t, w.Alive(root))
				assert.False(t, w.Alive(child))
			},
		},
		{
			name: "resources",
			testFn: func(t *testing.T, w *ecs.World, aw *AsyncWorld) {
				require.NoError(t, aw.Apply(InsertResourceOf(testutils.Counter{Value: 1})))
				require.NoError(t, aw.Apply(InsertResource{Value: testutils.Settings{Players: 4}}))
				tick(t, w, 1)
				counter, ok := ecs.GetResource[testutils.Counter](w)
				require.True(t, ok)
				assert.Equal(t, 1, counter.Value)
				settings, ok := ecs.GetResource[testutils.Settings](w)
				require.True(t, ok)
				assert.Equal(t, 4, settings.Players)

				require.NoError(t, aw.Apply(RemoveResourceOf[testutils.Counter]()))
				require.NoError(t, aw.Apply(RemoveResource{Type: ecs.TypeOf[testutils.Settings]()}))
				tick(t, w, 1)
				assert.False(t, ecs.HasResource[testutils.Counter](w))
				assert.False(t, ecs.HasResource[testutils.Settings](w))
			},
		},
		{
			name: "messages",
			testFn: func(t *testing.T, w *ecs.World, aw *AsyncWorld) {
				reader := ecs.NewMessageReader[testutils.Ping]()
				require.NoError(t, aw.Apply(SendMessageOf(testutils.Ping{Seq: 1})))
				require.NoError(t, aw.Apply(SendMessage{Message: testutils.Ping{Seq: 2}}))
				tick(t, w, 1)
				assert.Equal(t, []testutils.Ping{{Seq: 1}, {Seq: 2}}, reader.Read(w))

				// A type-erased send of an unknown type is logged and dropped.
				require.NoError(t, aw.Apply(SendMessage{Message: testutils.Chat{Text: "lost"}}))
				tick(t, w, 1)
				assert.Nil(t, ecs.NewMessageReader[testutils.Chat]().Read(w))
			},
		},
		{
			name: "run system",
			testFn: func(t *testing.T, w *ecs.World, aw *AsyncWorld) {
				runs := 0
				id := w.RegisterSystem(func(*ecs.World) error { runs++; return nil })
				require.NoError(t, aw.Apply(RunSystem{System: id}))
				require.NoError(t, aw.Apply(RunSystem{System: id + 100}))
				tick(t, w, 1)
				assert.Equal(t, 1, runs)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			w, aw := newTestBridge(t)
			tt.testFn(t, w, aw)
		})
	}
}

func TestWaitFor_MustBeBuiltByAConstructor(t *testing.T) {
	t.Parallel()

	w, aw := newTestBridge(t)
	require.NoError(t, aw.Apply(WaitFor{Kind: WaitResource, Type: ecs.TypeOf[testutils.Counter]()}))
	assert.Panics(t, func() { _ = w.Tick() })
}
