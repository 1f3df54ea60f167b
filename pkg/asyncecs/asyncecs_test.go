package asyncecs_test

import (
	"context"
	"testing"
	"time"

	"github.com/argus-labs/asyncecs/pkg/asyncecs"
	"github.com/argus-labs/asyncecs/pkg/ecs"
	. "github.com/argus-labs/asyncecs/pkg/testutils"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// runAsync runs task on its own goroutine and ticks w on the test goroutine until the task returns.
// The world is ticked once more afterwards so operations the task sent last are applied.
func runAsync(t *testing.T, w *ecs.World, task func(ctx context.Context) error) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- task(ctx) }()

	for {
		select {
		case err := <-done:
			require.NoError(t, err)
			require.NoError(t, w.Tick())
			return
		case <-ctx.Done():
			require.FailNow(t, "async task timed out")
		default:
		}
		require.NoError(t, w.Tick())
		time.Sleep(time.Millisecond)
	}
}

func newWorld(t *testing.T) (*ecs.World, *asyncecs.AsyncWorld) {
	t.Helper()
	w := ecs.NewWorld()
	aw, err := asyncecs.New(w)
	require.NoError(t, err)
	return w, aw
}

func TestSpawnNamedThenWaitForComponent(t *testing.T) {
	t.Parallel()

	w, aw := newWorld(t)
	var (
		frank *asyncecs.AsyncEntity
		pos   Position
	)
	runAsync(t, w, func(ctx context.Context) error {
		var err error
		frank, err = aw.SpawnNamed(ctx, "Frank")
		if err != nil {
			return err
		}
		if err := asyncecs.InsertComponentOn(frank, Position{X: 2, Y: 3}); err != nil {
			return err
		}
		pos, err = asyncecs.WaitForComponent[Position](ctx, frank)
		return err
	})

	assert.Equal(t, Position{X: 2, Y: 3}, pos)
	eid, ok := ecs.FindByName(w, "Frank")
	require.True(t, ok)
	assert.Equal(t, frank.ID(), eid)
}

func TestIOSystem(t *testing.T) {
	t.Parallel()

	w, aw := newWorld(t)
	eid, err := w.Spawn()
	require.NoError(t, err)
	require.NoError(t, ecs.Set(w, eid, Tally{Value: 4}))

	var out uint8
	runAsync(t, w, func(ctx context.Context) error {
		increment, err := asyncecs.RegisterIO(ctx, aw, func(w *ecs.World, target ecs.EntityID) (struct{}, error) {
			tally, err := ecs.Get[Tally](w, target)
			if err != nil {
				return struct{}{}, err
			}
			tally.Value++
			return struct{}{}, ecs.Set(w, target, tally)
		})
		if err != nil {
			return err
		}
		defer increment.Close()

		read, err := asyncecs.RegisterIO(ctx, aw, func(w *ecs.World, target ecs.EntityID) (uint8, error) {
			tally, err := ecs.Get[Tally](w, target)
			return tally.Value, err
		})
		if err != nil {
			return err
		}
		defer read.Close()

		if _, err := increment.Run(ctx, eid); err != nil {
			return err
		}
		out, err = read.Run(ctx, eid)
		return err
	})

	assert.Equal(t, uint8(5), out)
	tally, err := ecs.Get[Tally](w, eid)
	require.NoError(t, err)
	assert.Equal(t, uint8(5), tally.Value)
}

func TestIOSystem_ErrorsAndRelease(t *testing.T) {
	t.Parallel()

	w, aw := newWorld(t)
	errOdd := eris.New("odd input")

	var system ecs.SystemID
	runAsync(t, w, func(ctx context.Context) error {
		half, err := asyncecs.RegisterIO(ctx, aw, func(_ *ecs.World, in int) (int, error) {
			if in%2 != 0 {
				return 0, errOdd
			}
			return in / 2, nil
		})
		if err != nil {
			return err
		}
		system = half.ID()

		clone := half.Clone()
		got, err := clone.Run(ctx, 8)
		if err != nil {
			return err
		}
		assert.Equal(t, 4, got)

		_, err = half.Run(ctx, 3)
		assert.True(t, eris.Is(err, errOdd))

		if err := half.Close(); err != nil {
			return err
		}
		assert.NoError(t, half.Close())
		_, err = half.Run(ctx, 2)
		assert.True(t, eris.Is(err, asyncecs.ErrHandleClosed))

		// The clone keeps the system alive.
		got, err = clone.Run(ctx, 2)
		if err != nil {
			return err
		}
		assert.Equal(t, 1, got)
		return clone.Close()
	})

	assert.False(t, w.HasSystem(system))
	_, ok := ecs.FindByName(w, "IOSystemBeacon")
	assert.False(t, ok)
}

func TestConcurrentProducers(t *testing.T) {
	t.Parallel()

	w, aw := newWorld(t)
	ecs.InsertResource(w, Counter{})

	const perProducer = 50
	runAsync(t, w, func(ctx context.Context) error {
		g, _ := errgroup.WithContext(ctx)
		for range 2 {
			producer := aw.Clone()
			g.Go(func() error {
				defer producer.Close()
				for range perProducer {
					err := producer.ApplyCommand(func(w *ecs.World) {
						counter, _ := ecs.ResourceMut[Counter](w)
						counter.Value++
					})
					if err != nil {
						return err
					}
				}
				return nil
			})
		}
		return g.Wait()
	})

	counter, ok := ecs.GetResource[Counter](w)
	require.True(t, ok)
	assert.Equal(t, 2*perProducer, counter.Value)
}

func TestInsertWaitRemove(t *testing.T) {
	t.Parallel()

	w, aw := newWorld(t)
	// Answers every request in the tick after it was made.
	w.AddSystem(func(w *ecs.World) error {
		for _, eid := range ecs.With[Request](w) {
			req, err := ecs.Take[Request](w, eid)
			if err != nil {
				return err
			}
			if err := ecs.Set(w, eid, Response{ID: req.ID, Result: "done"}); err != nil {
				return err
			}
		}
		return nil
	}, ecs.WithHook(ecs.PreUpdate))

	var (
		entity    *asyncecs.AsyncEntity
		responses []Response
	)
	runAsync(t, w, func(ctx context.Context) error {
		var err error
		entity, err = aw.SpawnEmpty(ctx)
		if err != nil {
			return err
		}
		for i := range 3 {
			resp, err := asyncecs.InsertWaitRemove[Request, Response](ctx, entity, Request{ID: i})
			if err != nil {
				return err
			}
			responses = append(responses, resp)
		}
		return nil
	})

	require.Len(t, responses, 3)
	for i, resp := range responses {
		assert.Equal(t, Response{ID: i, Result: "done"}, resp)
	}
	assert.False(t, ecs.Has[Request](w, entity.ID()))
	assert.False(t, ecs.Has[Response](w, entity.ID()))
}

func TestAsyncEntity(t *testing.T) {
	t.Parallel()

	w, aw := newWorld(t)
	require.NoError(t, ecs.RegisterComponent[Health](w))
	require.NoError(t, ecs.RegisterComponent[Label](w))

	var entity *asyncecs.AsyncEntity
	runAsync(t, w, func(ctx context.Context) error {
		var err error
		entity, err = aw.Spawn(ctx, Health{Value: 10})
		if err != nil {
			return err
		}
		if err := entity.Insert(Label{Text: "boss"}); err != nil {
			return err
		}
		label, err := asyncecs.WaitForComponent[Label](ctx, entity)
		if err != nil {
			return err
		}
		assert.Equal(t, "boss", label.Text)

		pending, err := asyncecs.StartWaitingFor[Health](entity)
		if err != nil {
			return err
		}
		health, err := pending.Wait(ctx)
		if err != nil {
			return err
		}
		assert.Equal(t, 10, health.Value)

		if err := asyncecs.RemoveComponentFrom[Label](entity); err != nil {
			return err
		}
		return entity.RemoveByType(ecs.TypeOf[Health]())
	})

	assert.False(t, ecs.Has[Label](w, entity.ID()))
	assert.False(t, ecs.Has[Health](w, entity.ID()))

	require.NoError(t, entity.Despawn())
	assert.True(t, eris.Is(entity.Despawn(), asyncecs.ErrEntityDespawned))
	assert.True(t, eris.Is(entity.Insert(Health{}), asyncecs.ErrEntityDespawned))
	_, err := asyncecs.WaitForComponent[Health](context.Background(), entity)
	assert.True(t, eris.Is(err, asyncecs.ErrEntityDespawned))

	require.NoError(t, w.Tick())
	assert.False(t, w.Alive(entity.ID()))
}

func TestCancelledWait(t *testing.T) {
	t.Parallel()

	w, aw := newWorld(t)
	eid, err := w.Spawn()
	require.NoError(t, err)

	runAsync(t, w, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()
		_, err := asyncecs.WaitForComponent[Position](ctx, aw.Entity(eid))
		if !eris.Is(err, context.DeadlineExceeded) {
			return eris.Wrap(err, "expected a deadline")
		}
		return nil
	})

	// The waiter notices its receiver is gone on the next poll.
	require.NoError(t, w.Tick())
	_, ok := ecs.FindByName(w, "WaitingFor(Component)")
	assert.False(t, ok)
}

func TestResources(t *testing.T) {
	t.Parallel()

	w, aw := newWorld(t)
	var got Settings
	runAsync(t, w, func(ctx context.Context) error {
		pending, err := asyncecs.Resource[Settings](aw).StartWaiting()
		if err != nil {
			return err
		}
		if err := asyncecs.Resource[Settings](aw).Insert(Settings{Difficulty: "hard", Players: 3}); err != nil {
			return err
		}
		got, err = pending.Wait(ctx)
		if err != nil {
			return err
		}

		again, err := asyncecs.WaitForResource[Settings](ctx, aw)
		if err != nil {
			return err
		}
		assert.Equal(t, got, again)
		return asyncecs.Resource[Settings](aw).Remove()
	})

	assert.Equal(t, Settings{Difficulty: "hard", Players: 3}, got)
	assert.False(t, ecs.HasResource[Settings](w))
}

func TestMessages(t *testing.T) {
	t.Parallel()

	w, aw := newWorld(t)
	var got []Chat
	runAsync(t, w, func(ctx context.Context) error {
		chat := asyncecs.Messages[Chat](aw)
		stream, err := chat.Subscribe()
		if err != nil {
			return err
		}
		defer stream.Close()

		if err := chat.Send(Chat{From: "a", Text: "hello"}); err != nil {
			return err
		}
		if err := asyncecs.Messages[Chat](aw).Send(Chat{From: "b", Text: "hi"}); err != nil {
			return err
		}
		for range 2 {
			msg, err := stream.Next(ctx)
			if err != nil {
				return err
			}
			got = append(got, msg)
		}
		return nil
	})

	assert.Equal(t, []Chat{{From: "a", Text: "hello"}, {From: "b", Text: "hi"}}, got)
}

func TestMessages_Wait(t *testing.T) {
	t.Parallel()

	w, aw := newWorld(t)
	// Keeps sending until somebody listens.
	w.AddSystem(func(w *ecs.World) error {
		ecs.SendMessage(w, Ping{Seq: int(w.TickCount())})
		return nil
	})

	var got Ping
	runAsync(t, w, func(ctx context.Context) error {
		var err error
		got, err = asyncecs.Messages[Ping](aw).Wait(ctx)
		return err
	})
	assert.GreaterOrEqual(t, got.Seq, 0)
}

func TestAsyncSystem(t *testing.T) {
	t.Parallel()

	w, aw := newWorld(t)
	runs := 0

	var id ecs.SystemID
	runAsync(t, w, func(ctx context.Context) error {
		system, err := aw.RegisterSystem(ctx, func(*ecs.World) error {
			runs++
			return nil
		})
		if err != nil {
			return err
		}
		id = system.ID()

		clone := system.Clone()
		if err := system.Run(); err != nil {
			return err
		}
		if err := system.Close(); err != nil {
			return err
		}
		if !eris.Is(system.Run(), asyncecs.ErrHandleClosed) {
			return eris.New("run after close should fail")
		}
		if err := clone.Run(); err != nil {
			return err
		}
		return clone.Close()
	})

	assert.Equal(t, 2, runs)
	assert.False(t, w.HasSystem(id))
}

func TestAsyncWorld_Closed(t *testing.T) {
	t.Parallel()

	_, aw := newWorld(t)
	aw.Close()

	_, err := aw.SpawnEmpty(context.Background())
	assert.True(t, eris.Is(err, asyncecs.ErrBridgeClosed))
	assert.True(t, eris.Is(asyncecs.Resource[Counter](aw).Insert(Counter{}), asyncecs.ErrBridgeClosed))
}
