package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/opd-ai/trackcore/pool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTimeout = 2 * time.Second

// connectedRuntimes returns a main and a worker runtime joined by a Pipe.
func connectedRuntimes(t *testing.T) (*Runtime, *Runtime) {
	t.Helper()
	mainRT := NewRuntime("main")
	workerRT := NewRuntime("worker")
	a, b := Pipe()
	require.NoError(t, mainRT.Attach(a))
	require.NoError(t, workerRT.Attach(b))
	t.Cleanup(func() {
		workerRT.Close()
		mainRT.Close()
	})
	return mainRT, workerRT
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	t.Cleanup(cancel)
	return ctx
}

// echoHandler replies with the arguments it received.
var echoHandler = HandlerFunc(func(_ context.Context, _ *Backend, msg Message) (Reply, error) {
	return Reply{Args: msg.Args, Transfer: msg.Transfer}, nil
})

func startedFrontend(t *testing.T, mainRT, workerRT *Runtime, name string, h ActionHandler, recv Receiver) (*Backend, *Frontend) {
	t.Helper()
	backend, err := workerRT.CreateBackend(name, h)
	require.NoError(t, err)
	require.NoError(t, backend.Start())
	fe := mainRT.Frontend(name, recv)
	require.NoError(t, fe.Ready(testContext(t)))
	return backend, fe
}

func TestBackendStartTwice(t *testing.T) {
	_, workerRT := connectedRuntimes(t)
	backend, err := workerRT.CreateBackend("audio", echoHandler)
	require.NoError(t, err)

	require.NoError(t, backend.Start())
	assert.ErrorIs(t, backend.Start(), ErrAlreadyStarted)
}

func TestCreateBackendValidation(t *testing.T) {
	rt := NewRuntime("solo")
	defer rt.Close()

	_, err := rt.CreateBackend("audio", nil)
	assert.ErrorIs(t, err, ErrNilHandler)

	backend, err := rt.CreateBackend("audio", echoHandler)
	require.NoError(t, err)
	assert.ErrorIs(t, backend.Start(), ErrNoPort)
	assert.NotEmpty(t, backend.Channel())
}

func TestChannelsAreUnique(t *testing.T) {
	rt := NewRuntime("solo")
	defer rt.Close()

	seen := make(map[Channel]bool)
	for i := 0; i < 50; i++ {
		b, err := rt.CreateBackend("audio", echoHandler)
		require.NoError(t, err)
		assert.False(t, seen[b.Channel()], "duplicate channel %s", b.Channel())
		seen[b.Channel()] = true
	}
}

func TestFrontendNotReady(t *testing.T) {
	mainRT, workerRT := connectedRuntimes(t)
	_, err := workerRT.CreateBackend("audio", echoHandler)
	require.NoError(t, err)

	fe := mainRT.Frontend("audio", nil)
	assert.False(t, fe.IsReady())
	assert.Empty(t, fe.Channel())
	assert.ErrorIs(t, fe.PostMessageToBackend(ActionProgress, nil), ErrNotReady)

	_, err = fe.Call(testContext(t), ActionGetLoudness, nil)
	assert.ErrorIs(t, err, ErrNotReady)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, fe.Ready(ctx), context.DeadlineExceeded)
}

func TestFrontendBindsAfterLateCreation(t *testing.T) {
	mainRT, workerRT := connectedRuntimes(t)
	backend, err := workerRT.CreateBackend("audio", echoHandler)
	require.NoError(t, err)
	require.NoError(t, backend.Start())

	// Give the ready announcement time to land before the frontend exists.
	time.Sleep(20 * time.Millisecond)

	fe := mainRT.Frontend("audio", nil)
	require.NoError(t, fe.Ready(testContext(t)))
	assert.Equal(t, backend.Channel(), fe.Channel())
	assert.Same(t, fe, mainRT.Frontend("audio", nil))
}

func TestMessagesArriveInOrder(t *testing.T) {
	mainRT, workerRT := connectedRuntimes(t)

	const n = 200
	var mu sync.Mutex
	var got []int
	done := make(chan struct{})
	handler := HandlerFunc(func(_ context.Context, _ *Backend, msg Message) (Reply, error) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, msg.Args[0].(int))
		if len(got) == n {
			close(done)
		}
		return Reply{}, nil
	})

	_, fe := startedFrontend(t, mainRT, workerRT, "audio", handler, nil)
	for i := 0; i < n; i++ {
		require.NoError(t, fe.PostMessageToBackend(ActionProgress, []any{i}))
	}

	select {
	case <-done:
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for messages")
	}
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestPushMessagesReachReceiver(t *testing.T) {
	mainRT, workerRT := connectedRuntimes(t)

	received := make(chan Message, 10)
	backend, _ := startedFrontend(t, mainRT, workerRT, "audio", echoHandler,
		ReceiverFunc(func(msg Message) { received <- msg }))

	for i := 0; i < 3; i++ {
		require.NoError(t, backend.PostMessageToFrontend(ActionProgress, []any{int64(i)}))
	}
	for i := 0; i < 3; i++ {
		select {
		case msg := <-received:
			assert.Equal(t, ActionProgress, msg.Action)
			assert.Equal(t, int64(i), msg.Args[0])
		case <-time.After(testTimeout):
			t.Fatal("timed out waiting for push")
		}
	}
}

func TestCallRoundTripTransfersBuffers(t *testing.T) {
	mainRT, workerRT := connectedRuntimes(t)
	_, fe := startedFrontend(t, mainRT, workerRT, "audio", echoHandler, nil)

	buf := pool.NewBuffer(4)
	buf.Data[0] = 0.5

	reply, err := fe.Call(testContext(t), ActionAddLoudnessFrames, []any{"x", 3}, buf)
	require.NoError(t, err)

	assert.True(t, buf.Detached(), "sender view must be detached")
	assert.Equal(t, ActionReply, reply.Action)
	assert.Equal(t, []any{"x", 3}, reply.Args)
	require.Len(t, reply.Transfer, 1)
	assert.Equal(t, float32(0.5), reply.Transfer[0].Data[0])
	assert.Zero(t, mainRT.PendingCalls())
}

func TestCallHandlerErrorBecomesRemoteError(t *testing.T) {
	mainRT, workerRT := connectedRuntimes(t)
	handler := HandlerFunc(func(_ context.Context, _ *Backend, msg Message) (Reply, error) {
		switch msg.Action {
		case ActionGetFingerprint:
			return Reply{Args: []any{"ok"}}, nil
		default:
			return Reply{}, ErrUnknownAction
		}
	})
	_, fe := startedFrontend(t, mainRT, workerRT, "audio", handler, nil)

	_, err := fe.Call(testContext(t), ActionCancelLoudness, nil)
	var remote *RemoteError
	require.True(t, errors.As(err, &remote))
	assert.Equal(t, ActionCancelLoudness, remote.Action)
	assert.Equal(t, ErrUnknownAction.Error(), remote.Message)

	reply, err := fe.Call(testContext(t), ActionGetFingerprint, nil)
	require.NoError(t, err)
	assert.Equal(t, []any{"ok"}, reply.Args)
}

func TestConcurrentCallsAreSerialized(t *testing.T) {
	mainRT, workerRT := connectedRuntimes(t)

	var inFlight, maxInFlight int
	var mu sync.Mutex
	handler := HandlerFunc(func(_ context.Context, _ *Backend, msg Message) (Reply, error) {
		mu.Lock()
		inFlight++
		if inFlight > maxInFlight {
			maxInFlight = inFlight
		}
		mu.Unlock()
		time.Sleep(time.Millisecond)
		mu.Lock()
		inFlight--
		mu.Unlock()
		return Reply{Args: msg.Args}, nil
	})
	_, fe := startedFrontend(t, mainRT, workerRT, "audio", handler, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			reply, err := fe.Call(testContext(t), ActionGetLoudness, []any{i})
			assert.NoError(t, err)
			assert.Equal(t, []any{i}, reply.Args)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, maxInFlight)
	assert.Zero(t, mainRT.PendingCalls())
}

func TestUnknownChannelIsDropped(t *testing.T) {
	mainRT, workerRT := connectedRuntimes(t)
	_, fe := startedFrontend(t, mainRT, workerRT, "audio", echoHandler, nil)

	port, err := mainRT.parentPort()
	require.NoError(t, err)
	require.NoError(t, port.PostMessage(Message{Kind: KindChannel, Channel: "feedface", Action: ActionProgress}))
	require.NoError(t, port.PostMessage(Message{Kind: "bogus"}))

	reply, err := fe.Call(testContext(t), ActionGetFingerprint, []any{1})
	require.NoError(t, err)
	assert.Equal(t, []any{1}, reply.Args)
}

func TestCallMainWindow(t *testing.T) {
	mainRT, workerRT := connectedRuntimes(t)
	mainRT.RegisterMainWindowFunc("sum", func(_ context.Context, args []any) (any, error) {
		total := 0
		for _, a := range args {
			total += a.(int)
		}
		return total, nil
	})
	mainRT.RegisterMainWindowFunc("fail", func(context.Context, []any) (any, error) {
		return nil, errors.New("no permission")
	})

	tests := []struct {
		name    string
		fn      string
		args    []any
		want    any
		wantErr string
	}{
		{name: "result", fn: "sum", args: []any{1, 2, 3}, want: 6},
		{name: "function error", fn: "fail", wantErr: "no permission"},
		{name: "unknown function", fn: "missing", wantErr: ErrUnknownMainWindowFunc.Error()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := workerRT.CallMainWindow(testContext(t), tt.fn, tt.args)
			if tt.wantErr != "" {
				var remote *RemoteError
				require.True(t, errors.As(err, &remote))
				assert.Equal(t, tt.fn, remote.Name)
				assert.Contains(t, remote.Message, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Zero(t, workerRT.PendingCalls())
		})
	}
}

func TestCallMainWindowFromHandler(t *testing.T) {
	mainRT, workerRT := connectedRuntimes(t)
	mainRT.RegisterMainWindowFunc("title", func(context.Context, []any) (any, error) {
		return "Song", nil
	})
	handler := HandlerFunc(func(ctx context.Context, _ *Backend, msg Message) (Reply, error) {
		title, err := workerRT.CallMainWindow(ctx, "title", nil)
		if err != nil {
			return Reply{}, err
		}
		return Reply{Args: []any{title}}, nil
	})
	_, fe := startedFrontend(t, mainRT, workerRT, "audio", handler, nil)

	reply, err := fe.Call(testContext(t), ActionGetFingerprint, nil)
	require.NoError(t, err)
	assert.Equal(t, []any{"Song"}, reply.Args)
}

func TestCallMainWindowCancelled(t *testing.T) {
	mainRT, workerRT := connectedRuntimes(t)
	release := make(chan struct{})
	mainRT.RegisterMainWindowFunc("slow", func(context.Context, []any) (any, error) {
		<-release
		return nil, nil
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := workerRT.CallMainWindow(ctx, "slow", nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, workerRT.PendingCalls())
}

func TestCloseFailsPendingCalls(t *testing.T) {
	mainRT, workerRT := connectedRuntimes(t)
	release := make(chan struct{})
	mainRT.RegisterMainWindowFunc("block", func(context.Context, []any) (any, error) {
		<-release
		return nil, nil
	})

	errc := make(chan error, 1)
	go func() {
		_, err := workerRT.CallMainWindow(context.Background(), "block", nil)
		errc <- err
	}()

	require.Eventually(t, func() bool { return workerRT.PendingCalls() == 1 }, testTimeout, time.Millisecond)
	require.NoError(t, workerRT.Close())

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrRuntimeClosed)
	case <-time.After(testTimeout):
		t.Fatal("pending call not failed on close")
	}
	close(release)

	_, err := workerRT.CallMainWindow(context.Background(), "block", nil)
	assert.ErrorIs(t, err, ErrRuntimeClosed)
	_, err = workerRT.CreateBackend("audio", echoHandler)
	assert.ErrorIs(t, err, ErrRuntimeClosed)
	assert.NoError(t, workerRT.Close())
}

func TestActionNames(t *testing.T) {
	tests := []struct {
		action Action
		want   string
		valid  bool
	}{
		{ActionNone, "none", false},
		{ActionInitializeLoudness, "initializeEbur128Calculation", true},
		{ActionAddLoudnessFrames, "addFrames", true},
		{ActionGetLoudness, "getEbur128", true},
		{ActionCancelLoudness, "cancelEbur128Calculation", true},
		{actionCount, "unknown", false},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.action.String())
			assert.Equal(t, tt.valid, tt.action.Valid())
		})
	}
}
