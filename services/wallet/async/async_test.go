package async

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPollCommand_RunsUntilDone(t *testing.T) {
	var runs int32
	cmd := PollCommand{
		Interval: time.Millisecond,
		Runable: func(ctx context.Context) (bool, error) {
			return atomic.AddInt32(&runs, 1) == 3, nil
		},
	}

	require.NoError(t, cmd.Run(context.Background()))
	require.Equal(t, int32(3), atomic.LoadInt32(&runs))
}

func TestPollCommand_ErrorsDoNotStopLoop(t *testing.T) {
	var runs, reported int32
	cmd := PollCommand{
		Interval: time.Millisecond,
		OnError:  func(error) { atomic.AddInt32(&reported, 1) },
		Runable: func(ctx context.Context) (bool, error) {
			if atomic.AddInt32(&runs, 1) < 3 {
				return false, errors.New("rpc unavailable")
			}
			return true, nil
		},
	}

	require.NoError(t, cmd.Run(context.Background()))
	require.Equal(t, int32(2), atomic.LoadInt32(&reported))
}

func TestPollCommand_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cmd := PollCommand{
		Interval: time.Millisecond,
		Runable: func(ctx context.Context) (bool, error) {
			return false, nil
		},
	}

	errCh := make(chan error, 1)
	go func() { errCh <- cmd.Run(ctx) }()
	cancel()

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		require.Fail(t, "poll command did not stop")
	}
}

func TestGroup_AddCancellableStopsSingleCommand(t *testing.T) {
	group := NewGroup(context.Background())
	stoppedOne := make(chan struct{})
	cancel := group.AddCancellable(func(ctx context.Context) error {
		<-ctx.Done()
		close(stoppedOne)
		return ctx.Err()
	})
	group.Add(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	cancel()
	select {
	case <-stoppedOne:
	case <-time.After(time.Second):
		require.Fail(t, "command was not canceled")
	}

	group.Stop()
	select {
	case <-group.WaitAsync():
	case <-time.After(time.Second):
		require.Fail(t, "group did not stop")
	}
}
