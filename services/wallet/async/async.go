package async

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

type Command func(context.Context) error

type Commander interface {
	Command() Command
}

// PollCommand runs Runable every Interval until it reports done or the
// context is canceled. A failing run does not stop the loop: the next attempt
// is delayed by the backoff instead of the interval, and the backoff is reset
// after the first successful run.
type PollCommand struct {
	Interval time.Duration
	// NewBackOff returns the policy used after failed runs. Defaults to an
	// exponential backoff capped at ten intervals.
	NewBackOff func() backoff.BackOff
	// OnError is called with every error returned by Runable.
	OnError func(error)
	Runable func(context.Context) (done bool, err error)
}

func (c PollCommand) backOff() backoff.BackOff {
	if c.NewBackOff != nil {
		return c.NewBackOff()
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.Interval
	b.MaxInterval = 10 * c.Interval
	b.MaxElapsedTime = 0
	return b
}

func (c PollCommand) Run(ctx context.Context) error {
	bo := c.backOff()
	for {
		done, err := c.Runable(ctx)
		if err == nil && done {
			return nil
		}

		wait := c.Interval
		if err != nil {
			if c.OnError != nil {
				c.OnError(err)
			}
			if next := bo.NextBackOff(); next != backoff.Stop {
				wait = next
			}
		} else {
			bo.Reset()
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func NewGroup(parent context.Context) *Group {
	ctx, cancel := context.WithCancel(parent)
	return &Group{
		ctx:    ctx,
		cancel: cancel,
	}
}

// Group runs commands in their own goroutines under a shared cancellable context.
type Group struct {
	ctx    context.Context
	cancel func()
	wg     sync.WaitGroup
}

func (g *Group) Add(cmd Command) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		_ = cmd(g.ctx)
	}()
}

// AddCancellable runs cmd under a child context and returns its cancel
// function, so a single command can be stopped without stopping the group.
func (g *Group) AddCancellable(cmd Command) context.CancelFunc {
	ctx, cancel := context.WithCancel(g.ctx)
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer cancel()
		_ = cmd(ctx)
	}()
	return cancel
}

func (g *Group) Stop() {
	g.cancel()
}

func (g *Group) Wait() {
	g.wg.Wait()
}

func (g *Group) WaitAsync() <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		g.Wait()
		close(ch)
	}()
	return ch
}
