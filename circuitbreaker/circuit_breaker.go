package circuitbreaker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/afex/hystrix-go/hystrix"
)

// FallbackFunc is one way of serving a command, e.g. one endpoint.
type FallbackFunc func(ctx context.Context) ([]any, error)

type FunctorCallStatus struct {
	Name      string
	Timestamp time.Time
	Err       error
}

type CommandResult struct {
	res                 []any
	err                 error
	functorCallStatuses []FunctorCallStatus
	cancelled           bool
}

func (cr CommandResult) Result() []any {
	return cr.res
}

func (cr CommandResult) Error() error {
	return cr.err
}

func (cr CommandResult) Cancelled() bool {
	return cr.cancelled
}

func (cr CommandResult) FunctorCallStatuses() []FunctorCallStatus {
	return cr.functorCallStatuses
}

type Command struct {
	ctx      context.Context
	functors []*Functor
	cancel   bool
}

func NewCommand(ctx context.Context, functors []*Functor) *Command {
	return &Command{
		ctx:      ctx,
		functors: functors,
	}
}

func (cmd *Command) Add(ftor *Functor) {
	cmd.functors = append(cmd.functors, ftor)
}

func (cmd *Command) IsEmpty() bool {
	return len(cmd.functors) == 0
}

// Cancel stops Execute from trying the remaining functors.
func (cmd *Command) Cancel() {
	cmd.cancel = true
}

type Config struct {
	Timeout                int `json:"Timeout"`
	MaxConcurrentRequests  int `json:"MaxConcurrentRequests"`
	RequestVolumeThreshold int `json:"RequestVolumeThreshold"`
	SleepWindow            int `json:"SleepWindow"`
	ErrorPercentThreshold  int `json:"ErrorPercentThreshold"`
}

type CircuitBreaker struct {
	config Config
}

func NewCircuitBreaker(config Config) *CircuitBreaker {
	return &CircuitBreaker{
		config: config,
	}
}

type Functor struct {
	exec        FallbackFunc
	circuitName string
}

func NewFunctor(exec FallbackFunc, circuitName string) *Functor {
	return &Functor{
		exec:        exec,
		circuitName: circuitName,
	}
}

func CircuitExists(name string) bool {
	_, ok := hystrix.GetCircuitSettings()[name]
	return ok
}

func IsCircuitOpen(name string) bool {
	if !CircuitExists(name) {
		return false
	}
	circuit, _, _ := hystrix.GetCircuit(name)
	return circuit != nil && circuit.IsOpen()
}

type resultCollector struct {
	mu     sync.Mutex
	result CommandResult
}

func (c *resultCollector) record(name string, res []any, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		c.result.res = res
	}
	c.result.functorCallStatuses = append(c.result.functorCallStatuses, FunctorCallStatus{
		Name:      name,
		Timestamp: time.Now(),
		Err:       err,
	})
}

// Execute tries the functors in order, each in its own circuit, until one
// succeeds. The last functor runs outside of any circuit so a command is
// never rejected only because every circuit is open.
// This is a blocking function.
func (cb *CircuitBreaker) Execute(cmd *Command) CommandResult {
	if cmd == nil || cmd.IsEmpty() {
		return CommandResult{err: fmt.Errorf("command is nil or empty")}
	}

	ctx := cmd.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	collector := &resultCollector{}
	var accumulated error
	for i, f := range cmd.functors {
		if cmd.cancel {
			collector.mu.Lock()
			collector.result.cancelled = true
			collector.mu.Unlock()
			break
		}

		var err error
		if i == len(cmd.functors)-1 {
			var res []any
			res, err = f.exec(ctx)
			collector.record(f.circuitName, res, err)
		} else {
			if !CircuitExists(f.circuitName) {
				hystrix.ConfigureCommand(f.circuitName, hystrix.CommandConfig{
					Timeout:                cb.config.Timeout,
					MaxConcurrentRequests:  cb.config.MaxConcurrentRequests,
					RequestVolumeThreshold: cb.config.RequestVolumeThreshold,
					SleepWindow:            cb.config.SleepWindow,
					ErrorPercentThreshold:  cb.config.ErrorPercentThreshold,
				})
			}
			err = hystrix.DoC(ctx, f.circuitName, func(ctx context.Context) error {
				res, err := f.exec(ctx)
				collector.record(f.circuitName, res, err)
				return err
			}, nil)
		}

		if err == nil {
			accumulated = nil
			break
		}

		if accumulated != nil {
			accumulated = fmt.Errorf("%w, %s.error: %w", accumulated, f.circuitName, err)
		} else {
			accumulated = fmt.Errorf("%s.error: %w", f.circuitName, err)
		}
	}

	collector.mu.Lock()
	defer collector.mu.Unlock()
	result := collector.result
	result.err = accumulated
	return result
}
