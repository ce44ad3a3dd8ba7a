package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/afex/hystrix-go/hystrix"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const success = "Success"

// unique names avoid conflicts with go tests `-count` option
func uniqueCircuit(prefix string) string {
	return fmt.Sprintf("%s_%d", prefix, time.Now().UnixNano())
}

func TestCircuitBreaker_ExecuteSuccessSingle(t *testing.T) {
	cb := NewCircuitBreaker(Config{Timeout: 1000, MaxConcurrentRequests: 100})

	cmd := NewCommand(context.TODO(), []*Functor{
		NewFunctor(func(context.Context) ([]any, error) {
			return []any{success}, nil
		}, uniqueCircuit("SuccessSingle")),
	})

	result := cb.Execute(cmd)
	require.NoError(t, result.Error())
	require.Equal(t, success, result.Result()[0].(string))
	require.False(t, result.Cancelled())
	require.Len(t, result.FunctorCallStatuses(), 1)
}

func TestCircuitBreaker_ExecuteMultipleFallbacksFail(t *testing.T) {
	cb := NewCircuitBreaker(Config{
		Timeout:                10,
		MaxConcurrentRequests:  100,
		RequestVolumeThreshold: 10,
		SleepWindow:            10,
		ErrorPercentThreshold:  10,
	})

	circuitName := uniqueCircuit("ExecuteMultipleFallbacksFail")
	errSecondEndpoint := errors.New("endpoint 2 failed")
	errThirdEndpoint := errors.New("endpoint 3 failed")
	cmd := NewCommand(context.TODO(), []*Functor{
		NewFunctor(func(context.Context) ([]any, error) {
			time.Sleep(100 * time.Millisecond) // will cause hystrix: timeout
			return []any{success}, nil
		}, circuitName+"1"),
		NewFunctor(func(context.Context) ([]any, error) {
			return nil, errSecondEndpoint
		}, circuitName+"2"),
		NewFunctor(func(context.Context) ([]any, error) {
			return nil, errThirdEndpoint
		}, circuitName+"3"),
	})

	result := cb.Execute(cmd)
	require.Error(t, result.Error())
	assert.True(t, errors.Is(result.Error(), hystrix.ErrTimeout))
	assert.True(t, errors.Is(result.Error(), errSecondEndpoint))
	assert.True(t, errors.Is(result.Error(), errThirdEndpoint))
}

func TestCircuitBreaker_SwitchesToWorkingEndpointWhenCircuitOpens(t *testing.T) {
	cb := NewCircuitBreaker(Config{
		RequestVolumeThreshold: 10,
	})

	circuitName := uniqueCircuit("SwitchToWorkingEndpoint")
	mainCalled := 0
	fallbackCalled := 0
	for i := 0; i < 20; i++ {
		cmd := NewCommand(context.TODO(), []*Functor{
			NewFunctor(func(context.Context) ([]any, error) {
				mainCalled++
				return nil, errors.New("main endpoint failed")
			}, circuitName+"main"),
			NewFunctor(func(context.Context) ([]any, error) {
				fallbackCalled++
				return []any{success}, nil
			}, circuitName+"fallback"),
		})

		result := cb.Execute(cmd)
		require.NoError(t, result.Error())
		require.Equal(t, success, result.Result()[0].(string))
	}

	// health metrics are collected asynchronously, the circuit may open a call late
	assert.GreaterOrEqual(t, mainCalled, 10)
	assert.Less(t, mainCalled, 20)
	assert.Equal(t, 20, fallbackCalled)
	assert.True(t, IsCircuitOpen(circuitName+"main"))
}

func TestCircuitBreaker_CommandCancel(t *testing.T) {
	cb := NewCircuitBreaker(Config{})

	circuitName := uniqueCircuit("CommandCancel")
	mainCalled := 0
	fallbackCalled := 0
	expectedErr := errors.New("order rejected")

	cmd := NewCommand(context.Background(), nil)
	cmd.Add(NewFunctor(func(context.Context) ([]any, error) {
		mainCalled++
		cmd.Cancel()
		return nil, expectedErr
	}, circuitName+"1"))
	cmd.Add(NewFunctor(func(context.Context) ([]any, error) {
		fallbackCalled++
		return nil, errors.New("endpoint 2 failed")
	}, circuitName+"2"))

	result := cb.Execute(cmd)
	require.True(t, errors.Is(result.Error(), expectedErr))
	require.True(t, result.Cancelled())
	assert.Equal(t, 1, mainCalled)
	assert.Equal(t, 0, fallbackCalled)
}

func TestCircuitBreaker_CancelledBeforeExecution(t *testing.T) {
	cb := NewCircuitBreaker(Config{Timeout: 1000})

	cmd := NewCommand(context.Background(), []*Functor{
		NewFunctor(func(context.Context) ([]any, error) {
			return []any{"should not be returned"}, nil
		}, uniqueCircuit("cancelCircuit")),
	})
	cmd.Cancel()

	result := cb.Execute(cmd)
	assert.True(t, result.Cancelled())
	require.Nil(t, result.Error())
	require.Empty(t, result.Result())
	require.Empty(t, result.FunctorCallStatuses())
}

func TestCircuitBreaker_EmptyOrNilCommand(t *testing.T) {
	cb := NewCircuitBreaker(Config{})
	result := cb.Execute(NewCommand(context.TODO(), nil))
	require.Error(t, result.Error())
	result = cb.Execute(nil)
	require.Error(t, result.Error())
}

func TestCircuitBreaker_CircuitExistsAndClosed(t *testing.T) {
	nonExisting := uniqueCircuit("nonexistent")
	require.False(t, CircuitExists(nonExisting))
	require.False(t, IsCircuitOpen(nonExisting))
	require.False(t, CircuitExists(nonExisting))

	cb := NewCircuitBreaker(Config{})
	existing := uniqueCircuit("existing")
	// the last functor runs without a circuit, so add it twice
	cmd := NewCommand(context.TODO(), nil)
	cmd.Add(NewFunctor(func(context.Context) ([]any, error) { return nil, nil }, existing))
	cmd.Add(NewFunctor(func(context.Context) ([]any, error) { return nil, nil }, existing))
	_ = cb.Execute(cmd)
	require.True(t, CircuitExists(existing))
	require.False(t, IsCircuitOpen(existing))
}

func TestCircuitBreaker_LastFunctorRunsWhenCircuitOpen(t *testing.T) {
	cb := NewCircuitBreaker(Config{
		RequestVolumeThreshold: 1,
		SleepWindow:            50000,
		ErrorPercentThreshold:  1,
	})

	circuitName := uniqueCircuit("Fallback")
	expectedErr := errors.New("endpoint 1 failed")
	for !IsCircuitOpen(circuitName + "1") {
		cmd := NewCommand(context.Background(), []*Functor{
			NewFunctor(func(context.Context) ([]any, error) { return nil, expectedErr }, circuitName+"1"),
			NewFunctor(func(context.Context) ([]any, error) { return nil, errors.New("endpoint 2 failed") }, circuitName+"2"),
		})
		require.Error(t, cb.Execute(cmd).Error())
	}

	called := 0
	cmd := NewCommand(context.Background(), []*Functor{
		NewFunctor(func(context.Context) ([]any, error) {
			called++
			return nil, expectedErr
		}, circuitName+"1"),
	})
	result := cb.Execute(cmd)
	require.True(t, errors.Is(result.Error(), expectedErr))
	assert.Equal(t, 1, called)

	statuses := result.FunctorCallStatuses()
	require.Len(t, statuses, 1)
	require.Equal(t, circuitName+"1", statuses[0].Name)
	require.ErrorIs(t, statuses[0].Err, expectedErr)
}

func TestCircuitBreaker_PassesContext(t *testing.T) {
	cb := NewCircuitBreaker(Config{Timeout: 1000})
	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "value")

	cmd := NewCommand(ctx, []*Functor{
		NewFunctor(func(ctx context.Context) ([]any, error) {
			return []any{ctx.Value(key{})}, nil
		}, uniqueCircuit("context")),
	})
	result := cb.Execute(cmd)
	require.NoError(t, result.Error())
	require.Equal(t, "value", result.Result()[0])
}
