/*
Package resilience keeps the agent polite toward an unhealthy collector.

# Overview

Two tools live here. Breaker is a three-state circuit breaker used around
configuration discovery polls, so an unreachable collector is not hit with a
unary call every interval. BackoffPolicy builds the exponential backoff that
paces stream reconnects.

Both take a clock.Clock so tests can move time without sleeping.

# Usage

	breaker := resilience.New("cds", resilience.Settings{
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})
	err := breaker.Execute(func() error {
		_, err := client.FetchConfigurations(ctx, req)
		return err
	})

	b := resilience.DefaultBackoffPolicy().NewBackOff(clock.New())
	wait := b.NextBackOff()

# States

	Closed --[failures]-> Open --[timeout]-> Half-Open --[successes]-> Closed
	                                           |
	                                    [failure]
	                                           |
	                                           v
	                                         Open
*/
package resilience
