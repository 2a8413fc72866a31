/*
Core runs the single-threaded control loop of one trading instrument.

# Tick
 1. pick up a reloaded configuration
 2. refresh the broker account and roll the trading day
 3. latch the circuit breaker on the daily loss limit
 4. manage open positions: reconcile, partial exits, breakeven, trailing stop
 5. admit at most one polled signal: validate, size, plan, submit
 6. heartbeat the signal origin on its interval
 7. snapshot state after any mutation

# Ownership
  - positions and daily risk state are mutated only inside Tick
  - the broker is the source of truth for fills and closes
  - journal writes and heartbeats never block the loop
*/
package core
