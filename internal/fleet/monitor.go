package fleet

import "time"

// stopWait bounds how long StopSweep waits for the loop goroutine to
// observe the stop signal.
const stopWait = 5 * time.Second

// Sweep demotes every active device whose last heartbeat is older than
// timeout to offline. Demotions are flipped atomically per-record under
// the registry lock; durable-store sync runs after the lock is
// released. Returns the number of devices demoted.
//
// Records are never removed by the sweep; only Unregister deletes.
func (r *Registry) Sweep(timeout time.Duration) int {
	r.mu.Lock()
	now := r.now()
	var demoted []Device
	for id := range r.active {
		d, ok := r.devices[id]
		if !ok {
			delete(r.active, id)
			continue
		}
		if now.Sub(d.LastHeartbeat) > timeout {
			d.Status = StatusOffline
			delete(r.active, id)
			demoted = append(demoted, *d)
		}
	}
	logger := r.logger
	r.mu.Unlock()

	for _, d := range demoted {
		logger.Warn("device heartbeat stale, marked offline",
			"device_id", d.ID,
			"last_heartbeat", d.LastHeartbeat,
		)
		r.syncStore(d)
	}
	return len(demoted)
}

// StartSweep launches the periodic liveness sweep. Calling it while a
// sweep loop is already running is a no-op.
func (r *Registry) StartSweep(interval, timeout time.Duration) {
	r.mu.Lock()
	if r.sweepStop != nil {
		r.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	r.sweepStop = stop
	r.sweepDone = done
	logger := r.logger
	r.mu.Unlock()

	logger.Info("liveness sweep started", "interval", interval, "timeout", timeout)

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				r.Sweep(timeout)
			}
		}
	}()
}

// StopSweep signals the sweep loop to exit and waits (bounded) for it
// to finish. Returns false if the loop did not stop within the wait
// window. No-op if the sweep was never started.
func (r *Registry) StopSweep() bool {
	r.mu.Lock()
	stop := r.sweepStop
	done := r.sweepDone
	r.sweepStop = nil
	r.sweepDone = nil
	r.mu.Unlock()

	if stop == nil {
		return true
	}
	close(stop)

	select {
	case <-done:
		return true
	case <-time.After(stopWait):
		return false
	}
}
