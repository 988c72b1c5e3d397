package player

import (
	"errors"
	"fmt"

	"github.com/openfroyo/mpvbridge/pkg/libmpv"
)

// Event loop exit and teardown reasons.
const (
	exitShutdown     = "shutdown"
	exitAbandoned    = "abandoned"
	exitHandlerError = "handler_error"
	exitReleased     = "released"
)

// runEventLoop polls the event client of inst until the engine shuts down
// or the handler fails, then destroys the event client. It never touches
// the primary handle. When the engine shut down on its own the instance is
// torn down afterwards.
func (r *Registry) runEventLoop(inst *Instance) {
	logger := r.logger.WithSession(inst.session)
	reason := exitShutdown

	defer func() {
		inst.events.Destroy()
		close(inst.done)
		r.tel.Metrics.RecordEventLoopExit(reason)
		logger.WithField("reason", reason).Debug("event loop exited")

		if reason == exitShutdown {
			go r.destroyIfCurrent(inst, exitShutdown)
		}
	}()

	for {
		ev, err := inst.events.WaitEvent(r.opts.WaitTimeout)
		if err != nil {
			var unknown *libmpv.UnknownEventError
			if errors.As(err, &unknown) {
				logger.WithField("event_id", int(unknown.ID)).Debug("discarding unknown event")
				continue
			}
			logger.WithError(err).Warn("failed to decode event")
		} else if ev == nil {
			continue
		}

		sc, ok := r.contexts.resolve(inst.handle)
		if !ok {
			reason = exitReleased
			return
		}

		if ev != nil {
			r.tel.Metrics.RecordEvent(ev.EventID().String())
		}

		if sc.handler != nil {
			if herr := callHandler(sc.handler, sc.session, ev, err); herr != nil {
				reason = exitHandlerError
				logger.WithError(herr).Error("event handler failed, stopping event loop")
				if perr := r.tel.Events.PublishEventLoopFailed(inst.session, herr); perr != nil {
					logger.WithError(perr).Debug("event loop failure not published")
				}
				return
			}
		}

		if _, ok := ev.(libmpv.ShutdownEvent); ok {
			return
		}
	}
}

// callHandler turns a handler panic into a handler error so only the
// panicking session's loop stops.
func callHandler(h EventHandler, session string, ev libmpv.Event, evErr error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("event handler panicked: %v", p)
		}
	}()
	return h(session, ev, evErr)
}
