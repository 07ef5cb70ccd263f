package app

import (
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/leetsync/leetsync-stats/pkg/logger"
)

// EventLogger routes fx container events to the structured logger. Hooks and
// lifecycle transitions log at debug; failures log at error.
type EventLogger struct {
	Log *logger.Logger
}

var _ fxevent.Logger = (*EventLogger)(nil)

// WithEventLogger installs EventLogger on an fx.App.
func WithEventLogger() fx.Option {
	return fx.WithLogger(func(log *logger.Logger) fxevent.Logger {
		return &EventLogger{Log: log.With(logger.Component("fx"))}
	})
}

// LogEvent implements fxevent.Logger.
func (l *EventLogger) LogEvent(event fxevent.Event) {
	switch e := event.(type) {
	case *fxevent.OnStartExecuted:
		if e.Err != nil {
			l.Log.Error("start hook failed", logger.String("callee", e.FunctionName), logger.Err(e.Err))
			return
		}
		l.Log.Debug("start hook executed", logger.String("callee", e.FunctionName), logger.Duration("runtime", e.Runtime))
	case *fxevent.OnStopExecuted:
		if e.Err != nil {
			l.Log.Error("stop hook failed", logger.String("callee", e.FunctionName), logger.Err(e.Err))
			return
		}
		l.Log.Debug("stop hook executed", logger.String("callee", e.FunctionName), logger.Duration("runtime", e.Runtime))
	case *fxevent.Provided:
		if e.Err != nil {
			l.Log.Error("provide failed", logger.String("constructor", e.ConstructorName), logger.Err(e.Err))
		}
	case *fxevent.Invoked:
		if e.Err != nil {
			l.Log.Error("invoke failed", logger.String("function", e.FunctionName), logger.Err(e.Err))
		}
	case *fxevent.RollingBack:
		l.Log.Error("start failed, rolling back", logger.Err(e.StartErr))
	case *fxevent.Started:
		if e.Err != nil {
			l.Log.Error("start failed", logger.Err(e.Err))
			return
		}
		l.Log.Debug("started")
	case *fxevent.Stopped:
		if e.Err != nil {
			l.Log.Error("stop failed", logger.Err(e.Err))
		}
	}
}
