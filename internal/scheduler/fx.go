package scheduler

import (
	"context"

	"github.com/smallbiznis/mystictxt/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("scheduler",
	fx.Provide(ProvideConfig, New),
	fx.Invoke(startLoop),
)

// startLoop runs the sweeper loop for the app's lifetime when enabled.
// Stop cancels the loop and waits for the tick in flight to finish.
func startLoop(lc fx.Lifecycle, cfg config.Config, sched *Scheduler) {
	if !cfg.Scheduler.Enabled {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(stopped)
				sched.RunForever(ctx)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-stopped:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}
