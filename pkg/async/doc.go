// Package async runs fire-and-forget background work safely.
//
// Tasks started through a Group recover from panics, are bounded by a
// timeout, survive cancellation of the request that spawned them and log
// their errors instead of returning them. Shutdown calls Wait so events
// queued by the last requests still go out.
//
//	group := async.NewGroup(logger)
//	group.Go(ctx, 5*time.Second, "publish", publishFn)
//	...
//	_ = group.Wait(shutdownCtx)
package async
