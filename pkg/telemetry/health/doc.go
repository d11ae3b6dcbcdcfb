// Package health serves liveness, readiness and version endpoints next to the
// metrics endpoint of a long-running throttle process.
//
// Readiness is the conjunction of named checks registered with
// RegisterCheck; `throttle run` registers one for the loaded configuration and
// one for the limiter manager. Checks run concurrently, each bounded by the
// checker's timeout.
//
//	checker := health.New(2 * time.Second)
//	checker.RegisterCheck("limiters", func(ctx context.Context) error {
//	    if len(manager.Names()) == 0 {
//	        return errors.New("no limiters configured")
//	    }
//	    return nil
//	})
//	health.Mount(mux, checker, health.VersionInfo{Version: version}, 10)
package health
