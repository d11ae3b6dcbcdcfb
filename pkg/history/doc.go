// Package history records the outcome of simulated workload runs.
//
// A Run captures when each call was admitted through a limiter, so the
// admission pattern of different limiter settings can be compared after the
// fact. Runs are stored in a SQLite database file:
//
//	backend, err := history.NewSQLiteBackend("runs.db")
//	if err != nil {
//	    return err
//	}
//	defer backend.Close()
//
//	err = backend.Save(ctx, run)
//	runs, err := backend.List(ctx, history.Filter{Limiter: "api", Limit: 10})
//
// Limiter state itself is never stored; every process starts with fresh
// limiters.
//
// # Thread Safety
//
// Backends are safe for concurrent use.
package history
