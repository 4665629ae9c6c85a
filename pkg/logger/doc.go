// Package logger wraps zerolog behind a small Logger interface.
//
// A run typically initializes the global logger once from configuration
// and passes derived loggers down to each component:
//
//	if err := logger.Initialize(&cfg.Logging); err != nil {
//	    return err
//	}
//	log := logger.GetLogger().WithField("board", cfg.Jira.Board)
//	log.InfoWithFields("Page processed", map[string]interface{}{
//	    "start": 100,
//	    "issues": 100,
//	})
//
// Tests use NewTestLogger to capture and assert on messages, or
// NewNopLogger to discard them.
package logger
