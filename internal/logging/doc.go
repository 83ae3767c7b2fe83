// Package logging wraps zap for orchestratord.
//
// Every method takes a context and adds the correlation ids it carries:
//
//	ctx = logging.WithRunID(ctx, runID)
//	ctx = logging.WithTask(ctx, "clean_text")
//	logger.Info(ctx, "stage completed", zap.Duration("duration", d))
//
// produces
//
//	{"level":"info","msg":"stage completed","run.id":"0b6f2d4e-...","run.task":"clean_text","duration":"45ms"}
//
// plus trace_id and span_id when ctx holds an OpenTelemetry span.
//
// Output goes to stdout (or stderr) through an encoder that hides
// sensitive keys such as api_key and values that look like bearer tokens
// or Groq keys. With telemetry enabled, entries are also exported through
// the otelzap bridge. Entries below Error are sampled per message.
//
// Tests use NewTestLogger and its Assert helpers.
package logging
