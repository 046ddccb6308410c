package watch

import logx "tennowatch/pkg/logx"

// Severity grades one sink message.
type Severity uint8

const (
	SevInfo Severity = iota
	SevOK
	SevWarn
	SevErr
)

func (s Severity) String() string {
	switch s {
	case SevOK:
		return "ok"
	case SevWarn:
		return "warn"
	case SevErr:
		return "err"
	default:
		return "info"
	}
}

// Sink receives cycle progress messages. It is supplied by the caller
// (typically a front-end log panel) so the engine never depends on any
// UI concept.
type Sink func(msg string, sev Severity)

// NopSink discards everything.
func NopSink(string, Severity) {}

// LogSink bridges sink messages into the structured logger.
func LogSink(log logx.Logger) Sink {
	return func(msg string, sev Severity) {
		switch sev {
		case SevWarn:
			log.Warn(msg)
		case SevErr:
			log.Error(msg)
		default:
			log.Info(msg, logx.String("sev", sev.String()))
		}
	}
}
