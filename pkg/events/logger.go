package events

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/rs/zerolog"
)

// zerologAdapter routes watermill logs onto zerolog. Watermill's info level
// is chatty, so it lands on debug.
type zerologAdapter struct {
	logger zerolog.Logger
}

func NewWatermillLogger(l zerolog.Logger) watermill.LoggerAdapter {
	return &zerologAdapter{logger: l.With().Str("component", "watermill").Logger()}
}

func (z *zerologAdapter) fields(e *zerolog.Event, fields watermill.LogFields) *zerolog.Event {
	for k, v := range fields {
		e = e.Interface(k, v)
	}
	return e
}

func (z *zerologAdapter) Error(msg string, err error, fields watermill.LogFields) {
	z.fields(z.logger.Error().Err(err), fields).Msg(msg)
}

func (z *zerologAdapter) Info(msg string, fields watermill.LogFields) {
	z.fields(z.logger.Debug(), fields).Msg(msg)
}

func (z *zerologAdapter) Debug(msg string, fields watermill.LogFields) {
	z.fields(z.logger.Trace(), fields).Msg(msg)
}

func (z *zerologAdapter) Trace(msg string, fields watermill.LogFields) {
	z.fields(z.logger.Trace(), fields).Msg(msg)
}

func (z *zerologAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	ctx := z.logger.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &zerologAdapter{logger: ctx.Logger()}
}
