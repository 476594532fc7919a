package logging

import (
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

const (
	FieldChain  = "chain"
	FieldBlock  = "block_number"
	FieldModule = "module"
	FieldOrder  = "order_id"
	FieldStep   = "step"
	FieldVar    = "var"
)

func New(writer io.Writer, level zerolog.Level, jsonOutput bool) zerolog.Logger {
	if !jsonOutput {
		writer = zerolog.ConsoleWriter{
			Out:        writer,
			TimeFormat: time.RFC3339,
		}
	}

	return zerolog.New(writer).Level(level).With().Timestamp().Caller().Logger()
}

// NewTesting returns a logger that writes through t.Log so output is attached
// to the test that produced it.
func NewTesting(t *testing.T) zerolog.Logger {
	return zerolog.New(zerolog.NewTestWriter(t)).Level(zerolog.DebugLevel).With().Timestamp().Logger()
}
