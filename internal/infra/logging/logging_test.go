package logging

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestWithAttachesContextFields(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	ctx := WithJobID(context.Background(), "j-1")
	ctx = WithCorrID(ctx, "c-1")
	ctx = WithConnID(ctx, 7)

	With(ctx, &base).Info().Msg("hello")

	out := buf.String()
	for _, want := range []string{`"job_id":"j-1"`, `"corr_id":"c-1"`, `"conn_id":7`} {
		if !strings.Contains(out, want) {
			t.Errorf("log line %q missing %s", out, want)
		}
	}
}

func TestWithoutContextFieldsAddsNothing(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	With(context.Background(), &base).Info().Msg("bare")

	out := buf.String()
	for _, field := range []string{"job_id", "corr_id", "conn_id"} {
		if strings.Contains(out, field) {
			t.Errorf("log line %q has unexpected field %s", out, field)
		}
	}
}

func TestTraceDurationLogsStartAndFinish(t *testing.T) {
	zerolog.SetGlobalLevel(zerolog.TraceLevel)
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	TraceDuration(&base, "agent.dispatch")()

	out := buf.String()
	if !strings.Contains(out, `"method":"agent.dispatch"`) {
		t.Fatalf("trace output %q missing method field", out)
	}
	if !strings.Contains(out, "start") || !strings.Contains(out, "finish") {
		t.Fatalf("trace output %q missing start/finish pair", out)
	}
}
