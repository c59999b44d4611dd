package workload

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testTimeout = 5 * time.Second

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func loadTestScenario(t *testing.T, file string) *Scenario {
	t.Helper()
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", file))
	require.NoError(t, err)
	return s
}
