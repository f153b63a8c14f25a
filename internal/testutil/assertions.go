package testutil

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// AssertNodeRan checks captured text-format log output for the debug line
// the engine writes when it starts a node.
func AssertNodeRan(t *testing.T, logOutput, nodeName string) {
	t.Helper()
	require.True(t,
		strings.Contains(logOutput, fmt.Sprintf("node=%s ", nodeName)),
		"expected log output for node '%s' was not found in logs", nodeName,
	)
}

// AssertNodeSkipped is the negation of AssertNodeRan.
func AssertNodeSkipped(t *testing.T, logOutput, nodeName string) {
	t.Helper()
	require.False(t,
		strings.Contains(logOutput, fmt.Sprintf("node=%s ", nodeName)),
		"node '%s' was expected not to run", nodeName,
	)
}
