// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package procgroup

import (
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startSleeper(t *testing.T, seconds string) (*exec.Cmd, <-chan error) {
	t.Helper()
	cmd := exec.Command("sleep", seconds)
	Set(cmd)
	require.NoError(t, cmd.Start())

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()
	return cmd, waitCh
}

func TestTerminate_NilCommandIsNoop(t *testing.T) {
	err := Terminate(nil, make(chan error), time.Second)
	assert.NoError(t, err)
}

func TestTerminate_ExitsOnSIGTERMWithinGrace(t *testing.T) {
	cmd, waitCh := startSleeper(t, "30")

	err := Terminate(cmd, waitCh, 2*time.Second)
	assert.Error(t, err, "the process was killed by a signal, so Wait should report it")
}

func TestTerminate_EscalatesToSIGKILLAfterGraceExpires(t *testing.T) {
	// A process that ignores SIGTERM forces Terminate through its grace
	// timeout into the SIGKILL path.
	cmd := exec.Command("sh", "-c", "trap '' TERM; sleep 30")
	Set(cmd)
	require.NoError(t, cmd.Start())

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	start := time.Now()
	err := Terminate(cmd, waitCh, 200*time.Millisecond)
	elapsed := time.Since(start)

	assert.Error(t, err)
	assert.GreaterOrEqual(t, elapsed, 200*time.Millisecond)
	assert.Less(t, elapsed, 5*time.Second, "SIGKILL should reap the process promptly once grace expires")
}
