package agent

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"
)

// detectTimeout bounds the --version probe so a hung CLI cannot stall startup.
const detectTimeout = 5 * time.Second

// detectCLI checks that a binary exists on PATH and answers --version.
func detectCLI(ctx context.Context, binary string) DetectResult {
	path, err := exec.LookPath(binary)
	if err != nil {
		return DetectResult{Available: false, Error: "not installed: " + binary}
	}

	ctx, cancel := context.WithTimeout(ctx, detectTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, path, "--version")
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	if err := cmd.Run(); err != nil {
		return DetectResult{Available: false, Error: err.Error()}
	}

	return DetectResult{
		Available: true,
		Version:   strings.TrimSpace(firstLine(out.String())),
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
