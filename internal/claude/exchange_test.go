package claude

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhubert/plural-bridge/internal/errors"
)

func TestExchange_Run(t *testing.T) {
	tests := []struct {
		name     string
		script   string
		wantText []string
	}{
		{
			name:     "json result",
			script:   `printf '{"result":"Hello from claude"}'`,
			wantText: []string{"Hello from claude"},
		},
		{
			name:     "content field",
			script:   `printf '{"content":"via content"}'`,
			wantText: []string{"via content"},
		},
		{
			name:     "plain text falls back to raw output",
			script:   `printf '  not json at all  \n'`,
			wantText: []string{"not json at all"},
		},
		{
			name:     "non-zero exit still yields output",
			script:   "printf '{\"result\":\"partial\"}'\necho oops >&2\nexit 3",
			wantText: []string{"partial"},
		},
		{
			name:   "blank output yields nothing",
			script: "exit 0",
		},
		{
			name:   "unrecognized json yields nothing",
			script: `printf '{"foo":"bar"}'`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ex := NewExchange(ExchangeConfig{Binary: writeFakeCLI(t, tt.script)})

			msgs, err := ex.Run(context.Background(), "C1", "hi")
			require.NoError(t, err)

			var got []string
			for _, m := range msgs {
				assert.Equal(t, "C1", m.ChannelID)
				assert.Equal(t, KindMessage, m.Kind)
				got = append(got, m.Content)
			}
			assert.Equal(t, tt.wantText, got)
		})
	}
}

func TestExchange_PassesArgsAndWorkingDir(t *testing.T) {
	workDir := t.TempDir()
	argsFile := filepath.Join(t.TempDir(), "args")
	script := `for a in "$@"; do echo "$a"; done > ` + argsFile + "\npwd -P\n"

	ex := NewExchange(ExchangeConfig{
		Binary:     writeFakeCLI(t, script),
		WorkingDir: workDir,
		ExtraArgs:  []string{"--model", "opus"},
	})

	msgs, err := ex.Run(context.Background(), "C1", "what is up")
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	resolved, err := filepath.EvalSymlinks(workDir)
	require.NoError(t, err)
	assert.Equal(t, resolved, msgs[0].Content)

	data, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	assert.Equal(t,
		[]string{"-p", "what is up", "--output-format", "json", "--model", "opus"},
		strings.Split(strings.TrimSpace(string(data)), "\n"))
}

func TestExchange_LaunchFailure(t *testing.T) {
	ex := NewExchange(ExchangeConfig{Binary: filepath.Join(t.TempDir(), "missing-claude")})

	msgs, err := ex.Run(context.Background(), "C1", "hi")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.KindLaunch), "got %v", err)
	assert.Empty(t, msgs)
}

func TestExchange_NotExecutable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "claude")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\necho hi\n"), 0o644))

	_, err := NewExchange(ExchangeConfig{Binary: path}).Run(context.Background(), "C1", "hi")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.KindLaunch), "got %v", err)
}

func TestExchange_Timeout(t *testing.T) {
	ex := NewExchange(ExchangeConfig{
		Binary:      writeFakeCLI(t, "printf '{\"result\":\"early\"}'\nexec sleep 10"),
		Timeout:     200 * time.Millisecond,
		GracePeriod: 100 * time.Millisecond,
	})

	start := time.Now()
	msgs, err := ex.Run(context.Background(), "C1", "hi")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.KindTimeout), "got %v", err)
	assert.Empty(t, msgs, "no partial output on timeout")
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestExchange_TimeoutIgnoringInterrupt(t *testing.T) {
	ex := NewExchange(ExchangeConfig{
		Binary:      writeFakeCLI(t, "trap '' INT\nexec sleep 10"),
		Timeout:     100 * time.Millisecond,
		GracePeriod: 100 * time.Millisecond,
	})

	start := time.Now()
	_, err := ex.Run(context.Background(), "C1", "hi")
	assert.True(t, errors.Is(err, errors.KindTimeout), "got %v", err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestExchange_Canceled(t *testing.T) {
	ex := NewExchange(ExchangeConfig{
		Binary:      writeFakeCLI(t, "exec sleep 10"),
		GracePeriod: 100 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	_, err := ex.Run(ctx, "C1", "hi")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.KindCanceled), "got %v", err)
}
