package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/zhubert/plural-bridge/internal/claude"
	"github.com/zhubert/plural-bridge/internal/config"
)

// fakeAgent answers "-p" with a JSON result and streams two records for
// "--resume" before exiting.
const fakeAgent = `if [ "$1" = "-p" ]; then
  printf '{"result":"reply to %s"}' "$2"
else
  printf '{"type":"content","delta":{"text":"streamed"}}\n'
  printf '{"type":"error","error":{"message":"bad"}}\n'
fi`

func useFakeAgent(t *testing.T, body string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "claude")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	t.Setenv(config.EnvClaudeBinary, path)
}

func testCommand() (*cobra.Command, *bytes.Buffer, *bytes.Buffer) {
	var out, errOut bytes.Buffer
	c := &cobra.Command{}
	c.SetOut(&out)
	c.SetErr(&errOut)
	return c, &out, &errOut
}

func TestWriterSender_Prefixes(t *testing.T) {
	var buf bytes.Buffer
	s := &writerSender{w: &buf}

	ctx := context.Background()
	require.NoError(t, s.Send(ctx, "C1", claude.KindMessage, "hello"))
	require.NoError(t, s.Send(ctx, "C1", claude.KindError, "broken"))
	require.NoError(t, s.Send(ctx, "C1", claude.KindSystem, "session ended"))

	assert.Equal(t, "hello\n! broken\n» session ended\n", buf.String())
}

func TestWriterSender_Concurrent(t *testing.T) {
	var buf bytes.Buffer
	s := &writerSender{w: &buf}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Send(context.Background(), "C1", claude.KindMessage, "line")
		}()
	}
	wg.Wait()
	assert.Equal(t, 20, strings.Count(buf.String(), "line\n"))
}

func TestRunAsk(t *testing.T) {
	isolateCommand(t)
	useFakeAgent(t, fakeAgent)

	c, out, _ := testCommand()
	require.NoError(t, runAsk(c, []string{"what", "time"}))
	assert.Equal(t, "reply to what time\n", out.String())
}

func TestRunAsk_SplitsLongReplies(t *testing.T) {
	isolateCommand(t)
	useFakeAgent(t, `printf '{"result":"aaaaaaaaaabbbbbbbbbb"}'`)

	configPath = filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("max_message_length: 10\n"), 0o644))

	c, out, _ := testCommand()
	require.NoError(t, runAsk(c, []string{"hi"}))
	assert.Equal(t, "aaaaaaaaaa\nbbbbbbbbbb\n", out.String())
}

func TestRunAsk_NoOutput(t *testing.T) {
	isolateCommand(t)
	useFakeAgent(t, "exit 0")

	c, out, errOut := testCommand()
	require.NoError(t, runAsk(c, []string{"hi"}))
	assert.Empty(t, out.String())
	assert.Contains(t, errOut.String(), "no output")
}

func TestRunAsk_MissingBinary(t *testing.T) {
	isolateCommand(t)
	t.Setenv(config.EnvClaudeBinary, filepath.Join(t.TempDir(), "not-here"))

	c, _, _ := testCommand()
	err := runAsk(c, []string{"hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Install the Claude CLI")
}

func TestRunResume_StreamsUntilExit(t *testing.T) {
	isolateCommand(t)
	useFakeAgent(t, fakeAgent)
	origChannel := resumeChannel
	defer func() { resumeChannel = origChannel }()
	resumeChannel = "cli"

	c, out, errOut := testCommand()
	require.NoError(t, runResume(c, []string{"abc"}))

	assert.Contains(t, errOut.String(), "Resumed session abc")
	assert.Contains(t, out.String(), "streamed\n")
	assert.Contains(t, out.String(), "! Error: bad\n")
}

func TestRunConfigInit(t *testing.T) {
	isolateCommand(t)
	origForce := configForce
	defer func() { configForce = origForce }()
	configForce = false

	configPath = filepath.Join(t.TempDir(), "nested", "config.yaml")

	c, out, _ := testCommand()
	require.NoError(t, runConfigInit(c, nil))
	assert.Contains(t, out.String(), configPath)

	cfg, err := config.Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, config.Default().MaxMessageLength, cfg.MaxMessageLength)

	err = runConfigInit(c, nil)
	require.Error(t, err, "existing file needs --force")
	assert.Contains(t, err.Error(), "--force")

	configForce = true
	require.NoError(t, runConfigInit(c, nil))
}

func TestRunConfigInit_DefaultLocation(t *testing.T) {
	isolateCommand(t)
	origForce := configForce
	defer func() { configForce = origForce }()
	configForce = false

	c, _, _ := testCommand()
	require.NoError(t, runConfigInit(c, nil))

	dir, err := config.Dir()
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "config.yaml"))
	assert.NoError(t, err)
}

func TestRunConfigShow(t *testing.T) {
	isolateCommand(t)
	configPath = filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(configPath, []byte(`{
  // comments are allowed
  "claude_binary": "/usr/local/bin/claude",
  "max_message_length": 1500,
}`), 0o644))

	c, out, _ := testCommand()
	require.NoError(t, runConfigShow(c, nil))

	text := out.String()
	assert.True(t, strings.HasPrefix(text, "# "+configPath+"\n"), text)

	var shown map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(text), &shown))
	assert.Equal(t, "/usr/local/bin/claude", shown["claude_binary"])
	assert.Equal(t, 1500, shown["max_message_length"])
	assert.Equal(t, logFile, shown["log_file"])
}
