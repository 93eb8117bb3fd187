package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/germanamz/persona/pkg/chats/chat"
	"github.com/germanamz/persona/pkg/chats/content"
	"github.com/germanamz/persona/pkg/chats/message"
	"github.com/germanamz/persona/pkg/chats/role"
	"github.com/germanamz/persona/pkg/engine"
	"github.com/germanamz/persona/pkg/modeladapter"
	"github.com/germanamz/persona/pkg/persona"
	"github.com/germanamz/persona/pkg/tools/toolbox"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cliModel judges every question inappropriate and walks the agent through
// judge, excuse and the final answer.
type cliModel struct{ turn int }

func (m *cliModel) Complete(_ context.Context, c *chat.Chat, tools []toolbox.Tool) (message.Message, error) {
	if tools == nil {
		p := c.At(0).TextContent()
		if strings.HasPrefix(p, "Judge") {
			return message.NewText("", role.Assistant, "innapropriate"), nil
		}
		return message.NewText("", role.Assistant, "I left my notes on the Beagle."), nil
	}

	m.turn++
	switch m.turn {
	case 1:
		return message.New("", role.Assistant, content.ToolCall{ID: "1", Name: persona.JudgeTool, Arguments: `{"question":"q"}`}), nil
	case 2:
		return message.New("", role.Assistant, content.ToolCall{ID: "2", Name: persona.ExcuseTool, Arguments: `{"figure":"Charles Darwin"}`}), nil
	default:
		return message.NewText("", role.Assistant, `{"excuse":"I left my notes on the Beagle.","response":""}`), nil
	}
}

func TestParseFlags(t *testing.T) {
	o, err := parseFlags("run", []string{"-figure", "Ada Lovelace", "-question", "What is an engine?", "-verbose"}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", o.figure)
	assert.Equal(t, "What is an engine?", o.question)
	assert.True(t, o.verbose)
	assert.Equal(t, ".env", o.envFile)
	assert.Empty(t, o.configPath)

	_, err = parseFlags("run", []string{"-nope"}, io.Discard)
	assert.Error(t, err)
}

func TestResolveConfigPath(t *testing.T) {
	t.Chdir(t.TempDir())

	assert.Equal(t, "custom.yaml", resolveConfigPath("custom.yaml"))
	assert.Empty(t, resolveConfigPath(""))

	require.NoError(t, os.WriteFile(defaultConfigFile, []byte("{}"), 0o600))
	assert.Equal(t, defaultConfigFile, resolveConfigPath(""))
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, engine.Defaults().Persona, cfg.Persona)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, loadDotEnv(filepath.Join(dir, "missing.env")))

	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("PERSONA_TEST_DOTENV=loaded\n"), 0o600))
	t.Setenv("PERSONA_TEST_DOTENV", "")
	require.NoError(t, os.Unsetenv("PERSONA_TEST_DOTENV"))

	require.NoError(t, loadDotEnv(path))
	assert.Equal(t, "loaded", os.Getenv("PERSONA_TEST_DOTENV"))
}

func TestRun_PrintsAnswer(t *testing.T) {
	engine.RegisterProvider("cli-test", func(engine.ProviderConfig) (modeladapter.Completer, error) {
		return &cliModel{}, nil
	})

	dir := t.TempDir()
	path := filepath.Join(dir, "persona.yaml")
	require.NoError(t, os.WriteFile(path, []byte("provider:\n  kind: cli-test\n  api_key: unused\n"), 0o600))

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), options{configPath: path, verbose: true}, &stdout, &stderr)
	require.NoError(t, err)

	var got map[string]string
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &got))
	assert.Equal(t, map[string]string{"excuse": "I left my notes on the Beagle.", "response": ""}, got)

	assert.Contains(t, stderr.String(), persona.JudgeTool)
	assert.Contains(t, stderr.String(), "tokens:")
}

func TestRun_InvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persona.yaml")
	require.NoError(t, os.WriteFile(path, []byte("provider:\n  kind: nowhere\n"), 0o600))

	err := run(context.Background(), options{configPath: path}, io.Discard, io.Discard)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown provider kind "nowhere"`)
}
