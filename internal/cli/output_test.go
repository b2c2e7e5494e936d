package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExitError(t *testing.T) {
	err := NewExitError(ExitCommandError, "bad input")
	assert.Equal(t, "bad input", err.Error())
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	inner := errors.New("disk full")
	wrapped := WrapExitError(ExitFailure, "sync failed", inner)
	assert.Equal(t, "sync failed: disk full", wrapped.Error())
	assert.ErrorIs(t, wrapped, inner)
	assert.Equal(t, ExitFailure, GetExitCode(wrapped))
}

func TestGetExitCode_PlainErrorDefaultsToFailure(t *testing.T) {
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("boom")))
}

func TestGetExitCode_WrappedExitError(t *testing.T) {
	err := fmt.Errorf("outer: %w", NewExitError(ExitCommandError, "inner"))
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestOutputFormatter_TextSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "text", Writer: buf}

	err := f.Success(map[string]int{"n": 3}, func(w io.Writer) {
		fmt.Fprintln(w, "3 contacts")
	})
	require.NoError(t, err)
	assert.Equal(t, "3 contacts\n", buf.String())
}

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "json", Writer: buf}

	err := f.Success(map[string]int{"n": 3}, func(w io.Writer) {
		t.Fatal("text callback must not run in json mode")
	})
	require.NoError(t, err)

	var resp Response
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, map[string]any{"n": float64(3)}, resp.Data)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, f.Error("it broke", nil))

	var resp Response
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "it broke", resp.Error.Message)
}
