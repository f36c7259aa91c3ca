package errors

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		wantMsg string
		wantCat Category
	}{
		{"config", "E100", "Configuration file not found", CategoryConfig},
		{"store", "E111", "Unknown store driver", CategoryStore},
		{"events", "E120", "Event bus connection failed", CategoryEvents},
		{"unknown", "E999", "Unknown error", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code)
			assert.Equal(t, tt.code, err.Code)
			assert.Equal(t, tt.wantMsg, err.Message)
			assert.Equal(t, tt.wantCat, err.Category)
		})
	}
}

func TestErrorString(t *testing.T) {
	err := New("E102").WithDetailf("server.addr %q", "")
	assert.Equal(t, `E102: Invalid configuration value: server.addr ""`, err.Error())

	err = New("E110").Wrap(io.ErrUnexpectedEOF)
	assert.Equal(t, "E110: Attribute store unavailable: unexpected EOF", err.Error())
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	assert.Equal(t, "plain", Newf(CategoryCLI, "plain").Error())
}

func TestFromError(t *testing.T) {
	assert.Nil(t, FromError(nil, "E110"))

	coded := New("E120")
	wrapped := fmt.Errorf("connect: %w", coded)
	assert.Same(t, coded, FromError(wrapped, "E110"))

	plain := stderrors.New("boom")
	got := FromError(plain, "E110")
	assert.Equal(t, "E110", got.Code)
	assert.ErrorIs(t, got, plain)
}

func TestFormat(t *testing.T) {
	DisableColors()
	defer EnableColors()

	err := New("E102").WithDetail("store.driver must be one of memory, sqlite, s3")
	out := err.Format()
	assert.True(t, strings.HasPrefix(out, "ERROR E102: Invalid configuration value\n"))
	assert.Contains(t, out, "  store.driver must be one of memory, sqlite, s3\n")
	assert.NotContains(t, out, "Hint:")

	out = New("E100").Format()
	assert.Contains(t, out, "Hint: Pass --config")
	assert.Equal(t, "E100: Configuration file not found", New("E100").FormatCompact())
}

func TestFprint(t *testing.T) {
	DisableColors()
	defer EnableColors()

	var buf bytes.Buffer
	Fprint(&buf, stderrors.New("boom"))
	assert.Equal(t, "ERROR boom\n", buf.String())

	buf.Reset()
	Fprint(&buf, fmt.Errorf("serve: %w", New("E130")))
	assert.Contains(t, buf.String(), "ERROR E130: Listener failed")
}

func TestWrapText(t *testing.T) {
	assert.Equal(t, []string{"short"}, wrapText("short", 10))
	assert.Equal(t, []string{"aaa bbb", "ccc"}, wrapText("aaa bbb ccc", 7))
}

func TestCodesSorted(t *testing.T) {
	codes := Codes()
	require.NotEmpty(t, codes)
	for i := 1; i < len(codes); i++ {
		assert.Less(t, codes[i-1], codes[i])
	}
	for _, c := range codes {
		tmpl, ok := Lookup(c)
		require.True(t, ok)
		assert.NotEmpty(t, tmpl.Message)
	}
}
