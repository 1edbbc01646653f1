// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package util

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *CommandError
		want string
	}{
		{
			name: "stderr wins",
			err:  &CommandError{Command: "make", ExitCode: 2, Stderr: "no rule", Wrapped: errors.New("exit status 2")},
			want: "make (exit 2): no rule",
		},
		{
			name: "wrapped fallback",
			err:  &CommandError{Command: "emrun", ExitCode: -1, Wrapped: errors.New("not found")},
			want: "emrun (exit -1): not found",
		},
		{
			name: "bare",
			err:  &CommandError{Command: "main", ExitCode: 1},
			want: "main (exit 1)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestNewCommandError_TrimsAndTruncates(t *testing.T) {
	err := NewCommandError("clang++", 1, "  oops \n", nil)
	assert.Equal(t, "oops", err.Stderr)

	long := strings.Repeat("x", maxStderr) + "tail"
	err = NewCommandError("clang++", 1, long, nil)
	assert.True(t, strings.HasSuffix(err.Stderr, "tail"))
	assert.True(t, strings.HasPrefix(err.Stderr, "..."))
	assert.Len(t, err.Stderr, maxStderr+3)
}

func TestNewCommandError_TruncatesOnRuneBoundary(t *testing.T) {
	// "é" is two bytes; a byte cut at len-maxStderr lands inside one.
	long := strings.Repeat("é", maxStderr/2) + "x"
	err := NewCommandError("emcc", 1, long, nil)
	assert.True(t, utf8.ValidString(err.Stderr))
	assert.True(t, strings.HasPrefix(err.Stderr, "...é"))
	assert.True(t, strings.HasSuffix(err.Stderr, "éx"))
	assert.LessOrEqual(t, len(err.Stderr), maxStderr+3)
}

func TestFromExec(t *testing.T) {
	assert.Nil(t, FromExec(nil, "make", nil, ""))

	base := errors.New("executable file not found")
	err := FromExec(base, "emrun", []string{"--browser", "firefox"}, "")
	require.NotNil(t, err)
	assert.Equal(t, -1, err.ExitCode)
	assert.Equal(t, "emrun --browser firefox", err.Command)
	assert.ErrorIs(t, err, base)
}

func TestExtractStderr(t *testing.T) {
	inner := NewCommandError("make", 2, "boom", nil)
	wrapped := fmt.Errorf("build: %w", inner)

	assert.Equal(t, "boom", ExtractStderr(wrapped))
	assert.Empty(t, ExtractStderr(errors.New("plain")))
	assert.Empty(t, ExtractStderr(nil))
}
