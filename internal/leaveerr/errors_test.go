package leaveerr

import (
	"errors"
	"io/fs"
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorChainIsColonJoined(t *testing.T) {
	err := New(KindIsADirectory, "/w/dir1", ErrIsADirectory, "Can't remove /w/dir1")
	assert.Equal(t, "Can't remove /w/dir1: Is a directory", err.Error())

	wrapped := Wrap(err, KindRemove, "Run failed")
	assert.Equal(t, "Run failed: Can't remove /w/dir1: Is a directory", wrapped.Error())
	assert.Equal(t, []string{"Run failed", "Can't remove /w/dir1", "Is a directory"}, wrapped.Chain())

	// Wrapping an *Error keeps its kind and leaves the original untouched.
	assert.Equal(t, KindIsADirectory, wrapped.Kind)
	assert.Len(t, err.Context, 1)
}

func TestCauseStripsPathDecoration(t *testing.T) {
	pe := &fs.PathError{Op: "remove", Path: "/w/x", Err: syscall.EACCES}
	err := New(KindRemove, "/w/x", pe, "Can't remove /w/x")

	assert.Equal(t, "Can't remove /w/x: permission denied", err.Error())
	assert.True(t, errors.Is(err, fs.ErrPermission))
	assert.True(t, errors.Is(err, syscall.EACCES))
}

func TestKindClassification(t *testing.T) {
	tests := []struct {
		kind  Kind
		fatal bool
	}{
		{KindEnvironment, true},
		{KindEmptyTargetList, true},
		{KindMissingTargets, true},
		{KindOutsideWorkingDirectory, true},
		{KindProtectedDirectory, true},
		{KindDirectoryList, true},
		{KindConfig, true},
		{KindEntryRead, false},
		{KindIsADirectory, false},
		{KindDirectoryNotEmpty, false},
		{KindRemove, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.fatal, tt.kind.Fatal())
		})
	}
}

func TestIsKindThroughStdlibWrapping(t *testing.T) {
	inner := New(KindEntryRead, "/w/a", os.ErrNotExist, "Can't get type of /w/a")
	outer := errors.Join(errors.New("unrelated"), inner)

	require.True(t, IsKind(outer, KindEntryRead))
	assert.False(t, IsKind(outer, KindRemove))
	assert.False(t, IsKind(nil, KindRemove))
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
}

func TestWrapPlainError(t *testing.T) {
	err := Wrap(errors.New("boom"), KindConfig, "Can't load config")
	assert.Equal(t, KindConfig, err.Kind)
	assert.Equal(t, "Can't load config: boom", err.Error())
	assert.Nil(t, Wrap(nil, KindConfig, "ignored"))
}
