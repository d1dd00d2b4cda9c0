package main

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uwscope/scope-web-sub000/internal/logger"
)

func TestAppFailRunsClosersInReverse(t *testing.T) {
	var closed []string
	a := &app{log: logger.NewNop()}
	a.closers = append(a.closers,
		func(context.Context) error { closed = append(closed, "storage"); return nil },
		func(context.Context) error { closed = append(closed, "tracing"); return errors.New("already closed") },
	)

	boom := errors.New("boom")
	got, err := a.fail(boom)
	require.ErrorIs(t, err, boom)
	assert.Nil(t, got)
	assert.Equal(t, []string{"tracing", "storage"}, closed)
}

func TestMaintainFlagsAreExclusive(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"maintain"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exactly one of")
}
