package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestFromContext(t *testing.T) {
	devLog, err := zap.NewDevelopment()
	require.NoError(t, err)

	tests := []struct {
		name   string
		logger *zap.Logger
		want   *zap.Logger
	}{
		{"has logger", devLog, devLog},
		{"no logger", nil, zap.NewNop()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			if tt.logger != nil {
				ctx = NewContext(ctx, tt.logger)
			}
			assert.Equal(t, tt.want, FromContext(ctx))
		})
	}
}

func TestNew(t *testing.T) {
	for _, debug := range []bool{true, false} {
		l, err := New(debug)
		require.NoError(t, err)
		assert.Equal(t, debug, l.Core().Enabled(zap.DebugLevel))
	}
}
