package leader

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatic(t *testing.T) {
	t.Run("should report its fixed answer", func(t *testing.T) {
		assert.True(t, Static(true).IsLeader())
		assert.False(t, Static(false).IsLeader())
	})

	t.Run("should run until cancelled", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		assert.NoError(t, Static(true).Run(ctx))
	})
}

func TestConfigEnabled(t *testing.T) {
	t.Run("should need endpoints", func(t *testing.T) {
		assert.False(t, Config{}.Enabled())
		assert.True(t, Config{Endpoints: []string{"etcd:2379"}}.Enabled())
	})
}
