package messaging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubject(t *testing.T) {
	t.Run("should prefix audit kinds", func(t *testing.T) {
		assert.Equal(t, "assetdao.proposal.voted", Subject("proposal.voted"))
	})

	t.Run("should trim stray dots", func(t *testing.T) {
		assert.Equal(t, "assetdao.units.issued", Subject(".units.issued."))
	})

	t.Run("should route empty kinds to unknown", func(t *testing.T) {
		assert.Equal(t, "assetdao.unknown", Subject(""))
	})
}

func TestNopPublisher(t *testing.T) {
	t.Run("should accept anything", func(t *testing.T) {
		var p Publisher = NopPublisher{}
		assert.NoError(t, p.Publish(context.Background(), Subject("x"), map[string]int{"a": 1}))
	})
}
