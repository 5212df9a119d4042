package feeds

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transit-explorer/core/internal/config"
)

func TestNew(t *testing.T) {
	for _, source := range []string{config.LiveSourceChalo, config.LiveSourceGTFSRT} {
		t.Run(source, func(t *testing.T) {
			live, err := New(&config.Config{LiveSource: source, LiveCacheTTL: time.Second}, nil, nil)
			require.NoError(t, err)

			// unconfigured endpoints yield nothing rather than failing
			arrivals, err := live.FetchArrivals(context.Background(), "S1")
			require.NoError(t, err)
			assert.Empty(t, arrivals)
		})
	}

	_, err := New(&config.Config{LiveSource: "fax"}, nil, nil)
	assert.Error(t, err)
}
