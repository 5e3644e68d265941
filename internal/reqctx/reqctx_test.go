package reqctx

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithScrapeAssignsAttemptID(t *testing.T) {
	ctx := WithScrape(context.Background(), "m1", "shop")
	sc := FromContext(ctx)

	assert.Equal(t, "m1", sc.MonitorID)
	assert.Equal(t, "shop", sc.SiteID)
	_, err := uuid.Parse(sc.AttemptID)
	require.NoError(t, err)

	other := FromContext(WithScrape(context.Background(), "m1", "shop"))
	assert.NotEqual(t, sc.AttemptID, other.AttemptID)
}

func TestFromContextWithoutScrape(t *testing.T) {
	assert.Equal(t, "unknown", FromContext(context.Background()).AttemptID)
}
