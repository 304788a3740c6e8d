package shared

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestActorContextRoundTrip(t *testing.T) {
	ctx := ContextWithActor(context.Background(), 42)
	require.EqualValues(t, 42, ActorFromContext(ctx))
}

func TestActorFromContextDefaultsToZero(t *testing.T) {
	require.Zero(t, ActorFromContext(context.Background()))
}
