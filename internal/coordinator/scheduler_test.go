package coordinator_test

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/donaldgifford/shopmon/internal/coordinator"
	domain "github.com/donaldgifford/shopmon/pkg/types"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewScheduler_RegistersCronEntry(t *testing.T) {
	t.Parallel()

	m := coordinator.NewManager()
	sched, err := coordinator.NewScheduler(m, 5*time.Minute, quietLogger())
	require.NoError(t, err)

	assert.Len(t, sched.Entries(), 1)
}

func TestScheduler_StartStop(t *testing.T) {
	t.Parallel()

	m := coordinator.NewManager()
	require.NoError(t, m.Add(managed(t, "conn-1", &fakeClient{shop: domain.ShopInfo{ShopID: 1}})))

	sched, err := coordinator.NewScheduler(m, time.Hour, quietLogger())
	require.NoError(t, err)

	sched.Start()
	ctx := sched.Stop()
	<-ctx.Done()
}
