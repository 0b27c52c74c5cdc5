package clickhouse

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"queueloss/internal/storage/migrations"
)

// setupTestDB starts a throwaway ClickHouse with the production schema applied.
// The container creates the analytics database itself.
func setupTestDB(t *testing.T) (*Conn, func()) {
	t.Helper()
	if testing.Short() {
		t.Skip("clickhouse container test")
	}
	ctx := context.Background()

	ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "clickhouse/clickhouse-server:24.1-alpine",
			ExposedPorts: []string{"9000/tcp"},
			Env:          map[string]string{"CLICKHOUSE_DB": "queueloss"},
			WaitingFor: wait.ForAll(
				wait.ForListeningPort("9000/tcp"),
				wait.ForLog("Ready for connections"),
			).WithDeadline(time.Minute),
		},
		Started: true,
	})
	require.NoError(t, err)

	host, err := ctr.Host(ctx)
	require.NoError(t, err)
	port, err := ctr.MappedPort(ctx, "9000")
	require.NoError(t, err)

	conn, err := NewConn(ctx, fmt.Sprintf("clickhouse://%s:%s/queueloss", host, port.Port()))
	require.NoError(t, err)

	ran, err := migrations.ApplyClickhouse(ctx, conn)
	require.NoError(t, err)
	require.NotEmpty(t, ran)

	return conn, func() {
		conn.Close()
		if err := ctr.Terminate(ctx); err != nil {
			t.Logf("terminate clickhouse: %v", err)
		}
	}
}
