//go:build integration

package node

import (
	"context"
	"net/http"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Sternrassler/ws-nodes/internal/testutil"
	"github.com/Sternrassler/ws-nodes/pkg/auth"
	"github.com/Sternrassler/ws-nodes/pkg/cancel"
	"github.com/Sternrassler/ws-nodes/pkg/client"
	"github.com/Sternrassler/ws-nodes/pkg/credstore"
	"github.com/Sternrassler/ws-nodes/pkg/pagination"
	"github.com/Sternrassler/ws-nodes/pkg/settings"
	"github.com/Sternrassler/ws-nodes/pkg/table"
)

// setupRedis creates a Redis container for integration testing.
func setupRedis(t *testing.T) *redis.Client {
	t.Helper()

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Failed to get container endpoint: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{Addr: endpoint})
	t.Cleanup(func() {
		redisClient.Close()
		container.Terminate(context.Background())
	})
	return redisClient
}

// requireBasicAuth serves next only for alice/secret.
func requireBasicAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "alice" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func TestIntegration_NamedCredentialFromRedis(t *testing.T) {
	ctx := context.Background()
	store := credstore.NewStore(setupRedis(t))
	require.NoError(t, store.Put(ctx, "lab", auth.Credentials{Username: "alice", Password: "secret"}, 0))

	mock := testutil.NewMockService()
	defer mock.Close()
	mock.SetHandler("/rest/compound/members/count", requireBasicAuth(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"count": 3}`))
	}))
	mock.SetHandler("/rest/compound/members/pages", requireBasicAuth(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("offset") {
		case "0":
			w.Write([]byte(`[{"cid": 1}, {"cid": 2}]`))
		default:
			w.Write([]byte(`[{"cid": 3}]`))
		}
	}))

	s := settings.Default()
	s.Auth = auth.Config{Scheme: auth.SchemeBasic, CredentialName: "lab"}
	c, err := client.New(client.Config{
		Settings:    s,
		Preferences: settings.StaticPreferences(mock.URL() + "/rest"),
		Credentials: store,
	})
	require.NoError(t, err)
	defer c.Close()

	n := New(pagination.NewOrchestrator(c, pagination.DefaultConfig()), Config{
		Method: pagination.Method{
			Path:      "compound/members/pages",
			CountPath: "compound/members/count",
			PageSize:  2,
		},
		Bindings: []Binding{{Param: "smiles", Column: "smiles"}},
	})
	in := &table.Memory{Columns: []string{"smiles"}, Rows: [][]any{{"CCO"}, {"N"}}}

	res, err := n.Execute(ctx, cancel.NewFlag(), in)
	require.NoError(t, err)
	assert.Len(t, res.Rows, 6)

	// Credentials are resolved per call, so a removed entry fails the next run
	// before any request is sent.
	require.NoError(t, store.Delete(ctx, "lab"))
	mock.Reset()

	_, err = n.Execute(ctx, cancel.NewFlag(), in)
	require.Error(t, err)
	assert.True(t, client.IsConfig(err))
	assert.ErrorIs(t, err, auth.ErrMissingCredentials)
	assert.Equal(t, 0, mock.RequestCount(""))
}
