package pagination

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sternrassler/ws-nodes/internal/testutil"
	"github.com/Sternrassler/ws-nodes/pkg/auth"
	"github.com/Sternrassler/ws-nodes/pkg/cancel"
	"github.com/Sternrassler/ws-nodes/pkg/client"
	"github.com/Sternrassler/ws-nodes/pkg/settings"
)

const (
	membersBase  = "/rest/compound/members"
	membersPages = membersBase + "/pages"
	membersCount = membersBase + "/count"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.PollInterval = 5 * time.Millisecond
	return cfg
}

func newServiceClient(t *testing.T, mock *testutil.MockService, authCfg auth.Config) *client.Client {
	t.Helper()

	s := settings.Default()
	s.Auth = authCfg
	c, err := client.New(client.Config{
		Settings:    s,
		Preferences: settings.StaticPreferences(mock.URL() + "/rest"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func membersMethod(pageSize int) Method {
	return Method{
		Path:      "compound/members/pages",
		CountPath: "compound/members/count",
		Params:    client.Params{client.String("smiles", "CCO")},
		PageSize:  pageSize,
	}
}

func TestFetch_CountThenPages(t *testing.T) {
	mock := testutil.NewMockService()
	defer mock.Close()
	mock.SetPagedDataset(membersBase, testutil.Rows(250))

	orch := NewOrchestrator(newServiceClient(t, mock, auth.Config{}), testConfig())
	flag := cancel.NewFlag()

	h, err := orch.Fetch(context.Background(), flag, membersMethod(100))
	require.NoError(t, err)

	assert.Equal(t, []string{
		membersCount + "?smiles=CCO",
		membersPages + "?smiles=CCO&offset=0&size=100",
		membersPages + "?smiles=CCO&offset=100&size=100",
		membersPages + "?smiles=CCO&offset=200&size=100",
	}, mock.Requests())

	assert.Equal(t, StateDone, h.State())
	assert.Equal(t, 250, h.Total())
	assert.Equal(t, 250, h.Fetched())
	assert.Equal(t, 3, h.Pages())
	require.Len(t, h.Records(), 250)
	assert.NotEmpty(t, h.ID)

	for i, rec := range h.Records() {
		cid, ok := rec.Get("cid")
		require.True(t, ok)
		assert.Equal(t, int64(i+1), cid, "rows keep received order")
	}

	progress := flag.Progress()
	require.NotEmpty(t, progress)
	assert.Equal(t, []float64{0.4, 0.8, 1}, progress, "completion is reported once")
}

func TestFetch_SizeAllIssuesOneCall(t *testing.T) {
	mock := testutil.NewMockService()
	defer mock.Close()
	mock.SetPagedDataset(membersBase, testutil.Rows(250))

	orch := NewOrchestrator(newServiceClient(t, mock, auth.Config{}), testConfig())

	h, err := orch.Fetch(context.Background(), cancel.NewFlag(), membersMethod(PageSizeAll))
	require.NoError(t, err)

	assert.Equal(t, 1, mock.RequestCount(membersPages))
	assert.Contains(t, mock.Requests(), membersPages+"?smiles=CCO&size=all")
	assert.Len(t, h.Records(), 250)
	assert.Equal(t, StateDone, h.State())
}

func TestFetch_CancelBetweenPages(t *testing.T) {
	mock := testutil.NewMockService()
	defer mock.Close()
	mock.SetPagedDataset(membersBase, testutil.Rows(500))

	flag := cancel.NewFlag()
	mock.OnRequest(func(r *http.Request) {
		if r.URL.Path == membersPages && r.URL.Query().Get("offset") == "100" {
			flag.Cancel()
		}
	})

	orch := NewOrchestrator(newServiceClient(t, mock, auth.Config{}), testConfig())

	h, err := orch.Fetch(context.Background(), flag, membersMethod(100))
	require.Error(t, err)
	assert.ErrorIs(t, err, cancel.ErrCanceled)

	assert.Equal(t, 2, mock.RequestCount(membersPages))
	assert.Equal(t, StateCanceled, h.State())
	assert.Nil(t, h.Records(), "canceled fetch discards accumulated rows")
}

func TestFetch_UnauthorizedPageAborts(t *testing.T) {
	mock := testutil.NewMockService()
	defer mock.Close()
	mock.SetPagedDataset(membersBase, testutil.Rows(500))

	rows := testutil.NewJSONResponse(`[{"cid": 1}, {"cid": 2}]`)
	mock.SetHandler(membersPages, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("offset") == "0" {
			w.Write([]byte(rows.Body))
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	})

	orch := NewOrchestrator(newServiceClient(t, mock, auth.Config{}), testConfig())

	h, err := orch.Fetch(context.Background(), cancel.NewFlag(), membersMethod(2))
	require.Error(t, err)
	assert.True(t, client.IsAuth(err))

	var callErr *client.Error
	require.True(t, errors.As(err, &callErr))
	assert.Equal(t, http.StatusUnauthorized, callErr.StatusCode)

	assert.Equal(t, 2, mock.RequestCount(membersPages))
	assert.Equal(t, StateFailed, h.State())
	assert.Nil(t, h.Records())
}

func TestFetch_EmptyPasswordMakesNoCalls(t *testing.T) {
	mock := testutil.NewMockService()
	defer mock.Close()
	mock.SetPagedDataset(membersBase, testutil.Rows(10))

	c := newServiceClient(t, mock, auth.Config{Scheme: auth.SchemeNTLM, Username: `LAB\alice`, Password: " "})
	orch := NewOrchestrator(c, testConfig())

	h, err := orch.Fetch(context.Background(), cancel.NewFlag(), membersMethod(5))
	require.Error(t, err)
	assert.True(t, client.IsConfig(err))
	assert.ErrorIs(t, err, auth.ErrIncompleteCredentials)

	assert.Equal(t, 0, mock.RequestCount(""))
	assert.Equal(t, StateFailed, h.State())
}

func TestFetch_CountFailureMeansUnknownTotal(t *testing.T) {
	mock := testutil.NewMockService()
	defer mock.Close()
	mock.SetPagedDataset(membersBase, testutil.Rows(250))
	mock.SetResponse(membersCount, testutil.NewServerErrorResponse())

	orch := NewOrchestrator(newServiceClient(t, mock, auth.Config{}), testConfig())
	flag := cancel.NewFlag()

	h, err := orch.Fetch(context.Background(), flag, membersMethod(100))
	require.NoError(t, err)

	assert.Equal(t, -1, h.Total())
	assert.Len(t, h.Records(), 250)
	assert.Equal(t, 3, mock.RequestCount(membersPages))
	assert.Equal(t, []float64{1}, flag.Progress(), "no fractional progress without a total")
}

func TestFetch_LimitAndMaxPages(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Method)
		wantRows  int
		wantLast  string
		wantPages int
	}{
		{
			name:      "limit shrinks last page",
			mutate:    func(m *Method) { m.Limit = 150 },
			wantRows:  150,
			wantLast:  membersPages + "?smiles=CCO&offset=100&size=50",
			wantPages: 2,
		},
		{
			name:      "max pages",
			mutate:    func(m *Method) { m.MaxPages = 2 },
			wantRows:  200,
			wantLast:  membersPages + "?smiles=CCO&offset=100&size=100",
			wantPages: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := testutil.NewMockService()
			defer mock.Close()
			mock.SetPagedDataset(membersBase, testutil.Rows(250))

			orch := NewOrchestrator(newServiceClient(t, mock, auth.Config{}), testConfig())
			m := membersMethod(100)
			tt.mutate(&m)

			h, err := orch.Fetch(context.Background(), cancel.NewFlag(), m)
			require.NoError(t, err)

			reqs := mock.Requests()
			assert.Equal(t, tt.wantLast, reqs[len(reqs)-1])
			assert.Equal(t, tt.wantPages, h.Pages())
			assert.Len(t, h.Records(), tt.wantRows)
		})
	}
}

func TestFetch_MaxChildElementsGuard(t *testing.T) {
	mock := testutil.NewMockService()
	defer mock.Close()
	mock.SetPagedDataset(membersBase, testutil.Rows(250))

	cfg := testConfig()
	cfg.MaxChildElements = 50
	orch := NewOrchestrator(newServiceClient(t, mock, auth.Config{}), cfg)

	h, err := orch.Fetch(context.Background(), cancel.NewFlag(), membersMethod(100))
	require.Error(t, err)
	assert.True(t, client.IsService(err))
	assert.Equal(t, StateFailed, h.State())
	assert.Equal(t, 1, mock.RequestCount(membersPages))
}

// fakeCaller answers calls from a function and records them.
type fakeCaller struct {
	mu      sync.Mutex
	calls   []client.Call
	respond func(call client.Call) (*client.CallResult, error)
}

func (f *fakeCaller) Do(_ context.Context, call client.Call) (*client.CallResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
	return f.respond(call)
}

func (f *fakeCaller) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Path == path {
			n++
		}
	}
	return n
}

func jsonResult(body string) *client.CallResult {
	return &client.CallResult{StatusCode: http.StatusOK, Body: []byte(body)}
}

func TestFetch_ExtraRowsBeyondTotalAreKept(t *testing.T) {
	caller := &fakeCaller{respond: func(call client.Call) (*client.CallResult, error) {
		if call.Path == "count" {
			return jsonResult(`3`), nil
		}
		return jsonResult(`[{"i":1},{"i":2},{"i":3},{"i":4},{"i":5}]`), nil
	}}

	h, err := NewOrchestrator(caller, testConfig()).Fetch(context.Background(), cancel.NewFlag(), Method{
		Path:      "pages",
		CountPath: "count",
		PageSize:  10,
	})
	require.NoError(t, err)

	assert.Equal(t, 3, h.Total())
	assert.Len(t, h.Records(), 5)
	assert.Equal(t, 1, caller.count("pages"))
}

func TestFetch_ZeroTotalMakesNoPageCalls(t *testing.T) {
	caller := &fakeCaller{respond: func(call client.Call) (*client.CallResult, error) {
		if call.Path == "count" {
			return jsonResult(`{"count": 0}`), nil
		}
		return jsonResult(`[]`), nil
	}}

	h, err := NewOrchestrator(caller, testConfig()).Fetch(context.Background(), nil, Method{
		Path:      "pages",
		CountPath: "count",
	})
	require.NoError(t, err)

	assert.Equal(t, 0, caller.count("pages"))
	assert.Equal(t, StateDone, h.State())
	assert.Empty(t, h.Records())
}

func TestFetch_TotalFromPageBody(t *testing.T) {
	caller := &fakeCaller{respond: func(call client.Call) (*client.CallResult, error) {
		return jsonResult(`{"total": 2, "rows": [{"i": 1}, {"i": 2}]}`), nil
	}}

	h, err := NewOrchestrator(caller, testConfig()).Fetch(context.Background(), nil, Method{
		Path:       "pages",
		PageSize:   2,
		RowsPath:   "rows",
		CountField: "total",
	})
	require.NoError(t, err)

	assert.Equal(t, 2, h.Total())
	assert.Equal(t, 1, caller.count("pages"))
}

func TestFetch_ServiceErrorReturnedUnchanged(t *testing.T) {
	want := &client.Error{Class: client.ErrorClassService, StatusCode: http.StatusBadGateway, Message: "upstream"}
	caller := &fakeCaller{respond: func(client.Call) (*client.CallResult, error) {
		return nil, want
	}}

	_, err := NewOrchestrator(caller, testConfig()).Fetch(context.Background(), nil, Method{Path: "pages"})
	assert.Same(t, want, err)
}

func TestFetch_ConfigErrorOnCountAborts(t *testing.T) {
	caller := &fakeCaller{respond: func(client.Call) (*client.CallResult, error) {
		return nil, &client.Error{Class: client.ErrorClassConfig, Message: "credentials"}
	}}

	h, err := NewOrchestrator(caller, testConfig()).Fetch(context.Background(), nil, Method{Path: "pages", CountPath: "count"})
	require.Error(t, err)
	assert.True(t, client.IsConfig(err))
	assert.Equal(t, 0, caller.count("pages"))
	assert.Equal(t, StateFailed, h.State())
}

func TestFetch_ContextCanceledBeforeStart(t *testing.T) {
	caller := &fakeCaller{respond: func(client.Call) (*client.CallResult, error) {
		return jsonResult(`[]`), nil
	}}

	ctx, cancelFn := context.WithCancel(context.Background())
	cancelFn()

	h, err := NewOrchestrator(caller, testConfig()).Fetch(ctx, nil, Method{Path: "pages"})
	require.Error(t, err)
	assert.ErrorIs(t, err, cancel.ErrCanceled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateCanceled, h.State())
	assert.Equal(t, 0, caller.count("pages"))
}

func TestFetch_InvalidMethod(t *testing.T) {
	caller := &fakeCaller{respond: func(client.Call) (*client.CallResult, error) {
		t.Fatal("no call expected")
		return nil, nil
	}}
	orch := NewOrchestrator(caller, testConfig())

	for _, m := range []Method{
		{},
		{Path: "pages", PageSize: -5},
		{Path: "pages", Limit: -1},
	} {
		h, err := orch.Fetch(context.Background(), nil, m)
		require.Error(t, err)
		assert.True(t, client.IsConfig(err))
		assert.Equal(t, StateFailed, h.State())
	}
}

func TestState_Terminal(t *testing.T) {
	assert.False(t, StateInit.Terminal())
	assert.False(t, StateFetching.Terminal())
	assert.True(t, StateDone.Terminal())
	assert.True(t, StateCanceled.Terminal())
	assert.True(t, StateFailed.Terminal())
}
