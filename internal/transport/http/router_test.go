package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/google/uuid"

	"universed/internal/commissioner"
	"universed/internal/commissioner/tasks"
	"universed/internal/config"
	"universed/internal/executors"
	"universed/internal/universe"
)

type apiFixture struct {
	router    http.Handler
	engine    *commissioner.Commissioner
	universes universe.Store
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	retry := config.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}
	store := universe.NewMemStore()
	deps := &commissioner.Deps{
		Universes: store,
		Tasks:     commissioner.NewMemTaskStore(),
		NodeAgent: executors.NewFakeNodeAgent(nil),
		Provider:  executors.NewProviderClient(executors.NewFakeProviderAPI(), 1000, 1000, nil),
		DNS:       executors.NewFakeDNSManager("test.local"),
		DB:        executors.NewFakeDBClient(retry),
		Retry:     retry,
	}
	registry := commissioner.NewRegistry()
	tasks.RegisterAll(registry)
	engine := commissioner.New(config.EngineConfig{
		Workers: 2, QueueDepth: 8, GroupTimeout: time.Minute, Retry: retry,
	}, registry, deps)
	require.NoError(t, engine.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		engine.Stop(ctx)
	})

	return &apiFixture{
		router:    NewRouter(RouterDeps{Engine: engine, Universes: store}),
		engine:    engine,
		universes: store,
	}
}

func (f *apiFixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func createUniverseRequest() map[string]interface{} {
	return map[string]interface{}{
		"name":               "api-test",
		"replication_factor": 1,
		"software_version":   "2.20.1.0",
		"nodes": []map[string]interface{}{
			{"node_name": "n1", "cloud": "aws", "region": "us-east-1", "zone": "us-east-1a",
				"instance_type": "c5.large", "private_ip": "10.0.0.1"},
		},
	}
}

func TestUniverseCreateAndGet(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/universes", createUniverseRequest())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created universe.Universe
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "api-test", created.Name)
	assert.NotEqual(t, uuid.Nil, created.UUID)

	rec = f.do(t, http.MethodGet, "/api/v1/universes/"+created.UUID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/universes/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/universes/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUniverseCreateValidation(t *testing.T) {
	f := newAPIFixture(t)

	bad := createUniverseRequest()
	bad["replication_factor"] = 5
	rec := f.do(t, http.MethodPost, "/api/v1/universes", bad)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	missing := createUniverseRequest()
	delete(missing, "name")
	rec = f.do(t, http.MethodPost, "/api/v1/universes", missing)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOperationSubmitAndPoll(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/universes", createUniverseRequest())
	require.Equal(t, http.StatusCreated, rec.Code)
	var created universe.Universe
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = f.do(t, http.MethodPost, "/api/v1/operations", map[string]interface{}{
		"type":          "CreateUniverse",
		"universe_uuid": created.UUID.String(),
	})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var accepted OperationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))
	require.NotEmpty(t, accepted.TaskUUID)

	deadline := time.Now().Add(10 * time.Second)
	for {
		rec = f.do(t, http.MethodGet, "/api/v1/operations/"+accepted.TaskUUID, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var status commissioner.TaskStatus
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
		if status.State.IsTerminal() {
			assert.Equal(t, commissioner.TaskSuccess, status.State, "error: %s", status.ErrorString)
			assert.Equal(t, 100, status.PercentDone)
			break
		}
		require.True(t, time.Now().Before(deadline), "operation never finished")
		time.Sleep(5 * time.Millisecond)
	}

	rec = f.do(t, http.MethodGet,
		fmt.Sprintf("/api/v1/operations?universe_uuid=%s&state=Success", created.UUID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed struct {
		Tasks []commissioner.TaskStatus `json:"tasks"`
		Count int                       `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	assert.Equal(t, 1, listed.Count)
}

func TestOperationSubmitErrors(t *testing.T) {
	f := newAPIFixture(t)

	// Unknown operation type.
	rec := f.do(t, http.MethodPost, "/api/v1/operations", map[string]interface{}{
		"type":          "ResizeNode",
		"universe_uuid": uuid.NewString(),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Missing universe UUID fails validation.
	rec = f.do(t, http.MethodPost, "/api/v1/operations", map[string]interface{}{
		"type": "CreateUniverse",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Stale version maps to a conflict.
	createRec := f.do(t, http.MethodPost, "/api/v1/universes", createUniverseRequest())
	require.Equal(t, http.StatusCreated, createRec.Code)
	var created universe.Universe
	require.NoError(t, json.Unmarshal(createRec.Body.Bytes(), &created))

	stale := int64(99)
	rec = f.do(t, http.MethodPost, "/api/v1/operations", map[string]interface{}{
		"type":             "CreateUniverse",
		"universe_uuid":    created.UUID.String(),
		"expected_version": stale,
	})
	// Version conflicts surface on the task record, not at submission:
	// submission only checks the registry and the admission queue.
	require.Equal(t, http.StatusAccepted, rec.Code)
	var accepted OperationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))

	deadline := time.Now().Add(10 * time.Second)
	for {
		statusRec := f.do(t, http.MethodGet, "/api/v1/operations/"+accepted.TaskUUID, nil)
		var status commissioner.TaskStatus
		require.NoError(t, json.Unmarshal(statusRec.Body.Bytes(), &status))
		if status.State.IsTerminal() {
			assert.Equal(t, commissioner.TaskFailure, status.State)
			assert.Contains(t, status.ErrorString, "StaleVersion")
			break
		}
		require.True(t, time.Now().Before(deadline))
		time.Sleep(5 * time.Millisecond)
	}
}

func TestOperationStatusNotFound(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, http.MethodGet, "/api/v1/operations/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}
