package agencysdk

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoginCarriesSessionCookie(t *testing.T) {
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/login":
			http.SetCookie(w, &http.Cookie{Name: SessionCookie, Value: "tok-1", Path: "/"})
			json.NewEncoder(w).Encode(map[string]any{"user": map[string]any{"id": "u1", "email": "a@b.c"}})
		case "/api/activity":
			ck, err := r.Cookie(SessionCookie)
			if err != nil {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			seen = append(seen, ck.Value, r.URL.Query().Get("entityType"))
			json.NewEncoder(w).Encode([]map[string]any{{"id": 2, "action": "task_assigned"}, {"id": 1, "action": "client_created"}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := New(srv.URL + "/api")
	u, err := c.Login(context.Background(), "a@b.c", "pw")
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)
	assert.Equal(t, "tok-1", c.SessionToken)

	items, err := c.RecentActivity(context.Background(), "task", "")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "task_assigned", items[0].Action)
	assert.Equal(t, []string{"tok-1", "task"}, seen)
}

func TestDistributeSendsBatchWithAPIKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tasks/distribute", r.URL.Path)
		assert.Equal(t, "key-1", r.Header.Get("X-Api-Key"))
		var body struct {
			ClientID    string      `json:"clientId"`
			Assignments []TaskAgent `json:"assignments"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "c1", body.ClientID)
		json.NewEncoder(w).Encode(map[string]any{
			"message":       "Tasks distributed successfully",
			"assignedTasks": len(body.Assignments),
		})
	}))
	defer srv.Close()

	c := New(srv.URL + "/api")
	c.APIKey = "key-1"
	res, err := c.Distribute(context.Background(), "c1", []TaskAgent{{TaskID: "t1", AgentID: "a1"}, {TaskID: "t2", AgentID: "a1"}})
	require.NoError(t, err)
	assert.Equal(t, 2, res.AssignedTasks)
}

func TestErrorEnvelopeIsDecoded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":{"code":"forbidden","message":"permission assignment.create required"}}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	c.BearerToken = "jwt"
	_, err := c.CreateAssignment(context.Background(), "c1", "t1", nil)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.Equal(t, "forbidden", apiErr.Code)
}
