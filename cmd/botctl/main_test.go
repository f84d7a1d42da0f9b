package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildCommand(t *testing.T) {
	req, err := buildCommand("saque", []string{"50"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"valor": "50"}, req.Params)

	req, err = buildCommand("padrao", []string{"7", "7", "6"})
	require.NoError(t, err)
	assert.Equal(t, "7,7,6", req.Params["niveis"])

	req, err = buildCommand("padrao", []string{"8,6"})
	require.NoError(t, err)
	assert.Equal(t, "8,6", req.Params["niveis"])

	req, err = buildCommand("pausar", nil)
	require.NoError(t, err)
	assert.Nil(t, req.Params)

	_, err = buildCommand("nivel", nil)
	assert.Error(t, err)
	_, err = buildCommand("voar", nil)
	assert.Error(t, err)
}

func TestRunPostsCommand(t *testing.T) {
	var got commandRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		assert.Equal(t, "/api/commands", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"command":{"seq":1}}`))
	}))
	defer srv.Close()

	client := resty.New().SetBaseURL(srv.URL).SetAuthToken("tok")
	require.NoError(t, run(client, []string{"NIVEL", "NS8"}))
	assert.Equal(t, "nivel", got.Command)
	assert.Equal(t, "NS8", got.Params["nivel"])
	assert.Equal(t, "Bearer tok", auth)
}

func TestRunReportsHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"saque: valor inválido"}`))
	}))
	defer srv.Close()

	err := run(resty.New().SetBaseURL(srv.URL), []string{"saque", "-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}
