package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DoyleJ11/cs-chat-backend/internal/hub"
	"github.com/DoyleJ11/cs-chat-backend/internal/room"
	"github.com/DoyleJ11/cs-chat-backend/internal/store"
	"github.com/DoyleJ11/cs-chat-backend/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newAPI(t *testing.T) (http.Handler, *store.MemoryStore) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	s := store.NewMemoryStore()
	h := hub.NewHub(ctx, room.Options{Messages: s})
	return SetupRoutes(Deps{Hub: h, Store: s, Log: zap.NewNop(), HistoryLimit: 50}), s
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestGenerateCode(t *testing.T) {
	code, err := GenerateCode()
	require.NoError(t, err)
	assert.Len(t, code, 6)
	assert.Equal(t, strings.ToUpper(code), code)
}

func TestCreateAndListRooms(t *testing.T) {
	api, s := newAPI(t)

	rec := do(t, api, http.MethodPost, "/rooms", `{"name":"General"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created types.RoomInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "General", created.Name)
	assert.Len(t, created.ID, 6)

	stored, err := s.ListRooms(context.Background())
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, created.ID, stored[0].ID)

	rec = do(t, api, http.MethodGet, "/rooms", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var listed []types.RoomInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, created.ID, listed[0].ID)
	assert.Equal(t, 0, listed[0].NumClients)
}

func TestCreateRoom_Validation(t *testing.T) {
	api, _ := newAPI(t)

	cases := []struct {
		name string
		body string
	}{
		{"bad json", `{`},
		{"empty name", `{"name":"   "}`},
		{"too long", `{"name":"` + strings.Repeat("x", maxRoomName+1) + `"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, api, http.MethodPost, "/rooms", tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestHistory(t *testing.T) {
	api, s := newAPI(t)

	rec := do(t, api, http.MethodPost, "/rooms", `{"name":"Lobby"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created types.RoomInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	for i, text := range []string{"one", "two", "three"} {
		require.NoError(t, s.SaveMessage(context.Background(), store.Message{
			ID: text, RoomID: created.ID, Seq: i + 1, Nick: "alice", Text: text,
		}))
	}

	rec = do(t, api, http.MethodGet, "/rooms/"+created.ID+"/messages?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var msgs []types.HistoryMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msgs))
	require.Len(t, msgs, 2)
	assert.Equal(t, "two", msgs[0].Text)
	assert.Equal(t, "three", msgs[1].Text)

	assert.Equal(t, http.StatusBadRequest, do(t, api, http.MethodGet, "/rooms/"+created.ID+"/messages?limit=x", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, api, http.MethodGet, "/rooms/NOPE/messages", "").Code)
}

func TestDeleteRoom(t *testing.T) {
	api, s := newAPI(t)

	rec := do(t, api, http.MethodPost, "/rooms", `{"name":"Scratch"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created types.RoomInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NoError(t, s.SaveMessage(context.Background(), store.Message{ID: "m1", RoomID: created.ID, Seq: 1, Text: "hi"}))

	assert.Equal(t, http.StatusNoContent, do(t, api, http.MethodDelete, "/rooms/"+created.ID, "").Code)

	stored, err := s.ListRooms(context.Background())
	require.NoError(t, err)
	assert.Empty(t, stored)

	rec = do(t, api, http.MethodGet, "/rooms", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var listed []types.RoomInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	assert.Empty(t, listed)

	assert.Equal(t, http.StatusNotFound, do(t, api, http.MethodGet, "/rooms/"+created.ID+"/messages", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, api, http.MethodDelete, "/rooms/"+created.ID, "").Code)
}

func TestHealthz(t *testing.T) {
	api, _ := newAPI(t)
	assert.Equal(t, http.StatusOK, do(t, api, http.MethodGet, "/healthz", "").Code)
}
