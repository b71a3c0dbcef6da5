package httpapi

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/DoyleJ11/cs-chat-backend/internal/engine"
	"github.com/DoyleJ11/cs-chat-backend/internal/hub"
	"github.com/DoyleJ11/cs-chat-backend/internal/room"
	"github.com/DoyleJ11/cs-chat-backend/internal/store"
	"github.com/DoyleJ11/cs-chat-backend/pkg/types"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const maxRoomName = 64

func GenerateCode() (string, error) {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	code := make([]byte, 6)
	for i := 0; i < 6; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		code[i] = charset[num.Int64()]
	}
	return string(code), nil
}

// CreateRoom registers a room in the store and spins up its actor.
func CreateRoom(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.CreateRoomRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		if req.Name == "" || len(req.Name) > maxRoomName {
			http.Error(w, "name must be 1-64 characters", http.StatusBadRequest)
			return
		}

		var code string
		for {
			c, err := GenerateCode()
			if err != nil {
				http.Error(w, "failed to generate code", http.StatusInternalServerError)
				return
			}
			err = d.Store.CreateRoom(r.Context(), store.Room{ID: c, Name: req.Name, CreatedAt: time.Now().UTC()})
			if errors.Is(err, store.ErrRoomExists) {
				d.Log.Debug("collision on code, regenerating", zap.String("code", c))
				continue
			}
			if err != nil {
				d.Log.Error("create room failed", zap.Error(err))
				http.Error(w, "failed to create room", http.StatusInternalServerError)
				return
			}
			code = c
			break
		}

		reply := make(chan *room.Room, 1)
		d.Hub.Inbox() <- hub.EnsureRoom{ID: code, Name: req.Name, State: engine.NewState(code), Reply: reply}
		if <-reply == nil {
			http.Error(w, "failed to create room", http.StatusInternalServerError)
			return
		}
		d.Log.Info("room created", zap.String("room", code), zap.String("name", req.Name))

		writeJSON(w, http.StatusCreated, types.RoomInfo{ID: code, Name: req.Name})
	}
}

func ListRooms(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rooms := d.Hub.List()
		out := make([]types.RoomInfo, 0, len(rooms))
		for _, rm := range rooms {
			info := types.RoomInfo{ID: rm.ID(), Name: rm.Name()}
			if v, ok := view(rm); ok {
				info.NumClients = v.NumClients
				info.CSHolder = v.CSHolder
			}
			out = append(out, info)
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// DeleteRoom drops a room from the store and stops its actor. Members still
// inside are told the room closed.
func DeleteRoom(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		err := d.Store.DeleteRoom(r.Context(), id)
		if errors.Is(err, store.ErrRoomNotFound) {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}
		if err != nil {
			d.Log.Error("delete room failed", zap.String("room", id), zap.Error(err))
			http.Error(w, "failed to delete room", http.StatusInternalServerError)
			return
		}
		if !d.Hub.Remove(id) {
			d.Log.Warn("deleted room had no running actor", zap.String("room", id))
		}
		d.Log.Info("room deleted", zap.String("room", id))
		w.WriteHeader(http.StatusNoContent)
	}
}

func History(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if d.Hub.Get(id) == nil {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}

		limit := d.HistoryLimit
		if s := r.URL.Query().Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 {
				http.Error(w, "bad limit", http.StatusBadRequest)
				return
			}
			if limit <= 0 || n < limit {
				limit = n
			}
		}

		msgs, err := d.Store.History(r.Context(), id, limit)
		if err != nil {
			d.Log.Error("history failed", zap.String("room", id), zap.Error(err))
			http.Error(w, "failed to load history", http.StatusInternalServerError)
			return
		}
		out := make([]types.HistoryMessage, 0, len(msgs))
		for _, m := range msgs {
			out = append(out, types.HistoryMessage{Seq: m.Seq, Nick: m.Nick, Text: m.Text, At: m.SentAt.UnixMilli()})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func view(rm *room.Room) (room.View, bool) {
	reply := make(chan room.View, 1)
	select {
	case rm.Inbox() <- room.GetState{Reply: reply}:
	case <-rm.Done():
		return room.View{}, false
	}
	select {
	case v := <-reply:
		return v, true
	case <-rm.Done():
		return room.View{}, false
	case <-time.After(time.Second):
		return room.View{}, false
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
