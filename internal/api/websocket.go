package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/coder/websocket"
	log "github.com/sirupsen/logrus"
)

func accept(w http.ResponseWriter, r *http.Request) (*websocket.Conn, context.Context, error) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		return nil, nil, err
	}
	return c, r.Context(), nil
}

// StreamActivity writes every manager activity to the websocket as a JSON
// text message until the client goes away.
func StreamActivity(s *Service, w http.ResponseWriter, r *http.Request) {
	c, ctx, err := accept(w, r)
	if err != nil {
		log.WithError(err).Error("Failed to accept websocket client")
		return
	}
	defer c.Close(websocket.StatusNormalClosure, "closing")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	activity, unsub := s.dm.SubscribeActivity()
	defer unsub()

	// Clients only listen; a read error means the connection is gone.
	go func() {
		for {
			if _, _, err := c.Read(ctx); err != nil {
				cancel()
				return
			}
		}
	}()

	log.WithField("remote", r.RemoteAddr).Debug("Activity client connected")
	defer log.WithField("remote", r.RemoteAddr).Debug("Activity client disconnected")

	for {
		select {
		case <-ctx.Done():
			return
		case a, ok := <-activity:
			if !ok {
				c.Close(websocket.StatusGoingAway, "shutting down")
				return
			}
			b, err := json.Marshal(a)
			if err != nil {
				log.WithError(err).Error("Failed to encode activity")
				continue
			}
			if err := c.Write(ctx, websocket.MessageText, b); err != nil {
				return
			}
		}
	}
}
