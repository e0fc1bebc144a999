package api

import (
	"encoding/hex"
	"net/http"

	"github.com/nerrad567/gray-logic-device/internal/channel"
)

// ChannelView is one channel as reported by GET /channels.
type ChannelView struct {
	Number        int32  `json:"number"`
	Secondary     bool   `json:"secondary,omitempty"`
	Function      int32  `json:"function"`
	Caption       string `json:"caption,omitempty"`
	Online        bool   `json:"online"`
	Value         string `json:"value"`
	UpdatePending bool   `json:"update_pending"`
}

func newChannelView(ch *channel.Channel, secondary bool) ChannelView {
	v := ch.Value()
	return ChannelView{
		Number:        ch.Number(),
		Secondary:     secondary,
		Function:      ch.Function(),
		Caption:       ch.Caption(),
		Online:        ch.Online(),
		Value:         hex.EncodeToString(v[:]),
		UpdatePending: ch.IsUpdatePending(),
	}
}

// handleStatus returns the device snapshot.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.dev.Snapshot())
}

// handleListChannels lists the channels of all registered elements in
// registry order. Channel-less elements are skipped.
func (s *Server) handleListChannels(w http.ResponseWriter, _ *http.Request) {
	channels := make([]ChannelView, 0)
	for _, e := range s.dev.Elements().Snapshot() {
		if ch := e.Channel(); ch != nil {
			channels = append(channels, newChannelView(ch, false))
		}
		if ch := e.SecondaryChannel(); ch != nil {
			channels = append(channels, newChannelView(ch, true))
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"channels": channels,
		"count":    len(channels),
	})
}
