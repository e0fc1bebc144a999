package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/gray-logic-device/internal/device"
	"github.com/nerrad567/gray-logic-device/internal/protocol"
	"github.com/nerrad567/gray-logic-device/internal/protocol/mqttlayer"
)

// Modes accepted by POST /mode.
const (
	ModeNormal = "normal"
	ModeConfig = "config"
)

// MQTTSettings is the JSON form of the MQTT layer settings. The password is
// write-only.
type MQTTSettings struct {
	Server      string `json:"server"`
	Port        int32  `json:"port"`
	Username    string `json:"username"`
	Password    string `json:"password,omitempty"`
	PasswordSet bool   `json:"password_set"`
	QoS         uint8  `json:"qos"`
	TLS         bool   `json:"tls"`
	Auth        bool   `json:"auth"`
	Retain      bool   `json:"retain"`
	Enabled     bool   `json:"enabled"`
}

func (m MQTTSettings) settings() mqttlayer.Settings {
	return mqttlayer.Settings{
		Server:  m.Server,
		Port:    m.Port,
		User:    m.Username,
		Pass:    m.Password,
		QoS:     m.QoS,
		TLS:     m.TLS,
		Auth:    m.Auth,
		Retain:  m.Retain,
		Enabled: m.Enabled,
	}
}

func fromSettings(s mqttlayer.Settings) MQTTSettings {
	return MQTTSettings{
		Server:      s.Server,
		Port:        s.Port,
		Username:    s.User,
		PasswordSet: s.Pass != "",
		QoS:         s.QoS,
		TLS:         s.TLS,
		Auth:        s.Auth,
		Retain:      s.Retain,
		Enabled:     s.Enabled,
	}
}

type settingsSource interface {
	Settings() mqttlayer.Settings
}

func (s *Server) mqttLayer() settingsSource {
	src, _ := s.dev.Protocols().Get(mqttlayer.Name).(settingsSource)
	return src
}

// handleGetMQTT returns the stored MQTT settings without the password.
func (s *Server) handleGetMQTT(w http.ResponseWriter, _ *http.Request) {
	src := s.mqttLayer()
	if src == nil {
		writeNotFound(w, "mqtt layer not registered")
		return
	}
	writeJSON(w, http.StatusOK, fromSettings(src.Settings()))
}

// handlePutMQTT stores new MQTT settings and reloads the layer. Omitted
// fields take their defaults, except an omitted password, which keeps the
// stored one while the username is unchanged. A device waiting for
// credentials leaves config mode once they verify.
func (s *Server) handlePutMQTT(w http.ResponseWriter, r *http.Request) {
	req := fromSettings(mqttlayer.DefaultSettings())
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	settings := req.settings()
	if src := s.mqttLayer(); src != nil && settings.Pass == "" {
		if cur := src.Settings(); cur.User == settings.User {
			settings.Pass = cur.Pass
		}
	}
	if err := settings.Verify(); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}

	if err := s.dev.UpdateProtocolConfig(r.Context(), mqttlayer.Name, settings.Save); err != nil {
		s.writeDeviceError(w, err)
		return
	}
	s.logger.Info("mqtt settings updated", "server", settings.Server, "port", settings.ResolvedPort())
	writeJSON(w, http.StatusOK, s.dev.Snapshot())
}

type modeRequest struct {
	Mode string `json:"mode"`
}

// handleSetMode switches between normal and config mode.
func (s *Server) handleSetMode(w http.ResponseWriter, r *http.Request) {
	var req modeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	var err error
	switch req.Mode {
	case ModeNormal:
		err = s.dev.EnterNormalMode(r.Context())
	case ModeConfig:
		err = s.dev.EnterConfigMode(r.Context())
	default:
		writeBadRequest(w, `mode must be "normal" or "config"`)
		return
	}
	if err != nil {
		s.writeDeviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.dev.Snapshot())
}

// writeDeviceError maps device control errors to HTTP responses.
func (s *Server) writeDeviceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, protocol.ErrInvalidConfig):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case errors.Is(err, device.ErrNoSelectableProtocol):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, device.ErrUnknownLayer):
		writeNotFound(w, err.Error())
	case errors.Is(err, device.ErrNotRunning):
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, err.Error())
	default:
		s.logger.Error("device control failed", "error", err)
		writeInternalError(w, "device control failed")
	}
}
