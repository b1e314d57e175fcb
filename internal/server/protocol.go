package server

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"codeberg.org/mutker/cryoctl/internal/cryo"
	"codeberg.org/mutker/cryoctl/internal/errors"
	"codeberg.org/mutker/cryoctl/internal/logger"
	"github.com/google/uuid"
)

// Request types and power values accepted on the command endpoint.
const (
	TypePower  = "power"
	TypeTarget = "target"
	PowerOn    = "on"
	PowerOff   = "off"
)

// Controller is the part of cryo.Controller the command surfaces use.
type Controller interface {
	UpdateTempSetting(v int) bool
	TempSetting() int
	SetPowerEnable(enabled bool)
	Status() cryo.Status
}

// Request is one command. Target is only read for TypeTarget and Power only
// for TypePower.
type Request struct {
	Type      string `json:"type"`
	Target    *int   `json:"target"`
	Power     string `json:"power"`
	Timestamp int64  `json:"timestamp"`
}

// Handler applies command requests to a controller. It keeps no state of its
// own.
type Handler struct {
	ctrl   Controller
	now    func() time.Time
	logger logger.Logger
}

func NewHandler(ctrl Controller) *Handler {
	return &Handler{
		ctrl:   ctrl,
		now:    time.Now,
		logger: logger.Component("command"),
	}
}

// Handle decodes and applies one request and returns the acknowledgment, a
// Unix nanosecond timestamp. Invalid requests are logged and ignored; the
// acknowledgment is returned regardless.
func (h *Handler) Handle(_ context.Context, payload []byte) string {
	id := uuid.NewString()

	if err := h.apply(id, payload); err != nil {
		h.logger.Warn().
			Str("request_id", id).
			Str("error_code", string(errors.CodeOf(err))).
			Err(err).
			Msg("Ignoring command")
	}

	return strconv.FormatInt(h.now().UnixNano(), 10)
}

func (h *Handler) apply(id string, payload []byte) error {
	errFactory := errors.New()

	if len(payload) == 0 {
		return errFactory.WithMessage(errors.ErrInvalidRequest, "empty request")
	}

	var req Request
	if err := json.Unmarshal(payload, &req); err != nil {
		return errFactory.Wrap(errors.ErrInvalidRequest, err)
	}

	h.logger.Debug().
		Str("request_id", id).
		Str("type", req.Type).
		Int64("timestamp", req.Timestamp).
		Msg("Command received")

	switch req.Type {
	case TypePower:
		switch req.Power {
		case PowerOn:
			h.ctrl.SetPowerEnable(true)
		case PowerOff:
			h.ctrl.SetPowerEnable(false)
		default:
			return errFactory.WithData(errors.ErrInvalidRequest, "power="+strconv.Quote(req.Power))
		}
		h.logger.Info().Str("request_id", id).Str("power", req.Power).Msg("Power command applied")

	case TypeTarget:
		if req.Target == nil {
			return errFactory.WithMessage(errors.ErrInvalidRequest, "missing target")
		}
		target := *req.Target
		if target == h.ctrl.TempSetting() {
			h.logger.Info().Str("request_id", id).Int("target", target).Msg("Target equals current setting")
			return nil
		}
		if !h.ctrl.UpdateTempSetting(target) {
			return errFactory.WithData(errors.ErrSettingOutOfRange, target)
		}
		h.logger.Info().Str("request_id", id).Int("target", target).Msg("Target command applied")

	default:
		return errFactory.WithData(errors.ErrInvalidRequest, "type="+strconv.Quote(req.Type))
	}

	return nil
}
