package web

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

const serviceName = "discord-moderation-bot"

type statusPayload struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	BotName   string `json:"bot_name"`
	Guilds    int    `json:"guilds"`
	Uptime    string `json:"uptime"`
	Latency   string `json:"latency"`
	Ready     bool   `json:"ready"`
	Version   string `json:"version"`
	Timestamp string `json:"timestamp"`
}

type healthPayload struct {
	Healthy   bool     `json:"healthy"`
	Ready     bool     `json:"ready"`
	Closed    bool     `json:"closed"`
	Latency   *float64 `json:"latency"`
	Timestamp string   `json:"timestamp"`
}

type degradedPayload struct {
	Status    string `json:"status,omitempty"`
	Healthy   bool   `json:"healthy,omitempty"`
	Service   string `json:"service,omitempty"`
	Message   string `json:"message"`
	Error     string `json:"error"`
	Timestamp string `json:"timestamp"`
}

func (s *Server) handleStatus(c echo.Context) error {
	setHealthHeaders(c)

	payload, err := safely(s.statusPayload)
	if err != nil {
		log.Warn().Err(err).Msg("status degraded")
		return c.JSON(http.StatusOK, degradedPayload{
			Status:    "healthy",
			Service:   serviceName,
			Message:   "Service is running",
			Error:     err.Error(),
			Timestamp: s.timestamp(),
		})
	}

	return c.JSON(http.StatusOK, payload)
}

func (s *Server) handleHealth(c echo.Context) error {
	setHealthHeaders(c)

	payload, err := safely(s.healthPayload)
	if err != nil {
		log.Warn().Err(err).Msg("health degraded")
		return c.JSON(http.StatusOK, degradedPayload{
			Healthy:   true,
			Message:   "Service is running",
			Error:     err.Error(),
			Timestamp: s.timestamp(),
		})
	}

	return c.JSON(http.StatusOK, payload)
}

func (s *Server) handlePing(c echo.Context) error {
	return c.String(http.StatusOK, "pong")
}

func (s *Server) statusPayload() statusPayload {
	payload := statusPayload{
		Status:    "healthy",
		Service:   serviceName,
		BotName:   "Discord Bot",
		Uptime:    s.now().Sub(s.started).Round(time.Second).String(),
		Latency:   "N/A",
		Version:   s.version,
		Timestamp: s.timestamp(),
	}
	if s.status == nil {
		return payload
	}

	if name := s.status.Name(); name != "" {
		payload.BotName = name
	}
	payload.Guilds = s.status.Origins()
	payload.Ready = s.status.Ready()
	if latency := s.status.Latency(); latency > 0 {
		payload.Latency = fmt.Sprintf("%.2fms", float64(latency)/float64(time.Millisecond))
	}

	return payload
}

func (s *Server) healthPayload() healthPayload {
	payload := healthPayload{
		Healthy:   true,
		Timestamp: s.timestamp(),
	}
	if s.status == nil {
		return payload
	}

	payload.Ready = s.status.Ready()
	payload.Closed = s.status.Closed()
	if latency := s.status.Latency(); latency >= 0 {
		seconds := latency.Seconds()
		payload.Latency = &seconds
	}

	return payload
}

func (s *Server) timestamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

// safely runs build and turns a panic into an error.
func safely[T any](build func() T) (payload T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
			if err.Error() == "" {
				err = errors.New("minor error")
			}
		}
	}()

	return build(), nil
}

func setHealthHeaders(c echo.Context) {
	h := c.Response().Header()
	h.Set("Cache-Control", "no-cache")
	h.Set("X-Service-Status", "healthy")
}
