package web

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/signal-splat/pkg/heatmap"
	"github.com/teslashibe/signal-splat/pkg/sensors"
	"github.com/teslashibe/signal-splat/pkg/survey"
)

// handleData ingests a Sensor Logger batch.
func (s *Server) handleData(c *fiber.Ctx) error {
	samples, err := sensors.ParsePayload(c.Body())
	if err != nil {
		s.logger.Debug("rejected sensor push", "error", err)
		return c.Status(fiber.StatusBadRequest).SendString("Error")
	}
	for _, sample := range samples {
		s.backend.Submit(sample)
	}
	return c.SendString("Success")
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.backend.Status())
}

func (s *Server) handleToggleMode(c *fiber.Ctx) error {
	mode := s.backend.ToggleMode()
	return c.JSON(fiber.Map{"mode": mode.String()})
}

// handlePlaceRouter drops router marker :id at the current position.
func (s *Server) handlePlaceRouter(c *fiber.Ctx) error {
	n, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "router id must be 1 or 2")
	}
	marker, err := s.backend.PlaceRouter(n)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return c.JSON(fiber.Map{"router": n, "x": marker.X, "y": marker.Y})
}

// handleRecommend runs the placement advisor synchronously.
func (s *Server) handleRecommend(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), s.cfg.RecommendLimit)
	defer cancel()

	rec, err := s.backend.Recommend(ctx)
	if err != nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	}
	return c.JSON(rec)
}

func (s *Server) handleHeatmap(c *fiber.Ctx) error {
	png, err := heatmap.EncodePNG(s.backend.Frame())
	if err != nil {
		return fmt.Errorf("encode heatmap: %w", err)
	}
	c.Set(fiber.HeaderContentType, "image/png")
	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.Send(png)
}

func (s *Server) handleChart(c *fiber.Ctx) error {
	html, err := renderChart(s.backend.Readings(), s.backend.Points(), s.cfg.DeadZoneDBm)
	if err != nil {
		return fmt.Errorf("render chart: %w", err)
	}
	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return c.Send(html)
}

func (s *Server) handlePhones(c *fiber.Ctx) error {
	return c.JSON(s.phones.Phones())
}

// errNoStore answers session routes when recording is disabled: there are
// no sessions to find.
var errNoStore = fiber.NewError(fiber.StatusNotFound, "session recording is disabled")

func (s *Server) handleSessions(c *fiber.Ctx) error {
	if s.cfg.Store == nil {
		return errNoStore
	}
	sessions, err := s.cfg.Store.Sessions(c.UserContext())
	if err != nil {
		return err
	}
	if sessions == nil {
		sessions = []survey.Session{}
	}
	return c.JSON(sessions)
}

func (s *Server) handleSessionPlot(c *fiber.Ctx) error {
	if s.cfg.Store == nil {
		return errNoStore
	}
	id := c.Params("id")
	points, err := s.cfg.Store.Points(c.UserContext(), id)
	switch {
	case errors.Is(err, survey.ErrSessionNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case err != nil:
		return err
	}

	png, err := survey.PlotSignal("session "+id, points, s.cfg.DeadZoneDBm, survey.PlotWidth, survey.PlotHeight)
	if errors.Is(err, survey.ErrNoPoints) {
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	}
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, "image/png")
	return c.Send(png)
}
