package server

import (
	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"

	"github.com/vnykmshr/milkflow/pkg/milk/unit"
)

const (
	noMilkBody    = "No milk available\n"
	withdrawnBody = "Milk withdrawn\n"
)

// levelResponse is the body of GET /9/milk/level.
type levelResponse struct {
	Liters   unit.Liters `json:"liters"`
	Capacity unit.Liters `json:"capacity"`
}

// handleMilk gates the request on the bucket. An empty bucket answers 429
// before anything is withdrawn. Otherwise one unit is withdrawn and a JSON
// body, if any, is converted to the opposite unit.
func (s *Server) handleMilk(c *fiber.Ctx) error {
	ctx, cancel := s.requestContext(c)
	defer cancel()

	empty, err := s.bucket.IsEmpty(ctx)
	if err != nil {
		return err
	}
	if empty {
		return noMilk(c)
	}

	pack, err := s.bucket.WithdrawBy(ctx, s.unit)
	if err != nil {
		return err
	}
	if pack.Empty() {
		s.logger.Debug("withdrawal refused after pre-check", "unit", float64(s.unit))
		if s.strict {
			return noMilk(c)
		}
	}

	if !c.Is("json") {
		c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
		return c.SendString(withdrawnBody)
	}

	var m unit.Measure
	if err := json.Unmarshal(c.Body(), &m); err != nil {
		s.logger.Debug("rejecting measure", "error", err)
		c.Status(fiber.StatusBadRequest)
		return nil
	}

	if err := c.JSON(m.Convert()); err != nil {
		s.logger.Warn("encoding converted measure", "measure", m.String(), "error", err)
		c.Status(fiber.StatusInternalServerError)
		return nil
	}
	return nil
}

func noMilk(c *fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
	return c.Status(fiber.StatusTooManyRequests).SendString(noMilkBody)
}

// handleRefill fills the bucket to capacity and answers with an empty body.
func (s *Server) handleRefill(c *fiber.Ctx) error {
	ctx, cancel := s.requestContext(c)
	defer cancel()

	if err := s.bucket.Fulfill(ctx); err != nil {
		return err
	}
	s.logger.Info("bucket refilled", "capacity", float64(s.bucket.Capacity()))
	c.Status(fiber.StatusOK)
	return nil
}

func (s *Server) handleLevel(c *fiber.Ctx) error {
	ctx, cancel := s.requestContext(c)
	defer cancel()

	level, err := s.bucket.Available(ctx)
	if err != nil {
		return err
	}
	return c.JSON(levelResponse{Liters: level, Capacity: s.bucket.Capacity()})
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
	return c.SendString("ok")
}
