// Package handlers implements the request handlers for the dsgate API.
package handlers

import (
	"encoding/json"
	"strconv"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/harborkv/dsgate/pkg/access"
	"github.com/harborkv/dsgate/pkg/bulk"
)

// Server holds the services the handlers delegate to
type Server struct {
	accessService access.Service
	bulkService   bulk.Service
	log           logrus.FieldLogger
}

// NewServer creates a new API server instance
func NewServer(accessService access.Service, bulkService bulk.Service, log logrus.FieldLogger) *Server {
	return &Server{
		accessService: accessService,
		bulkService:   bulkService,
		log:           log.WithField("component", "api.handlers"),
	}
}

// RegisterRoutes attaches all handlers to the router
func RegisterRoutes(router fiber.Router, s *Server) {
	router.Get("/data/:store", s.ListKeys)
	router.Get("/data/:store/:key", s.GetData)
	router.Put("/data/:store/:key", s.PutData)
	router.Delete("/data/:store/:key", s.DeleteData)

	router.Post("/bulk", s.SubmitBulk)
	router.Get("/bulk/:id", s.GetBulkStatus)
	router.Post("/bulk/:id/cancel", s.CancelBulk)
	router.Post("/bulk/:id/rollback", s.RollbackBulk)

	router.Get("/stats", s.GetStats)
}

// GetData returns a single record. Absent keys yield 404.
func (s *Server) GetData(c fiber.Ctx) error {
	store := c.Params("store")
	key := c.Params("key")
	scope := c.Query("scope")

	val, err := s.accessService.ReadData(c.Context(), store, key, access.ReadOptions{
		Scope:       scope,
		BypassCache: c.Query("bypassCache") == "true",
	})
	if err != nil {
		return httpError(err)
	}

	if val == nil {
		return fiber.NewError(fiber.StatusNotFound, "key not found")
	}

	return c.JSON(DataResponse{
		Store: store,
		Scope: scope,
		Key:   key,
		Value: json.RawMessage(val),
	})
}

// PutData writes the request body as the record value.
func (s *Server) PutData(c fiber.Ctx) error {
	store := c.Params("store")
	key := c.Params("key")
	scope := c.Query("scope")

	if err := s.accessService.WriteData(c.Context(), store, key, c.Body(), access.WriteOptions{Scope: scope}); err != nil {
		return httpError(err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// DeleteData removes a record.
func (s *Server) DeleteData(c fiber.Ctx) error {
	store := c.Params("store")
	key := c.Params("key")

	if err := s.accessService.DeleteData(c.Context(), store, key, c.Query("scope")); err != nil {
		return httpError(err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// ListKeys returns one page of keys under a store.
func (s *Server) ListKeys(c fiber.Ctx) error {
	store := c.Params("store")
	scope := c.Query("scope")

	pageSize := 0

	if raw := c.Query("pageSize"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			return fiber.NewError(fiber.StatusBadRequest, "invalid pageSize")
		}

		pageSize = parsed
	}

	page, err := s.accessService.ListKeys(c.Context(), store, scope, c.Query("prefix"), pageSize, c.Query("cursor"))
	if err != nil {
		return httpError(err)
	}

	return c.JSON(ListResponse{
		Store:  store,
		Scope:  scope,
		Keys:   page.Keys,
		Cursor: page.Cursor,
	})
}

// SubmitBulk validates and schedules a bulk job.
func (s *Server) SubmitBulk(c fiber.Ctx) error {
	var req BulkRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	jobID, err := s.bulkService.Submit(c.Context(), req.Kind, req.Items, req.Options.toOptions())
	if err != nil {
		return httpError(err)
	}

	s.log.WithFields(logrus.Fields{
		"job_id": jobID,
		"kind":   req.Kind,
		"items":  len(req.Items),
	}).Info("Bulk job accepted")

	return c.Status(fiber.StatusAccepted).JSON(BulkSubmitResponse{JobID: jobID})
}

// GetBulkStatus returns the snapshot of a job.
func (s *Server) GetBulkStatus(c fiber.Ctx) error {
	status, err := s.bulkService.Status(c.Params("id"))
	if err != nil {
		return httpError(err)
	}

	return c.JSON(status)
}

// CancelBulk stops a pending or running job.
func (s *Server) CancelBulk(c fiber.Ctx) error {
	if err := s.bulkService.Cancel(c.Params("id")); err != nil {
		return httpError(err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// RollbackBulk submits the restore job for a completed reversible job.
func (s *Server) RollbackBulk(c fiber.Ctx) error {
	rollbackID, err := s.bulkService.Rollback(c.Context(), c.Params("id"))
	if err != nil {
		return httpError(err)
	}

	return c.Status(fiber.StatusAccepted).JSON(BulkSubmitResponse{JobID: rollbackID})
}

// GetStats returns aggregate operation, budget and cache statistics.
func (s *Server) GetStats(c fiber.Ctx) error {
	return c.JSON(toStatsResponse(s.accessService.Statistics()))
}
