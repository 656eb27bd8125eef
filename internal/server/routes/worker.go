package routes

import (
	"errors"

	"github.com/gofiber/fiber/v3"

	"github.com/quicknotes/offline-hub/internal/cache"
	"github.com/quicknotes/offline-hub/internal/lifecycle"
	"github.com/quicknotes/offline-hub/internal/server"
	"github.com/quicknotes/offline-hub/internal/worker"
)

type driverPayload struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Persistent  bool   `json:"persistent"`
	InUse       bool   `json:"in_use"`
}

type workerPayload struct {
	Registration lifecycle.Snapshot      `json:"registration"`
	ClientID     string                  `json:"client_id"`
	Controller   *lifecycle.InstanceInfo `json:"controller,omitempty"`
	Drivers      []driverPayload         `json:"drivers"`
}

// RegisterWorkerRoutes 暴露 /-/worker 诊断接口与消息投递入口。
func RegisterWorkerRoutes(app *fiber.App, reg *lifecycle.Registration, page *server.Page, storeDriver string) {
	if app == nil || reg == nil || page == nil {
		return
	}

	app.Get("/-/worker", func(c fiber.Ctx) error {
		payload := workerPayload{
			Registration: reg.Snapshot(),
			ClientID:     page.ClientID(),
			Drivers:      encodeDrivers(cache.Drivers(), storeDriver),
		}
		if controller := page.Controller(); controller != nil {
			info := controller.Info()
			payload.Controller = &info
		}
		c.Set(fiber.HeaderCacheControl, "no-cache")
		return c.JSON(payload)
	})

	app.Post("/-/worker/message", func(c fiber.Ctx) error {
		var msg worker.Message
		if err := c.Bind().JSON(&msg); err != nil || msg.Type == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_message"})
		}
		waiting := reg.Waiting()
		if waiting == nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no_waiting_worker"})
		}
		if err := reg.PostMessage(c.Context(), waiting.ID(), msg); err != nil {
			switch {
			case errors.Is(err, worker.ErrUnknownMessage):
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown_message"})
			case errors.Is(err, lifecycle.ErrNoInstance):
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no_waiting_worker"})
			default:
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "message_failed"})
			}
		}
		return c.Status(fiber.StatusAccepted).JSON(waiting.Info())
	})
}

func encodeDrivers(drivers []cache.Driver, inUse string) []driverPayload {
	result := make([]driverPayload, 0, len(drivers))
	for _, driver := range drivers {
		result = append(result, driverPayload{
			Name:        driver.Name,
			Description: driver.Description,
			Persistent:  driver.Persistent,
			InUse:       driver.Name == inUse,
		})
	}
	return result
}
