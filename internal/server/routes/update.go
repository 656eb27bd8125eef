package routes

import (
	"errors"

	"github.com/gofiber/fiber/v3"

	"github.com/quicknotes/offline-hub/internal/coordinator"
)

type updateAnswer struct {
	Accept *bool `json:"accept"`
}

// RegisterUpdateRoutes 暴露 /-/update，用于查看并答复待处理的更新提示。
// prompter 为空时（auto/never 策略）接口返回 prompt_disabled。
func RegisterUpdateRoutes(app *fiber.App, prompter *coordinator.PendingPrompter) {
	if app == nil {
		return
	}

	app.Get("/-/update", func(c fiber.Ctx) error {
		if prompter == nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "prompt_disabled"})
		}
		c.Set(fiber.HeaderCacheControl, "no-cache")
		notice, ok := prompter.Pending()
		if !ok {
			return c.JSON(fiber.Map{"pending": false})
		}
		return c.JSON(fiber.Map{"pending": true, "notice": notice})
	})

	app.Post("/-/update", func(c fiber.Ctx) error {
		if prompter == nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "prompt_disabled"})
		}
		var answer updateAnswer
		if err := c.Bind().JSON(&answer); err != nil || answer.Accept == nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "accept_required"})
		}
		if err := prompter.Respond(*answer.Accept); err != nil {
			if errors.Is(err, coordinator.ErrNoPendingNotice) {
				return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "no_pending_notice"})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "respond_failed"})
		}
		return c.JSON(fiber.Map{"accepted": *answer.Accept})
	})
}
