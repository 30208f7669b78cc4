package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
)

func GetUserID(c *fiber.Ctx) int64 {
	userID, _ := strconv.Atoi(c.Locals("user_id").(string))
	return int64(userID)
}

// GetWorkspaceID resolves the caller's workspace. Workspaces map one-to-one
// to users until team workspaces ship.
func GetWorkspaceID(c *fiber.Ctx) int64 {
	return GetUserID(c)
}
