package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/maheshrc27/postflow/internal/service"
)

type AccountHandler struct {
	s service.AccountService
}

func NewAccountHandler(service service.AccountService) *AccountHandler {
	return &AccountHandler{s: service}
}

func (h *AccountHandler) ListAccounts(c *fiber.Ctx) error {
	workspaceID := GetWorkspaceID(c)

	accounts, err := h.s.List(c.Context(), workspaceID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to list social accounts",
		})
	}

	return c.Status(fiber.StatusOK).JSON(accounts)
}

func (h *AccountHandler) VerifyAccount(c *fiber.Ctx) error {
	workspaceID := GetWorkspaceID(c)
	accountID := c.QueryInt("id", 0)

	err := h.s.Verify(c.Context(), workspaceID, int64(accountID))
	if err != nil {
		if errors.Is(err, service.ErrAccountNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "Account verified",
	})
}

func (h *AccountHandler) RemoveAccount(c *fiber.Ctx) error {
	workspaceID := GetWorkspaceID(c)
	accountID := c.QueryInt("id", 0)

	err := h.s.Remove(c.Context(), workspaceID, int64(accountID))
	if err != nil {
		if errors.Is(err, service.ErrAccountNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to remove social account",
		})
	}

	return c.SendStatus(fiber.StatusOK)
}
