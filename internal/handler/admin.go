package handler

import (
	"encoding/json"

	"github.com/deba607/AbJee-Travel-sub001/internal/model"
	"github.com/deba607/AbJee-Travel-sub001/internal/repository"
	"github.com/deba607/AbJee-Travel-sub001/internal/service"

	"github.com/gofiber/fiber/v2"
)

type AdminHandler struct {
	userRepo *repository.UserRepository
	roomRepo *repository.RoomRepository
	hub      *service.Hub
}

func NewAdminHandler(userRepo *repository.UserRepository, roomRepo *repository.RoomRepository, hub *service.Hub) *AdminHandler {
	return &AdminHandler{userRepo: userRepo, roomRepo: roomRepo, hub: hub}
}

func (h *AdminHandler) Stats(c *fiber.Ctx) error {
	totalUsers, _ := h.userRepo.CountTotal(c.Context())
	totalRooms, _ := h.roomRepo.CountTotal(c.Context())

	return c.JSON(fiber.Map{
		"users_total":  totalUsers,
		"users_online": h.hub.OnlineCount(),
		"sessions":     h.hub.SessionCount(),
		"rooms_total":  totalRooms,
	})
}

// Announce pushes a system announcement to every live session.
func (h *AdminHandler) Announce(c *fiber.Ctx) error {
	var req model.Announcement
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.Message == "" {
		return c.Status(400).JSON(fiber.Map{"error": "message is required"})
	}

	data, _ := json.Marshal(req)
	h.hub.Broadcast(&model.Event{Type: model.EventAnnouncement, Data: data})

	return c.JSON(fiber.Map{"ok": true, "online": h.hub.OnlineCount()})
}
