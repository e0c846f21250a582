package chat

import (
	"github.com/gofiber/fiber/v2"

	"github.com/oggyb/muzz-events/internal/app"
	svcErr "github.com/oggyb/muzz-events/internal/errors"
)

// Registrar ties the chat service into the HTTP server
type Registrar struct {
	appCtx *app.AppContext
}

// NewRegistrar creates a new Registrar for the chat service
func NewRegistrar(appCtx *app.AppContext) *Registrar {
	return &Registrar{appCtx: appCtx}
}

// Register attaches the chat routes
func (r *Registrar) Register(router fiber.Router) {
	h := &handler{svc: NewChatService(r.appCtx)}

	router.Post("/send_message", h.sendMessage)
	router.Get("/get_chats", h.history)
}

type handler struct {
	svc *Service
}

// sendMessageRequest is accepted as JSON or as a form post.
type sendMessageRequest struct {
	SenderEmail   string `json:"sender_email" form:"sender_email"`
	ReceiverEmail string `json:"receiver_email" form:"receiver_email"`
	Message       string `json:"message" form:"message"`
}

func (h *handler) sendMessage(c *fiber.Ctx) error {
	var req sendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return svcErr.InvalidArgument("invalid request body")
	}
	if _, err := h.svc.SendMessage(c.UserContext(), req.SenderEmail, req.ReceiverEmail, req.Message); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"status": "Message sent"})
}

func (h *handler) history(c *fiber.Ctx) error {
	entries, err := h.svc.History(c.UserContext(), c.Query("email1"), c.Query("email2"))
	if err != nil {
		return err
	}
	return c.JSON(entries)
}
