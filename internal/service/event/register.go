package event

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/oggyb/muzz-events/internal/app"
	svcErr "github.com/oggyb/muzz-events/internal/errors"
)

// Registrar ties the event service into the HTTP server
type Registrar struct {
	appCtx *app.AppContext
}

// NewRegistrar creates a new Registrar for the event service
func NewRegistrar(appCtx *app.AppContext) *Registrar {
	return &Registrar{appCtx: appCtx}
}

// Register attaches the attendance, check-in and matchmaking routes
func (r *Registrar) Register(router fiber.Router) {
	h := &handler{svc: NewEventService(r.appCtx)}

	router.Get("/locationInfo", h.listEvents)
	router.Post("/attend", h.attend)
	router.Get("/attend", h.attendees)
	router.Post("/checkin", h.checkIn)
	router.Get("/checkin", h.checkInStatus)
	router.Get("/my_tickets", h.tickets)
	router.Get("/attendances/:user_id/:location_id", h.hasAttended)
	router.Post("/events/:id/matchmaking", h.runMatchmaking)
}

type handler struct {
	svc *Service
}

type attendanceRequest struct {
	UserID     uint64 `json:"user_id"`
	LocationID uint64 `json:"location_id"`
}

func (h *handler) listEvents(c *fiber.Ctx) error {
	events, err := h.svc.ListEvents(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(events)
}

func (h *handler) attend(c *fiber.Ctx) error {
	var req attendanceRequest
	if err := c.BodyParser(&req); err != nil {
		return svcErr.InvalidArgument("invalid request body")
	}
	if req.UserID == 0 || req.LocationID == 0 {
		return svcErr.InvalidArgument("user_id and location_id are required")
	}

	a, err := h.svc.Attend(c.UserContext(), req.UserID, req.LocationID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"message":     "Attendance marked successfully",
		"user_id":     a.UserID,
		"location_id": a.EventID,
	})
}

func (h *handler) attendees(c *fiber.Ctx) error {
	eventID, err := queryID(c, "location_id")
	if err != nil {
		return err
	}
	attendees, err := h.svc.Attendees(c.UserContext(), eventID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"location_id": eventID, "attendees": attendees})
}

func (h *handler) checkIn(c *fiber.Ctx) error {
	var req attendanceRequest
	if err := c.BodyParser(&req); err != nil {
		return svcErr.InvalidArgument("invalid request body")
	}
	if req.UserID == 0 || req.LocationID == 0 {
		return svcErr.InvalidArgument("user_id and location_id are required")
	}

	res, err := h.svc.CheckIn(c.UserContext(), req.UserID, req.LocationID)
	if err != nil {
		return err
	}

	resp := fiber.Map{
		"message":        "Check-in successful",
		"user_id":        req.UserID,
		"location_id":    req.LocationID,
		"timestamp":      res.CheckIn.CreatedAt,
		"checkin_status": res.Status,
	}
	if res.Matchmaking != nil {
		resp["matchmaking"] = res.Matchmaking
	}
	return c.JSON(resp)
}

func (h *handler) checkInStatus(c *fiber.Ctx) error {
	userID, err := queryID(c, "user_id")
	if err != nil {
		return err
	}
	eventID, err := queryID(c, "location_id")
	if err != nil {
		return err
	}
	state, err := h.svc.CheckInStatus(c.UserContext(), userID, eventID)
	if err != nil {
		return err
	}
	return c.JSON(state)
}

func (h *handler) tickets(c *fiber.Ctx) error {
	userID, err := queryID(c, "user_id")
	if err != nil {
		return err
	}
	tickets, err := h.svc.Tickets(c.UserContext(), userID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"tickets": tickets})
}

func (h *handler) hasAttended(c *fiber.Ctx) error {
	userID, err := strconv.ParseUint(c.Params("user_id"), 10, 64)
	if err != nil {
		return svcErr.InvalidArgument("user_id must be a valid uint64")
	}
	eventID, err := strconv.ParseUint(c.Params("location_id"), 10, 64)
	if err != nil {
		return svcErr.InvalidArgument("location_id must be a valid uint64")
	}
	attended, err := h.svc.HasAttended(c.UserContext(), userID, eventID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"hasAttended": attended})
}

func (h *handler) runMatchmaking(c *fiber.Ctx) error {
	eventID, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil {
		return svcErr.InvalidArgument("event id must be a valid uint64")
	}
	summary, err := h.svc.RunMatchmaking(c.UserContext(), eventID, TriggerManual)
	if err != nil {
		return err
	}
	return c.JSON(summary)
}

func queryID(c *fiber.Ctx, name string) (uint64, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, svcErr.InvalidArgument(name + " is required")
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, svcErr.InvalidArgument(name + " must be a valid uint64")
	}
	return id, nil
}
