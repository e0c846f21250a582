package match

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/oggyb/muzz-events/internal/app"
	svcErr "github.com/oggyb/muzz-events/internal/errors"
)

// Registrar ties the match service into the HTTP server
type Registrar struct {
	appCtx *app.AppContext
}

// NewRegistrar creates a new Registrar for the match service
func NewRegistrar(appCtx *app.AppContext) *Registrar {
	return &Registrar{appCtx: appCtx}
}

// Register attaches the preference, match and discovery routes
func (r *Registrar) Register(router fiber.Router) {
	h := &handler{svc: NewMatchService(r.appCtx)}

	router.Post("/preference", h.setPreference)
	router.Get("/matches/:email", h.listMatches)
	router.Post("/update_match_status", h.updateMatchStatus)
	router.Get("/match/:user_id", h.discover)
	router.Get("/matches", h.discoverAll)
}

type handler struct {
	svc *Service
}

type preferenceRequest struct {
	UserEmail          string `json:"user_email"`
	PreferredUserEmail string `json:"preferred_user_email"`
	Preference         string `json:"preference"`
}

func (h *handler) setPreference(c *fiber.Ctx) error {
	var req preferenceRequest
	if err := c.BodyParser(&req); err != nil {
		return svcErr.InvalidArgument("invalid request body")
	}
	if req.UserEmail == "" || req.PreferredUserEmail == "" || req.Preference == "" {
		return svcErr.InvalidArgument("Missing required fields")
	}

	out, err := h.svc.SetPreference(c.UserContext(), req.UserEmail, req.PreferredUserEmail, req.Preference)
	if err != nil {
		return err
	}

	resp := fiber.Map{"message": "Preference set to " + string(out.Disposition)}
	if out.Match != nil {
		resp["match_id"] = out.Match.ID
		resp["match_status"] = out.Match.Status
	}
	return c.Status(fiber.StatusCreated).JSON(resp)
}

func (h *handler) listMatches(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 0)
	if limit < 0 {
		return svcErr.InvalidArgument("limit must not be negative")
	}

	views, next, err := h.svc.ListVisibleMatches(c.UserContext(), c.Params("email"), c.Query("pagination_token"), limit)
	if err != nil {
		return err
	}

	resp := fiber.Map{"matches": views}
	if next != nil {
		resp["next_pagination_token"] = *next
	}
	return c.JSON(resp)
}

type updateMatchStatusRequest struct {
	MatchID   uint64 `json:"match_id"`
	UserEmail string `json:"user_email"`
	Decision  string `json:"decision"`
}

func (h *handler) updateMatchStatus(c *fiber.Ctx) error {
	var req updateMatchStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return svcErr.InvalidArgument("invalid request body")
	}
	if req.MatchID == 0 || req.UserEmail == "" || req.Decision == "" {
		return svcErr.InvalidArgument("Missing required fields")
	}

	m, err := h.svc.UpdateMatchStatus(c.UserContext(), req.MatchID, req.UserEmail, req.Decision)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"message":  "Match " + strings.ToLower(strings.TrimSpace(req.Decision)) + "ed successfully",
		"match_id": m.ID,
		"status":   m.Status,
	})
}

func (h *handler) discover(c *fiber.Ctx) error {
	userID, err := strconv.ParseUint(c.Params("user_id"), 10, 64)
	if err != nil {
		return svcErr.InvalidArgument("user_id must be a valid uint64")
	}

	candidates, err := h.svc.Discover(c.UserContext(), userID, c.QueryInt("limit", DefaultDiscoverLimit))
	if err != nil {
		return err
	}
	if candidates == nil {
		candidates = []Candidate{}
	}
	return c.JSON(fiber.Map{"user_id": userID, "matches": candidates})
}

func (h *handler) discoverAll(c *fiber.Ctx) error {
	suggestions, err := h.svc.DiscoverAll(c.UserContext())
	if err != nil {
		return err
	}

	out := make(map[string]Suggestion, len(suggestions))
	for id, cand := range suggestions {
		out[strconv.FormatUint(id, 10)] = cand
	}
	return c.JSON(fiber.Map{"matches": out})
}
