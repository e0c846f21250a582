package profile

import (
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/oggyb/muzz-events/internal/app"
	svcErr "github.com/oggyb/muzz-events/internal/errors"
)

// Registrar ties the profile service into the HTTP server
type Registrar struct {
	appCtx *app.AppContext
	svc    *Service
}

// NewRegistrar creates a new Registrar for the profile service
func NewRegistrar(appCtx *app.AppContext) *Registrar {
	return &Registrar{appCtx: appCtx}
}

// WithService makes the registrar serve an already configured Service.
func (r *Registrar) WithService(svc *Service) *Registrar {
	r.svc = svc
	return r
}

// Register attaches the account and profile routes
func (r *Registrar) Register(router fiber.Router) {
	svc := r.svc
	if svc == nil {
		svc = NewProfileService(r.appCtx)
	}
	h := &handler{svc: svc}

	router.Get("/users", h.listAccounts)
	router.Post("/users", h.register)
	router.Post("/sign-in", h.signIn)
	router.Post("/userData", h.upsertProfile)
	router.Get("/userData", h.getProfile)
	router.Post("/relationshipData", h.setRelationship)
	router.Get("/relationshipData", h.listRelationships)
	router.Post("/upload_image", h.uploadImage)
	router.Get("/get_image/:user_auth_id", h.getImage)
}

type handler struct {
	svc *Service
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *handler) register(c *fiber.Ctx) error {
	var req credentials
	if err := c.BodyParser(&req); err != nil {
		return svcErr.InvalidArgument("invalid request body")
	}
	if _, err := h.svc.Register(c.UserContext(), req.Email, req.Password); err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"message": "New User added"})
}

func (h *handler) signIn(c *fiber.Ctx) error {
	var req credentials
	if err := c.BodyParser(&req); err != nil {
		return svcErr.InvalidArgument("invalid request body")
	}
	u, err := h.svc.SignIn(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Sign in successful", "user_id": u.ID})
}

func (h *handler) upsertProfile(c *fiber.Ctx) error {
	var in Input
	if err := c.BodyParser(&in); err != nil {
		return svcErr.InvalidArgument("invalid request body")
	}
	created, err := h.svc.UpsertProfile(c.UserContext(), in)
	if err != nil {
		return err
	}
	msg := "Updated user details"
	if created {
		msg = "Added user details"
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"message": msg})
}

// getProfile returns one profile with ?email=, every profile otherwise.
func (h *handler) getProfile(c *fiber.Ctx) error {
	if email := c.Query("email"); email != "" {
		v, err := h.svc.GetProfile(c.UserContext(), email)
		if err != nil {
			return err
		}
		return c.JSON(v)
	}

	users, err := h.svc.ListProfiles(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"users": users})
}

type relationshipRequest struct {
	Email      string `json:"email"`
	LookingFor string `json:"lookingfor"`
	OpenFor    string `json:"openfor"`
}

func (h *handler) setRelationship(c *fiber.Ctx) error {
	var req relationshipRequest
	if err := c.BodyParser(&req); err != nil {
		return svcErr.InvalidArgument("invalid request body")
	}
	if err := h.svc.SetRelationship(c.UserContext(), req.Email, req.LookingFor, req.OpenFor); err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"message": "Relationship details saved"})
}

func (h *handler) listAccounts(c *fiber.Ctx) error {
	accounts, err := h.svc.ListAccounts(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"user_details": accounts})
}

func (h *handler) listRelationships(c *fiber.Ctx) error {
	rels, err := h.svc.ListRelationships(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(rels)
}

// uploadImage takes a multipart form with the file under "image" and the owner under "email".
func (h *handler) uploadImage(c *fiber.Ctx) error {
	header, err := c.FormFile("image")
	if err != nil {
		return svcErr.InvalidArgument("No image file provided")
	}
	email := c.FormValue("email")
	if email == "" {
		return svcErr.InvalidArgument("Email is required")
	}

	file, err := header.Open()
	if err != nil {
		return svcErr.InvalidArgument("unreadable image file")
	}
	defer file.Close()

	img, created, err := h.svc.UploadImage(c.UserContext(), email, header.Filename,
		header.Header.Get("Content-Type"), file, header.Size)
	if err != nil {
		return err
	}
	msg := "Updated user image"
	if created {
		msg = "Added new user image"
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"message": msg, "image_url": img.URL})
}

func (h *handler) getImage(c *fiber.Ctx) error {
	userID, err := strconv.ParseUint(c.Params("user_auth_id"), 10, 64)
	if err != nil {
		return svcErr.InvalidArgument("user_auth_id must be a valid uint64")
	}
	img, err := h.svc.GetImage(c.UserContext(), userID)
	if err != nil {
		return err
	}
	return c.JSON(img)
}
