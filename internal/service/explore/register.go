package explore

import (
	"github.com/gofiber/fiber/v2"

	"github.com/oggyb/muzz-events/internal/app"
)

// Registrar ties the Explore service into the HTTP server
type Registrar struct {
	appCtx *app.AppContext
}

// NewRegistrar creates a new Registrar for the Explore service
func NewRegistrar(appCtx *app.AppContext) *Registrar {
	return &Registrar{appCtx: appCtx}
}

// Register attaches the liked-you routes
func (r *Registrar) Register(router fiber.Router) {
	svc := NewExploreService(r.appCtx)

	router.Get("/liked_you/:email", func(c *fiber.Ctx) error {
		likers, next, err := svc.ListLikedYou(c.UserContext(), c.Params("email"), c.Query("pagination_token"), c.QueryBool("new_only"))
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"likers": likers, "next_pagination_token": next})
	})
	router.Get("/liked_you/:email/count", func(c *fiber.Ctx) error {
		n, err := svc.CountLikedYou(c.UserContext(), c.Params("email"))
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"count": n})
	})
}
