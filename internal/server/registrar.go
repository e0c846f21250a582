package server

import "github.com/gofiber/fiber/v2"

// Registrar is a common interface for all HTTP service registrars
type Registrar interface {
	Register(r fiber.Router)
}
