package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewApp собирает fiber приложение со всеми маршрутами
func NewApp(h *Handler, service, jwtSecret string) *fiber.App {
	app := fiber.New(fiber.Config{AppName: service})
	app.Use(TracingMiddleware(service))
	app.Use(PrometheusMiddleware())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": service})
	})

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	v1 := app.Group("/api/v1", AuthMiddleware(jwtSecret))

	v1.Post("/lesson_requests", h.CreateLessonRequest)
	v1.Get("/lesson_request", h.GetLessonRequest)
	v1.Post("/lesson_requests/:id/send", h.SendLessonRequest)
	v1.Post("/lesson_requests/:id/accept_lesson_request", h.AcceptLessonRequest)
	v1.Put("/lesson_requests/:id/reject_lesson_request", h.RejectLessonRequest)
	v1.Put("/lesson_requests/:id/cancel_lesson_request", h.CancelLessonRequest)

	v1.Get("/next_lesson", h.GetNextLesson)
	v1.Get("/previous_lesson", h.GetPreviousLesson)
	v1.Put("/lessons/:id/cancel_lesson", h.CancelLesson)
	v1.Put("/lessons/:id/meeting_url", h.SetMeetingURL)
	v1.Put("/lessons/:id/recurrence", h.SetRecurrence)
	v1.Put("/lessons/:id/mentor_presence", h.SetMentorPresence)
	v1.Post("/lessons/:id/students", h.AddStudent)

	v1.Get("/users/me", h.GetMe)
	v1.Put("/users/me/timezone", h.SetTimeZone)

	return app
}
