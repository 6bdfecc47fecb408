package server

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/NotEclipsed/jira-dashboard/internal/audit"
	autherror "github.com/NotEclipsed/jira-dashboard/internal/errors"
	"github.com/NotEclipsed/jira-dashboard/internal/logging"
)

// ErrorHandler turns every error a handler returns into a sanitized JSON
// body. Internal detail is only exposed when development is set.
func ErrorHandler(log logging.Logger, recorder audit.Recorder, development bool) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		ctx := c.UserContext()
		body := fiber.Map{}

		var fe *fiber.Error
		appErr, isApp := autherror.AsAppError(err)
		switch {
		case isApp && appErr.Kind != autherror.KindInternal:
			if appErr.Kind == autherror.KindUpstream {
				log.Warn(ctx, "upstream request failed", "path", c.Path(), "error", err.Error())
			}
			body["error"] = appErr.Message
			if len(appErr.Fields) > 0 {
				body["fields"] = appErr.Fields
			}
			return c.Status(appErr.Status).JSON(body)

		case !isApp && errors.As(err, &fe):
			body["error"] = fe.Message
			return c.Status(fe.Code).JSON(body)
		}

		cause := err
		if isApp && appErr.Err != nil {
			cause = appErr.Err
		}
		log.Error(ctx, "unhandled error",
			"method", c.Method(),
			"path", c.Path(),
			"error", cause.Error(),
		)
		recorder.Record(ctx, audit.Event{
			Type:   audit.EventSystem,
			Action: "UNHANDLED_ERROR",
			Result: audit.ResultFailure,
			Details: map[string]any{
				"error_type": fmt.Sprintf("%T", cause),
				"method":     c.Method(),
				"path":       c.Path(),
			},
		})

		body["error"] = "internal server error"
		if development {
			body["detail"] = cause.Error()
		}
		return c.Status(fiber.StatusInternalServerError).JSON(body)
	}
}
