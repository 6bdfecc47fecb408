package ticket

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/NotEclipsed/jira-dashboard/internal/audit"
	autherror "github.com/NotEclipsed/jira-dashboard/internal/errors"
	"github.com/NotEclipsed/jira-dashboard/internal/scanner"
)

type Handler struct {
	tracker  Tracker
	recorder audit.Recorder
}

func NewHandler(tracker Tracker, recorder audit.Recorder) *Handler {
	if recorder == nil {
		recorder = audit.Discard{}
	}
	return &Handler{tracker: tracker, recorder: recorder}
}

// RegisterRoutes mounts the ticket routes on a router that already carries
// the session gate and content scanner.
func RegisterRoutes(router fiber.Router, h *Handler) {
	router.Get("/", h.Search)
	router.Get("/:key", h.GetTicket)
	router.Post("/:key/comments", h.AddComment)
	router.Post("/:key/transitions", h.Transition)
}

func (h *Handler) GetTicket(c *fiber.Ctx) error {
	key := c.Params("key")
	if err := ValidateIssueKey(key); err != nil {
		return err
	}

	issue, err := h.tracker.GetIssue(c.UserContext(), key)
	if err != nil {
		return upstreamError(err)
	}
	return c.JSON(issue)
}

func (h *Handler) Search(c *fiber.Ctx) error {
	jql, maxResults, err := ValidateSearch(c.Query("jql"), c.Query("maxResults"))
	if err != nil {
		return err
	}

	res, err := h.tracker.Search(c.UserContext(), jql, maxResults)
	if err != nil {
		return upstreamError(err)
	}
	return c.JSON(res)
}

type commentRequest struct {
	Comment string `json:"comment"`
}

func (h *Handler) AddComment(c *fiber.Ctx) error {
	key := c.Params("key")
	if err := ValidateIssueKey(key); err != nil {
		return err
	}

	var req commentRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return autherror.Validation("invalid JSON body", nil)
	}
	body, err := ValidateComment(req.Comment)
	if err != nil {
		return err
	}

	sanitized := scanner.WasSanitized(c)
	comment, err := h.tracker.AddComment(c.UserContext(), key, body)
	h.recordWrite(c, "COMMENT_ADDED", err, map[string]any{
		"issue_key": key,
		"sanitized": sanitized,
	})
	if err != nil {
		return upstreamError(err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"comment":   comment,
		"sanitized": sanitized,
	})
}

type transitionRequest struct {
	TransitionID any `json:"transitionId"`
}

func (h *Handler) Transition(c *fiber.Ctx) error {
	key := c.Params("key")
	if err := ValidateIssueKey(key); err != nil {
		return err
	}

	var req transitionRequest
	dec := json.NewDecoder(bytes.NewReader(c.Body()))
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		return autherror.Validation("invalid JSON body", nil)
	}
	id, err := ValidateTransitionID(req.TransitionID)
	if err != nil {
		return err
	}

	err = h.tracker.Transition(c.UserContext(), key, id)
	h.recordWrite(c, "TICKET_TRANSITIONED", err, map[string]any{
		"issue_key":     key,
		"transition_id": id,
	})
	if err != nil {
		return upstreamError(err)
	}
	return c.JSON(fiber.Map{"key": key, "transitionId": id})
}

func (h *Handler) recordWrite(c *fiber.Ctx, action string, err error, details map[string]any) {
	result := audit.ResultSuccess
	if err != nil {
		result = audit.ResultFailure
		details["error"] = err.Error()
	}
	h.recorder.Record(c.UserContext(), audit.Event{
		Type:    audit.EventDataModification,
		Action:  action,
		Result:  result,
		Details: details,
	})
}

func upstreamError(err error) error {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return autherror.Upstream(err, ue.Timeout)
	}
	return autherror.Internal(err)
}
