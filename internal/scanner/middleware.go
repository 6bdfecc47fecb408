package scanner

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/NotEclipsed/jira-dashboard/internal/audit"
	autherror "github.com/NotEclipsed/jira-dashboard/internal/errors"
)

// Action is what the middleware does with a request that has findings.
type Action string

const (
	ActionBlock  Action = "block"
	ActionRedact Action = "redact"
	ActionOff    Action = "off"
)

func ParseAction(s string) Action {
	switch Action(strings.ToLower(s)) {
	case ActionRedact:
		return ActionRedact
	case ActionOff:
		return ActionOff
	default:
		return ActionBlock
	}
}

type MiddlewareConfig struct {
	Scanner  *Scanner
	Action   Action
	Mask     MaskMode
	Recorder audit.Recorder
	// Hint is passed to the confidence calculation for every request.
	Hint string
}

const sanitizedKey = "scanner.sanitized"

// WasSanitized reports whether the middleware rewrote this request.
func WasSanitized(c *fiber.Ctx) bool {
	v, _ := c.Locals(sanitizedKey).(bool)
	return v
}

// Middleware scans query parameters on every request and the body of
// non-GET requests. In block mode a request with findings never reaches the
// handler; in redact mode it continues with masked values.
func Middleware(cfg MiddlewareConfig) fiber.Handler {
	if cfg.Recorder == nil {
		cfg.Recorder = audit.Discard{}
	}
	return func(c *fiber.Ctx) error {
		if cfg.Action == ActionOff || cfg.Scanner == nil {
			return c.Next()
		}

		query := queryPairs(c)
		payload := map[string]any{}
		if len(query) > 0 {
			values := map[string]any{}
			keys := make([]any, 0, len(query))
			for _, q := range query {
				keys = append(keys, q.key)
				switch prev := values[q.key].(type) {
				case nil:
					values[q.key] = q.value
				case string:
					values[q.key] = []any{prev, q.value}
				case []any:
					values[q.key] = append(prev, q.value)
				}
			}
			payload["query"] = values
			payload["query_key"] = keys
		}

		var body any
		bodyIsJSON := false
		if c.Method() != fiber.MethodGet && c.Method() != fiber.MethodHead && len(c.Body()) > 0 {
			dec := json.NewDecoder(bytes.NewReader(c.Body()))
			dec.UseNumber()
			if err := dec.Decode(&body); err == nil {
				bodyIsJSON = true
			} else {
				body = string(c.Body())
			}
			payload["body"] = body
		}

		result := cfg.Scanner.ScanObject(payload, "", cfg.Hint)
		if !result.HasMatch {
			return c.Next()
		}

		outcome := audit.ResultBlocked
		if cfg.Action == ActionRedact {
			outcome = audit.ResultSanitized
		}
		cfg.Recorder.Record(c.UserContext(), audit.Event{
			Type:   audit.EventSecurity,
			Action: "SENSITIVE_DATA_DETECTED",
			Result: outcome,
			Details: map[string]any{
				"finding_types": result.Types(),
				"findings":      result.Counts(),
				"confidence":    result.Confidence,
				"fields":        result.Fields(),
				"method":        c.Method(),
				"route":         c.Path(),
			},
		})

		if cfg.Action != ActionRedact {
			return autherror.ContentPolicy()
		}

		if len(query) > 0 {
			args := c.Request().URI().QueryArgs()
			args.Reset()
			for _, q := range query {
				args.Add(cfg.Scanner.Sanitize(q.key, cfg.Mask), cfg.Scanner.Sanitize(q.value, cfg.Mask))
			}
		}
		if body != nil {
			clean := cfg.Scanner.SanitizeObject(body, cfg.Mask)
			if bodyIsJSON {
				raw, err := json.Marshal(clean)
				if err != nil {
					return autherror.Internal(err)
				}
				c.Request().SetBody(raw)
			} else {
				c.Request().SetBody([]byte(clean.(string)))
			}
		}
		c.Locals(sanitizedKey, true)
		return c.Next()
	}
}

type queryPair struct {
	key, value string
}

// queryPairs returns every query argument in order, repeated keys included.
// c.Queries keeps only one value per key.
func queryPairs(c *fiber.Ctx) []queryPair {
	var pairs []queryPair
	c.Request().URI().QueryArgs().VisitAll(func(k, v []byte) {
		pairs = append(pairs, queryPair{key: string(k), value: string(v)})
	})
	return pairs
}
