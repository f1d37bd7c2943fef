package handler

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"docvault/internal/http/middleware"
	"docvault/internal/model"
	"docvault/internal/service"
)

// documentID returns the :id route param if it is a UUID.
func documentID(c *fiber.Ctx) (string, bool) {
	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		return "", false
	}
	return id, true
}

// principal returns the caller stored by the auth middleware.
func principal(c *fiber.Ctx) (model.Principal, bool) {
	return middleware.PrincipalFromCtx(c)
}

func unauthenticated(c *fiber.Ctx) error {
	return writeError(c, fiber.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
}

func invalidID(c *fiber.Ctx) error {
	return writeError(c, fiber.StatusBadRequest, "INVALID_INPUT", "invalid id format")
}

// queryInt parses an optional integer query parameter.
func queryInt(c *fiber.Ctx, key string) (int64, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%w: invalid %s", service.ErrInvalidInput, key)
	}
	return v, nil
}

// queryPage reads a 1-based page or page size. Absent means 0 (use the
// default); an explicit value below 1 is rejected.
func queryPage(c *fiber.Ctx, key string) (int, error) {
	if strings.TrimSpace(c.Query(key)) == "" {
		return 0, nil
	}
	v, err := queryInt(c, key)
	if err != nil {
		return 0, err
	}
	if v < 1 {
		return 0, fmt.Errorf("%w: %s must be at least 1", service.ErrInvalidInput, key)
	}
	return int(v), nil
}

// parseIDList accepts a JSON array of numbers or numeric strings, a comma
// separated list, or the field repeated once per id.
func parseIDList(field string, values []string) ([]int64, error) {
	var ids []int64
	for _, raw := range values {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if strings.HasPrefix(raw, "[") {
			var items []any
			if err := json.Unmarshal([]byte(raw), &items); err != nil {
				return nil, fmt.Errorf("%w: %s must be a JSON array", service.ErrInvalidInput, field)
			}
			for _, it := range items {
				id, err := idFromJSON(it)
				if err != nil {
					return nil, fmt.Errorf("%w: %s contains %v", service.ErrInvalidInput, field, it)
				}
				ids = append(ids, id)
			}
			continue
		}
		for _, part := range strings.Split(raw, ",") {
			id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: %s contains %q", service.ErrInvalidInput, field, part)
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func idFromJSON(v any) (int64, error) {
	switch x := v.(type) {
	case float64:
		if x != math.Trunc(x) || x > math.MaxInt64 || x < math.MinInt64 {
			return 0, fmt.Errorf("not an integer")
		}
		return int64(x), nil
	case string:
		return strconv.ParseInt(strings.TrimSpace(x), 10, 64)
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
}
