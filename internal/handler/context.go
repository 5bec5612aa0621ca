package handler

import (
	"errors"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/restaurant-order-engine/internal/model"
)

// getUserID extracts the user_id placed in the context by JWTAuth and
// converts it to uint64.
func getUserID(c echo.Context) (uint64, error) {
	switch t := c.Get("user_id").(type) {
	case uint64:
		return t, nil
	case int:
		return uint64(t), nil
	case int64:
		return uint64(t), nil
	case float64:
		return uint64(t), nil
	case string:
		if n, err := strconv.ParseUint(t, 10, 64); err == nil {
			return n, nil
		}
	}
	return 0, errors.New("invalid user_id in context")
}

// actor builds the caller identity used for authorization decisions.
func actor(c echo.Context) (model.Actor, error) {
	id, err := getUserID(c)
	if err != nil {
		return model.Actor{}, err
	}
	role, _ := c.Get("role").(string)
	if role == "" {
		return model.Actor{}, errors.New("missing role in context")
	}
	return model.Actor{UserID: id, Role: role}, nil
}

// pathID parses the :id parameter; zero is rejected.
func pathID(c echo.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	return id, err == nil && id > 0
}
