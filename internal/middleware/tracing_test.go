package middleware

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracing_GeneratesTraceID(t *testing.T) {
	app := fiber.New()
	app.Use(Tracing())
	var seen string
	app.Get("/", func(c *fiber.Ctx) error {
		seen = GetTraceID(c)
		return c.SendStatus(200)
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)

	header := resp.Header.Get("X-Trace-Id")
	assert.Equal(t, seen, header)
	_, err = uuid.Parse(header)
	assert.NoError(t, err)
}

func TestTracing_ReusesCallerTraceID(t *testing.T) {
	app := fiber.New()
	app.Use(Tracing())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendStatus(200) })

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Trace-Id", "upstream-retry-7")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, "upstream-retry-7", resp.Header.Get("X-Trace-Id"))
}
