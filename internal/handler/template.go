package handler

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/strandart/api/pkg/response"
)

// TemplateHandler serves the printable nail-template endpoint. Actual PDF
// rendering lives on the roadmap; until then the route validates the layout
// and answers with a structured placeholder so the frontend can wire the
// download button.
type TemplateHandler struct{}

func NewTemplateHandler() *TemplateHandler {
	return &TemplateHandler{}
}

// Download handles GET /download_template/:numNails/:radiusCm
func (h *TemplateHandler) Download(c *fiber.Ctx) error {
	numNails, err := strconv.Atoi(c.Params("numNails"))
	if err != nil || numNails < 50 || numNails > 720 {
		return response.ValidationError(c, "numNails must be an integer between 50 and 720", nil)
	}

	radiusCM, err := strconv.ParseFloat(c.Params("radiusCm"), 64)
	if err != nil || radiusCM <= 0 || radiusCM > 200 {
		return response.ValidationError(c, "radiusCm must be a positive number up to 200", nil)
	}

	return response.OK(c, fiber.Map{
		"numNails": numNails,
		"radiusCm": radiusCM,
		"message":  "PDF template generation is not available yet",
	})
}
