package v1

import (
	"errors"
	"net/http"

	"github.com/fghsg9075-lab/aios/internal/dispatcher"
	"github.com/fghsg9075-lab/aios/internal/llm"
	"github.com/fghsg9075-lab/aios/internal/server/validator"
	"github.com/fghsg9075-lab/aios/pkg/api"
	"github.com/gin-gonic/gin"
)

type ExecuteHandler struct {
	dispatcher Dispatcher
	validator  *validator.Validator
}

func NewExecuteHandler(d Dispatcher, v *validator.Validator) *ExecuteHandler {
	return &ExecuteHandler{
		dispatcher: d,
		validator:  v,
	}
}

// Execute runs one task through the routing table.
//
// POST /v1/execute
func (h *ExecuteHandler) Execute(c *gin.Context) {
	var task llm.Task
	if err := c.ShouldBindJSON(&task); err != nil {
		_ = c.Error(api.ValidationError(h.validator.ParseError(err)))
		return
	}
	if task.Kind == "" {
		task.Kind = llm.KindText
	}
	if task.Kind == llm.KindImageToText && task.ImageURL == "" {
		_ = c.Error(api.ValidationError(map[string]string{"imageUrl": "imageUrl is required for IMAGE_TO_TEXT tasks"}))
		return
	}

	resp, err := h.dispatcher.Execute(c.Request.Context(), task)
	if err != nil {
		var agg *dispatcher.AggregateError
		if errors.As(err, &agg) {
			_ = c.Error(api.UpstreamError(
				"No provider could complete the task",
				err,
				api.WithExtension("attempts", attemptViews(agg.Attempts)),
			))
			return
		}
		_ = c.Error(api.InternalError("Failed to execute task", err))
		return
	}

	c.JSON(http.StatusOK, resp)
}

func attemptViews(attempts []dispatcher.Attempt) []api.AttemptView {
	out := make([]api.AttemptView, 0, len(attempts))
	for _, a := range attempts {
		v := api.AttemptView{
			Provider:  a.ProviderID,
			Model:     a.ModelID,
			Skipped:   a.Skipped,
			Reason:    string(a.Reason),
			LatencyMs: a.Latency.Milliseconds(),
		}
		if a.Err != nil {
			v.Error = a.Err.Error()
		}
		out = append(out, v)
	}
	return out
}
