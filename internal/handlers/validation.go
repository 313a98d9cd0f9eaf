package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"

	appErrors "github.com/dashpad/authd/pkg/errors"
	"github.com/dashpad/authd/pkg/response"
	appValidator "github.com/dashpad/authd/pkg/validator"
)

// bindAndValidate binds the JSON payload into dest and runs struct validation rules.
// When either step fails a 400 envelope is written and false is returned.
func bindAndValidate[T any](c *gin.Context, dest *T) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.NewBadRequest("invalid JSON payload"))
		return false
	}

	if err := appValidator.ValidateStruct(dest); err != nil {
		response.Error(c, appErrors.NewBadRequest(validationMessage(err)))
		return false
	}

	return true
}

func validationMessage(err error) string {
	var failures appValidator.ValidationErrors
	if errors.As(err, &failures) && len(failures) > 0 {
		return failures.Error()
	}
	return "invalid request payload"
}
