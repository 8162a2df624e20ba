package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type sample struct {
	Title string `json:"title" validate:"required,max=10"`
	Price int64  `json:"price" validate:"gte=0"`
}

func TestValidate(t *testing.T) {
	assert.Nil(t, Validate(sample{Title: "ok"}))

	errs := Validate(sample{Price: -1})
	assert.Equal(t, map[string]string{"title": "required", "price": "gte"}, errs)
}

func TestVar(t *testing.T) {
	assert.NoError(t, Var("abc", "min=1"))
	assert.Error(t, Var("", "required"))
}
