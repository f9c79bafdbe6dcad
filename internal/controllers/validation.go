package controllers

import (
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"bus_tracker/internal/tracking"
)

const tagClock12 = "clock12"

var registerOnce sync.Once

// RegisterValidators adds the custom binding tags to gin's validator.
func RegisterValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation(tagClock12, validClock)
	})
}

func validClock(fl validator.FieldLevel) bool {
	_, err := tracking.ParseClock(fl.Field().String())
	return err == nil
}
