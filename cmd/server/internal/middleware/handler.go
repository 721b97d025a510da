package middleware

import (
	"go.opentelemetry.io/otel"
	"gorm.io/gorm"
)

const name string = "github.com/hirelens/assessment-api/server/middleware"

var tracer = otel.Tracer(name)

type Handler struct {
	DB        *gorm.DB
	JWTSecret []byte
}
