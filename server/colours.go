package server

import "fmt"

// ANSI colours for the development request log
const (
	Red     = "\033[31m"
	Green   = "\033[32m"
	Yellow  = "\033[33m"
	Blue    = "\033[34m"
	Magenta = "\033[35m"
	Cyan    = "\033[36m"
	Gray    = "\033[90m" // Bright black, often appears as gray

	ResetColor = "\033[0m"
)

var methodColors = map[string]string{
	"GET":    Green,
	"POST":   Blue,
	"PUT":    Cyan,
	"DELETE": Yellow,
	"PATCH":  Magenta,
}

// colouredStatus colours a response code by class
func colouredStatus(status int) string {
	colour := Green
	switch {
	case status >= 500:
		colour = Red
	case status >= 400:
		colour = Yellow
	case status >= 300:
		colour = Cyan
	}
	return fmt.Sprintf("%s%d%s", colour, status, ResetColor)
}
