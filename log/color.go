package log

// Color returns the ANSI escape for a level's terminal color.
func Color(l LogLevel) string {
	switch l {
	case Debug:
		return "\033[34m" // Blue
	case Warn:
		return "\033[33m" // Yellow
	case Error:
		return "\033[31m" // Red
	case Fatal:
		return "\033[35m" // Magenta
	case Info:
		return "\033[32m" // Green
	default:
		return "\033[0m"
	}
}
