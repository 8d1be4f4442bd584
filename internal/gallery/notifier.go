package gallery

// Notifier shows short messages to the user (a chat reply, a line on
// stderr).
type Notifier interface {
	Success(msg string)
	Error(msg string)
}
