package entity

// TypingEvent reports that a user started or stopped typing
type TypingEvent struct {
	UserId  string
	Typing  bool
	GroupId string
}
