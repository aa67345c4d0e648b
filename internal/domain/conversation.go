package domain

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// AudioInputMarker is the content of a user turn when the utterance was not transcribed.
const AudioInputMarker = "[audio input]"

type Turn struct {
	Role    Role
	Content string
}
