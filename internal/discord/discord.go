package discord

type FileMessage struct {
	ChannelID string
	Content   string
	Filename  string
	FileBody  []byte
}

// Client posts completion notices to a Discord channel.
type Client interface {
	SendChannelMessageWithFile(msg FileMessage) error
}
