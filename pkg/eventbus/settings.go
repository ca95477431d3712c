package eventbus

const DefaultTopic = "chat-widget.conversation"

// RedisSettings configures the Redis Streams transport. When disabled, changes are
// fanned out in-process through a watermill gochannel.
type RedisSettings struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Group    string `yaml:"group"`
	Consumer string `yaml:"consumer"`
}

type Settings struct {
	Topic string        `yaml:"topic"`
	Redis RedisSettings `yaml:"redis"`
}

func DefaultSettings() Settings {
	return Settings{
		Topic: DefaultTopic,
		Redis: RedisSettings{
			Addr:     "localhost:6379",
			Group:    "chat-widget",
			Consumer: "ui-1",
		},
	}
}

// ForRun gives a store run its own consumer group. Consumers in one group split
// the stream between them, but every process needs all the changes of its run.
func (r RedisSettings) ForRun(runID string) RedisSettings {
	if runID == "" {
		return r
	}
	r.Group = r.Group + "-" + runID
	return r
}
