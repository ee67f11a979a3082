package constants

import "time"

var CacheTTL = struct {
	AdminList    time.Duration
	ChatInfo     time.Duration
	Translation  time.Duration
	WeatherQuery time.Duration
}{
	AdminList:    5 * time.Minute,  // admin roster per chat
	ChatInfo:     20 * time.Minute, // chat title / type lookups
	Translation:  60 * time.Minute, // repeated phrase lookups
	WeatherQuery: 10 * time.Minute, // same-city weather queries
}

var WebSocketConfig = struct {
	MaxReconnectAttempts int
	ReconnectDelay       time.Duration
}{
	MaxReconnectAttempts: 5,
	ReconnectDelay:       5 * time.Second,
}

var RedisConfig = struct {
	ReadyTimeout time.Duration
}{
	ReadyTimeout: 5 * time.Second,
}

var DispatchConfig = struct {
	EventDeadline      time.Duration
	MaxConcurrent      int
	MaxMutationRetries int
	LaneBuffer         int
	LaneIdleTimeout    time.Duration
}{
	EventDeadline:      25 * time.Second, // whole-event budget, external calls included
	MaxConcurrent:      32,               // in-flight events across all chats
	MaxMutationRetries: 3,                // version-conflict retries per mutation step
	LaneBuffer:         64,               // queued events per chat before intake blocks
	LaneIdleTimeout:    2 * time.Minute,  // idle lanes are reaped after this
}

var DedupConfig = struct {
	Window     time.Duration
	MaxPerChat int64
}{
	Window:     30 * time.Minute, // how long applied message ids stay remembered
	MaxPerChat: 512,
}

var RetryConfig = struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Jitter      time.Duration
}{
	MaxAttempts: 2,
	BaseDelay:   500 * time.Millisecond,
	Jitter:      250 * time.Millisecond,
}

var CircuitBreakerConfig = struct {
	FailureThreshold int
	Cooldown         time.Duration
	RateLimitTimeout time.Duration
}{
	FailureThreshold: 3,                // consecutive failures before the circuit opens
	Cooldown:         30 * time.Second, // open duration before the single trial call
	RateLimitTimeout: 5 * time.Minute,  // longer cooldown for 429 responses
}

var APIConfig = struct {
	WeatherBaseURL    string
	DictionaryBaseURL string
	TranslateBaseURL  string
	WiktionaryBaseURL string
	ServiceTimeout    time.Duration
}{
	WeatherBaseURL:    "https://api.openweathermap.org/data/2.5",
	DictionaryBaseURL: "https://api.dictionaryapi.dev/api/v2/entries/en",
	TranslateBaseURL:  "https://api.mymemory.translated.net",
	WiktionaryBaseURL: "https://en.wiktionary.org/wiki",
	ServiceTimeout:    10 * time.Second,
}

var ModerationConfig = struct {
	WarnThreshold       int
	DefaultMuteDuration time.Duration
	MaxMuteDuration     time.Duration
}{
	WarnThreshold:       3,
	DefaultMuteDuration: 1 * time.Hour,
	MaxMuteDuration:     366 * 24 * time.Hour,
}

var SinkConfig = struct {
	DeliveryAttempts int
	RetryDelay       time.Duration
	DeliveryTimeout  time.Duration
	LaneBuffer       int
	LaneIdleTimeout  time.Duration
}{
	DeliveryAttempts: 2,
	RetryDelay:       300 * time.Millisecond,
	DeliveryTimeout:  10 * time.Second,
	LaneBuffer:       128,
	LaneIdleTimeout:  2 * time.Minute,
}

var JanitorConfig = struct {
	SweepInterval time.Duration
	Concurrency   int
}{
	SweepInterval: 1 * time.Minute,
	Concurrency:   4,
}

var AIInputLimits = struct {
	MaxQueryLength int
}{
	MaxQueryLength: 500,
}

var StringLimits = struct {
	MessageText int
	NoteKey     int
	NoteValue   int
	CityQuery   int
	WordQuery   int
}{
	MessageText: 4096,
	NoteKey:     64,
	NoteValue:   2048,
	CityQuery:   80,
	WordQuery:   64,
}
