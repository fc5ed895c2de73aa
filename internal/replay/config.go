package replay

import "time"

// Config holds configuration for a replay run.
type Config struct {
	BaseURL      string        // Base URL of the service
	Participants int           // Number of synthetic participants
	MaxWeeks     int           // Upper bound of weeks completed per participant
	TopN         int           // Number of leaderboard entries to fetch
	Workers      int           // Number of concurrent workers
	Timeout      time.Duration // HTTP request timeout
	Secret       string        // Webhook secret used to sign deliveries
	AdminKey     string        // X-API-Key for the link route
	PathPrefix   string        // Participant folder in the homework repository
	Verbose      bool          // Enable verbose logging
}

// Participant is one synthetic participant and the weeks its push completes.
type Participant struct {
	Address  string `json:"participantAddress"`
	Username string `json:"username"`
	Weeks    int    `json:"weeks"`
	// DeliveryID is sent as X-GitHub-Delivery with Body.
	DeliveryID string `json:"deliveryId"`
	Body       []byte `json:"-"`
}

// ScoreEntry is one leaderboard row as served by the API.
type ScoreEntry struct {
	Rank          int    `json:"rank"`
	ParticipantID string `json:"participantId"`
	Score         int64  `json:"score"`
}

// Progress is the subset of the progress response the verifier reads.
type Progress struct {
	ParticipantID  string `json:"participantId"`
	CompletedWeeks []int  `json:"completedWeeks"`
	TotalEarned    int64  `json:"totalEarned"`
	Pending        int64  `json:"pendingReward"`
}

// DeliveryResult is the service's answer to one push delivery.
type DeliveryResult struct {
	OK        bool `json:"ok"`
	Skipped   bool `json:"skipped"`
	Duplicate bool `json:"duplicate"`
	Matched   int  `json:"matched"`
}

// Stats holds run statistics.
type Stats struct {
	ParticipantsLinked int
	Deliveries         int
	DeliveriesFailed   int
	WeeksMatched       int
	ProgressVerified   int
	LeaderboardEntries int
	StartTime          time.Time
	EndTime            time.Time
	Duration           time.Duration
}
