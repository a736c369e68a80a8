package domain

import "time"

type ActivityType string

const (
	ActivityUserSignup        ActivityType = "user_signup"
	ActivityUserLogin         ActivityType = "user_login"
	ActivityChannelCreated    ActivityType = "channel_created"
	ActivityStreamStarted     ActivityType = "stream_started"
	ActivityStreamEnded       ActivityType = "stream_ended"
	ActivityGiftSent          ActivityType = "gift_sent"
	ActivityPollCreated       ActivityType = "poll_created"
	ActivityPollVoted         ActivityType = "poll_voted"
	ActivityWatchPartyCreated ActivityType = "watch_party_created"
	ActivityWatchPartyJoined  ActivityType = "watch_party_joined"
	ActivityChallengeDone     ActivityType = "challenge_completed"
	ActivityContentUploaded   ActivityType = "content_uploaded"
	ActivitySubscription      ActivityType = "subscription"
	ActivityMessageSent       ActivityType = "message_sent"
)

// Activity is one durable domain event record.
type Activity struct {
	Type      ActivityType           `json:"type"`
	Username  string                 `json:"username"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}
