package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	// IDRegex matches room, channel and connection identifiers.
	IDRegex = regexp.MustCompile(`^[a-zA-Z0-9_.:-]+$`)

	UsernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

const (
	MaxIDLength          = 128
	MaxDisplayNameLength = 50
	MaxTrackFieldLength  = 200
	MaxEmojiLength       = 16
	MaxURLLength         = 2048
)

func validateID(kind, id string) error {
	if id == "" {
		return fmt.Errorf("%s is required", kind)
	}
	if len(id) > MaxIDLength {
		return fmt.Errorf("%s is too long (max %d characters)", kind, MaxIDLength)
	}
	if !IDRegex.MatchString(id) {
		return fmt.Errorf("invalid %s format", kind)
	}
	return nil
}

func ValidateRoomID(id string) error       { return validateID("room id", id) }
func ValidateChannelID(id string) error    { return validateID("channel id", id) }
func ValidateConnectionID(id string) error { return validateID("target", id) }

// ValidateDisplayName accepts any printable UTF-8 up to the length limit.
func ValidateDisplayName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("display name is required")
	}
	if !utf8.ValidString(name) {
		return fmt.Errorf("display name contains invalid characters")
	}
	return ValidateStringLength(name, 1, MaxDisplayNameLength, "display name")
}

// ValidateUsername checks a login name.
func ValidateUsername(username string) error {
	username = strings.TrimSpace(username)
	if err := ValidateStringLength(username, 3, MaxDisplayNameLength, "username"); err != nil {
		return err
	}
	if !UsernameRegex.MatchString(username) {
		return fmt.Errorf("username contains invalid characters (only letters, numbers, _, - allowed)")
	}
	return nil
}

// ValidateChatText rejects empty text and text over maxLen bytes.
func ValidateChatText(text string, maxLen int) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("message text is required")
	}
	if !utf8.ValidString(text) {
		return fmt.Errorf("message text contains invalid characters")
	}
	return ValidateStringLength(text, 1, maxLen, "message text")
}

func ValidateEmoji(emoji string) error {
	if emoji == "" {
		return fmt.Errorf("emoji is required")
	}
	return ValidateStringLength(emoji, 1, MaxEmojiLength, "emoji")
}

// ValidateTrack checks a song request. URL is optional.
func ValidateTrack(title, artist, rawURL string) error {
	if err := ValidateNonEmptyString(title, "title"); err != nil {
		return err
	}
	if err := ValidateStringLength(title, 1, MaxTrackFieldLength, "title"); err != nil {
		return err
	}
	if err := ValidateStringLength(artist, 0, MaxTrackFieldLength, "artist"); err != nil {
		return err
	}
	if rawURL != "" {
		return ValidateURL(rawURL)
	}
	return nil
}

// ValidateURL accepts absolute http and https URLs.
func ValidateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("URL is required")
	}
	if len(rawURL) > MaxURLLength {
		return fmt.Errorf("URL is too long (max %d characters)", MaxURLLength)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme (must be http or https)")
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}

func ValidateNonEmptyString(s, fieldName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%s is required", fieldName)
	}
	return nil
}

func ValidateStringLength(s string, min, max int, fieldName string) error {
	length := utf8.RuneCountInString(s)
	if length < min {
		return fmt.Errorf("%s must be at least %d characters", fieldName, min)
	}
	if length > max {
		return fmt.Errorf("%s is too long (max %d characters)", fieldName, max)
	}
	return nil
}
