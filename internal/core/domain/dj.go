package domain

import (
	"encoding/json"
	"sort"
	"time"
)

type DJState string

const (
	DJStateIdle    DJState = "idle"
	DJStatePlaying DJState = "playing"
)

// Track is a queued song request.
type Track struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Artist        string    `json:"artist"`
	URL           string    `json:"url"`
	SubmittedBy   UserID    `json:"submitted_by"`
	SubmitterName string    `json:"submitter_name"`
	Votes         int       `json:"votes"`
	Voters        []UserID  `json:"voters"`
	AddedAt       time.Time `json:"added_at"`
}

func (t *Track) HasVoted(voter UserID) bool {
	for _, v := range t.Voters {
		if v == voter {
			return true
		}
	}
	return false
}

// ToggleVote adds the voter if absent or removes it if present, keeping
// Votes equal to len(Voters). Reports whether the vote is now counted.
func (t *Track) ToggleVote(voter UserID) bool {
	for i, v := range t.Voters {
		if v == voter {
			t.Voters = append(t.Voters[:i], t.Voters[i+1:]...)
			t.Votes = len(t.Voters)
			return false
		}
	}
	t.Voters = append(t.Voters, voter)
	t.Votes = len(t.Voters)
	return true
}

func (t Track) clone() Track {
	t.Voters = append([]UserID(nil), t.Voters...)
	if t.Voters == nil {
		t.Voters = []UserID{}
	}
	return t
}

type PlayedTrack struct {
	Track
	PlayedAt time.Time `json:"played_at"`
}

type DJSettings struct {
	AllowViewerRequests bool `json:"allow_viewer_requests" yaml:"allow_viewer_requests"`
	MaxQueueSize        int  `json:"max_queue_size" yaml:"max_queue_size"`
	VotingEnabled       bool `json:"voting_enabled" yaml:"voting_enabled"`
	AutoPlay            bool `json:"auto_play" yaml:"auto_play"`
}

func DefaultDJSettings() DJSettings {
	return DJSettings{
		AllowViewerRequests: true,
		MaxQueueSize:        20,
		VotingEnabled:       true,
		AutoPlay:            true,
	}
}

// DJSettingsPatch carries a partial settings update; nil fields are left as is.
type DJSettingsPatch struct {
	AllowViewerRequests *bool `json:"allow_viewer_requests"`
	MaxQueueSize        *int  `json:"max_queue_size"`
	VotingEnabled       *bool `json:"voting_enabled"`
	AutoPlay            *bool `json:"auto_play"`
}

func (s *DJSettings) Apply(p DJSettingsPatch) error {
	if p.MaxQueueSize != nil && *p.MaxQueueSize < 1 {
		return ErrInvalidSettings
	}
	if p.AllowViewerRequests != nil {
		s.AllowViewerRequests = *p.AllowViewerRequests
	}
	if p.MaxQueueSize != nil {
		s.MaxQueueSize = *p.MaxQueueSize
	}
	if p.VotingEnabled != nil {
		s.VotingEnabled = *p.VotingEnabled
	}
	if p.AutoPlay != nil {
		s.AutoPlay = *p.AutoPlay
	}
	return nil
}

// DJSession is the per-channel collaborative queue.
type DJSession struct {
	ChannelID    ChannelID     `json:"channel_id"`
	CurrentTrack *Track        `json:"current_track"`
	Queue        []Track       `json:"queue"`
	PlayedTracks []PlayedTrack `json:"played_tracks"`
	Settings     DJSettings    `json:"settings"`
	Version      int64         `json:"version"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

func NewDJSession(channelID ChannelID, settings DJSettings, now time.Time) *DJSession {
	return &DJSession{
		ChannelID:    channelID,
		Queue:        []Track{},
		PlayedTracks: []PlayedTrack{},
		Settings:     settings,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func (s *DJSession) State() DJState {
	if s.CurrentTrack == nil {
		return DJStateIdle
	}
	return DJStatePlaying
}

func (s *DJSession) MarshalJSON() ([]byte, error) {
	type alias DJSession
	return json.Marshal(struct {
		*alias
		State DJState `json:"state"`
	}{
		alias: (*alias)(s),
		State: s.State(),
	})
}

// Clone returns a deep copy so that callers never share slices with a store.
func (s *DJSession) Clone() *DJSession {
	if s == nil {
		return nil
	}
	out := *s
	if s.CurrentTrack != nil {
		t := s.CurrentTrack.clone()
		out.CurrentTrack = &t
	}
	out.Queue = make([]Track, len(s.Queue))
	for i, t := range s.Queue {
		out.Queue[i] = t.clone()
	}
	out.PlayedTracks = make([]PlayedTrack, len(s.PlayedTracks))
	for i, p := range s.PlayedTracks {
		out.PlayedTracks[i] = PlayedTrack{Track: p.Track.clone(), PlayedAt: p.PlayedAt}
	}
	return &out
}

// Touch marks a successful mutation.
func (s *DJSession) Touch(now time.Time) {
	s.Version++
	s.UpdatedAt = now
}

func (s *DJSession) Enqueue(t Track) error {
	if !s.Settings.AllowViewerRequests {
		return ErrCapabilityDisabled
	}
	if len(s.Queue) >= s.Settings.MaxQueueSize {
		return ErrQueueFull
	}
	t.Votes = 0
	t.Voters = []UserID{}
	s.Queue = append(s.Queue, t)
	return nil
}

// Vote toggles the voter on the track at index and re-sorts the queue by
// votes, descending. Ties keep their relative order.
func (s *DJSession) Vote(index int, voter UserID) error {
	if !s.Settings.VotingEnabled {
		return ErrCapabilityDisabled
	}
	if index < 0 || index >= len(s.Queue) {
		return ErrTrackNotFound
	}
	s.Queue[index].ToggleVote(voter)
	sort.SliceStable(s.Queue, func(i, j int) bool {
		return s.Queue[i].Votes > s.Queue[j].Votes
	})
	return nil
}

func (s *DJSession) archiveCurrent(now time.Time) {
	if s.CurrentTrack == nil {
		return
	}
	s.PlayedTracks = append(s.PlayedTracks, PlayedTrack{Track: *s.CurrentTrack, PlayedAt: now})
	s.CurrentTrack = nil
}

func (s *DJSession) popFront() {
	next := s.Queue[0]
	s.Queue = append([]Track{}, s.Queue[1:]...)
	s.CurrentTrack = &next
}

func (s *DJSession) PlayNext(now time.Time) error {
	if len(s.Queue) == 0 {
		return ErrQueueEmpty
	}
	s.archiveCurrent(now)
	s.popFront()
	return nil
}

// Skip archives the current track and advances; with an empty queue the
// session goes idle.
func (s *DJSession) Skip(now time.Time) {
	s.archiveCurrent(now)
	if len(s.Queue) > 0 {
		s.popFront()
	}
}

func (s *DJSession) RemoveTrack(index int) error {
	if index < 0 || index >= len(s.Queue) {
		return ErrTrackNotFound
	}
	s.Queue = append(s.Queue[:index], s.Queue[index+1:]...)
	return nil
}

func (s *DJSession) ClearQueue() {
	s.Queue = []Track{}
}
