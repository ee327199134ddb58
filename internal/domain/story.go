package domain

import "time"

// StoryDetails is a normalized record returned by the ranking API for one id.
type StoryDetails struct {
	ID            int64
	Title         string
	URL           string
	Domain        *string
	Score         int
	CommentsCount int
	Author        string
	PublishedAt   time.Time
}

// HasDomain reports whether the story carries a non-empty host.
func (d StoryDetails) HasDomain() bool {
	return d.Domain != nil && *d.Domain != ""
}

// ClassifiedStory is the run-scoped working copy persisted by a batch.
type ClassifiedStory struct {
	StoryDetails
	Keywords    []string
	IsAIRelated bool
}

// Story is the persisted entity keyed by the external identifier.
type Story struct {
	ID            int64
	Title         string
	URL           string
	Domain        *string
	Score         int
	CommentsCount int
	Author        string
	PublishedAt   time.Time
	FetchedAt     time.Time
	UpdatedAt     time.Time
	IsAIRelated   bool
}

// DomainStat counts stories first seen under a host.
type DomainStat struct {
	Domain      string
	Count       int
	LastUpdated time.Time
}

// KeywordMention records that a canonical keyword was found in a story title.
type KeywordMention struct {
	Keyword string
	StoryID int64
}

// BatchStats summarises what a persisted batch changed.
type BatchStats struct {
	Processed       int
	New             int
	Updated         int
	MentionsCreated int
}
