package models

// Role of a user as reported by the API.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

type Category string

const (
	CategoryPersonalDevelopment Category = "Personal Development"
	CategoryCareer              Category = "Career"
	CategoryRelationships       Category = "Relationships"
	CategoryMindset             Category = "Mindset"
	CategoryMistakes            Category = "Learning from Mistakes"
)

// Categories in display order.
var Categories = []Category{
	CategoryPersonalDevelopment,
	CategoryCareer,
	CategoryRelationships,
	CategoryMindset,
	CategoryMistakes,
}

type Tone string

const (
	ToneMotivational Tone = "Motivational"
	ToneSadness      Tone = "Sadness"
	ToneRealization  Tone = "Realization"
	ToneGratitude    Tone = "Gratitude"
)

var Tones = []Tone{ToneMotivational, ToneSadness, ToneRealization, ToneGratitude}

type AccessLevel string

const (
	AccessFree    AccessLevel = "free"
	AccessPremium AccessLevel = "premium"
)

type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

type ReportReason string

const (
	ReasonInappropriate ReportReason = "Inappropriate Content"
	ReasonHate          ReportReason = "Hate or Harassment"
	ReasonMisleading    ReportReason = "False or Misleading Information"
	ReasonSpam          ReportReason = "Spam"
	ReasonSensitive     ReportReason = "Sensitive or Disturbing Content"
	ReasonOther         ReportReason = "Other"
)

var ReportReasons = []ReportReason{
	ReasonInappropriate,
	ReasonHate,
	ReasonMisleading,
	ReasonSpam,
	ReasonSensitive,
	ReasonOther,
}

func ValidCategory(c string) bool {
	for _, v := range Categories {
		if string(v) == c {
			return true
		}
	}
	return false
}

func ValidTone(t string) bool {
	for _, v := range Tones {
		if string(v) == t {
			return true
		}
	}
	return false
}

func ValidReportReason(r string) bool {
	for _, v := range ReportReasons {
		if string(v) == r {
			return true
		}
	}
	return false
}
