package content

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Kind tells whether a section holds a list of records or a single object.
type Kind int

const (
	KindCollection Kind = iota
	KindSingleton
)

func (k Kind) String() string {
	if k == KindSingleton {
		return "singleton"
	}
	return "collection"
}

// Banner is a home page carousel slide.
type Banner struct {
	Image       string `json:"image,omitempty"`
	Title       string `json:"title" validate:"max=300"`
	Description string `json:"description" validate:"max=2000"`
}

// News is a news article; it may carry several images.
type News struct {
	Title     string   `json:"title" validate:"max=300"`
	Author    string   `json:"author" validate:"max=200"`
	Timestamp string   `json:"timestamp"`
	Content   string   `json:"content"`
	ImageSrc  []string `json:"imageSrc,omitempty"`
}

type Project struct {
	Title       string `json:"title" validate:"max=300"`
	Description string `json:"description"`
	ButtonLabel string `json:"buttonLabel" validate:"max=100"`
	ImageSrc    string `json:"imageSrc,omitempty"`
}

// Publication is shared by the journal and conference sections.
type Publication struct {
	ImageSrc        string `json:"imageSrc,omitempty"`
	Title           string `json:"title" validate:"max=500"`
	Authors         string `json:"authors" validate:"max=1000"`
	PublicationDate string `json:"publicationDate"`
	Description     string `json:"description"`
	Link            string `json:"link" validate:"max=2048"`
}

type Research struct {
	ImageSrc        string `json:"imageSrc,omitempty"`
	Title           string `json:"title" validate:"max=300"`
	Description     string `json:"description"`
	PublicationName string `json:"publicationName" validate:"max=300"`
	PublicationDate string `json:"publicationDate"`
}

type Counter struct {
	Title string  `json:"title" validate:"max=200"`
	Value float64 `json:"value" validate:"gte=0"`
}

type ContactItem struct {
	Label string `json:"label" validate:"max=200"`
	Value string `json:"value" validate:"max=500"`
	Link  string `json:"link" validate:"max=2048"`
}

type SocialLink struct {
	Name string `json:"name" validate:"max=100"`
	Path string `json:"path" validate:"max=2048"`
}

type TeamMember struct {
	Name       string `json:"name" validate:"max=200"`
	University string `json:"university" validate:"max=300"`
	Role       string `json:"role" validate:"max=200"`
	Image      string `json:"image,omitempty"`
}

// TeamCategory groups members under a heading such as "Faculty" or "Students".
type TeamCategory struct {
	Category string       `json:"category" validate:"max=200"`
	Members  []TeamMember `json:"members" validate:"dive"`
}

// Logo is the only singleton section.
type Logo struct {
	Image   string `json:"image,omitempty"`
	Content string `json:"content" validate:"max=500"`
}

// Section describes a known section: its kind and the variant used to check payloads.
type Section struct {
	Name    string
	Kind    Kind
	variant func() any
}

var registry = map[string]Section{
	"bannerData":     {Name: "bannerData", Kind: KindCollection, variant: func() any { return &Banner{} }},
	"newsData":       {Name: "newsData", Kind: KindCollection, variant: func() any { return &News{} }},
	"projectData":    {Name: "projectData", Kind: KindCollection, variant: func() any { return &Project{} }},
	"journalData":    {Name: "journalData", Kind: KindCollection, variant: func() any { return &Publication{} }},
	"conferenceData": {Name: "conferenceData", Kind: KindCollection, variant: func() any { return &Publication{} }},
	"researchData":   {Name: "researchData", Kind: KindCollection, variant: func() any { return &Research{} }},
	"countersData":   {Name: "countersData", Kind: KindCollection, variant: func() any { return &Counter{} }},
	"contactInfo":    {Name: "contactInfo", Kind: KindCollection, variant: func() any { return &ContactItem{} }},
	"socialLinks":    {Name: "socialLinks", Kind: KindCollection, variant: func() any { return &SocialLink{} }},
	"teamData":       {Name: "teamData", Kind: KindCollection, variant: func() any { return &TeamCategory{} }},
	"logo":           {Name: "logo", Kind: KindSingleton, variant: func() any { return &Logo{} }},
}

var validate = validator.New()

// Lookup returns the registered section. Unknown sections are schema-free collections.
func Lookup(name string) Section {
	if s, ok := registry[name]; ok {
		return s
	}
	return Section{Name: name, Kind: KindCollection}
}

// Validate checks that rec decodes into the section variant and passes its
// field constraints. Unknown fields are allowed.
func (s Section) Validate(rec Record) error {
	if s.variant == nil {
		return nil
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidShape, err)
	}
	v := s.variant()
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidShape, s.Name, err)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidShape, s.Name, err)
	}
	return nil
}
