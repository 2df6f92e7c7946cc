package platform

import (
	"encoding/json"

	"github.com/bytedance/sonic"
)

// UserSortBy enumerates the sort orders accepted by the user listing
// endpoints.
type UserSortBy string

const (
	UserSortInfluence UserSortBy = "influence"
	UserSortNewest    UserSortBy = "newest"
	UserSortFollowers UserSortBy = "followers"
	UserSortProjects  UserSortBy = "projects"
	UserSortSkulls    UserSortBy = "skulls"
)

// ProjectSortBy enumerates the sort orders accepted by the project listing
// endpoints.
type ProjectSortBy string

const (
	ProjectSortSkulls    ProjectSortBy = "skulls"
	ProjectSortNewest    ProjectSortBy = "newest"
	ProjectSortViews     ProjectSortBy = "views"
	ProjectSortComments  ProjectSortBy = "comments"
	ProjectSortFollowers ProjectSortBy = "followers"
	ProjectSortUpdated   ProjectSortBy = "updated"
)

// User is a user record as returned by the platform.
type User struct {
	ID                 uint64 `json:"id"`
	ScreenName         string `json:"screen_name"`
	URL                string `json:"url"`
	Created            int64  `json:"created"`
	AboutMe            string `json:"about_me"`
	WhoAmI             string `json:"who_am_i"`
	Location           string `json:"location"`
	WhatIWouldLikeToDo string `json:"what_i_would_like_to_do"`
	Projects           int    `json:"projects"`
	ImageURL           string `json:"image_url"`
}

// UserList is a paginated user listing.
type UserList struct {
	Users    []User `json:"users"`
	Page     int    `json:"page"`
	LastPage int    `json:"last_page"`
}

// Link is an outbound link on a user's profile.
type Link struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// LinkList is a paginated link listing. The platform is known to return the
// integer 0 instead of an empty array in the links field, so decoding is
// tolerant of that shape.
type LinkList struct {
	Links    []Link `json:"-"`
	Page     int    `json:"page"`
	LastPage int    `json:"last_page"`
}

// UnmarshalJSON decodes a link listing, accepting both a list and the
// integer placeholder the platform emits when a user has no links.
func (l *LinkList) UnmarshalJSON(data []byte) error {
	var raw struct {
		Links    json.RawMessage `json:"links"`
		Page     int             `json:"page"`
		LastPage int             `json:"last_page"`
	}

	if err := sonic.Unmarshal(data, &raw); err != nil {
		return err
	}

	l.Page = raw.Page
	l.LastPage = raw.LastPage
	l.Links = nil

	if len(raw.Links) > 0 && raw.Links[0] == '[' {
		return sonic.Unmarshal(raw.Links, &l.Links)
	}

	return nil
}

// Project is a project record; only the tokenised fields are decoded.
type Project struct {
	Name        string `json:"name"`
	Summary     string `json:"summary"`
	Description string `json:"description"`
}

// ProjectList is a paginated project listing.
type ProjectList struct {
	Projects []Project `json:"-"`
	Page     int       `json:"page"`
	LastPage int       `json:"last_page"`
}

// UnmarshalJSON decodes a project listing with the same list-or-placeholder
// tolerance as LinkList.
func (p *ProjectList) UnmarshalJSON(data []byte) error {
	var raw struct {
		Projects json.RawMessage `json:"projects"`
		Page     int             `json:"page"`
		LastPage int             `json:"last_page"`
	}

	if err := sonic.Unmarshal(data, &raw); err != nil {
		return err
	}

	p.Page = raw.Page
	p.LastPage = raw.LastPage
	p.Projects = nil

	if len(raw.Projects) > 0 && raw.Projects[0] == '[' {
		return sonic.Unmarshal(raw.Projects, &p.Projects)
	}

	return nil
}

// Page is a user page record.
type Page struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// PageList is a paginated page listing.
type PageList struct {
	Pages    []Page `json:"-"`
	Page     int    `json:"page"`
	LastPage int    `json:"last_page"`
}

// UnmarshalJSON decodes a page listing with the same list-or-placeholder
// tolerance as LinkList.
func (p *PageList) UnmarshalJSON(data []byte) error {
	var raw struct {
		Pages    json.RawMessage `json:"pages"`
		Page     int             `json:"page"`
		LastPage int             `json:"last_page"`
	}

	if err := sonic.Unmarshal(data, &raw); err != nil {
		return err
	}

	p.Page = raw.Page
	p.LastPage = raw.LastPage
	p.Pages = nil

	if len(raw.Pages) > 0 && raw.Pages[0] == '[' {
		return sonic.Unmarshal(raw.Pages, &p.Pages)
	}

	return nil
}

// Tag is a user tag record.
type Tag struct {
	Name string `json:"name"`
}

// TagList is a paginated tag listing.
type TagList struct {
	Tags     []Tag `json:"tags"`
	Page     int   `json:"page"`
	LastPage int   `json:"last_page"`
}

// TeamMember is one member of a project team.
type TeamMember struct {
	User User `json:"user"`
}

// TeamList is a paginated team listing.
type TeamList struct {
	Team     []TeamMember `json:"team"`
	Page     int          `json:"page"`
	LastPage int          `json:"last_page"`
}

// Token is the payload of the auth code exchange.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}
