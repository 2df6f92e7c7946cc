package platform

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"
)

const (
	// DefaultAPIURL is the base of the platform's JSON API.
	DefaultAPIURL = "https://api.hackaday.io/v1"

	// DefaultSiteURL is the base of the platform's public site, used for the
	// newest-user HTML workaround.
	DefaultSiteURL = "https://hackaday.io"

	// DefaultAuthURL is where users are sent to authorise the application.
	DefaultAuthURL = "https://hackaday.io/authorize?client_id=%s&response_type=code"

	// DefaultTokenURL is the auth code exchange endpoint.
	DefaultTokenURL = "https://auth.hackaday.io/access_token" +
		"?client_id=%s&client_secret=%s&code=%s&grant_type=authorization_code"

	// BatchLimit is the maximum number of IDs accepted by the batch fetch
	// endpoints.
	BatchLimit = 50
)

// Credentials holds the application's platform credentials.
type Credentials struct {
	ClientID     string
	ClientSecret string
	APIKey       string
}

// API provides typed wrappers over the platform's endpoints. All requests go
// through the shared rate-limited client.
type API struct {
	client   *Client
	creds    Credentials
	apiURL   string
	siteURL  string
	authURL  string
	tokenURL string
	logger   *zap.Logger
}

// NewAPI creates an API bound to the given client and credentials.
func NewAPI(client *Client, creds Credentials, logger *zap.Logger) *API {
	return &API{
		client:   client,
		creds:    creds,
		apiURL:   DefaultAPIURL,
		siteURL:  DefaultSiteURL,
		authURL:  DefaultAuthURL,
		tokenURL: DefaultTokenURL,
		logger:   logger.Named("platform"),
	}
}

// WithBaseURLs overrides the endpoint bases. Used by tests.
func (a *API) WithBaseURLs(apiURL, siteURL string) *API {
	a.apiURL = strings.TrimSuffix(apiURL, "/")
	a.siteURL = strings.TrimSuffix(siteURL, "/")

	return a
}

// Client returns the underlying rate-limited client.
func (a *API) Client() *Client {
	return a.client
}

// IsForbidden reports whether the underlying client is inside a forbidden
// backoff window.
func (a *API) IsForbidden() bool {
	return a.client.IsForbidden()
}

// Fetch performs a raw rate-limited request, used for profile HEAD checks
// and avatar downloads.
func (a *API) Fetch(ctx context.Context, method, rawURL string) (*Response, error) {
	return a.client.Fetch(ctx, method, rawURL, nil, nil)
}

// AuthURL returns where to send a user who is not logged in.
func (a *API) AuthURL() string {
	return fmt.Sprintf(a.authURL, url.QueryEscape(a.creds.ClientID))
}

// GetToken exchanges an authorization code for an access token.
func (a *API) GetToken(ctx context.Context, code string) (*Token, error) {
	uri := fmt.Sprintf(a.tokenURL,
		url.QueryEscape(a.creds.ClientID),
		url.QueryEscape(a.creds.ClientSecret),
		url.QueryEscape(code))

	var token Token
	if err := a.call(ctx, http.MethodPost, uri, nil, "", &token); err != nil {
		return nil, err
	}

	return &token, nil
}

// GetCurrentUser fetches the profile of the user owning the given OAuth
// token.
func (a *API) GetCurrentUser(ctx context.Context, token string) (*User, error) {
	var user User
	if err := a.call(ctx, http.MethodGet, a.apiURL+"/me", nil, token, &user); err != nil {
		return nil, err
	}

	return &user, nil
}

// UsersQuery selects the user listing variant and its pagination.
type UsersQuery struct {
	SortBy  UserSortBy
	IDs     []uint64
	Page    int
	PerPage int
}

// GetUsers retrieves a user listing. With IDs set it uses the batch
// endpoint, which accepts at most BatchLimit IDs.
func (a *API) GetUsers(ctx context.Context, q UsersQuery) (*UserList, error) {
	query := url.Values{}
	a.addPagination(query, q.Page, q.PerPage)

	sortBy := q.SortBy
	if sortBy == "" {
		sortBy = UserSortInfluence
	}

	query.Set("sortby", string(sortBy))

	endpoint := a.apiURL + "/users"

	if len(q.IDs) > 0 {
		if len(q.IDs) > BatchLimit {
			return nil, fmt.Errorf("%w: %d > %d", ErrTooManyIDs, len(q.IDs), BatchLimit)
		}

		ids := make([]string, len(q.IDs))
		for i, id := range q.IDs {
			ids[i] = strconv.FormatUint(id, 10)
		}

		query.Set("ids", strings.Join(ids, ","))
		endpoint = a.apiURL + "/users/batch"
	}

	var list UserList
	if err := a.call(ctx, http.MethodGet, endpoint, query, "", &list); err != nil {
		return nil, err
	}

	return &list, nil
}

// GetUserRange retrieves users with IDs in [start, stop].
func (a *API) GetUserRange(ctx context.Context, start, stop uint64, page, perPage int) (*UserList, error) {
	query := url.Values{}
	a.addPagination(query, page, perPage)
	query.Set("ids", fmt.Sprintf("%d,%d", start, stop))

	var list UserList
	if err := a.call(ctx, http.MethodGet, a.apiURL+"/users/range", query, "", &list); err != nil {
		return nil, err
	}

	return &list, nil
}

// SearchUsers searches the user directory. Empty criteria are omitted from
// the query; list-valued criteria are repeated.
func (a *API) SearchUsers(
	ctx context.Context, screenName, location string, tags []string,
	sortBy UserSortBy, page, perPage int,
) (*UserList, error) {
	query := url.Values{}
	a.addPagination(query, page, perPage)
	query.Set("sortby", string(sortBy))

	if screenName != "" {
		query.Set("screen_name", screenName)
	}

	if location != "" {
		query.Set("location", location)
	}

	for _, tag := range tags {
		query.Add("tag", tag)
	}

	var list UserList
	if err := a.call(ctx, http.MethodGet, a.apiURL+"/users/search", query, "", &list); err != nil {
		return nil, err
	}

	return &list, nil
}

// GetUserLinks retrieves one page of a user's outbound links.
func (a *API) GetUserLinks(ctx context.Context, userID uint64, page, perPage int) (*LinkList, error) {
	query := url.Values{}
	a.addPagination(query, page, perPage)

	var list LinkList

	endpoint := fmt.Sprintf("%s/users/%d/links", a.apiURL, userID)
	if err := a.call(ctx, http.MethodGet, endpoint, query, "", &list); err != nil {
		return nil, err
	}

	return &list, nil
}

// GetUserProjects retrieves one page of a user's projects.
func (a *API) GetUserProjects(ctx context.Context, userID uint64, page, perPage int) (*ProjectList, error) {
	query := url.Values{}
	a.addPagination(query, page, perPage)
	query.Set("sortby", string(ProjectSortSkulls))

	var list ProjectList

	endpoint := fmt.Sprintf("%s/users/%d/projects", a.apiURL, userID)
	if err := a.call(ctx, http.MethodGet, endpoint, query, "", &list); err != nil {
		return nil, err
	}

	return &list, nil
}

// GetUserPages retrieves one page of a user's pages.
func (a *API) GetUserPages(ctx context.Context, userID uint64, page, perPage int) (*PageList, error) {
	query := url.Values{}
	a.addPagination(query, page, perPage)

	var list PageList

	endpoint := fmt.Sprintf("%s/users/%d/pages", a.apiURL, userID)
	if err := a.call(ctx, http.MethodGet, endpoint, query, "", &list); err != nil {
		return nil, err
	}

	return &list, nil
}

// GetUserTags retrieves one page of a user's tags.
func (a *API) GetUserTags(ctx context.Context, userID uint64, page, perPage int) (*TagList, error) {
	query := url.Values{}
	a.addPagination(query, page, perPage)

	var list TagList

	endpoint := fmt.Sprintf("%s/users/%d/tags", a.apiURL, userID)
	if err := a.call(ctx, http.MethodGet, endpoint, query, "", &list); err != nil {
		return nil, err
	}

	return &list, nil
}

// GetProjectTeam retrieves one page of a project's team members.
func (a *API) GetProjectTeam(
	ctx context.Context, projectID uint64, sortBy UserSortBy, page, perPage int,
) (*TeamList, error) {
	query := url.Values{}
	a.addPagination(query, page, perPage)
	query.Set("sortby", string(sortBy))

	var list TeamList

	endpoint := fmt.Sprintf("%s/projects/%d/team", a.apiURL, projectID)
	if err := a.call(ctx, http.MethodGet, endpoint, query, "", &list); err != nil {
		return nil, err
	}

	return &list, nil
}

func (a *API) addPagination(query url.Values, page, perPage int) {
	if page > 0 {
		query.Set("page", strconv.Itoa(page))
	}

	if perPage > 0 {
		query.Set("per_page", strconv.Itoa(perPage))
	}
}

// call performs a JSON API request. The application API key is injected for
// all calls except those carrying an OAuth token.
func (a *API) call(
	ctx context.Context, method, endpoint string, query url.Values, token string, out any,
) error {
	headers := http.Header{}
	headers.Set("Accept", "application/json")

	if token != "" {
		headers.Set("Authorization", "token "+token)
	} else {
		if query == nil {
			query = url.Values{}
		}

		query.Set("api_key", a.creds.APIKey)
	}

	uri := endpoint
	if len(query) > 0 {
		uri += "?" + query.Encode()
	}

	resp, err := a.client.Fetch(ctx, method, uri, headers, nil)
	if err != nil {
		return err
	}

	ct, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err == nil && !strings.EqualFold(ct, "application/json") {
		return fmt.Errorf("%w: %s", ErrNotJSON, ct)
	}

	if err := sonic.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", endpoint, err)
	}

	return nil
}
