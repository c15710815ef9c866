package lastfm

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ErrTransport marks a call that failed at the HTTP or decode level on
// both attempts.
var ErrTransport = errors.New("scrobble service transport error")

// ErrNoSession is returned by authenticated calls before a session key
// is available.
var ErrNoSession = errors.New("no scrobble service session")

// ServiceError is an error the service itself reported.
type ServiceError struct {
	Code    int
	Message string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("scrobble service error %d: %s", e.Code, e.Message)
}

// scrobblePageLimit is the page size requested from the service.
const scrobblePageLimit = 200

// callAttempts bounds total attempts per request.
const callAttempts = 2

// Client talks to the scrobble service's JSON API.
type Client struct {
	baseURL    string
	apiKey     string
	secret     string
	httpClient *http.Client
	logger     *zerolog.Logger

	sessionKey  string
	sessionFile string
}

// NewClient returns a client for the service at baseURL.
func NewClient(baseURL, apiKey, secret, sessionFile string, logger *zerolog.Logger) *Client {
	return &Client{
		baseURL:     baseURL,
		apiKey:      apiKey,
		secret:      secret,
		sessionFile: sessionFile,
		httpClient:  &http.Client{},
		logger:      logger,
	}
}

// Sign produces the request signature: all key/value pairs except
// format and api_sig concatenated in ascending key order, followed by
// the shared secret, hashed to a lowercase hex md5 digest.
func Sign(params map[string]string, secret string) string {
	keys := make([]string, 0, len(params))
	for key := range params {
		if key == "format" || key == "api_sig" {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, key := range keys {
		b.WriteString(key)
		b.WriteString(params[key])
	}
	b.WriteString(secret)
	return fmt.Sprintf("%x", md5.Sum([]byte(b.String())))
}

// call performs one API request, retrying once on transport or decode
// failure. Service-reported errors are terminal.
func (c *Client) call(ctx context.Context, method string, args map[string]string, signed bool) (json.RawMessage, error) {
	params := map[string]string{
		"method":  method,
		"api_key": c.apiKey,
		"format":  "json",
	}
	for key, value := range args {
		params[key] = value
	}
	if signed {
		if c.sessionKey != "" {
			params["sk"] = c.sessionKey
		}
		params["api_sig"] = Sign(params, c.secret)
	}

	form := url.Values{}
	for key, value := range params {
		form.Set(key, value)
	}

	var lastErr error
	for attempt := 0; attempt < callAttempts; attempt++ {
		raw, err := c.post(ctx, form)
		if err == nil {
			return raw, nil
		}
		var serviceErr *ServiceError
		if errors.As(err, &serviceErr) {
			return nil, err
		}
		lastErr = err
		if c.logger != nil {
			c.logger.Debug().Err(err).Str("method", method).
				Int("attempt", attempt+1).Msg("scrobble service call failed")
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrTransport, lastErr)
}

func (c *Client) post(ctx context.Context, form url.Values) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var probe struct {
		Error   int    `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if probe.Error != 0 {
		return nil, &ServiceError{Code: probe.Error, Message: probe.Message}
	}
	return body, nil
}

// queryAll walks every page of a paged method. The pagination metadata
// lives under "@attr" of the object at path; each raw page is handed to
// fn.
func (c *Client) queryAll(ctx context.Context, method string, args map[string]string, fn func(page json.RawMessage) error, path ...string) error {
	for page := 1; ; page++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		pageArgs := map[string]string{"page": strconv.Itoa(page)}
		for key, value := range args {
			pageArgs[key] = value
		}

		raw, err := c.call(ctx, method, pageArgs, false)
		if err != nil {
			return err
		}
		if err := fn(raw); err != nil {
			return err
		}

		totalPages, err := totalPagesAt(raw, path...)
		if err != nil {
			return err
		}
		if page >= totalPages {
			return nil
		}
	}
}

// totalPagesAt walks raw to the object at path and reads
// "@attr".totalPages.
func totalPagesAt(raw json.RawMessage, path ...string) (int, error) {
	node := raw
	for _, key := range path {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(node, &obj); err != nil {
			return 0, fmt.Errorf("failed to walk response at %q: %w", key, err)
		}
		next, ok := obj[key]
		if !ok {
			return 0, fmt.Errorf("response missing %q", key)
		}
		node = next
	}

	var attrs struct {
		Attr pageAttr `json:"@attr"`
	}
	if err := json.Unmarshal(node, &attrs); err != nil {
		return 0, fmt.Errorf("failed to decode pagination: %w", err)
	}
	totalPages, err := strconv.Atoi(attrs.Attr.TotalPages)
	if err != nil || totalPages < 1 {
		return 1, nil
	}
	return totalPages, nil
}

// RecentTracks streams the user's scrobbles within [from, to], newest
// pages first, invoking fn per raw scrobble.
func (c *Client) RecentTracks(ctx context.Context, user string, from, to *time.Time, fn func(Scrobble) error) error {
	args := map[string]string{
		"user":     user,
		"limit":    strconv.Itoa(scrobblePageLimit),
		"extended": "1",
	}
	if from != nil {
		args["from"] = strconv.FormatInt(from.Unix(), 10)
	}
	if to != nil {
		args["to"] = strconv.FormatInt(to.Unix(), 10)
	}

	return c.queryAll(ctx, "user.getRecentTracks", args, func(raw json.RawMessage) error {
		var page recentTracksPage
		if err := json.Unmarshal(raw, &page); err != nil {
			return fmt.Errorf("failed to decode recent tracks: %w", err)
		}
		for _, track := range page.RecentTracks.Track {
			scrobble := Scrobble{
				Artist: string(track.Artist),
				Album:  string(track.Album),
				Title:  string(track.Name),
				Loved:  track.Loved == "1",
			}
			if track.Attr != nil && track.Attr.NowPlaying == "true" {
				scrobble.NowPlaying = true
			}
			if track.Date != nil {
				if uts, err := strconv.ParseInt(track.Date.UTS, 10, 64); err == nil {
					scrobble.Time = time.Unix(uts, 0).UTC()
				}
			}
			if err := fn(scrobble); err != nil {
				return err
			}
		}
		return nil
	}, "recenttracks")
}

// LovedTracks returns the user's full loved list.
func (c *Client) LovedTracks(ctx context.Context, user string) ([]LovedTrack, error) {
	var loved []LovedTrack
	err := c.queryAll(ctx, "user.getLovedTracks",
		map[string]string{"user": user},
		func(raw json.RawMessage) error {
			var page lovedTracksPage
			if err := json.Unmarshal(raw, &page); err != nil {
				return fmt.Errorf("failed to decode loved tracks: %w", err)
			}
			for _, track := range page.LovedTracks.Track {
				loved = append(loved, LovedTrack{
					Artist: string(track.Artist),
					Title:  string(track.Name),
				})
			}
			return nil
		}, "lovedtracks")
	return loved, err
}

// BannedTracks returns the user's banned list. The flag is legacy but
// preserved for data fidelity.
func (c *Client) BannedTracks(ctx context.Context, user string) ([]LovedTrack, error) {
	var banned []LovedTrack
	err := c.queryAll(ctx, "user.getBannedTracks",
		map[string]string{"user": user},
		func(raw json.RawMessage) error {
			var page bannedTracksPage
			if err := json.Unmarshal(raw, &page); err != nil {
				return fmt.Errorf("failed to decode banned tracks: %w", err)
			}
			for _, track := range page.BannedTracks.Track {
				banned = append(banned, LovedTrack{
					Artist: string(track.Artist),
					Title:  string(track.Name),
				})
			}
			return nil
		}, "bannedtracks")
	return banned, err
}

// ArtistCorrection returns the canonical spelling the service suggests
// for an artist name, or "" when it has none.
func (c *Client) ArtistCorrection(ctx context.Context, name string) (string, error) {
	raw, err := c.call(ctx, "artist.getCorrection", map[string]string{"artist": name}, false)
	if err != nil {
		return "", err
	}
	var resp correctionResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("failed to decode correction: %w", err)
	}
	return resp.Corrections.Correction.Artist.Name, nil
}

// AlbumCorrections returns candidate album spellings from the service's
// album search, best match first.
func (c *Client) AlbumCorrections(ctx context.Context, album, artist string) ([]string, error) {
	raw, err := c.call(ctx, "album.search",
		map[string]string{"album": album}, false)
	if err != nil {
		return nil, err
	}
	var resp albumSearchResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode album search: %w", err)
	}
	var names []string
	for _, match := range resp.Results.AlbumMatches.Album {
		if artist == "" || strings.EqualFold(match.Artist, artist) {
			names = append(names, match.Name)
		}
	}
	return names, nil
}

// LoveTrack marks the track loved on the service. Requires a session.
func (c *Client) LoveTrack(ctx context.Context, artist, track string) error {
	return c.mutate(ctx, "track.love", artist, track)
}

// UnloveTrack clears the loved flag on the service. Requires a session.
func (c *Client) UnloveTrack(ctx context.Context, artist, track string) error {
	return c.mutate(ctx, "track.unlove", artist, track)
}

func (c *Client) mutate(ctx context.Context, method, artist, track string) error {
	if c.sessionKey == "" {
		return ErrNoSession
	}
	_, err := c.call(ctx, method,
		map[string]string{"artist": artist, "track": track}, true)
	return err
}
