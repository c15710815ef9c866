package lastfm

import (
	"bytes"
	"encoding/json"
	"time"
)

// Scrobble is one raw play event as the service reported it.
type Scrobble struct {
	Artist     string
	Album      string
	Title      string
	Time       time.Time
	Loved      bool
	NowPlaying bool
}

// LovedTrack is one entry of the user's loved (or banned) list.
type LovedTrack struct {
	Artist string
	Title  string
}

// pageAttr carries the pagination metadata the service places under
// "@attr".
type pageAttr struct {
	Page       string `json:"page"`
	TotalPages string `json:"totalPages"`
	Total      string `json:"total"`
}

// nameField decodes the service's inconsistent name encodings: a plain
// string, {"#text": ...}, or {"name": ...} (extended responses).
type nameField string

func (n *nameField) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*n = nameField(s)
		return nil
	}
	var obj struct {
		Text string `json:"#text"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	if obj.Name != "" {
		*n = nameField(obj.Name)
	} else {
		*n = nameField(obj.Text)
	}
	return nil
}

// rawTrack is a track entry shared by recent/loved/banned listings.
type rawTrack struct {
	Name   nameField `json:"name"`
	Artist nameField `json:"artist"`
	Album  nameField `json:"album"`
	Loved  string    `json:"loved"`
	Date   *struct {
		UTS string `json:"uts"`
	} `json:"date"`
	Attr *struct {
		NowPlaying string `json:"nowplaying"`
	} `json:"@attr"`
}

// trackList tolerates the service collapsing single-element lists into
// a bare object.
type trackList []rawTrack

func (t *trackList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		return json.Unmarshal(data, (*[]rawTrack)(t))
	}
	var single rawTrack
	if err := json.Unmarshal(data, &single); err != nil {
		return err
	}
	*t = trackList{single}
	return nil
}

type recentTracksPage struct {
	RecentTracks struct {
		Track trackList `json:"track"`
		Attr  pageAttr  `json:"@attr"`
	} `json:"recenttracks"`
}

type lovedTracksPage struct {
	LovedTracks struct {
		Track trackList `json:"track"`
		Attr  pageAttr  `json:"@attr"`
	} `json:"lovedtracks"`
}

type bannedTracksPage struct {
	BannedTracks struct {
		Track trackList `json:"track"`
		Attr  pageAttr  `json:"@attr"`
	} `json:"bannedtracks"`
}

type correctionResponse struct {
	Corrections struct {
		Correction struct {
			Artist struct {
				Name string `json:"name"`
			} `json:"artist"`
		} `json:"correction"`
	} `json:"corrections"`
}

type albumSearchResponse struct {
	Results struct {
		AlbumMatches struct {
			Album []struct {
				Name   string `json:"name"`
				Artist string `json:"artist"`
			} `json:"album"`
		} `json:"albummatches"`
	} `json:"results"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

type sessionResponse struct {
	Session struct {
		Name string `json:"name"`
		Key  string `json:"key"`
	} `json:"session"`
}
