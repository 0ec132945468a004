package feed

import (
	"encoding/xml"
	"path"
	"strconv"
	"strings"
	"time"

	"yt2pod/internal/episode"
)

const (
	itunesNamespace = "http://www.itunes.com/dtds/podcast-1.0.dtd"
	atomNamespace   = "http://www.w3.org/2005/Atom"
	generatorName   = "yt2pod"
	pubDateLayout   = time.RFC1123Z
)

type rssDocument struct {
	XMLName  xml.Name   `xml:"rss"`
	Version  string     `xml:"version,attr"`
	ITunesNS string     `xml:"xmlns:itunes,attr"`
	AtomNS   string     `xml:"xmlns:atom,attr"`
	Channel  rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title          string          `xml:"title"`
	Link           string          `xml:"link"`
	Description    cdata           `xml:"description"`
	Language       string          `xml:"language,omitempty"`
	Generator      string          `xml:"generator"`
	LastBuildDate  string          `xml:"lastBuildDate,omitempty"`
	AtomLink       *atomLink       `xml:"atom:link,omitempty"`
	Image          *rssImage       `xml:"image,omitempty"`
	ITunesAuthor   string          `xml:"itunes:author,omitempty"`
	ITunesOwner    *itunesOwner    `xml:"itunes:owner,omitempty"`
	ITunesImage    *itunesImage    `xml:"itunes:image,omitempty"`
	ITunesCategory *itunesCategory `xml:"itunes:category,omitempty"`
	ITunesExplicit string          `xml:"itunes:explicit"`
	Items          []rssItem       `xml:"item"`
}

type rssItem struct {
	Title          string       `xml:"title"`
	Link           string       `xml:"link,omitempty"`
	Description    cdata        `xml:"description"`
	GUID           rssGUID      `xml:"guid"`
	PubDate        string       `xml:"pubDate,omitempty"`
	Enclosure      rssEnclosure `xml:"enclosure"`
	ITunesDuration string       `xml:"itunes:duration,omitempty"`
	ITunesImage    *itunesImage `xml:"itunes:image,omitempty"`
}

type cdata struct {
	Text string `xml:",cdata"`
}

type rssGUID struct {
	IsPermaLink string `xml:"isPermaLink,attr"`
	Value       string `xml:",chardata"`
}

type rssEnclosure struct {
	URL    string `xml:"url,attr"`
	Length string `xml:"length,attr"`
	Type   string `xml:"type,attr"`
}

type rssImage struct {
	URL   string `xml:"url"`
	Title string `xml:"title"`
	Link  string `xml:"link"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
	Type string `xml:"type,attr"`
}

type itunesOwner struct {
	Name  string `xml:"itunes:name,omitempty"`
	Email string `xml:"itunes:email"`
}

type itunesImage struct {
	Href string `xml:"href,attr"`
}

type itunesCategory struct {
	Text string `xml:"text,attr"`
}

// Marshal renders the feed as RSS 2.0 with iTunes and Atom namespaces. Items
// are written newest first. selfURL becomes the atom:link self reference.
func Marshal(f *Feed, selfURL string) ([]byte, error) {
	ch := f.Channel
	doc := rssDocument{
		Version:  "2.0",
		ITunesNS: itunesNamespace,
		AtomNS:   atomNamespace,
		Channel: rssChannel{
			Title:          ch.Title,
			Link:           ch.SiteURL,
			Description:    cdata{Text: ch.Description},
			Language:       ch.Language,
			Generator:      generatorName,
			ITunesAuthor:   ch.Author,
			ITunesExplicit: strconv.FormatBool(ch.Explicit),
		},
	}
	if !f.LastBuildDate.IsZero() {
		doc.Channel.LastBuildDate = f.LastBuildDate.UTC().Format(pubDateLayout)
	}
	if selfURL != "" {
		doc.Channel.AtomLink = &atomLink{Href: selfURL, Rel: "self", Type: "application/rss+xml"}
	}
	if ch.ImageURL != "" {
		doc.Channel.Image = &rssImage{URL: ch.ImageURL, Title: ch.Title, Link: ch.SiteURL}
		doc.Channel.ITunesImage = &itunesImage{Href: ch.ImageURL}
	}
	if ch.OwnerEmail != "" {
		doc.Channel.ITunesOwner = &itunesOwner{Name: ch.Author, Email: ch.OwnerEmail}
	}
	if ch.Category != "" {
		doc.Channel.ITunesCategory = &itunesCategory{Text: ch.Category}
	}

	for _, ep := range f.Newest() {
		item := rssItem{
			Title:       ep.Title,
			Link:        ep.SourceLink,
			Description: cdata{Text: ep.Description},
			GUID:        rssGUID{IsPermaLink: "false", Value: ep.GUID},
			Enclosure: rssEnclosure{
				URL:    ep.AudioURL,
				Length: strconv.FormatInt(ep.AudioByteSize, 10),
				Type:   ep.AudioMimeType,
			},
			ITunesDuration: ep.DurationFormatted,
		}
		if !ep.PublishedAt.IsZero() {
			item.PubDate = ep.PublishedAt.UTC().Format(pubDateLayout)
		}
		if ep.ThumbnailURL != "" {
			item.ITunesImage = &itunesImage{Href: ep.ThumbnailURL}
		}
		doc.Channel.Items = append(doc.Channel.Items, item)
	}

	body, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(xml.Header)+len(body)+1)
	out = append(out, xml.Header...)
	out = append(out, body...)
	out = append(out, '\n')
	return out, nil
}

// mediaBaseFromEpisodes recovers the media base URL from the first enclosure.
func mediaBaseFromEpisodes(episodes []episode.Episode) string {
	for _, ep := range episodes {
		if ep.AudioURL == "" {
			continue
		}
		idx := strings.LastIndex(ep.AudioURL, "/")
		if idx <= 0 {
			continue
		}
		return ep.AudioURL[:idx]
	}
	return ""
}

// EnclosureURL joins the media base URL with the file's base name.
func EnclosureURL(mediaBaseURL, filePath string) string {
	return strings.TrimRight(mediaBaseURL, "/") + "/" + path.Base(strings.ReplaceAll(filePath, "\\", "/"))
}
