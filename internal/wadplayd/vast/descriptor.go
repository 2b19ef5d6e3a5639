// Package vast decodes VAST ad templates into a normalized, immutable
// ad descriptor and selects the media to play.
package vast

import "strings"

// CreativeType distinguishes linear (video) creatives from non-linear overlays
type CreativeType string

const (
	// CreativeLinear is a full-screen linear creative
	CreativeLinear CreativeType = "Linear"
	// CreativeNonLinear is a non-linear creative such as a static image
	CreativeNonLinear CreativeType = "NonLinear"
)

// Delivery is the media delivery mode declared by a MediaFile
type Delivery string

const (
	// DeliveryProgressive is a plain file download
	DeliveryProgressive Delivery = "progressive"
	// DeliveryStreaming is an adaptive or streaming protocol
	DeliveryStreaming Delivery = "streaming"
)

// Standard tracking event names
const (
	EventImpression    = "impression"
	EventStart         = "start"
	EventFirstQuartile = "firstQuartile"
	EventMidpoint      = "midpoint"
	EventThirdQuartile = "thirdQuartile"
	EventComplete      = "complete"
	EventError         = "error"
)

// Descriptor is the decoded form of one ad
type Descriptor struct {
	// Version is the VAST version attribute
	Version  string
	Ad       AdMetadata
	Creative Creative
	// MediaCandidates are sorted in priority order
	MediaCandidates []MediaCandidate
	// TrackingEvents maps event names to beacon URLs
	TrackingEvents map[string][]string
	ClickThrough   []string
	// DealID, OfferID and BillingID come from the vendor extension block or
	// the AdParameters JSON blob
	DealID    string
	OfferID   string
	BillingID string
}

// AdMetadata describes the ad independently of its creative
type AdMetadata struct {
	ID              string
	Sequence        string
	System          string
	Title           string
	Description     string
	Advertiser      string
	PricingModel    string
	PricingCurrency string
	Price           string
	// Wrapper is set when the ad is a wrapper; wrapper chains are not followed
	Wrapper bool
}

// Creative describes the selected creative
type Creative struct {
	Type            CreativeType
	DurationSeconds float64
	// SkipOffsetSeconds is nil when the creative is not skippable
	SkipOffsetSeconds *float64
}

// MediaCandidate is one playable rendition of the creative
type MediaCandidate struct {
	URL      string
	MimeType string
	Delivery Delivery
	Width    int
	Height   int
	// Bitrate is in kbps; nil when the template did not declare one
	Bitrate *int
}

// IsImage reports whether the candidate is a still image
func (m MediaCandidate) IsImage() bool {
	return strings.HasPrefix(strings.ToLower(m.MimeType), "image/")
}

// Tracking returns the beacon URLs registered for an event
func (d *Descriptor) Tracking(event string) []string {
	if d == nil {
		return nil
	}
	return d.TrackingEvents[event]
}

// SelectBestMedia returns the first candidate, in priority order, matching
// the earliest acceptable MIME type. A preference may be an exact type or a
// family wildcard such as "video/*". Without a match the highest priority
// candidate is returned; nil means there is nothing to play.
func (d *Descriptor) SelectBestMedia(preferences []string) *MediaCandidate {
	if d == nil || len(d.MediaCandidates) == 0 {
		return nil
	}
	for _, pref := range preferences {
		pref = strings.ToLower(strings.TrimSpace(pref))
		if pref == "" {
			continue
		}
		for i := range d.MediaCandidates {
			if mimeMatches(pref, d.MediaCandidates[i].MimeType) {
				return &d.MediaCandidates[i]
			}
		}
	}
	return &d.MediaCandidates[0]
}

func mimeMatches(pref, mime string) bool {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	if pref == "*/*" {
		return true
	}
	if strings.HasSuffix(pref, "/*") {
		return strings.HasPrefix(mime, strings.TrimSuffix(pref, "*"))
	}
	return pref == mime
}
