package vast

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/beevik/etree"
	"github.com/buger/jsonparser"

	werrors "github.com/wrale/wrale-adplay/internal/wadplayd/errors"
)

// Decode parses a VAST document, or a JSON object carrying one under
// "vast" or "adm", into a Descriptor. Only a missing or unparsable root
// fails; absent optional fields decode to zero values.
func Decode(payload []byte) (*Descriptor, error) {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		return nil, malformed("empty payload", nil)
	}

	if payload[0] == '{' {
		xml, err := unwrapJSON(payload)
		if err != nil {
			return nil, err
		}
		payload = xml
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(payload); err != nil {
		return nil, malformed("error parsing VAST XML", err)
	}

	root := doc.SelectElement("VAST")
	if root == nil {
		return nil, malformed("VAST root element not found", nil)
	}

	ad := root.SelectElement("Ad")
	if ad == nil {
		return nil, malformed("VAST document contains no Ad", nil)
	}

	body := ad.SelectElement("InLine")
	wrapper := false
	if body == nil {
		body = ad.SelectElement("Wrapper")
		wrapper = true
	}
	if body == nil {
		return nil, malformed("Ad has neither InLine nor Wrapper", nil)
	}

	d := &Descriptor{
		Version:        root.SelectAttrValue("version", ""),
		TrackingEvents: make(map[string][]string),
	}
	d.Ad = adMetadata(ad, body)
	d.Ad.Wrapper = wrapper

	for _, imp := range body.SelectElements("Impression") {
		d.addTracking(EventImpression, imp.Text())
	}
	for _, e := range body.SelectElements("Error") {
		d.addTracking(EventError, e.Text())
	}

	decodeCreative(d, body)
	sortCandidates(d.MediaCandidates)

	d.DealID, d.OfferID, d.BillingID = extensionIDs(body)
	if d.DealID == "" || d.OfferID == "" || d.BillingID == "" {
		deal, offer, billing := adParameterIDs(body)
		d.DealID = firstNonEmpty(d.DealID, deal)
		d.OfferID = firstNonEmpty(d.OfferID, offer)
		d.BillingID = firstNonEmpty(d.BillingID, billing)
	}

	return d, nil
}

func malformed(msg string, err error) error {
	if err != nil {
		return werrors.NewError("MALFORMED_DESCRIPTOR", fmt.Sprintf("%s: %v", msg, err), "vast.Decode", werrors.ErrMalformedDescriptor)
	}
	return werrors.NewError("MALFORMED_DESCRIPTOR", msg, "vast.Decode", werrors.ErrMalformedDescriptor)
}

// unwrapJSON extracts the XML document from a JSON offer payload
func unwrapJSON(payload []byte) ([]byte, error) {
	for _, key := range []string{"vast", "adm", "VAST"} {
		v, err := jsonparser.GetString(payload, key)
		if err == nil && strings.TrimSpace(v) != "" {
			return []byte(strings.TrimSpace(v)), nil
		}
	}
	return nil, malformed("JSON payload carries no VAST document", nil)
}

func adMetadata(ad, body *etree.Element) AdMetadata {
	meta := AdMetadata{
		ID:          ad.SelectAttrValue("id", ""),
		Sequence:    ad.SelectAttrValue("sequence", ""),
		System:      childText(body, "AdSystem"),
		Title:       childText(body, "AdTitle"),
		Description: childText(body, "Description"),
		Advertiser:  childText(body, "Advertiser"),
	}
	if pricing := body.SelectElement("Pricing"); pricing != nil {
		meta.PricingModel = pricing.SelectAttrValue("model", "")
		meta.PricingCurrency = pricing.SelectAttrValue("currency", "")
		meta.Price = strings.TrimSpace(pricing.Text())
	}
	return meta
}

// decodeCreative uses the first Linear creative, else the first NonLinear one
func decodeCreative(d *Descriptor, body *etree.Element) {
	creatives := body.FindElements("Creatives/Creative")

	for _, c := range creatives {
		if linear := c.SelectElement("Linear"); linear != nil {
			decodeLinear(d, linear)
			return
		}
	}
	for _, c := range creatives {
		if ads := c.SelectElement("NonLinearAds"); ads != nil {
			decodeNonLinear(d, ads)
			return
		}
	}
}

func decodeLinear(d *Descriptor, linear *etree.Element) {
	d.Creative.Type = CreativeLinear
	if dur, ok := parseTimecode(childText(linear, "Duration")); ok {
		d.Creative.DurationSeconds = dur
	}
	if raw := linear.SelectAttrValue("skipoffset", ""); raw != "" {
		if off, ok := parseOffset(raw, d.Creative.DurationSeconds); ok {
			d.Creative.SkipOffsetSeconds = &off
		}
	}

	for _, mf := range linear.FindElements("MediaFiles/MediaFile") {
		url := strings.TrimSpace(mf.Text())
		if url == "" {
			continue
		}
		d.MediaCandidates = append(d.MediaCandidates, MediaCandidate{
			URL:      url,
			MimeType: mf.SelectAttrValue("type", ""),
			Delivery: parseDelivery(mf.SelectAttrValue("delivery", "")),
			Width:    intAttr(mf, "width"),
			Height:   intAttr(mf, "height"),
			Bitrate:  bitrate(mf),
		})
	}

	d.addTrackingEvents(linear)
	for _, ct := range linear.FindElements("VideoClicks/ClickThrough") {
		d.addClickThrough(ct.Text())
	}
}

func decodeNonLinear(d *Descriptor, ads *etree.Element) {
	d.Creative.Type = CreativeNonLinear

	for _, nl := range ads.SelectElements("NonLinear") {
		if d.Creative.DurationSeconds == 0 {
			if dur, ok := parseTimecode(nl.SelectAttrValue("minSuggestedDuration", "")); ok {
				d.Creative.DurationSeconds = dur
			}
		}
		for _, res := range nl.SelectElements("StaticResource") {
			url := strings.TrimSpace(res.Text())
			if url == "" {
				continue
			}
			d.MediaCandidates = append(d.MediaCandidates, MediaCandidate{
				URL:      url,
				MimeType: res.SelectAttrValue("creativeType", ""),
				Delivery: DeliveryProgressive,
				Width:    intAttr(nl, "width"),
				Height:   intAttr(nl, "height"),
			})
		}
		for _, ct := range nl.SelectElements("NonLinearClickThrough") {
			d.addClickThrough(ct.Text())
		}
	}

	d.addTrackingEvents(ads)
}

func (d *Descriptor) addTrackingEvents(parent *etree.Element) {
	for _, t := range parent.FindElements("TrackingEvents/Tracking") {
		event := strings.TrimSpace(t.SelectAttrValue("event", ""))
		if event == "" {
			continue
		}
		d.addTracking(event, t.Text())
	}
}

func (d *Descriptor) addTracking(event, url string) {
	url = strings.TrimSpace(url)
	if url == "" {
		return
	}
	d.TrackingEvents[event] = append(d.TrackingEvents[event], url)
}

func (d *Descriptor) addClickThrough(url string) {
	if url = strings.TrimSpace(url); url != "" {
		d.ClickThrough = append(d.ClickThrough, url)
	}
}

// extensionIDs reads deal metadata from the vendor Extensions block. Both
// child elements and attributes on an Extension are accepted.
func extensionIDs(body *etree.Element) (deal, offer, billing string) {
	for _, ext := range body.FindElements("Extensions/Extension") {
		deal = firstNonEmpty(deal, ext.SelectAttrValue("dealId", ""), ext.SelectAttrValue("deal_id", ""))
		offer = firstNonEmpty(offer, ext.SelectAttrValue("offerId", ""), ext.SelectAttrValue("offer_id", ""))
		billing = firstNonEmpty(billing, ext.SelectAttrValue("billingId", ""), ext.SelectAttrValue("billing_id", ""))

		for _, el := range ext.FindElements(".//*") {
			switch normalizeKey(el.Tag) {
			case "dealid":
				deal = firstNonEmpty(deal, strings.TrimSpace(el.Text()))
			case "offerid":
				offer = firstNonEmpty(offer, strings.TrimSpace(el.Text()))
			case "billingid":
				billing = firstNonEmpty(billing, strings.TrimSpace(el.Text()))
			}
		}
	}
	return deal, offer, billing
}

// adParameterIDs reads deal metadata from a JSON AdParameters blob
func adParameterIDs(body *etree.Element) (deal, offer, billing string) {
	for _, p := range body.FindElements(".//AdParameters") {
		raw := []byte(strings.TrimSpace(p.Text()))
		if len(raw) == 0 || raw[0] != '{' {
			continue
		}
		deal = firstNonEmpty(deal, jsonString(raw, "dealId"), jsonString(raw, "deal_id"), jsonString(raw, "deal", "id"))
		offer = firstNonEmpty(offer, jsonString(raw, "offerId"), jsonString(raw, "offer_id"))
		billing = firstNonEmpty(billing, jsonString(raw, "billingId"), jsonString(raw, "billing_id"))
	}
	return deal, offer, billing
}

func jsonString(data []byte, keys ...string) string {
	v, typ, _, err := jsonparser.Get(data, keys...)
	if err != nil {
		return ""
	}
	switch typ {
	case jsonparser.String:
		s, err := jsonparser.ParseString(v)
		if err != nil {
			return ""
		}
		return strings.TrimSpace(s)
	case jsonparser.Number:
		return string(v)
	}
	return ""
}

func normalizeKey(tag string) string {
	return strings.ToLower(strings.ReplaceAll(tag, "_", ""))
}

func childText(parent *etree.Element, tag string) string {
	if el := parent.SelectElement(tag); el != nil {
		return strings.TrimSpace(el.Text())
	}
	return ""
}

func parseDelivery(s string) Delivery {
	if strings.EqualFold(strings.TrimSpace(s), string(DeliveryStreaming)) {
		return DeliveryStreaming
	}
	return DeliveryProgressive
}

func intAttr(el *etree.Element, key string) int {
	v, err := strconv.Atoi(strings.TrimSpace(el.SelectAttrValue(key, "")))
	if err != nil || v < 0 {
		return 0
	}
	return v
}

// bitrate reads bitrate, falling back to the VAST 3 maxBitrate attribute
func bitrate(mf *etree.Element) *int {
	for _, key := range []string{"bitrate", "maxBitrate"} {
		raw := strings.TrimSpace(mf.SelectAttrValue(key, ""))
		if raw == "" {
			continue
		}
		if v, err := strconv.Atoi(raw); err == nil && v >= 0 {
			return &v
		}
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
