package vast

import "sort"

// sortCandidates applies the candidate priority order: progressive before
// streaming, then higher bitrate, then declared bitrate before undeclared,
// then larger area, then URL and MIME type.
func sortCandidates(candidates []MediaCandidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return lessCandidate(candidates[i], candidates[j])
	})
}

func lessCandidate(a, b MediaCandidate) bool {
	if ra, rb := deliveryRank(a.Delivery), deliveryRank(b.Delivery); ra != rb {
		return ra < rb
	}

	switch {
	case a.Bitrate != nil && b.Bitrate == nil:
		return true
	case a.Bitrate == nil && b.Bitrate != nil:
		return false
	case a.Bitrate != nil && b.Bitrate != nil && *a.Bitrate != *b.Bitrate:
		return *a.Bitrate > *b.Bitrate
	}

	if aa, ab := a.Width*a.Height, b.Width*b.Height; aa != ab {
		return aa > ab
	}
	if a.URL != b.URL {
		return a.URL < b.URL
	}
	return a.MimeType < b.MimeType
}

func deliveryRank(d Delivery) int {
	if d == DeliveryStreaming {
		return 1
	}
	return 0
}
