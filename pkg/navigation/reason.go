package navigation

import "strings"

// Request describes a navigation request as seen by the host.
type Request struct {
	URL        string
	Method     string
	CurrentURL string

	// Requested is set while a load the frame itself was told to perform
	// has not committed yet, redirects included.
	Requested bool
}

// Reason classifies the request. Navigations issued through the frame
// report ReasonOther, submissions report ReasonForm,
// reloading the current address reports ReasonReload and anything else is
// treated as a followed link.
func (r Request) Reason() Reason {
	switch {
	case r.Requested:
		return ReasonOther
	case strings.EqualFold(r.Method, "POST"):
		return ReasonForm
	case r.CurrentURL != "" && r.URL == r.CurrentURL:
		return ReasonReload
	default:
		return ReasonLink
	}
}
