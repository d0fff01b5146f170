package simplemessages

// SubmitRequest contains the raw, untrusted input of one intake request.
type SubmitRequest struct {
	DisplayName  string
	ContactEmail string
	MessageBody  string
	// Upload is optional; nil means no image was supplied.
	Upload *Upload
}

// GetFeedRequest contains parameters for reading the public feed
type GetFeedRequest struct {
	// Limit is the page size. Zero means the default; values over the
	// maximum are capped.
	Limit int
	// Cursor continues from a previous page's NextCursor. Empty starts at
	// the newest submission.
	Cursor string
}

// Feed page size bounds.
const (
	DefaultFeedLimit = 20
	MaxFeedLimit     = 100
)

func (r GetFeedRequest) limit() int {
	switch {
	case r.Limit <= 0:
		return DefaultFeedLimit
	case r.Limit > MaxFeedLimit:
		return MaxFeedLimit
	}
	return r.Limit
}
