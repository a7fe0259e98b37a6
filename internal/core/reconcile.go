package core

// FeedView chooses between the snapshot fetched before render and the live
// feed. The snapshot is shown until the live feed delivers its first result;
// from then on only the live feed is shown, even when it is empty.
type FeedView struct {
	prefetched []DisplayMessage
	live       []DisplayMessage
	loaded     bool
}

func NewFeedView(prefetched []DisplayMessage) *FeedView {
	if prefetched == nil {
		prefetched = []DisplayMessage{}
	}
	return &FeedView{prefetched: prefetched}
}

// Apply records a live feed result.
func (v *FeedView) Apply(update []DisplayMessage) {
	if update == nil {
		update = []DisplayMessage{}
	}
	v.live = update
	v.loaded = true
}

// Loading is true until the live feed has reported once.
func (v *FeedView) Loading() bool {
	return !v.loaded
}

func (v *FeedView) Messages() []DisplayMessage {
	if !v.loaded {
		return v.prefetched
	}
	return v.live
}
