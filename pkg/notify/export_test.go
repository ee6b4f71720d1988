package notify

import "time"

// SetClock swaps the inbox's time source for tests.
func SetClock(i *Inbox, now func() time.Time) { i.now = now }
