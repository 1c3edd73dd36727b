package persist

import "time"

func unixNanoToTime(nano int64) time.Time {
	return time.Unix(0, nano)
}
