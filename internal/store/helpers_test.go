package store

import "time"

var zeroTime = time.Time{}
